package models

import (
	"time"

	"gorm.io/gorm"
)

type Event struct {
	gorm.Model
	Title        string     `gorm:"size:255;not null" json:"title"`
	Description  string     `gorm:"type:text" json:"description"`
	Location     string     `gorm:"size:255" json:"location"`
	StartAt      time.Time  `gorm:"not null" json:"start_at"`
	EndAt        *time.Time `json:"end_at"`
	Participants int        `gorm:"not null;default:0" json:"participants"`

	// CreatedByID is set once on insert and never written afterwards.
	CreatedByID *uint `gorm:"index" json:"created_by_id"`
	CreatedBy   *User `gorm:"foreignKey:CreatedByID;constraint:OnDelete:SET NULL" json:"-"`
}

func (Event) TableName() string {
	return "events_event"
}

func (e *Event) CreatedByUser(userID uint) bool {
	return e.CreatedByID != nil && *e.CreatedByID == userID
}
