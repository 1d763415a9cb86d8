package models

import "time"

type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	UserID *uint `json:"user_id"`
	User   *User `gorm:"constraint:OnDelete:SET NULL" json:"-"`

	Entity   string `gorm:"size:50;not null" json:"entity"` // "collegebudget", "project", "event"
	EntityID uint   `json:"entity_id"`
	Action   string `gorm:"size:50;not null" json:"action"` // "allocate", "charge", "finalize"...
	Details  string `gorm:"type:text" json:"details"`
}
