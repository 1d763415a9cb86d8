package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ProjectStatus string

const (
	StatusNotStarted ProjectStatus = "NOT_STARTED"
	StatusInProgress ProjectStatus = "IN_PROGRESS"
	StatusCompleted  ProjectStatus = "COMPLETED"
	StatusCancelled  ProjectStatus = "CANCELLED"
)

type Project struct {
	gorm.Model
	Title  string        `gorm:"size:255;not null" json:"title"`
	Status ProjectStatus `gorm:"type:varchar(20);not null;default:NOT_STARTED" json:"status"`

	CollegeID  uint    `gorm:"index:idx_project_college_fy,priority:1;not null" json:"college_id"`
	College    College `json:"-"`
	FiscalYear string  `gorm:"size:10;index:idx_project_college_fy,priority:2;not null" json:"fiscal_year"`

	LeaderID *uint `json:"leader_id"`
	Leader   *User `gorm:"foreignKey:LeaderID;constraint:OnDelete:SET NULL" json:"-"`

	// columns owned by the budget ledger
	UsedBudget         decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"used_budget"`
	HasFinalSubmission bool            `gorm:"not null;default:false" json:"has_final_submission"`
}

func (Project) TableName() string {
	return "projects_project"
}
