package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BudgetStatus is stored as a short free string; which values permit an
// overrun is decided by the ledger's configured policy.
type BudgetStatus string

const (
	BudgetActive          BudgetStatus = "ACTIVE"
	BudgetOverrunApproved BudgetStatus = "OVERRUN_APPROVED"
	BudgetClosed          BudgetStatus = "CLOSED"
)

const BudgetUniqueIndex = "budget_collegebudget_college_fy_uniq"

type CollegeBudget struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	TotalAssigned decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_assigned"`
	FiscalYear    string          `gorm:"size:10;not null;uniqueIndex:budget_collegebudget_college_fy_uniq,priority:2" json:"fiscal_year"`
	Status        BudgetStatus    `gorm:"size:20;not null" json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`

	AssignedByID *uint `gorm:"type:bigint" json:"assigned_by_id"`
	AssignedBy   *User `gorm:"foreignKey:AssignedByID;constraint:OnDelete:SET NULL" json:"-"`

	CollegeID uint    `gorm:"type:bigint;not null;uniqueIndex:budget_collegebudget_college_fy_uniq,priority:1" json:"college_id"`
	College   College `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
}

func (CollegeBudget) TableName() string {
	return "budget_collegebudget"
}
