package ledger

import (
	"strings"

	"wbpmisueso/internal/models"
)

// OverrunPolicy names the budget statuses under which project spend may
// exceed total_assigned.
type OverrunPolicy struct {
	statuses map[models.BudgetStatus]struct{}
}

// DefaultOverrunStatuses applies when no statuses are configured.
var DefaultOverrunStatuses = []models.BudgetStatus{models.BudgetOverrunApproved}

func NewOverrunPolicy(statuses ...string) OverrunPolicy {
	p := OverrunPolicy{statuses: make(map[models.BudgetStatus]struct{})}
	for _, s := range statuses {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			p.statuses[models.BudgetStatus(s)] = struct{}{}
		}
	}
	if len(p.statuses) == 0 {
		for _, s := range DefaultOverrunStatuses {
			p.statuses[s] = struct{}{}
		}
	}
	return p
}

func (p OverrunPolicy) Permits(status models.BudgetStatus) bool {
	if p.statuses == nil {
		return status == models.BudgetOverrunApproved
	}
	_, ok := p.statuses[status]
	return ok
}
