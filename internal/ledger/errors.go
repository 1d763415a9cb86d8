package ledger

import (
	"errors"
	"fmt"

	"wbpmisueso/internal/database"

	"github.com/shopspring/decimal"
)

var (
	ErrDuplicateAllocation    = errors.New("budget already allocated for this college and fiscal year")
	ErrInsufficientAllocation = errors.New("allocation is below committed project spend")
	ErrOverBudget             = errors.New("charge exceeds the college allocation")
	ErrFrozenProject          = errors.New("project has a final submission and its budget is frozen")
	ErrAllocationNotFound     = errors.New("no budget allocated for this college and fiscal year")
	ErrProjectNotFound        = errors.New("project not found")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidFiscalYear      = errors.New("fiscal year must be 1 to 10 characters")
	ErrNotAllocator           = errors.New("user may not allocate budgets")
)

// AmountError carries the offending amount and the bound it was checked
// against. errors.Is matches the wrapped sentinel.
type AmountError struct {
	Err    error
	Amount decimal.Decimal
	Limit  decimal.Decimal
}

func (e *AmountError) Error() string {
	return fmt.Sprintf("%v: %s against %s", e.Err, Display(e.Amount), Display(e.Limit))
}

func (e *AmountError) Unwrap() error { return e.Err }

var domainErrors = []error{
	ErrDuplicateAllocation,
	ErrInsufficientAllocation,
	ErrOverBudget,
	ErrFrozenProject,
	ErrAllocationNotFound,
	ErrProjectNotFound,
	ErrInvalidAmount,
	ErrInvalidFiscalYear,
	ErrNotAllocator,
}

// storageErr wraps anything that is not a ledger outcome as a backend failure.
func storageErr(op string, err error) error {
	if err == nil || errors.Is(err, database.ErrBackendUnavailable) {
		return err
	}
	for _, d := range domainErrors {
		if errors.Is(err, d) {
			return err
		}
	}
	return database.Unavailable(op, err)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrDuplicateAllocation):
		return "duplicate"
	case errors.Is(err, ErrInsufficientAllocation):
		return "insufficient"
	case errors.Is(err, ErrOverBudget):
		return "over_budget"
	case errors.Is(err, ErrFrozenProject):
		return "frozen"
	case errors.Is(err, ErrAllocationNotFound), errors.Is(err, ErrProjectNotFound):
		return "not_found"
	case errors.Is(err, database.ErrBackendUnavailable):
		return "unavailable"
	default:
		return "invalid"
	}
}
