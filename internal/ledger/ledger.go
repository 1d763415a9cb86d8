// Package ledger tracks per-college fiscal-year allocations and the project
// spend charged against them.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"wbpmisueso/internal/cache"
	"wbpmisueso/internal/database"
	"wbpmisueso/internal/metrics"
	"wbpmisueso/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	budgetModel  = "collegebudget"
	projectModel = "project"

	DefaultSummaryTTL = 5 * time.Minute
)

// maxAmount is the first value a numeric(12,2) column cannot hold.
var maxAmount = decimal.New(1, 10)

type Options struct {
	Invalidator *cache.Invalidator
	Cache       cache.Backend // read-through store for Summary; nil disables it
	Overrun     OverrunPolicy
	SummaryTTL  time.Duration
	Logger      *slog.Logger
}

type Service struct {
	db          *gorm.DB
	invalidator *cache.Invalidator
	cache       cache.Backend
	overrun     OverrunPolicy
	summaryTTL  time.Duration
	logger      *slog.Logger

	// generation increases on every invalidation; Summary drops a cached
	// value computed across one
	generation atomic.Uint64
}

func NewService(db *gorm.DB, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SummaryTTL <= 0 {
		opts.SummaryTTL = DefaultSummaryTTL
	}
	if opts.Overrun.statuses == nil {
		opts.Overrun = NewOverrunPolicy()
	}
	return &Service{
		db:          db,
		invalidator: opts.Invalidator,
		cache:       opts.Cache,
		overrun:     opts.Overrun,
		summaryTTL:  opts.SummaryTTL,
		logger:      opts.Logger.With("component", "ledger"),
	}
}

type AllocateInput struct {
	CollegeID  uint
	FiscalYear string
	Amount     decimal.Decimal
	Status     models.BudgetStatus // empty means ACTIVE
	AssignedBy *models.User        // nil for operator tooling
}

// Allocate records a new budget for (college, fiscal year).
func (s *Service) Allocate(ctx context.Context, in AllocateInput) (b *models.CollegeBudget, err error) {
	defer s.record("allocate", &err)

	fy, err := checkFiscalYear(in.FiscalYear)
	if err != nil {
		return nil, err
	}
	if err := checkAmount(in.Amount, false); err != nil {
		return nil, err
	}
	if in.AssignedBy != nil && !in.AssignedBy.HasRole(models.AllocatorRoles...) {
		return nil, ErrNotAllocator
	}
	status := normalizeStatus(in.Status)
	if status == "" {
		status = models.BudgetActive
	}

	budget := models.CollegeBudget{
		CollegeID:     in.CollegeID,
		FiscalYear:    fy,
		TotalAssigned: in.Amount,
		Status:        status,
		AssignedByID:  userID(in.AssignedBy),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.CollegeBudget{}).
			Where("college_id = ? AND fiscal_year = ?", in.CollegeID, fy).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrDuplicateAllocation
		}
		if err := tx.Create(&budget).Error; err != nil {
			// lost a race with a concurrent allocate
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateAllocation
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("allocate", err)
	}

	s.audit(ctx, in.AssignedBy, budgetModel, budget.ID, "allocate",
		fmt.Sprintf("college=%d fiscal_year=%s amount=%s status=%s", budget.CollegeID, fy, Display(in.Amount), status))
	s.invalidate(budget.ID, 0)
	return &budget, nil
}

// Adjust changes total_assigned and optionally status. The new total may
// not fall below committed spend unless the resulting status permits overrun.
func (s *Service) Adjust(ctx context.Context, budgetID uint, newAmount decimal.Decimal, newStatus *models.BudgetStatus, by *models.User) (b *models.CollegeBudget, err error) {
	defer s.record("adjust", &err)

	if err := checkAmount(newAmount, false); err != nil {
		return nil, err
	}
	if by != nil && !by.HasRole(models.AllocatorRoles...) {
		return nil, ErrNotAllocator
	}

	var budget models.CollegeBudget
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(&budget, budgetID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAllocationNotFound
			}
			return err
		}

		status := budget.Status
		if newStatus != nil {
			status = normalizeStatus(*newStatus)
		}
		if !s.overrun.Permits(status) {
			used, err := committed(tx, budget.CollegeID, budget.FiscalYear)
			if err != nil {
				return err
			}
			if newAmount.LessThan(used) {
				return &AmountError{Err: ErrInsufficientAllocation, Amount: newAmount, Limit: used}
			}
		}

		if err := tx.Model(&budget).Updates(map[string]any{
			"total_assigned": newAmount,
			"status":         status,
		}).Error; err != nil {
			return err
		}
		budget.TotalAssigned, budget.Status = newAmount, status
		return nil
	})
	if err != nil {
		return nil, storageErr("adjust", err)
	}

	s.audit(ctx, by, budgetModel, budget.ID, "adjust",
		fmt.Sprintf("amount=%s status=%s", Display(newAmount), budget.Status))
	s.invalidate(budget.ID, 0)
	return &budget, nil
}

// Charge adds delta to a project's used_budget. Positive deltas are charges
// checked against the allocation; negative deltas are refunds. The budget row
// is locked for the duration so concurrent charges against the same college
// and fiscal year serialize.
func (s *Service) Charge(ctx context.Context, projectID uint, delta decimal.Decimal, by *models.User) (p *models.Project, err error) {
	defer s.record("charge", &err)

	if err := checkAmount(delta, true); err != nil {
		return nil, err
	}

	var (
		project  models.Project
		budgetID uint
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(&project, projectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProjectNotFound
			}
			return err
		}
		if project.HasFinalSubmission {
			return ErrFrozenProject
		}
		if delta.IsZero() {
			return nil
		}

		var budget models.CollegeBudget
		if err := lockForUpdate(tx).
			Where("college_id = ? AND fiscal_year = ?", project.CollegeID, project.FiscalYear).
			First(&budget).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAllocationNotFound
			}
			return err
		}
		budgetID = budget.ID

		updated := project.UsedBudget.Add(delta)
		if updated.IsNegative() {
			return &AmountError{Err: ErrInvalidAmount, Amount: updated, Limit: decimal.Zero}
		}

		if delta.IsPositive() && !s.overrun.Permits(budget.Status) {
			used, err := committed(tx, project.CollegeID, project.FiscalYear)
			if err != nil {
				return err
			}
			if after := used.Add(delta); after.GreaterThan(budget.TotalAssigned) {
				return &AmountError{Err: ErrOverBudget, Amount: after, Limit: budget.TotalAssigned}
			}
		}

		if err := tx.Model(&project).Update("used_budget", updated).Error; err != nil {
			return err
		}
		project.UsedBudget = updated
		return nil
	})
	if err != nil {
		return nil, storageErr("charge", err)
	}
	if delta.IsZero() {
		return &project, nil
	}

	s.audit(ctx, by, projectModel, project.ID, "charge",
		fmt.Sprintf("delta=%s used_budget=%s", Display(delta), Display(project.UsedBudget)))
	s.invalidate(budgetID, project.ID)
	return &project, nil
}

// Finalize marks the project's final submission, freezing used_budget.
// Calling it again is a no-op.
func (s *Service) Finalize(ctx context.Context, projectID uint, by *models.User) (p *models.Project, err error) {
	defer s.record("finalize", &err)

	var (
		project models.Project
		changed bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(&project, projectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProjectNotFound
			}
			return err
		}
		if project.HasFinalSubmission {
			return nil
		}
		if err := tx.Model(&project).Update("has_final_submission", true).Error; err != nil {
			return err
		}
		project.HasFinalSubmission, changed = true, true
		return nil
	})
	if err != nil {
		return nil, storageErr("finalize", err)
	}

	if changed {
		s.audit(ctx, by, projectModel, project.ID, "finalize",
			fmt.Sprintf("used_budget=%s", Display(project.UsedBudget)))
		s.invalidate(0, project.ID)
	}
	return &project, nil
}

func (s *Service) Budget(ctx context.Context, id uint) (*models.CollegeBudget, error) {
	var budget models.CollegeBudget
	err := s.db.WithContext(ctx).First(&budget, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAllocationNotFound
	}
	if err != nil {
		return nil, database.Unavailable("load budget", err)
	}
	return &budget, nil
}

type Summary struct {
	BudgetID   uint                `json:"budget_id"`
	CollegeID  uint                `json:"college_id"`
	FiscalYear string              `json:"fiscal_year"`
	Status     models.BudgetStatus `json:"status"`
	Total      decimal.Decimal     `json:"total_assigned"`
	Used       decimal.Decimal     `json:"used"`
	Remaining  decimal.Decimal     `json:"remaining"`
	Projects   int64               `json:"projects"`
	Overrun    bool                `json:"overrun"`
}

// Summary reports allocation, spend and remainder for (college, fiscal year),
// rounded half-even for display. Results are cached until the next mutation.
func (s *Service) Summary(ctx context.Context, collegeID uint, fiscalYear string) (sum *Summary, err error) {
	fy, err := checkFiscalYear(fiscalYear)
	if err != nil {
		return nil, err
	}
	key := cache.Key(budgetModel, collegeID, fy)
	if cached, ok := s.cachedSummary(key); ok {
		return cached, nil
	}
	gen := s.generation.Load()

	var budget models.CollegeBudget
	db := s.db.WithContext(ctx)
	err = db.Where("college_id = ? AND fiscal_year = ?", collegeID, fy).First(&budget).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAllocationNotFound
	}
	if err != nil {
		return nil, database.Unavailable("load budget", err)
	}

	used, err := committed(db, collegeID, fy)
	if err != nil {
		return nil, database.Unavailable("sum project spend", err)
	}
	var n int64
	if err := db.Model(&models.Project{}).
		Where("college_id = ? AND fiscal_year = ?", collegeID, fy).
		Count(&n).Error; err != nil {
		return nil, database.Unavailable("count projects", err)
	}

	sum = &Summary{
		BudgetID:   budget.ID,
		CollegeID:  collegeID,
		FiscalYear: fy,
		Status:     budget.Status,
		Total:      budget.TotalAssigned.RoundBank(2),
		Used:       used.RoundBank(2),
		Remaining:  budget.TotalAssigned.Sub(used).RoundBank(2),
		Projects:   n,
		Overrun:    used.GreaterThan(budget.TotalAssigned),
	}
	s.storeSummary(key, sum, gen)
	return sum, nil
}

// Display renders an amount with two places, rounding half to even.
func Display(d decimal.Decimal) string {
	return d.StringFixedBank(2)
}

// committed sums used_budget of live projects rolling up to (college, fy).
func committed(tx *gorm.DB, collegeID uint, fy string) (decimal.Decimal, error) {
	var used decimal.NullDecimal
	err := tx.Model(&models.Project{}).
		Select("COALESCE(SUM(used_budget), 0)").
		Where("college_id = ? AND fiscal_year = ?", collegeID, fy).
		Scan(&used).Error
	if err != nil {
		return decimal.Zero, err
	}
	// sqlite sums numeric columns as REAL
	return used.Decimal.Round(2), nil
}

// lockForUpdate takes a row lock where the dialect has one. SQLite runs on a
// single connection, so its transactions are already serialized.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if database.Vendor(tx) == "postgresql" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func checkAmount(d decimal.Decimal, signed bool) error {
	if !signed && d.IsNegative() {
		return &AmountError{Err: ErrInvalidAmount, Amount: d, Limit: decimal.Zero}
	}
	if !d.Equal(d.Round(2)) || d.Abs().GreaterThanOrEqual(maxAmount) {
		return fmt.Errorf("%w: %s does not fit numeric(12,2)", ErrInvalidAmount, d.String())
	}
	return nil
}

func checkFiscalYear(fy string) (string, error) {
	fy = strings.TrimSpace(fy)
	if fy == "" || len(fy) > 10 {
		return "", ErrInvalidFiscalYear
	}
	return fy, nil
}

func normalizeStatus(s models.BudgetStatus) models.BudgetStatus {
	return models.BudgetStatus(strings.ToUpper(strings.TrimSpace(string(s))))
}

func userID(u *models.User) *uint {
	if u == nil || u.ID == 0 {
		return nil
	}
	id := u.ID
	return &id
}

func (s *Service) record(op string, err *error) {
	metrics.LedgerOperations.WithLabelValues(op, outcome(*err)).Inc()
	if *err != nil {
		s.logger.Info("ledger operation rejected", "operation", op, "error", *err)
	}
}

// audit runs after commit on the base handle; SQLite has a single connection.
func (s *Service) audit(ctx context.Context, by *models.User, entity string, id uint, action, details string) {
	database.CreateAuditLog(s.db.WithContext(ctx), userID(by), entity, id, action, details)
}

// invalidate drops cached ledger reads. A zero id is left out of the log.
func (s *Service) invalidate(budgetID, projectID uint) {
	s.generation.Add(1)
	invalidateModel(s.invalidator, budgetModel, budgetID)
	invalidateModel(s.invalidator, projectModel, projectID)
}

func invalidateModel(inv *cache.Invalidator, model string, id uint) {
	if id == 0 {
		inv.InvalidateModel(model)
		return
	}
	inv.InvalidateModel(model, id)
}

func (s *Service) cachedSummary(key string) (*Summary, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, ok, err := s.cache.Get(key)
	if err != nil {
		s.logger.Warn("summary cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var sum Summary
	if err := json.Unmarshal(raw, &sum); err != nil {
		return nil, false
	}
	return &sum, true
}

// storeSummary caches sum unless an invalidation has happened since gen was
// read. An invalidation racing the write itself is caught by the second check.
func (s *Service) storeSummary(key string, sum *Summary, gen uint64) {
	if s.cache == nil || s.generation.Load() != gen {
		return
	}
	raw, err := json.Marshal(sum)
	if err != nil {
		return
	}
	if err := s.cache.Set(key, raw, s.summaryTTL); err != nil {
		s.logger.Warn("summary cache write failed", "key", key, "error", err)
		return
	}
	if s.generation.Load() != gen {
		if err := s.cache.Delete(key); err != nil {
			s.logger.Warn("summary cache delete failed", "key", key, "error", err)
		}
	}
}
