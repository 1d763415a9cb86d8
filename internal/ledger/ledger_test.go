package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"wbpmisueso/internal/cache"
	"wbpmisueso/internal/database"
	"wbpmisueso/internal/database/dbtest"
	"wbpmisueso/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	db      *gorm.DB
	svc     *Service
	cache   cache.Backend
	college models.College
}

func newFixture(t *testing.T, overrun ...string) *fixture {
	t.Helper()
	db := dbtest.New(t)
	backend, err := cache.NewBadger(cache.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	college := models.College{Name: "College of Sciences", Code: "CS"}
	require.NoError(t, db.Create(&college).Error)

	svc := NewService(db, Options{
		Invalidator: cache.NewInvalidator(backend, quiet),
		Cache:       backend,
		Overrun:     NewOverrunPolicy(overrun...),
		Logger:      quiet,
	})
	return &fixture{db: db, svc: svc, cache: backend, college: college}
}

func (f *fixture) allocate(t *testing.T, fy string, amount int64) *models.CollegeBudget {
	t.Helper()
	b, err := f.svc.Allocate(context.Background(), AllocateInput{
		CollegeID:  f.college.ID,
		FiscalYear: fy,
		Amount:     decimal.NewFromInt(amount),
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) project(t *testing.T, title, fy string) *models.Project {
	t.Helper()
	p, err := f.svc.CreateProject(context.Background(), ProjectInput{
		Title:      title,
		CollegeID:  f.college.ID,
		FiscalYear: fy,
	}, nil)
	require.NoError(t, err)
	return p
}

func (f *fixture) used(t *testing.T, id uint) decimal.Decimal {
	t.Helper()
	p, err := f.svc.Project(context.Background(), id)
	require.NoError(t, err)
	return p.UsedBudget
}

func amt(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestCharge_StopsAtAllocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	budget := f.allocate(t, "2025", 100_000)
	p1 := f.project(t, "P1", "2025")
	p2 := f.project(t, "P2", "2025")

	_, err := f.svc.Charge(ctx, p1.ID, amt(30_000), nil)
	require.NoError(t, err)
	_, err = f.svc.Charge(ctx, p2.ID, amt(70_000), nil)
	require.NoError(t, err)

	_, err = f.svc.Charge(ctx, p1.ID, amt(1), nil)
	require.ErrorIs(t, err, ErrOverBudget)
	var aerr *AmountError
	require.ErrorAs(t, err, &aerr)
	assert.True(t, aerr.Amount.Equal(amt(100_001)))
	assert.True(t, aerr.Limit.Equal(amt(100_000)))

	assert.True(t, f.used(t, p1.ID).Equal(amt(30_000)))
	assert.True(t, f.used(t, p2.ID).Equal(amt(70_000)))
	got, err := f.svc.Budget(ctx, budget.ID)
	require.NoError(t, err)
	assert.True(t, got.TotalAssigned.Equal(amt(100_000)))
}

func TestAllocate_Duplicate(t *testing.T) {
	f := newFixture(t)
	f.allocate(t, "2025", 100_000)

	_, err := f.svc.Allocate(context.Background(), AllocateInput{
		CollegeID:  f.college.ID,
		FiscalYear: "2025",
		Amount:     amt(50_000),
	})
	assert.ErrorIs(t, err, ErrDuplicateAllocation)

	// a different fiscal year is a different allocation
	f.allocate(t, "2025-2026", 10)
}

func TestAllocate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Allocate(ctx, AllocateInput{CollegeID: f.college.ID, FiscalYear: "2025", Amount: amt(-1)})
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.svc.Allocate(ctx, AllocateInput{CollegeID: f.college.ID, FiscalYear: "2025", Amount: decimal.RequireFromString("1.005")})
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.svc.Allocate(ctx, AllocateInput{CollegeID: f.college.ID, FiscalYear: "2025", Amount: decimal.New(1, 10)})
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.svc.Allocate(ctx, AllocateInput{CollegeID: f.college.ID, FiscalYear: "  ", Amount: amt(1)})
	assert.ErrorIs(t, err, ErrInvalidFiscalYear)
	_, err = f.svc.Allocate(ctx, AllocateInput{CollegeID: f.college.ID, FiscalYear: "2025-2026-X", Amount: amt(1)})
	assert.ErrorIs(t, err, ErrInvalidFiscalYear)

	faculty := &models.User{Model: gorm.Model{ID: 5}, Role: models.RoleFaculty}
	_, err = f.svc.Allocate(ctx, AllocateInput{CollegeID: f.college.ID, FiscalYear: "2025", Amount: amt(1), AssignedBy: faculty})
	assert.ErrorIs(t, err, ErrNotAllocator)
}

func TestAllocate_RecordsAllocatorAndAudit(t *testing.T) {
	f := newFixture(t)
	vp := models.User{Email: "vp@example.com", Role: models.RoleVP, PasswordHash: "x"}
	require.NoError(t, f.db.Create(&vp).Error)

	b, err := f.svc.Allocate(context.Background(), AllocateInput{
		CollegeID:  f.college.ID,
		FiscalYear: "2025",
		Amount:     decimal.RequireFromString("1234.50"),
		AssignedBy: &vp,
	})
	require.NoError(t, err)
	require.NotNil(t, b.AssignedByID)
	assert.Equal(t, vp.ID, *b.AssignedByID)
	assert.Equal(t, models.BudgetActive, b.Status)
	assert.False(t, b.CreatedAt.IsZero())
	assert.Equal(t, b.CreatedAt, b.UpdatedAt)

	logs, err := database.ListAuditLogs(f.db, "collegebudget", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "allocate", logs[0].Action)
	assert.Contains(t, logs[0].Details, "amount=1234.50")
}

func TestFinalize_FreezesSpend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.allocate(t, "2025", 100_000)
	p1 := f.project(t, "P1", "2025")

	_, err := f.svc.Charge(ctx, p1.ID, amt(10_000), nil)
	require.NoError(t, err)

	p, err := f.svc.Finalize(ctx, p1.ID, nil)
	require.NoError(t, err)
	assert.True(t, p.HasFinalSubmission)

	_, err = f.svc.Charge(ctx, p1.ID, amt(1), nil)
	assert.ErrorIs(t, err, ErrFrozenProject)
	_, err = f.svc.Charge(ctx, p1.ID, amt(-500), nil)
	assert.ErrorIs(t, err, ErrFrozenProject)

	again, err := f.svc.Finalize(ctx, p1.ID, nil)
	require.NoError(t, err)
	assert.True(t, again.HasFinalSubmission)
	assert.True(t, f.used(t, p1.ID).Equal(amt(10_000)))

	logs, err := database.ListAuditLogs(f.db, "project", 10)
	require.NoError(t, err)
	finalizes := 0
	for _, l := range logs {
		if l.Action == "finalize" {
			finalizes++
		}
	}
	assert.Equal(t, 1, finalizes)
}

func TestCharge_Refunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.allocate(t, "2025", 100)
	p := f.project(t, "P", "2025")

	_, err := f.svc.Charge(ctx, p.ID, amt(100), nil)
	require.NoError(t, err)

	got, err := f.svc.Charge(ctx, p.ID, decimal.RequireFromString("-40.25"), nil)
	require.NoError(t, err)
	assert.Equal(t, "59.75", Display(got.UsedBudget))

	_, err = f.svc.Charge(ctx, p.ID, amt(-60), nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Equal(t, "59.75", Display(f.used(t, p.ID)))
}

func TestCharge_MissingRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Charge(ctx, 999, amt(1), nil)
	assert.ErrorIs(t, err, ErrProjectNotFound)

	p := f.project(t, "unfunded", "2030")
	_, err = f.svc.Charge(ctx, p.ID, amt(1), nil)
	assert.ErrorIs(t, err, ErrAllocationNotFound)

	_, err = f.svc.Finalize(ctx, 999, nil)
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestCharge_ZeroIsNoop(t *testing.T) {
	f := newFixture(t)
	p := f.project(t, "P", "2025")

	got, err := f.svc.Charge(context.Background(), p.ID, decimal.Zero, nil)
	require.NoError(t, err)
	assert.True(t, got.UsedBudget.IsZero())
}

func TestAdjust(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	budget := f.allocate(t, "2025", 100_000)
	p := f.project(t, "P", "2025")
	_, err := f.svc.Charge(ctx, p.ID, amt(70_000), nil)
	require.NoError(t, err)

	_, err = f.svc.Adjust(ctx, budget.ID, amt(50_000), nil, nil)
	require.ErrorIs(t, err, ErrInsufficientAllocation)
	var aerr *AmountError
	require.ErrorAs(t, err, &aerr)
	assert.True(t, aerr.Limit.Equal(amt(70_000)))

	b, err := f.svc.Adjust(ctx, budget.ID, amt(70_000), nil, nil)
	require.NoError(t, err)
	assert.True(t, b.TotalAssigned.Equal(amt(70_000)))
	assert.False(t, b.UpdatedAt.Before(b.CreatedAt))

	approved := models.BudgetOverrunApproved
	b, err = f.svc.Adjust(ctx, budget.ID, amt(50_000), &approved, nil)
	require.NoError(t, err)
	assert.Equal(t, models.BudgetOverrunApproved, b.Status)

	// the approved status lets spend keep growing past the allocation
	_, err = f.svc.Charge(ctx, p.ID, amt(5_000), nil)
	require.NoError(t, err)

	active := models.BudgetActive
	_, err = f.svc.Adjust(ctx, budget.ID, amt(50_000), &active, nil)
	assert.ErrorIs(t, err, ErrInsufficientAllocation)

	_, err = f.svc.Adjust(ctx, 999, amt(1), nil, nil)
	assert.ErrorIs(t, err, ErrAllocationNotFound)
}

func TestOverrunPolicy_Configurable(t *testing.T) {
	f := newFixture(t, "active")
	ctx := context.Background()
	f.allocate(t, "2025", 10)
	p := f.project(t, "P", "2025")

	_, err := f.svc.Charge(ctx, p.ID, amt(25), nil)
	require.NoError(t, err)

	assert.True(t, NewOverrunPolicy().Permits(models.BudgetOverrunApproved))
	assert.False(t, NewOverrunPolicy().Permits(models.BudgetActive))
	assert.False(t, NewOverrunPolicy("CLOSED").Permits(models.BudgetOverrunApproved))
}

func TestCharge_SumNeverExceedsAllocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.allocate(t, "2025", 1_000)
	projects := []*models.Project{f.project(t, "A", "2025"), f.project(t, "B", "2025"), f.project(t, "C", "2025")}

	steps := []int64{400, 300, 250, 100, -50, 100, 60, -10, 1, 1}
	for i, d := range steps {
		_, err := f.svc.Charge(ctx, projects[i%len(projects)].ID, amt(d), nil)
		if err != nil && !errors.Is(err, ErrOverBudget) && !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("step %d: %v", i, err)
		}
		sum, err := committed(f.db, f.college.ID, "2025")
		require.NoError(t, err)
		assert.True(t, sum.LessThanOrEqual(amt(1_000)), "step %d: %s", i, sum)
	}
}

func TestCharge_ConcurrentSerializes(t *testing.T) {
	f := newFixture(t)
	f.allocate(t, "2025", 100)

	const workers = 15
	projects := make([]*models.Project, workers)
	for i := range projects {
		projects[i] = f.project(t, "P", "2025")
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, over int
	)
	for _, p := range projects {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			_, err := f.svc.Charge(context.Background(), id, amt(10), nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrOverBudget):
				over++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(p.ID)
	}
	wg.Wait()

	assert.Equal(t, 10, ok)
	assert.Equal(t, workers-10, over)
	sum, err := committed(f.db, f.college.ID, "2025")
	require.NoError(t, err)
	assert.True(t, sum.Equal(amt(100)))
}

func TestCharge_CancelledContext(t *testing.T) {
	f := newFixture(t)
	f.allocate(t, "2025", 100)
	p := f.project(t, "P", "2025")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.svc.Charge(ctx, p.ID, amt(10), nil)
	assert.ErrorIs(t, err, database.ErrBackendUnavailable)
	assert.True(t, f.used(t, p.ID).IsZero())

	// the connection is released; later charges still go through
	_, err = f.svc.Charge(context.Background(), p.ID, amt(10), nil)
	assert.NoError(t, err)
}

func TestSummary_CachedUntilMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.allocate(t, "2025", 1_000)
	p := f.project(t, "P", "2025")
	_, err := f.svc.Charge(ctx, p.ID, decimal.RequireFromString("100.25"), nil)
	require.NoError(t, err)

	sum, err := f.svc.Summary(ctx, f.college.ID, "2025")
	require.NoError(t, err)
	assert.Equal(t, "899.75", Display(sum.Remaining))
	assert.Equal(t, int64(1), sum.Projects)
	assert.False(t, sum.Overrun)

	key := cache.Key("collegebudget", f.college.ID, "2025")
	_, hit, err := f.cache.Get(key)
	require.NoError(t, err)
	assert.True(t, hit)

	_, err = f.svc.Charge(ctx, p.ID, amt(100), nil)
	require.NoError(t, err)
	_, hit, err = f.cache.Get(key)
	require.NoError(t, err)
	assert.False(t, hit, "charge invalidates the summary")

	sum, err = f.svc.Summary(ctx, f.college.ID, "2025")
	require.NoError(t, err)
	assert.Equal(t, "799.75", Display(sum.Remaining))

	_, err = f.svc.Summary(ctx, f.college.ID, "1999")
	assert.ErrorIs(t, err, ErrAllocationNotFound)
}

// racingCache runs onSet once around the first write, standing in for a
// mutation that commits while Summary is storing its result.
type racingCache struct {
	cache.Backend
	before bool
	onSet  func()
	once   sync.Once
}

func (r *racingCache) Set(key string, value []byte, ttl time.Duration) error {
	if r.before {
		r.once.Do(r.onSet)
		return r.Backend.Set(key, value, ttl)
	}
	err := r.Backend.Set(key, value, ttl)
	r.once.Do(r.onSet)
	return err
}

func TestSummary_MutationDuringStoreIsNotCached(t *testing.T) {
	for _, before := range []bool{true, false} {
		t.Run(fmt.Sprintf("before=%t", before), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.allocate(t, "2025", 1_000)
			p := f.project(t, "P", "2025")

			racing := &racingCache{Backend: f.cache, before: before}
			svc := NewService(f.db, Options{
				Invalidator: cache.NewInvalidator(f.cache, quiet),
				Cache:       racing,
				Logger:      quiet,
			})
			racing.onSet = func() {
				_, err := svc.Charge(ctx, p.ID, amt(400), nil)
				require.NoError(t, err)
			}

			sum, err := svc.Summary(ctx, f.college.ID, "2025")
			require.NoError(t, err)
			assert.Equal(t, "0.00", Display(sum.Used), "computed before the charge")

			for i := 0; i < 3; i++ {
				sum, err = svc.Summary(ctx, f.college.ID, "2025")
				require.NoError(t, err)
				assert.Equal(t, "400.00", Display(sum.Used))
				assert.Equal(t, "600.00", Display(sum.Remaining))
			}
		})
	}
}

func TestDisplay_HalfEven(t *testing.T) {
	assert.Equal(t, "0.12", Display(decimal.RequireFromString("0.125")))
	assert.Equal(t, "0.14", Display(decimal.RequireFromString("0.135")))
	assert.Equal(t, "100000.00", Display(amt(100_000)))
}
