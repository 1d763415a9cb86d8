// Package schema brings a running database up to the columns and indexes the
// application needs, whatever migrations it has or has not seen.
package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"wbpmisueso/internal/database"
	"wbpmisueso/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Kind int

const (
	KindBoolean Kind = iota + 1
	KindDecimal
)

type ColumnType struct {
	Kind      Kind
	Precision int
	Scale     int
}

func Boolean() ColumnType {
	return ColumnType{Kind: KindBoolean}
}

func Decimal(precision, scale int) ColumnType {
	return ColumnType{Kind: KindDecimal, Precision: precision, Scale: scale}
}

// ReconcileError is returned when an ALTER TABLE or CREATE INDEX fails.
// It aborts a deploy.
type ReconcileError struct {
	Table  string
	Column string
	Vendor string
	Err    error
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("schema reconcile failed on %s.%s (%s): %v", e.Table, e.Column, e.Vendor, e.Err)
}

func (e *ReconcileError) Unwrap() error { return e.Err }

type Reconciler struct {
	db     *gorm.DB
	logger *slog.Logger
}

func New(db *gorm.DB, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{db: db, logger: logger.With("component", "schema")}
}

// EnsureColumn adds table.column with the given type and default unless it
// already exists. Safe to call any number of times.
func (r *Reconciler) EnsureColumn(ctx context.Context, table, column string, typ ColumnType, def any) error {
	vendor := database.Vendor(r.db)
	ddl, err := ColumnDDL(vendor, typ, def)
	if err != nil {
		return &ReconcileError{Table: table, Column: column, Vendor: vendor, Err: err}
	}

	added := false
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := advisoryLock(tx, vendor, table); err != nil {
			return err
		}

		present, err := hasColumn(tx, table, column)
		if err != nil {
			// a missing table reads as a missing column; the ADD decides
			r.logger.Warn("column introspection failed", "table", table, "error", err)
		}
		if present {
			return nil
		}

		stmt := "ALTER TABLE ? ADD COLUMN ? " + ddl
		if vendor == "postgresql" {
			stmt = "ALTER TABLE ? ADD COLUMN IF NOT EXISTS ? " + ddl
		}
		if err := tx.Exec(stmt, clause.Table{Name: table}, clause.Column{Name: column}).Error; err != nil {
			return err
		}
		added = true
		return recordHistory(tx, table+"."+column)
	})
	if err != nil {
		return &ReconcileError{Table: table, Column: column, Vendor: vendor, Err: err}
	}

	if added {
		r.logger.Info("column added", "table", table, "column", column, "vendor", vendor, "ddl", ddl)
	} else {
		r.logger.Debug("column present", "table", table, "column", column)
	}
	return nil
}

// EnsureIndex creates the named index on table unless it exists.
func (r *Reconciler) EnsureIndex(ctx context.Context, table, name string, unique bool, columns ...string) error {
	vendor := database.Vendor(r.db)
	if len(columns) == 0 {
		return &ReconcileError{Table: table, Column: name, Vendor: vendor, Err: errors.New("no index columns")}
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := advisoryLock(tx, vendor, table); err != nil {
			return err
		}
		if tx.Migrator().HasIndex(table, name) {
			return nil
		}

		cols := make([]clause.Column, len(columns))
		for i, c := range columns {
			cols[i] = clause.Column{Name: c}
		}
		kind := "INDEX"
		if unique {
			kind = "UNIQUE INDEX"
		}
		err := tx.Exec("CREATE "+kind+" IF NOT EXISTS ? ON ? ?",
			clause.Column{Name: name}, clause.Table{Name: table}, cols).Error
		if err != nil {
			return err
		}
		r.logger.Info("index created", "table", table, "index", name, "columns", columns, "vendor", vendor)
		return recordHistory(tx, "index:"+name)
	})
	if err != nil {
		return &ReconcileError{Table: table, Column: name, Vendor: vendor, Err: err}
	}
	return nil
}

// EnsureCoreColumns applies the columns and indexes the budget ledger relies on.
func (r *Reconciler) EnsureCoreColumns(ctx context.Context) error {
	projects := models.Project{}.TableName()
	budgets := models.CollegeBudget{}.TableName()

	if err := r.EnsureColumn(ctx, projects, "used_budget", Decimal(12, 2), decimal.Zero); err != nil {
		return err
	}
	if err := r.EnsureColumn(ctx, projects, "has_final_submission", Boolean(), false); err != nil {
		return err
	}
	return r.EnsureIndex(ctx, budgets, models.BudgetUniqueIndex, true, "college_id", "fiscal_year")
}

// Down does nothing; added columns are kept.
func (r *Reconciler) Down(ctx context.Context) error {
	return nil
}

// ColumnDDL renders the type and default clause for vendor. Unknown vendors
// get the SQLite form.
func ColumnDDL(vendor string, typ ColumnType, def any) (string, error) {
	switch typ.Kind {
	case KindBoolean:
		on, err := boolDefault(def)
		if err != nil {
			return "", err
		}
		if vendor == "postgresql" {
			if on {
				return "BOOLEAN NOT NULL DEFAULT TRUE", nil
			}
			return "BOOLEAN NOT NULL DEFAULT FALSE", nil
		}
		if on {
			return "BOOLEAN NOT NULL DEFAULT 1", nil
		}
		return "BOOLEAN NOT NULL DEFAULT 0", nil

	case KindDecimal:
		if typ.Precision <= 0 || typ.Scale < 0 || typ.Scale > typ.Precision {
			return "", fmt.Errorf("invalid decimal(%d,%d)", typ.Precision, typ.Scale)
		}
		d, err := decimalDefault(def)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("DECIMAL(%d,%d) DEFAULT %s", typ.Precision, typ.Scale, d.String()), nil

	default:
		return "", fmt.Errorf("unsupported column kind %d", typ.Kind)
	}
}

func boolDefault(def any) (bool, error) {
	switch v := def.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	default:
		return false, fmt.Errorf("boolean default must be bool, got %T", def)
	}
}

func decimalDefault(def any) (decimal.Decimal, error) {
	switch v := def.(type) {
	case nil:
		return decimal.Zero, nil
	case decimal.Decimal:
		return v, nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case string:
		return decimal.NewFromString(v)
	default:
		return decimal.Zero, fmt.Errorf("decimal default must be numeric, got %T", def)
	}
}

const introspectSavepoint = "schema_introspect"

// hasColumn introspects behind a savepoint; a failed statement leaves a
// postgres transaction aborted until it is rolled back.
func hasColumn(tx *gorm.DB, table, column string) (bool, error) {
	if err := tx.SavePoint(introspectSavepoint).Error; err != nil {
		return false, err
	}
	cols, err := tx.Migrator().ColumnTypes(table)
	if err != nil {
		if rerr := tx.RollbackTo(introspectSavepoint).Error; rerr != nil {
			return false, errors.Join(err, rerr)
		}
		return false, err
	}
	for _, c := range cols {
		if strings.EqualFold(c.Name(), column) {
			return true, nil
		}
	}
	return false, nil
}

// concurrent deploys may race on the same table; postgres serializes them
func advisoryLock(tx *gorm.DB, vendor, table string) error {
	if vendor != "postgresql" {
		return nil
	}
	return tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", "schema:"+table).Error
}

func recordHistory(tx *gorm.DB, name string) error {
	if !tx.Migrator().HasTable(&models.SchemaMigration{}) {
		return nil
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.SchemaMigration{Name: name, AppliedAt: time.Now()}).Error
}
