package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"wbpmisueso/internal/models"

	"gorm.io/gorm"
)

// DomainTables returns the table names of domain models, children first,
// so rows can be removed without tripping foreign keys.
func DomainTables(db *gorm.DB) ([]string, error) {
	domain := models.Domain()
	tables := make([]string, 0, len(domain))
	for i := len(domain) - 1; i >= 0; i-- {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(domain[i]); err != nil {
			return nil, fmt.Errorf("failed to parse model: %w", err)
		}
		tables = append(tables, stmt.Schema.Table)
	}
	return tables, nil
}

// Reset flushes every domain table and keeps schema_migrations. Not recoverable.
func Reset(ctx context.Context, db *gorm.DB) ([]string, error) {
	tables, err := DomainTables(db)
	if err != nil {
		return nil, err
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if Vendor(tx) == "postgresql" {
			quoted := make([]string, len(tables))
			for i, t := range tables {
				quoted[i] = tx.Statement.Quote(t)
			}
			return tx.Exec("TRUNCATE TABLE " + strings.Join(quoted, ", ") + " RESTART IDENTITY CASCADE").Error
		}

		for _, t := range tables {
			if err := tx.Exec("DELETE FROM " + tx.Statement.Quote(t)).Error; err != nil {
				return fmt.Errorf("failed to flush %s: %w", t, err)
			}
		}
		if tx.Migrator().HasTable("sqlite_sequence") {
			if err := tx.Exec("DELETE FROM sqlite_sequence WHERE name IN ?", tables).Error; err != nil {
				return fmt.Errorf("failed to reset sequences: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, Unavailable("reset database", err)
	}

	slog.Info("database reset", "tables", tables)
	return tables, nil
}
