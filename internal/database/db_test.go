package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"wbpmisueso/internal/database"
	"wbpmisueso/internal/database/dbtest"
	"wbpmisueso/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate_CreatesBudgetUniqueIndex(t *testing.T) {
	db := dbtest.New(t)

	assert.True(t, db.Migrator().HasTable("budget_collegebudget"))
	assert.True(t, db.Migrator().HasTable("projects_project"))
	assert.True(t, db.Migrator().HasIndex(&models.CollegeBudget{}, models.BudgetUniqueIndex))
	assert.Equal(t, "sqlite", database.Vendor(db))
}

func TestDomainTables_ChildrenFirst(t *testing.T) {
	db := dbtest.New(t)

	tables, err := database.DomainTables(db)
	require.NoError(t, err)
	require.Equal(t, "audit_logs", tables[0])
	require.Equal(t, "users", tables[len(tables)-1])
	assert.NotContains(t, tables, "schema_migrations")
}

func TestReset_KeepsMigrationHistory(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()

	user := models.User{Email: "Alice@Example.com ", PasswordHash: "x", Role: models.RoleVP}
	require.NoError(t, db.Create(&user).Error)
	college := models.College{Name: "College of Engineering", Code: "CE"}
	require.NoError(t, db.Create(&college).Error)
	require.NoError(t, db.Create(&models.CollegeBudget{
		CollegeID:     college.ID,
		FiscalYear:    "2025",
		TotalAssigned: decimal.NewFromInt(1000),
		Status:        models.BudgetActive,
		AssignedByID:  &user.ID,
	}).Error)
	require.NoError(t, db.Create(&models.SchemaMigration{Name: "projects_project.used_budget", AppliedAt: time.Now()}).Error)

	tables, err := database.Reset(ctx, db)
	require.NoError(t, err)
	assert.Contains(t, tables, "budget_collegebudget")

	var n int64
	require.NoError(t, db.Model(&models.User{}).Unscoped().Count(&n).Error)
	assert.Zero(t, n)
	require.NoError(t, db.Model(&models.CollegeBudget{}).Count(&n).Error)
	assert.Zero(t, n)
	require.NoError(t, db.Model(&models.SchemaMigration{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestUserEmailNormalizedOnSave(t *testing.T) {
	db := dbtest.New(t)

	user := models.User{Email: "  Bob@Example.COM", PasswordHash: "x", Role: models.RoleFaculty}
	require.NoError(t, db.Create(&user).Error)

	var got models.User
	require.NoError(t, db.First(&got, user.ID).Error)
	assert.Equal(t, "bob@example.com", got.Email)
	assert.Equal(t, models.CampusMain, got.Campus)
}

func TestCreateAuditLog_BestEffort(t *testing.T) {
	db := dbtest.New(t)

	database.CreateAuditLog(db, nil, "project", 7, "charge", "+100.00")
	database.CreateAuditLog(nil, nil, "project", 7, "charge", "ignored")

	logs, err := database.ListAuditLogs(db, "project", 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "charge", logs[0].Action)
}

func TestUnavailable_MatchesBoth(t *testing.T) {
	cause := errors.New("connection refused")
	err := database.Unavailable("load user", cause)

	assert.ErrorIs(t, err, database.ErrBackendUnavailable)
	assert.ErrorIs(t, err, cause)
}
