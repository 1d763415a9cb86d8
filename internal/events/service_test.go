package events

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"wbpmisueso/internal/cache"
	"wbpmisueso/internal/database"
	"wbpmisueso/internal/database/dbtest"
	"wbpmisueso/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func setup(t *testing.T) (*Service, *gorm.DB, cache.Backend, *models.User, *models.User) {
	t.Helper()
	db := dbtest.New(t)
	backend, err := cache.NewBadger(cache.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	u1 := &models.User{Email: "u1@example.com", Role: models.RoleFaculty, PasswordHash: "x"}
	u2 := &models.User{Email: "u2@example.com", Role: models.RoleFaculty, PasswordHash: "x"}
	require.NoError(t, db.Create(u1).Error)
	require.NoError(t, db.Create(u2).Error)

	return NewService(db, cache.NewInvalidator(backend, quiet), quiet), db, backend, u1, u2
}

func sampleInput() Input {
	return Input{
		Title:        "Community outreach",
		Location:     "Quezon campus",
		StartAt:      time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		Participants: 40,
	}
}

func TestDelete_OnlyCreator(t *testing.T) {
	s, _, _, u1, u2 := setup(t)
	ctx := context.Background()

	e, err := s.Create(ctx, u1, sampleInput())
	require.NoError(t, err)
	require.NotNil(t, e.CreatedByID)
	assert.Equal(t, u1.ID, *e.CreatedByID)

	assert.ErrorIs(t, s.Delete(ctx, u2, e.ID), ErrForbidden)
	require.NoError(t, s.Delete(ctx, u1, e.ID))

	_, err = s.Get(ctx, u1, e.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGet_AnySignedInUser(t *testing.T) {
	s, _, _, u1, u2 := setup(t)
	ctx := context.Background()

	e, err := s.Create(ctx, u1, sampleInput())
	require.NoError(t, err)

	got, err := s.Get(ctx, u2, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "Community outreach", got.Title)

	_, err = s.Get(ctx, nil, e.ID)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = s.List(ctx, nil, ListOptions{})
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestReplaceAndUpdate_KeepCreator(t *testing.T) {
	s, db, _, u1, u2 := setup(t)
	ctx := context.Background()

	e, err := s.Create(ctx, u1, sampleInput())
	require.NoError(t, err)

	in := sampleInput()
	in.Title = "Renamed"
	in.Participants = 0
	_, err = s.Replace(ctx, u2, e.ID, in)
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := s.Replace(ctx, u1, e.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Zero(t, got.Participants)

	loc := "Main campus"
	_, err = s.Update(ctx, u2, e.ID, Patch{Location: &loc})
	assert.ErrorIs(t, err, ErrForbidden)

	got, err = s.Update(ctx, u1, e.ID, Patch{Location: &loc})
	require.NoError(t, err)
	assert.Equal(t, "Main campus", got.Location)
	assert.Equal(t, "Renamed", got.Title)

	var stored models.Event
	require.NoError(t, db.First(&stored, e.ID).Error)
	require.NotNil(t, stored.CreatedByID)
	assert.Equal(t, u1.ID, *stored.CreatedByID)
	assert.Equal(t, "Main campus", stored.Location)
	assert.Zero(t, stored.Participants)
}

func TestCreatorDeleted_EventBecomesReadOnly(t *testing.T) {
	s, db, _, u1, u2 := setup(t)
	ctx := context.Background()

	e, err := s.Create(ctx, u1, sampleInput())
	require.NoError(t, err)
	require.NoError(t, db.Unscoped().Delete(u1).Error)

	got, err := s.Get(ctx, u2, e.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CreatedByID)
	assert.ErrorIs(t, s.Delete(ctx, u2, e.ID), ErrForbidden)
}

func TestCreate_Validation(t *testing.T) {
	s, _, _, u1, _ := setup(t)
	ctx := context.Background()

	in := sampleInput()
	in.Title = "  "
	_, err := s.Create(ctx, u1, in)
	assert.ErrorIs(t, err, ErrInvalid)

	in = sampleInput()
	before := in.StartAt.Add(-time.Hour)
	in.EndAt = &before
	_, err = s.Create(ctx, u1, in)
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = s.Create(ctx, nil, sampleInput())
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestList_Filters(t *testing.T) {
	s, _, _, u1, u2 := setup(t)
	ctx := context.Background()

	first := sampleInput()
	second := sampleInput()
	second.StartAt = first.StartAt.AddDate(0, 1, 0)
	_, err := s.Create(ctx, u1, second)
	require.NoError(t, err)
	_, err = s.Create(ctx, u1, first)
	require.NoError(t, err)
	_, err = s.Create(ctx, u2, first)
	require.NoError(t, err)

	all, err := s.List(ctx, u2, ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.False(t, all[0].StartAt.After(all[2].StartAt))

	mine, err := s.List(ctx, u1, ListOptions{CreatedBy: &u1.ID})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	from := first.StartAt.AddDate(0, 0, 1)
	later, err := s.List(ctx, u1, ListOptions{From: &from})
	require.NoError(t, err)
	assert.Len(t, later, 1)
}

func TestWrites_AuditAndInvalidate(t *testing.T) {
	s, db, backend, u1, _ := setup(t)
	ctx := context.Background()
	require.NoError(t, backend.Set(cache.Key("event", "list"), []byte("stale"), 0))
	require.NoError(t, backend.Set(cache.Key("collegebudget", 1, "2025"), []byte("keep"), 0))

	e, err := s.Create(ctx, u1, sampleInput())
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, u1, e.ID))

	_, hit, err := backend.Get("event:list")
	require.NoError(t, err)
	assert.False(t, hit)
	_, hit, err = backend.Get("collegebudget:1:2025")
	require.NoError(t, err)
	assert.True(t, hit)

	logs, err := database.ListAuditLogs(db, "event", 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "delete", logs[0].Action)
}
