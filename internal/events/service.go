// Package events manages the event calendar. Any signed-in user may read an
// event; only its creator may change or delete it.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"wbpmisueso/internal/cache"
	"wbpmisueso/internal/database"
	"wbpmisueso/internal/models"
	"wbpmisueso/internal/policy"

	"gorm.io/gorm"
)

const cacheModel = "event"

var (
	ErrNotFound        = errors.New("event not found")
	ErrForbidden       = errors.New("only the event creator may modify this event")
	ErrUnauthenticated = errors.New("authentication required")
	ErrInvalid         = errors.New("invalid event")
)

// columns Replace and Update may write; created_by_id is set once on insert
var writable = []string{"title", "description", "location", "start_at", "end_at", "participants", "updated_at"}

type Input struct {
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Location     string     `json:"location"`
	StartAt      time.Time  `json:"start_at"`
	EndAt        *time.Time `json:"end_at"`
	Participants int        `json:"participants"`
}

// Patch carries the fields of a partial update; nil means unchanged.
type Patch struct {
	Title        *string    `json:"title"`
	Description  *string    `json:"description"`
	Location     *string    `json:"location"`
	StartAt      *time.Time `json:"start_at"`
	EndAt        *time.Time `json:"end_at"`
	Participants *int       `json:"participants"`
}

type ListOptions struct {
	CreatedBy *uint
	From      *time.Time
	To        *time.Time
	Limit     int
}

type Service struct {
	db          *gorm.DB
	invalidator *cache.Invalidator
	logger      *slog.Logger
}

func NewService(db *gorm.DB, invalidator *cache.Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, invalidator: invalidator, logger: logger.With("component", "events")}
}

func (s *Service) Create(ctx context.Context, user *models.User, in Input) (*models.Event, error) {
	if user == nil || user.ID == 0 {
		return nil, ErrUnauthenticated
	}
	if err := validate(in); err != nil {
		return nil, err
	}

	uid := user.ID
	event := models.Event{
		Title:        strings.TrimSpace(in.Title),
		Description:  in.Description,
		Location:     in.Location,
		StartAt:      in.StartAt,
		EndAt:        in.EndAt,
		Participants: in.Participants,
		CreatedByID:  &uid,
	}
	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		return nil, database.Unavailable("create event", err)
	}

	s.written(ctx, user, &event, "create")
	return &event, nil
}

func (s *Service) Get(ctx context.Context, user *models.User, id uint) (*models.Event, error) {
	return s.authorized(ctx, user, id, policy.ActionRead)
}

func (s *Service) List(ctx context.Context, user *models.User, opts ListOptions) ([]models.Event, error) {
	if user == nil || user.ID == 0 {
		return nil, ErrUnauthenticated
	}
	if opts.Limit <= 0 || opts.Limit > 500 {
		opts.Limit = 500
	}

	q := s.db.WithContext(ctx).Order("start_at").Order("id").Limit(opts.Limit)
	if opts.CreatedBy != nil {
		q = q.Where("created_by_id = ?", *opts.CreatedBy)
	}
	if opts.From != nil {
		q = q.Where("start_at >= ?", *opts.From)
	}
	if opts.To != nil {
		q = q.Where("start_at < ?", *opts.To)
	}

	var list []models.Event
	if err := q.Find(&list).Error; err != nil {
		return nil, database.Unavailable("list events", err)
	}
	return list, nil
}

// Replace overwrites every writable field of the event.
func (s *Service) Replace(ctx context.Context, user *models.User, id uint, in Input) (*models.Event, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	event, err := s.authorized(ctx, user, id, policy.ActionReplace)
	if err != nil {
		return nil, err
	}

	event.Title = strings.TrimSpace(in.Title)
	event.Description = in.Description
	event.Location = in.Location
	event.StartAt = in.StartAt
	event.EndAt = in.EndAt
	event.Participants = in.Participants
	if err := s.save(ctx, event); err != nil {
		return nil, err
	}

	s.written(ctx, user, event, "replace")
	return event, nil
}

func (s *Service) Update(ctx context.Context, user *models.User, id uint, p Patch) (*models.Event, error) {
	event, err := s.authorized(ctx, user, id, policy.ActionUpdate)
	if err != nil {
		return nil, err
	}

	if p.Title != nil {
		event.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		event.Description = *p.Description
	}
	if p.Location != nil {
		event.Location = *p.Location
	}
	if p.StartAt != nil {
		event.StartAt = *p.StartAt
	}
	if p.EndAt != nil {
		event.EndAt = p.EndAt
	}
	if p.Participants != nil {
		event.Participants = *p.Participants
	}
	if err := validate(Input{
		Title:        event.Title,
		StartAt:      event.StartAt,
		EndAt:        event.EndAt,
		Participants: event.Participants,
	}); err != nil {
		return nil, err
	}
	if err := s.save(ctx, event); err != nil {
		return nil, err
	}

	s.written(ctx, user, event, "update")
	return event, nil
}

func (s *Service) Delete(ctx context.Context, user *models.User, id uint) error {
	event, err := s.authorized(ctx, user, id, policy.ActionDelete)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(event).Error; err != nil {
		return database.Unavailable("delete event", err)
	}

	s.written(ctx, user, event, "delete")
	return nil
}

func (s *Service) authorized(ctx context.Context, user *models.User, id uint, action policy.Action) (*models.Event, error) {
	if user == nil || user.ID == 0 {
		return nil, ErrUnauthenticated
	}

	var event models.Event
	err := s.db.WithContext(ctx).First(&event, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, database.Unavailable("load event", err)
	}

	if !policy.CanAccessEvent(user, &event, action) {
		s.logger.Info("event access denied", "event_id", id, "user_id", user.ID, "action", action)
		return nil, ErrForbidden
	}
	return &event, nil
}

func (s *Service) save(ctx context.Context, event *models.Event) error {
	err := s.db.WithContext(ctx).Model(event).Select(writable).Updates(event).Error
	if err != nil {
		return database.Unavailable("save event", err)
	}
	return nil
}

func (s *Service) written(ctx context.Context, user *models.User, event *models.Event, action string) {
	uid := user.ID
	database.CreateAuditLog(s.db.WithContext(ctx), &uid, cacheModel, event.ID, action,
		fmt.Sprintf("title=%q", event.Title))
	s.invalidator.InvalidateModel(cacheModel, event.ID)
}

func validate(in Input) error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalid)
	}
	if in.StartAt.IsZero() {
		return fmt.Errorf("%w: start_at is required", ErrInvalid)
	}
	if in.EndAt != nil && in.EndAt.Before(in.StartAt) {
		return fmt.Errorf("%w: end_at precedes start_at", ErrInvalid)
	}
	if in.Participants < 0 {
		return fmt.Errorf("%w: participants must not be negative", ErrInvalid)
	}
	return nil
}
