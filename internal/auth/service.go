// Package auth authenticates users by email and password.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"wbpmisueso/internal/database"
	"wbpmisueso/internal/metrics"
	"wbpmisueso/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// ErrAuthenticationFailed covers both an unknown email and a wrong password.
var ErrAuthenticationFailed = errors.New("invalid email or password")

var ErrEmailTaken = errors.New("email already registered")

type Service struct {
	db   *gorm.DB
	cost int

	// verifier compared on lookup misses so both failure paths pay for bcrypt
	dummyHash []byte
}

func NewService(db *gorm.DB) *Service {
	return NewServiceWithCost(db, bcrypt.DefaultCost)
}

// NewServiceWithCost lets tests trade hash strength for speed.
func NewServiceWithCost(db *gorm.DB, cost int) *Service {
	dummy, err := bcrypt.GenerateFromPassword([]byte("wbp-dummy-password"), cost)
	if err != nil {
		// only reachable with an out-of-range cost
		panic(fmt.Sprintf("auth: bcrypt cost %d: %v", cost, err))
	}
	return &Service{db: db, cost: cost, dummyHash: dummy}
}

func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Authenticate resolves identifier (an email) and password to a user.
// Bad credentials yield ErrAuthenticationFailed; storage failures yield
// database.ErrBackendUnavailable.
func (s *Service) Authenticate(ctx context.Context, identifier, password string) (*models.User, error) {
	email := models.NormalizeEmail(identifier)

	var user models.User
	err := s.db.WithContext(ctx).Where("LOWER(email) = ?", email).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		metrics.AuthAttempts.WithLabelValues("failed").Inc()
		return nil, ErrAuthenticationFailed
	case err != nil:
		metrics.AuthAttempts.WithLabelValues("unavailable").Inc()
		return nil, database.Unavailable("load user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		metrics.AuthAttempts.WithLabelValues("failed").Inc()
		return nil, ErrAuthenticationFailed
	}

	metrics.AuthAttempts.WithLabelValues("ok").Inc()
	return &user, nil
}

func (s *Service) UserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, database.Unavailable("load user", err)
	}
	return &user, nil
}

type RegisterInput struct {
	Email         string
	Password      string
	Username      string
	GivenName     string
	MiddleInitial string
	LastName      string
	Sex           models.Sex
	ContactNo     string
	Campus        models.Campus
	Role          models.UserRole
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := models.NormalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("invalid email %q", in.Email)
	}
	if len(in.Password) < 6 {
		return nil, errors.New("password must be at least 6 characters")
	}
	if !in.Role.Valid() {
		return nil, fmt.Errorf("unknown role %q", in.Role)
	}
	if in.Campus == "" {
		in.Campus = models.CampusMain
	}
	if !in.Campus.Valid() {
		return nil, fmt.Errorf("unknown campus %q", in.Campus)
	}

	taken, err := s.emailExists(ctx, email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrEmailTaken
	}

	hash, err := s.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	username := in.Username
	if username == "" {
		username = email
	}

	user := models.User{
		Email:         email,
		Username:      username,
		GivenName:     in.GivenName,
		MiddleInitial: in.MiddleInitial,
		LastName:      in.LastName,
		Sex:           in.Sex,
		ContactNo:     in.ContactNo,
		Campus:        in.Campus,
		Role:          in.Role,
		PasswordHash:  hash,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		// a concurrent registration won the unique index
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		return nil, database.Unavailable("create user", err)
	}
	return &user, nil
}

// TestUserEmail is the seeded address for a role, e.g. program_head@example.com.
func TestUserEmail(role models.UserRole) string {
	return strings.ToLower(string(role)) + "@example.com"
}

// SeedRoleUsers creates one user per role with the given password, skipping
// emails that already exist. It returns the emails it created.
func (s *Service) SeedRoleUsers(ctx context.Context, password string) (created, skipped []string, err error) {
	for _, role := range models.Roles {
		email := TestUserEmail(role)

		exists, err := s.emailExists(ctx, email)
		if err != nil {
			return created, skipped, err
		}
		if exists {
			// already there, skip
			skipped = append(skipped, email)
			continue
		}

		if _, err := s.Register(ctx, RegisterInput{
			Email:     email,
			Password:  password,
			Username:  strings.ToLower(string(role)),
			GivenName: "Test",
			LastName:  string(role),
			Role:      role,
		}); err != nil {
			return created, skipped, fmt.Errorf("failed to create seed user %s: %w", email, err)
		}

		slog.Info("created seed user", "email", email, "role", role)
		created = append(created, email)
	}
	return created, skipped, nil
}

func (s *Service) emailExists(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Unscoped().
		Where("LOWER(email) = ?", email).
		Count(&count).Error; err != nil {
		return false, database.Unavailable("check email", err)
	}
	return count > 0, nil
}

func RoleOf(u *models.User) models.UserRole {
	return u.Role
}

func CampusOf(u *models.User) models.Campus {
	return u.Campus
}
