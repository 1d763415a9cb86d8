package ledger

import (
	"context"
	"errors"
	"strings"

	"wbpmisueso/internal/database"
	"wbpmisueso/internal/models"

	"gorm.io/gorm"
)

type ProjectInput struct {
	Title      string
	CollegeID  uint
	FiscalYear string
	LeaderID   *uint
	Status     models.ProjectStatus
}

// CreateProject registers a project under (college, fiscal year). Spend
// starts at zero and only moves through Charge.
func (s *Service) CreateProject(ctx context.Context, in ProjectInput, by *models.User) (*models.Project, error) {
	fy, err := checkFiscalYear(in.FiscalYear)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, errors.New("project title is required")
	}
	status := in.Status
	if status == "" {
		status = models.StatusNotStarted
	}

	project := models.Project{
		Title:      title,
		Status:     status,
		CollegeID:  in.CollegeID,
		FiscalYear: fy,
		LeaderID:   in.LeaderID,
	}
	if err := s.db.WithContext(ctx).Create(&project).Error; err != nil {
		return nil, database.Unavailable("create project", err)
	}

	s.audit(ctx, by, projectModel, project.ID, "create", "title="+title+" fiscal_year="+fy)
	s.invalidate(0, project.ID)
	return &project, nil
}

func (s *Service) Project(ctx context.Context, id uint) (*models.Project, error) {
	var project models.Project
	err := s.db.WithContext(ctx).First(&project, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, database.Unavailable("load project", err)
	}
	return &project, nil
}

func (s *Service) Projects(ctx context.Context, collegeID uint, fiscalYear string) ([]models.Project, error) {
	var projects []models.Project
	err := s.db.WithContext(ctx).
		Where("college_id = ? AND fiscal_year = ?", collegeID, strings.TrimSpace(fiscalYear)).
		Order("id").
		Find(&projects).Error
	if err != nil {
		return nil, database.Unavailable("list projects", err)
	}
	return projects, nil
}
