package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"wbpmisueso/internal/ledger"
	"wbpmisueso/internal/middleware"
	"wbpmisueso/internal/models"
	"wbpmisueso/internal/policy"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

//
// BUDGETS
//

type allocateForm struct {
	CollegeID  uint                `json:"college_id" binding:"required"`
	FiscalYear string              `json:"fiscal_year" binding:"required"`
	Amount     decimal.Decimal     `json:"amount"`
	Status     models.BudgetStatus `json:"status"`
}

func (h *Handler) CreateBudget(c *gin.Context) {
	var form allocateForm
	if err := c.ShouldBindJSON(&form); err != nil {
		renderError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	budget, err := h.Ledger.Allocate(c.Request.Context(), ledger.AllocateInput{
		CollegeID:  form.CollegeID,
		FiscalYear: form.FiscalYear,
		Amount:     form.Amount,
		Status:     form.Status,
		AssignedBy: middleware.CurrentUser(c),
	})
	if err != nil {
		renderError(c, err)
		return
	}
	render(c, http.StatusCreated, budget)
}

type adjustForm struct {
	Amount decimal.Decimal      `json:"total_assigned"`
	Status *models.BudgetStatus `json:"status"`
}

func (h *Handler) AdjustBudget(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	var form adjustForm
	if err := c.ShouldBindJSON(&form); err != nil {
		renderError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	budget, err := h.Ledger.Adjust(c.Request.Context(), id, form.Amount, form.Status, middleware.CurrentUser(c))
	if err != nil {
		renderError(c, err)
		return
	}
	render(c, http.StatusOK, budget)
}

func (h *Handler) BudgetSummary(c *gin.Context) {
	collegeID, err := parseID(c.Query("college_id"))
	if err != nil {
		renderError(c, err)
		return
	}
	sum, err := h.Ledger.Summary(c.Request.Context(), collegeID, c.Query("fiscal_year"))
	if err != nil {
		renderError(c, err)
		return
	}
	render(c, http.StatusOK, sum)
}

//
// PROJECTS
//

type projectForm struct {
	Title      string               `json:"title" binding:"required"`
	CollegeID  uint                 `json:"college_id" binding:"required"`
	FiscalYear string               `json:"fiscal_year" binding:"required"`
	LeaderID   *uint                `json:"leader_id"`
	Status     models.ProjectStatus `json:"status"`
}

func (h *Handler) CreateProject(c *gin.Context) {
	var form projectForm
	if err := c.ShouldBindJSON(&form); err != nil {
		renderError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	user := middleware.CurrentUser(c)
	leader := form.LeaderID
	// only allocators open projects on someone else's behalf
	if leader == nil || !user.HasRole(models.AllocatorRoles...) {
		leader = &user.ID
	}
	project, err := h.Ledger.CreateProject(c.Request.Context(), ledger.ProjectInput{
		Title:      form.Title,
		CollegeID:  form.CollegeID,
		FiscalYear: form.FiscalYear,
		LeaderID:   leader,
		Status:     form.Status,
	}, user)
	if err != nil {
		renderError(c, err)
		return
	}
	render(c, http.StatusCreated, project)
}

func (h *Handler) ListProjects(c *gin.Context) {
	collegeID, err := strconv.ParseUint(c.Query("college_id"), 10, 64)
	if err != nil {
		renderError(c, fmt.Errorf("%w: college_id is required", errBadRequest))
		return
	}
	projects, err := h.Ledger.Projects(c.Request.Context(), uint(collegeID), c.Query("fiscal_year"))
	if err != nil {
		renderError(c, err)
		return
	}
	render(c, http.StatusOK, projects)
}

func (h *Handler) GetProject(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	project, err := h.Ledger.Project(c.Request.Context(), id)
	if err != nil {
		renderError(c, err)
		return
	}
	render(c, http.StatusOK, project)
}

type chargeForm struct {
	Delta decimal.Decimal `json:"delta"`
}

func (h *Handler) ChargeProject(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	var form chargeForm
	if err := c.ShouldBindJSON(&form); err != nil {
		renderError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if !h.mayManageProject(c, id) {
		return
	}
	project, err := h.Ledger.Charge(c.Request.Context(), id, form.Delta, middleware.CurrentUser(c))
	if err != nil {
		renderError(c, err)
		return
	}
	render(c, http.StatusOK, project)
}

func (h *Handler) FinalizeProject(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	if !h.mayManageProject(c, id) {
		return
	}
	project, err := h.Ledger.Finalize(c.Request.Context(), id, middleware.CurrentUser(c))
	if err != nil {
		renderError(c, err)
		return
	}
	render(c, http.StatusOK, project)
}

// mayManageProject renders the rejection itself and reports whether to go on.
func (h *Handler) mayManageProject(c *gin.Context, id uint) bool {
	project, err := h.Ledger.Project(c.Request.Context(), id)
	if err != nil {
		renderError(c, err)
		return false
	}
	if !policy.MayManageProject(middleware.CurrentUser(c), project) {
		renderError(c, errForbidden)
		return false
	}
	return true
}
