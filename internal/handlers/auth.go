package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"wbpmisueso/internal/auth"
	"wbpmisueso/internal/middleware"
	"wbpmisueso/internal/models"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

type loginForm struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

func (h *Handler) Login(c *gin.Context) {
	var form loginForm
	if err := c.ShouldBind(&form); err != nil {
		renderError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	user, err := h.Auth.Authenticate(c.Request.Context(), form.Email, form.Password)
	if err != nil {
		slog.Info("login failed", "email", maskEmail(form.Email), "ip", c.ClientIP())
		renderError(c, err)
		return
	}

	sess := sessions.Default(c)
	sess.Clear()
	sess.Set(middleware.SessionUserID, user.ID)
	if err := sess.Save(); err != nil {
		renderError(c, err)
		return
	}
	render(c, http.StatusOK, user)
}

func (h *Handler) Logout(c *gin.Context) {
	sess := sessions.Default(c)
	sess.Clear()
	sess.Options(sessions.Options{Path: "/", MaxAge: -1})
	_ = sess.Save()
	c.Status(http.StatusNoContent)
}

func (h *Handler) Me(c *gin.Context) {
	render(c, http.StatusOK, middleware.CurrentUser(c))
}

type registerForm struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	GivenName     string `json:"given_name"`
	MiddleInitial string `json:"middle_initial"`
	LastName      string `json:"last_name"`
	Sex           string `json:"sex"`
	ContactNo     string `json:"contact_no"`
	Campus        string `json:"campus"`
	Role          string `json:"role"`
}

// self-registration may not grant allocator roles
var selfRegisterRoles = []models.UserRole{
	models.RoleFaculty,
	models.RoleImplementer,
	models.RoleClient,
}

func (h *Handler) Register(c *gin.Context) {
	var form registerForm
	if err := c.ShouldBindJSON(&form); err != nil {
		renderError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	role := models.UserRole(form.Role)
	allowed := false
	for _, r := range selfRegisterRoles {
		if r == role {
			allowed = true
			break
		}
	}
	if !allowed {
		renderError(c, fmt.Errorf("%w: role %q cannot self-register", errBadRequest, form.Role))
		return
	}

	user, err := h.Auth.Register(c.Request.Context(), auth.RegisterInput{
		Email:         form.Email,
		Password:      form.Password,
		GivenName:     form.GivenName,
		MiddleInitial: form.MiddleInitial,
		LastName:      form.LastName,
		Sex:           models.Sex(form.Sex),
		ContactNo:     form.ContactNo,
		Campus:        models.Campus(form.Campus),
		Role:          role,
	})
	if err != nil {
		if statusOf(err) == http.StatusInternalServerError {
			// validation failures from Register are plain errors
			err = fmt.Errorf("%w: %v", errBadRequest, err)
		}
		renderError(c, err)
		return
	}
	render(c, http.StatusCreated, user)
}

// maskEmail keeps the first two characters of the local part for logs.
func maskEmail(email string) string {
	email = strings.TrimSpace(email)
	runes := []rune(email)
	atIdx := -1
	for i, r := range runes {
		if r == '@' {
			atIdx = i
			break
		}
	}
	if atIdx <= 0 {
		return "***"
	}
	prefix := string(runes[:atIdx])
	domain := string(runes[atIdx:])
	if len([]rune(prefix)) <= 2 {
		return prefix + "***" + domain
	}
	return string(runes[0:2]) + "***" + domain
}
