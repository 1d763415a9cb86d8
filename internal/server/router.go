package server

import (
	"net/http"

	"wbpmisueso/internal/config"
	"wbpmisueso/internal/handlers"
	"wbpmisueso/internal/metrics"
	"wbpmisueso/internal/middleware"
	"wbpmisueso/internal/models"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

const sessionName = "wbp_session"

func NewRouter(cfg *config.Config, h *handlers.Handler) *gin.Engine {
	r := gin.Default()

	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   60 * 60 * 12,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionName, store))

	r.Use(middleware.InjectUser(h.Auth))

	r.GET("/", h.Index)

	// AUTH
	r.POST("/login", h.Login)
	r.POST("/logout", h.Logout)
	r.POST("/register", h.Register)

	authed := r.Group("/")
	authed.Use(middleware.RequireAuth())

	authed.GET("/me", h.Me)

	// EVENTS: ownership is checked per object by the events service
	authed.GET("/events", h.ListEvents)
	authed.POST("/events", h.CreateEvent)
	authed.GET("/events/:id", h.GetEvent)
	authed.PUT("/events/:id", h.ReplaceEvent)
	authed.PATCH("/events/:id", h.UpdateEvent)
	authed.DELETE("/events/:id", h.DeleteEvent)

	// BUDGETS: only allocators assign or adjust funds
	authed.POST("/budgets",
		middleware.RequireRole(models.AllocatorRoles...),
		h.CreateBudget,
	)
	authed.PATCH("/budgets/:id",
		middleware.RequireRole(models.AllocatorRoles...),
		h.AdjustBudget,
	)
	authed.GET("/budgets/summary", h.BudgetSummary)

	// PROJECTS: leaders spend on their own projects, allocators on any
	authed.GET("/projects", h.ListProjects)
	authed.GET("/projects/:id", h.GetProject)
	spend := authed.Group("/projects", middleware.RequireRole(models.ProjectRoles...))
	spend.POST("", h.CreateProject)
	spend.POST("/:id/charge", h.ChargeProject)
	spend.POST("/:id/finalize", h.FinalizeProject)

	// AUDIT
	authed.GET("/audit",
		middleware.RequireRole(models.AllocatorRoles...),
		h.ListAuditLogs,
	)

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	return r
}
