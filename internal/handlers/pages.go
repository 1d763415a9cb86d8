package handlers

import (
	"context"
	"net/http"
	"time"

	"wbpmisueso/internal/middleware"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Index(c *gin.Context) {
	render(c, http.StatusOK, gin.H{
		"service":  "wbpmisueso",
		"isAuthed": middleware.CurrentUser(c) != nil,
	})
}

// Health reports 503 while the database does not answer a ping.
func (h *Handler) Health(c *gin.Context) {
	sqlDB, err := h.DB.DB()
	if err == nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		c.String(http.StatusServiceUnavailable, "database unavailable")
		return
	}
	c.String(http.StatusOK, "ok")
}
