package handlers

import (
	"net/http"
	"strconv"

	"wbpmisueso/internal/database"

	"github.com/gin-gonic/gin"
)

func (h *Handler) ListAuditLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	logs, err := database.ListAuditLogs(h.DB.WithContext(c.Request.Context()), c.Query("entity"), limit)
	if err != nil {
		renderError(c, err)
		return
	}
	render(c, http.StatusOK, gin.H{"logs": logs})
}
