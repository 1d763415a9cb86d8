package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"wbpmisueso/internal/events"
	"wbpmisueso/internal/middleware"

	"github.com/gin-gonic/gin"
)

func (h *Handler) ListEvents(c *gin.Context) {
	var opts events.ListOptions

	if v := c.Query("created_by"); v != "" {
		id, err := parseID(v)
		if err != nil {
			renderError(c, err)
			return
		}
		opts.CreatedBy = &id
	}
	for name, dst := range map[string]**time.Time{"from": &opts.From, "to": &opts.To} {
		if v := c.Query(name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				renderError(c, fmt.Errorf("%w: %s must be RFC 3339", errBadRequest, name))
				return
			}
			*dst = &t
		}
	}
	if v := c.Query("limit"); v != "" {
		opts.Limit, _ = strconv.Atoi(v)
	}

	list, err := h.Events.List(c.Request.Context(), middleware.CurrentUser(c), opts)
	if err != nil {
		renderError(c, err)
		return
	}
	render(c, http.StatusOK, list)
}

func (h *Handler) CreateEvent(c *gin.Context) {
	var in events.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		renderError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	event, err := h.Events.Create(c.Request.Context(), middleware.CurrentUser(c), in)
	if err != nil {
		renderError(c, err)
		return
	}
	render(c, http.StatusCreated, event)
}

func (h *Handler) GetEvent(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	event, err := h.Events.Get(c.Request.Context(), middleware.CurrentUser(c), id)
	if err != nil {
		renderError(c, err)
		return
	}
	render(c, http.StatusOK, event)
}

func (h *Handler) ReplaceEvent(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	var in events.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		renderError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	event, err := h.Events.Replace(c.Request.Context(), middleware.CurrentUser(c), id, in)
	if err != nil {
		renderError(c, err)
		return
	}
	render(c, http.StatusOK, event)
}

func (h *Handler) UpdateEvent(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	var p events.Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		renderError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	event, err := h.Events.Update(c.Request.Context(), middleware.CurrentUser(c), id, p)
	if err != nil {
		renderError(c, err)
		return
	}
	render(c, http.StatusOK, event)
}

func (h *Handler) DeleteEvent(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	if err := h.Events.Delete(c.Request.Context(), middleware.CurrentUser(c), id); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func parseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid id %q", errBadRequest, s)
	}
	return uint(id), nil
}
