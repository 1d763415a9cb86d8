package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"wbpmisueso/internal/auth"
	"wbpmisueso/internal/database"
	"wbpmisueso/internal/events"
	"wbpmisueso/internal/ledger"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handler holds the services the HTTP layer translates onto.
type Handler struct {
	Auth   *auth.Service
	Ledger *ledger.Service
	Events *events.Service
	DB     *gorm.DB
}

func render(c *gin.Context, status int, data any) {
	c.JSON(status, data)
}

// renderError maps service errors onto status codes. Unknown errors are
// logged and reported as 500 without detail.
func renderError(c *gin.Context, err error) {
	status := statusOf(err)
	body := gin.H{"error": err.Error()}

	var amountErr *ledger.AmountError
	if errors.As(err, &amountErr) {
		body["amount"] = ledger.Display(amountErr.Amount)
		body["limit"] = ledger.Display(amountErr.Limit)
	}

	switch {
	case status == http.StatusServiceUnavailable:
		slog.Error("backend unavailable", "path", c.FullPath(), "error", err)
		body = gin.H{"error": "service temporarily unavailable"}
	case status >= http.StatusInternalServerError:
		slog.Error("request failed", "path", c.FullPath(), "error", err)
		body = gin.H{"error": "internal error"}
	}
	c.AbortWithStatusJSON(status, body)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, database.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, auth.ErrAuthenticationFailed),
		errors.Is(err, events.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, events.ErrForbidden),
		errors.Is(err, ledger.ErrNotAllocator),
		errors.Is(err, errForbidden):
		return http.StatusForbidden
	case errors.Is(err, events.ErrNotFound),
		errors.Is(err, ledger.ErrProjectNotFound),
		errors.Is(err, ledger.ErrAllocationNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrDuplicateAllocation),
		errors.Is(err, auth.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInsufficientAllocation),
		errors.Is(err, ledger.ErrOverBudget),
		errors.Is(err, ledger.ErrFrozenProject):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidFiscalYear),
		errors.Is(err, events.ErrInvalid),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

var (
	errBadRequest = errors.New("bad request")
	errForbidden  = errors.New("forbidden")
)
