package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"wbpmisueso/internal/models"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	CurrentUserKey = "CurrentUser"
	SessionUserID  = "user_id"
)

type UserLoader interface {
	UserByID(ctx context.Context, id uint) (*models.User, error)
}

// InjectUser loads the session's user on every request. A session pointing
// at a user that no longer exists is cleared; a failed lookup aborts with 503.
func InjectUser(users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)

		if uidRaw := sess.Get(SessionUserID); uidRaw != nil {
			if uid, ok := uidRaw.(uint); ok && uid > 0 {
				user, err := users.UserByID(c.Request.Context(), uid)
				switch {
				case err == nil:
					c.Set(CurrentUserKey, user)
				case errors.Is(err, gorm.ErrRecordNotFound):
					sess.Clear()
					_ = sess.Save()
				default:
					// the session may be valid; do not report it as signed out
					slog.Error("failed to load session user", "user_id", uid, "error", err)
					c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service temporarily unavailable"})
					return
				}
			}
		}

		c.Next()
	}
}

func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(CurrentUserKey)
	if !ok {
		return nil
	}
	u, _ := v.(*models.User)
	return u
}
