package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"wbpmisueso/internal/database"
	"wbpmisueso/internal/models"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubLoader struct {
	user *models.User
	err  error
}

func (s *stubLoader) UserByID(context.Context, uint) (*models.User, error) {
	return s.user, s.err
}

func newRouter(users UserLoader) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(sessions.Sessions("test_session", cookie.NewStore([]byte("test-secret-test-secret-test-sec"))))
	r.GET("/signin", func(c *gin.Context) {
		sess := sessions.Default(c)
		sess.Set(SessionUserID, uint(7))
		_ = sess.Save()
		c.Status(http.StatusNoContent)
	})
	authed := r.Group("/", InjectUser(users), RequireAuth())
	authed.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"email": CurrentUser(c).Email})
	})
	return r
}

func signedIn(t *testing.T, r *gin.Engine) []*http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/signin", nil))
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies
}

func me(r *gin.Engine, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestInjectUser(t *testing.T) {
	u := &models.User{Email: "vp@example.com", Role: models.RoleVP}
	u.ID = 7

	tests := []struct {
		name   string
		loader *stubLoader
		status int
	}{
		{"loaded", &stubLoader{user: u}, http.StatusOK},
		{"deleted user", &stubLoader{err: gorm.ErrRecordNotFound}, http.StatusUnauthorized},
		{"database down", &stubLoader{err: database.Unavailable("load user", assert.AnError)}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(tt.loader)
			rec := me(r, signedIn(t, r))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status == http.StatusServiceUnavailable {
				assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
			}
		})
	}
}

func TestInjectUser_AnonymousPassesThrough(t *testing.T) {
	r := newRouter(&stubLoader{err: assert.AnError})
	assert.Equal(t, http.StatusUnauthorized, me(r, nil).Code)
}
