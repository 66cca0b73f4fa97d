package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/khabaroff/shop-admin-console/src/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVerifier struct {
	ok     bool
	reason models.LogoutReason
	checks atomic.Int32
}

func (f *fakeVerifier) CheckAuth(context.Context) bool {
	f.checks.Add(1)
	return f.ok
}

func (f *fakeVerifier) Admin() *models.Admin {
	if !f.ok {
		return nil
	}
	return &models.Admin{Username: "admin"}
}

func (f *fakeVerifier) Snapshot() models.SessionSnapshot {
	return models.SessionSnapshot{IsAuthenticated: f.ok, LastLogoutReason: f.reason}
}

func newGuardedRouter(v SessionVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	guarded := router.Group("/", RequireSession(v))
	guarded.GET("/orders", func(c *gin.Context) {
		c.String(http.StatusOK, "hello "+GetAdmin(c).Username)
	})
	guarded.GET("/console/api/session", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	guarded.GET("/console/stream", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func TestRequireSession_Authenticated(t *testing.T) {
	v := &fakeVerifier{ok: true}
	router := newGuardedRouter(v)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Accept", "text/html")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello admin", w.Body.String())
	assert.Equal(t, int32(1), v.checks.Load())
}

func TestRequireSession_RedirectsNavigation(t *testing.T) {
	router := newGuardedRouter(&fakeVerifier{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/orders?page=2", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/signin?next=%2Forders%3Fpage%3D2", w.Header().Get("Location"))
	assert.NotContains(t, w.Body.String(), "hello")
}

func TestRequireSession_FlagsExpiredSession(t *testing.T) {
	router := newGuardedRouter(&fakeVerifier{reason: models.LogoutReasonExpired})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Accept", "text/html")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/signin?next=%2Forders&reason=expired", w.Header().Get("Location"))
}

func TestRequireSession_APIGets401(t *testing.T) {
	router := newGuardedRouter(&fakeVerifier{reason: models.LogoutReasonExpired})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/console/api/session", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "/signin", body["redirect"])
	assert.Equal(t, "expired", body["reason"])
}

func TestRequireSession_StreamGets401(t *testing.T) {
	router := newGuardedRouter(&fakeVerifier{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/console/stream", nil)
	req.Header.Set("Accept", "text/event-stream")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSafeNext(t *testing.T) {
	assert.Equal(t, "/orders", SafeNext("/orders"))
	assert.Equal(t, "/", SafeNext(""))
	assert.Equal(t, "/", SafeNext("https://evil.test"))
	assert.Equal(t, "/", SafeNext("//evil.test"))
	assert.Equal(t, "/", SafeNext(`/\evil.test`))
}

func TestSignInURL(t *testing.T) {
	assert.Equal(t, "/signin", SignInURL(false, ""))
	assert.Equal(t, "/signin", SignInURL(false, "/"))
	assert.Equal(t, "/signin?reason=expired", SignInURL(true, ""))
}
