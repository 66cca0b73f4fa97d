package services

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/khabaroff/shop-admin-console/src/models"
	"github.com/khabaroff/shop-admin-console/src/storage"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "admin@shop.test"
	testPassword = "secret"
	testToken    = "tok-1"
)

// fakeShop is a scriptable stand-in for the shop backend
type fakeShop struct {
	mu sync.Mutex

	validToken string
	loginBody  any
	meBody     any

	notificationsBody   any
	notificationsStatus int
	notificationsDelay  chan struct{}
	markStatus          int
	markDelay           chan struct{}

	hits map[string]int
}

func newFakeShop() *fakeShop {
	return &fakeShop{
		validToken: testToken,
		loginBody: gin.H{
			"admin": gin.H{"_id": "a1", "username": "admin", "email": testEmail, "role": "admin"},
			"token": testToken,
		},
		meBody:              gin.H{"admin": gin.H{"_id": "a1", "username": "admin", "email": testEmail}},
		notificationsBody:   []any{},
		notificationsStatus: http.StatusOK,
		markStatus:          http.StatusOK,
		hits:                make(map[string]int),
	}
}

func (f *fakeShop) hit(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits[name]++
}

func (f *fakeShop) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[name]
}

func (f *fakeShop) set(fn func(f *fakeShop)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeShop) authorized(c *gin.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.validToken != "" && c.GetHeader("Authorization") == "Bearer "+f.validToken
}

func (f *fakeShop) deny(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{"message": "Token expired"})
}

func (f *fakeShop) routes() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	api := router.Group("/api")

	api.POST("/auth/login", func(c *gin.Context) {
		f.hit("login")
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		_ = c.BindJSON(&req)
		if c.GetHeader("Authorization") != "" {
			c.JSON(http.StatusBadRequest, gin.H{"message": "login must be anonymous"})
			return
		}
		if req.Email != testEmail || req.Password != testPassword {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials"})
			return
		}
		f.mu.Lock()
		body := f.loginBody
		f.mu.Unlock()
		c.JSON(http.StatusOK, body)
	})

	api.POST("/auth/logout", func(c *gin.Context) {
		f.hit("logout")
		if !f.authorized(c) {
			f.deny(c)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
	})

	api.GET("/auth/check", func(c *gin.Context) {
		f.hit("check")
		if !f.authorized(c) {
			f.deny(c)
			return
		}
		c.JSON(http.StatusOK, gin.H{"valid": true})
	})

	api.GET("/auth/me", func(c *gin.Context) {
		f.hit("me")
		if !f.authorized(c) {
			f.deny(c)
			return
		}
		f.mu.Lock()
		body := f.meBody
		f.mu.Unlock()
		c.JSON(http.StatusOK, body)
	})

	api.PUT("/auth/change-password", func(c *gin.Context) {
		f.hit("change-password")
		if !f.authorized(c) {
			f.deny(c)
			return
		}
		var req struct {
			CurrentPassword string `json:"currentPassword"`
			NewPassword     string `json:"newPassword"`
		}
		_ = c.BindJSON(&req)
		if req.CurrentPassword != testPassword {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Current password is incorrect"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Password changed"})
	})

	api.POST("/auth/forgot-password", func(c *gin.Context) {
		f.hit("forgot-password")
		var req struct {
			Email string `json:"email"`
		}
		_ = c.BindJSON(&req)
		if req.Email != testEmail {
			c.JSON(http.StatusNotFound, gin.H{"error": "No account with that email"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Reset link sent"})
	})

	api.POST("/auth/reset-password/:token", func(c *gin.Context) {
		f.hit("reset-password")
		switch c.Param("token") {
		case "good":
			c.JSON(http.StatusOK, gin.H{"message": "Password reset"})
		case "broken":
			c.Status(http.StatusInternalServerError)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid or expired token"})
		}
	})

	api.GET("/admin/notifications", func(c *gin.Context) {
		f.hit("notifications")
		if !f.authorized(c) {
			f.deny(c)
			return
		}
		f.mu.Lock()
		body, status, delay := f.notificationsBody, f.notificationsStatus, f.notificationsDelay
		f.mu.Unlock()
		if delay != nil {
			select {
			case <-delay:
			case <-time.After(5 * time.Second):
			}
		}
		c.JSON(status, body)
	})

	api.PATCH("/admin/notifications/read-all", func(c *gin.Context) {
		f.hit("read-all")
		if !f.authorized(c) {
			f.deny(c)
			return
		}
		f.mu.Lock()
		status := f.markStatus
		f.mu.Unlock()
		c.JSON(status, gin.H{"message": "ok"})
	})

	api.PATCH("/admin/notifications/:id/read", func(c *gin.Context) {
		f.hit("read:" + c.Param("id"))
		if !f.authorized(c) {
			f.deny(c)
			return
		}
		f.mu.Lock()
		status, delay := f.markStatus, f.markDelay
		f.mu.Unlock()
		if delay != nil {
			select {
			case <-delay:
			case <-time.After(5 * time.Second):
			}
		}
		c.JSON(status, gin.H{"message": "ok"})
	})

	return router
}

func (f *fakeShop) start(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(f.routes())
	t.Cleanup(srv.Close)
	return srv
}

func newTestSession(t *testing.T, shop *fakeShop) (*SessionService, *storage.MemoryBackend) {
	t.Helper()
	srv := shop.start(t)
	store := storage.NewMemoryBackend()
	session, err := NewSessionService(SessionConfig{BackendURL: srv.URL + "/api"}, store)
	require.NoError(t, err)
	return session, store
}

func notif(id string, typ models.NotificationType, msg string, read bool) gin.H {
	return gin.H{"_id": id, "type": string(typ), "message": msg, "read": read, "createdAt": time.Now().UTC()}
}
