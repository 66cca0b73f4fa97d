package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/khabaroff/shop-admin-console/src/devbackend"
	"github.com/khabaroff/shop-admin-console/src/middleware"
	"github.com/khabaroff/shop-admin-console/src/services"
	"github.com/khabaroff/shop-admin-console/src/storage"
	"github.com/khabaroff/shop-admin-console/src/templates"
	"github.com/stretchr/testify/require"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testEmail    = "admin@shop.test"
	testPassword = "password123"
)

// console is a full console wired against an in-process dev backend
type console struct {
	engine        *gin.Engine
	backend       *devbackend.Store
	backendURL    string
	mail          *bytes.Buffer
	store         *storage.MemoryBackend
	session       *services.SessionService
	notifications *services.NotificationService
	stream        *StreamHandler
}

func newConsole(t *testing.T) *console {
	t.Helper()
	gin.SetMode(gin.TestMode)

	backend := devbackend.NewStore(time.Hour)
	_, err := devbackend.SeedAdmin(backend, testEmail, testPassword)
	require.NoError(t, err)

	mail := &bytes.Buffer{}
	dev, err := devbackend.NewServer(devbackend.Config{JWTSecret: testSecret, PublicURL: "http://console.test"}, backend, devbackend.NewWriterLinkSender(mail))
	require.NoError(t, err)
	backendRouter := gin.New()
	dev.Routes(backendRouter)
	srv := httptest.NewServer(backendRouter)
	t.Cleanup(srv.Close)

	store := storage.NewMemoryBackend()
	session, err := services.NewSessionService(services.SessionConfig{BackendURL: srv.URL + "/api"}, store)
	require.NoError(t, err)

	pollClient, err := session.NewClient()
	require.NoError(t, err)
	stream := NewStreamHandler()
	notifications := services.NewNotificationService(pollClient, session, stream, services.NotificationConfig{
		PollInterval: time.Hour,
	})
	stream.SetFeedSource(notifications)
	session.OnChange(stream.SessionChanged)

	pages, err := templates.LoadPageConfig()
	require.NoError(t, err)

	engine := gin.New()
	engine.Use(middleware.RequestIDMiddleware())
	SetupRoutes(engine, Dependencies{
		Store:               store,
		Session:             session,
		Notifications:       notifications,
		Stream:              stream,
		Pages:               pages,
		SignInRatePerMinute: 100,
	})

	return &console{
		engine:        engine,
		backend:       backend,
		backendURL:    srv.URL,
		mail:          mail,
		store:         store,
		session:       session,
		notifications: notifications,
		stream:        stream,
	}
}

// signIn logs the console session in directly
func (cs *console) signIn(t *testing.T) {
	t.Helper()
	_, err := cs.session.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
}

// serve sends a request through the console router
func (cs *console) serve(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	cs.engine.ServeHTTP(w, req)
	return w
}

// page issues a browser-style navigation
func (cs *console) page(method, path string, form string) *httptest.ResponseRecorder {
	var body io.Reader
	if form != "" {
		body = strings.NewReader(form)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	if form != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return cs.serve(req)
}

// api issues a JSON call as the console's scripts do
func (cs *console) api(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "console")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return cs.serve(req)
}

// assertStatusCode checks if response status code matches expected
func assertStatusCode(t *testing.T, w *httptest.ResponseRecorder, expectedCode int) {
	t.Helper()
	if w.Code != expectedCode {
		t.Errorf("expected status %d, got %d: %s", expectedCode, w.Code, w.Body.String())
	}
}

// assertJSONError checks if response contains expected error code
func assertJSONError(t *testing.T, w *httptest.ResponseRecorder, expectedError string) {
	t.Helper()
	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response["error"] != expectedError {
		t.Errorf("expected error '%s', got '%v'", expectedError, response["error"])
	}
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}
