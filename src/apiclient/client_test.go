package apiclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCredentials records hook calls and serves a mutable token
type fakeCredentials struct {
	mu           sync.Mutex
	token        string
	unauthorized int
}

func (f *fakeCredentials) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeCredentials) Unauthorized(_ context.Context, rejected string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unauthorized++
	if f.token == rejected {
		f.token = ""
	}
}

func (f *fakeCredentials) setToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = token
}

func (f *fakeCredentials) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unauthorized
}

func newTestBackend(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()

	router.GET("/api/echo-auth", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"authorization": c.GetHeader("Authorization"),
			"request_id":    c.GetHeader(RequestIDHeader),
		})
	})
	router.GET("/api/unauthorized", func(c *gin.Context) {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Token expired"})
	})
	router.POST("/api/validation", func(c *gin.Context) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
	})
	router.GET("/api/garbage", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", []byte("{not json"))
	})
	router.POST("/api/echo-body", func(c *gin.Context) {
		var body map[string]any
		if err := c.BindJSON(&body); err != nil {
			return
		}
		c.JSON(http.StatusCreated, body)
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_AttachesTokenAtSendTime(t *testing.T) {
	srv := newTestBackend(t)
	creds := &fakeCredentials{}
	client, err := New(srv.URL+"/api", creds)
	require.NoError(t, err)

	var out struct {
		Authorization string `json:"authorization"`
	}
	require.NoError(t, client.Get(context.Background(), "/echo-auth", &out))
	assert.Empty(t, out.Authorization)

	creds.setToken("abc")
	require.NoError(t, client.Get(context.Background(), "/echo-auth", &out))
	assert.Equal(t, "Bearer abc", out.Authorization)
}

func TestClient_PropagatesRequestID(t *testing.T) {
	srv := newTestBackend(t)
	client, err := New(srv.URL+"/api", nil)
	require.NoError(t, err)

	var out struct {
		RequestID string `json:"request_id"`
	}
	ctx := WithRequestID(context.Background(), "req-1234")
	require.NoError(t, client.Get(ctx, "echo-auth", &out))
	assert.Equal(t, "req-1234", out.RequestID)

	require.NoError(t, client.Get(context.Background(), "echo-auth", &out))
	assert.Len(t, out.RequestID, 8)
}

func TestClient_UnauthorizedTriggersHook(t *testing.T) {
	srv := newTestBackend(t)
	creds := &fakeCredentials{token: "stale"}
	client, err := New(srv.URL+"/api", creds)
	require.NoError(t, err)

	err = client.Get(context.Background(), "/unauthorized", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, "Token expired", ServerMessage(err))
	assert.Equal(t, http.StatusUnauthorized, StatusCode(err))

	// The hook ran before the call returned
	assert.Equal(t, 1, creds.calls())
	assert.Empty(t, creds.Token())
}

func TestClient_UnauthorizedWithoutTokenSkipsHook(t *testing.T) {
	srv := newTestBackend(t)
	creds := &fakeCredentials{}
	client, err := New(srv.URL+"/api", creds)
	require.NoError(t, err)

	err = client.Get(context.Background(), "/unauthorized", nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 0, creds.calls())
}

func TestClient_WithoutUnauthorizedHook(t *testing.T) {
	srv := newTestBackend(t)
	creds := &fakeCredentials{token: "stale"}
	client, err := New(srv.URL+"/api", creds)
	require.NoError(t, err)

	err = client.Get(context.Background(), "/unauthorized", nil, WithoutUnauthorizedHook())
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 0, creds.calls())
	assert.Equal(t, "stale", creds.Token())
}

func TestClient_AnonymousOmitsToken(t *testing.T) {
	srv := newTestBackend(t)
	creds := &fakeCredentials{token: "abc"}
	client, err := New(srv.URL+"/api", creds)
	require.NoError(t, err)

	var out struct {
		Authorization string `json:"authorization"`
	}
	require.NoError(t, client.Get(context.Background(), "/echo-auth", &out, Anonymous()))
	assert.Empty(t, out.Authorization)

	err = client.Get(context.Background(), "/unauthorized", nil, Anonymous())
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 0, creds.calls())
}

func TestClient_WithTokenOverridesSession(t *testing.T) {
	srv := newTestBackend(t)
	creds := &fakeCredentials{token: "session-token"}
	client, err := New(srv.URL+"/api", creds)
	require.NoError(t, err)

	var out struct {
		Authorization string `json:"authorization"`
	}
	require.NoError(t, client.Get(context.Background(), "/echo-auth", &out, WithToken("persisted")))
	assert.Equal(t, "Bearer persisted", out.Authorization)

	err = client.Get(context.Background(), "/unauthorized", nil, WithToken("persisted"))
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 0, creds.calls())
}

func TestClient_ServerErrorMessage(t *testing.T) {
	srv := newTestBackend(t)
	client, err := New(srv.URL+"/api", nil)
	require.NoError(t, err)

	err = client.Post(context.Background(), "/validation", map[string]string{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStatus)
	assert.Equal(t, "email is required", ServerMessage(err))
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))
}

func TestClient_MalformedBody(t *testing.T) {
	srv := newTestBackend(t)
	client, err := New(srv.URL+"/api", nil)
	require.NoError(t, err)

	var out map[string]any
	err = client.Get(context.Background(), "/garbage", &out)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestClient_TransportError(t *testing.T) {
	srv := newTestBackend(t)
	url := srv.URL
	srv.Close()

	creds := &fakeCredentials{token: "abc"}
	client, err := New(url+"/api", creds)
	require.NoError(t, err)

	err = client.Get(context.Background(), "/echo-auth", nil)
	require.Error(t, err)
	assert.True(t, IsTransport(err))
	assert.Empty(t, ServerMessage(err))
	assert.Equal(t, 0, creds.calls())
}

func TestClient_JSONRoundTrip(t *testing.T) {
	srv := newTestBackend(t)
	client, err := New(srv.URL+"/api", nil)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, client.Post(context.Background(), "/echo-body", map[string]string{"email": "admin@x.com"}, &out))
	assert.Equal(t, "admin@x.com", out["email"])
}

func TestClient_ForwardRelaysStatusAndHooks(t *testing.T) {
	srv := newTestBackend(t)
	creds := &fakeCredentials{token: "abc"}
	client, err := New(srv.URL+"/api", creds)
	require.NoError(t, err)

	resp, err := client.Forward(context.Background(), http.MethodPost, "/echo-body", "", http.Header{"Content-Type": {"application/json"}}, strings.NewReader(`{"a":1}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = client.Forward(context.Background(), http.MethodGet, "/unauthorized", "", http.Header{}, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 1, creds.calls())
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := New("localhost:5000", nil)
	assert.Error(t, err)

	_, err = New("ftp://example.com", nil)
	assert.Error(t, err)
}
