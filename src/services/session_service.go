package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/khabaroff/shop-admin-console/src/apiclient"
	"github.com/khabaroff/shop-admin-console/src/logging"
	"github.com/khabaroff/shop-admin-console/src/metrics"
	"github.com/khabaroff/shop-admin-console/src/models"
	"github.com/khabaroff/shop-admin-console/src/storage"
	"github.com/rs/zerolog"
)

// persistTimeout bounds a single write to the session backend
const persistTimeout = 5 * time.Second

// logoutNotifyTimeout bounds the best-effort logout call to the backend
const logoutNotifyTimeout = 5 * time.Second

// SessionConfig configures the session service
type SessionConfig struct {
	BackendURL string
	Timeout    time.Duration
	StorageKey string
	HTTPClient *http.Client
}

// SessionService owns the admin session: identity, token and the runtime
// loading/error flags. It is the only writer of those fields; everything else
// reads them through Token, Snapshot and OnChange.
type SessionService struct {
	mu        sync.RWMutex
	admin     *models.Admin
	token     string
	inFlight  int
	loggingIn int
	errMsg    string
	reason    models.LogoutReason
	version   uint64

	cfg    SessionConfig
	store  storage.Backend
	client *apiclient.Client
	logger zerolog.Logger

	listenersMu sync.Mutex
	listeners   []func(authenticated bool)

	persistMu        sync.Mutex
	persistedVersion uint64
}

// NewSessionService creates an anonymous session backed by store. Call
// Restore to pick up a previously persisted session.
func NewSessionService(cfg SessionConfig, store storage.Backend) (*SessionService, error) {
	if store == nil {
		return nil, errors.New("session store backend is required")
	}
	if cfg.StorageKey == "" {
		cfg.StorageKey = models.SessionStorageKey
	}

	s := &SessionService{
		cfg:    cfg,
		store:  store,
		logger: logging.NewLogger("session"),
	}

	client, err := s.NewClient()
	if err != nil {
		return nil, err
	}
	s.client = client
	return s, nil
}

// NewClient builds an authenticated client bound to this session. Components
// that poll on their own get their own instance.
func (s *SessionService) NewClient(opts ...apiclient.Option) (*apiclient.Client, error) {
	var base []apiclient.Option
	if s.cfg.HTTPClient != nil {
		base = append(base, apiclient.WithHTTPClient(s.cfg.HTTPClient))
	}
	base = append(base, apiclient.WithTimeout(s.cfg.Timeout))
	return apiclient.New(s.cfg.BackendURL, s, append(base, opts...)...)
}

// Client returns the session's own authenticated client
func (s *SessionService) Client() *apiclient.Client {
	return s.client
}

// Token returns the current bearer token, or "" when anonymous
func (s *SessionService) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Unauthorized is the forced-logout path: the backend rejected the token. It
// clears local state only; the token is already dead server-side, so there
// is nothing to notify and no request that could be intercepted again.
func (s *SessionService) Unauthorized(_ context.Context, rejected string) {
	if s.clearSessionIf(rejected, models.LogoutReasonExpired) {
		metrics.ForcedLogouts.Inc()
		s.logger.Warn().Msg("session expired, cleared after unauthorized response")
	}
}

// OnChange registers fn to be called after every authentication transition.
// fn runs synchronously on the goroutine that caused the transition and must
// not block.
func (s *SessionService) OnChange(fn func(authenticated bool)) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// IsAuthenticated reports whether both token and admin are held
func (s *SessionService) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticatedLocked()
}

func (s *SessionService) authenticatedLocked() bool {
	return s.token != "" && s.admin.Valid()
}

// Admin returns a copy of the current identity, or nil
func (s *SessionService) Admin() *models.Admin {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyAdmin(s.admin)
}

// State returns the coarse session state
func (s *SessionService) State() models.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

func (s *SessionService) stateLocked() models.SessionState {
	switch {
	case s.authenticatedLocked():
		return models.SessionAuthenticated
	case s.loggingIn > 0:
		return models.SessionAuthenticating
	default:
		return models.SessionAnonymous
	}
}

// Snapshot returns a copy of the whole session for display
func (s *SessionService) Snapshot() models.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.SessionSnapshot{
		Admin:            copyAdmin(s.admin),
		HasToken:         s.token != "",
		IsAuthenticated:  s.authenticatedLocked(),
		IsLoading:        s.inFlight > 0,
		Error:            s.errMsg,
		State:            s.stateLocked(),
		TokenExpiresAt:   tokenExpiry(s.token),
		LastLogoutReason: s.reason,
	}
}

// ClearError clears the last operation error and nothing else
func (s *SessionService) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errMsg = ""
}

// Restore loads the persisted session. A token with an identity is trusted
// as is; a token without one is verified through the profile endpoint before
// it is installed.
func (s *SessionService) Restore(ctx context.Context) error {
	data, err := s.store.Load(ctx, s.cfg.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load persisted session: %w", err)
	}

	var persisted models.PersistedSession
	if err := json.Unmarshal(data, &persisted); err != nil {
		s.logger.Warn().Err(err).Msg("discarding unreadable persisted session")
		s.clearSession(models.LogoutReasonNone)
		return nil
	}

	switch {
	case persisted.Token == "":
		return nil
	case persisted.Admin.Valid():
		s.setSession(persisted.Admin, persisted.Token)
		s.logger.Info().Str("username", persisted.Admin.Username).Msg("session restored")
		return nil
	default:
		admin, err := s.loadProfile(ctx, apiclient.WithToken(persisted.Token))
		if err != nil {
			s.logger.Warn().Err(err).Msg("persisted token rejected, starting anonymous")
			s.clearSession(models.LogoutReasonInvalid)
			return nil
		}
		s.setSession(admin, persisted.Token)
		s.logger.Info().Str("username", admin.Username).Msg("session restored from token")
		return nil
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Admin *models.Admin `json:"admin"`
	Token string        `json:"token"`
}

// Login exchanges credentials for a session. A 2xx answer missing either the
// identity or the token is a failure; state is only touched on full success.
func (s *SessionService) Login(ctx context.Context, email, password string) (*models.Admin, error) {
	s.mu.Lock()
	s.inFlight++
	s.loggingIn++
	s.errMsg = ""
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.loggingIn--
		s.mu.Unlock()
	}()

	// Sent without the current token: a 401 here means bad credentials, not
	// a dead session
	var resp loginResponse
	err := s.client.Post(ctx, "/auth/login", loginRequest{Email: email, Password: password}, &resp, apiclient.Anonymous())
	if err != nil {
		opErr := newOpError("login", msgLoginFailed, err)
		s.setError(opErr.Message)
		s.logger.Info().Err(err).Msg("login failed")
		return nil, opErr
	}

	if !resp.Admin.Valid() || resp.Token == "" {
		opErr := &OpError{Op: "login", Message: msgLoginFailed, Err: ErrInvalidLoginResponse}
		s.setError(opErr.Message)
		s.logger.Warn().
			Bool("has_admin", resp.Admin.Valid()).
			Bool("has_token", resp.Token != "").
			Msg("login response incomplete")
		return nil, opErr
	}

	s.setSession(resp.Admin, resp.Token)
	s.logger.Info().Str("username", resp.Admin.Username).Msg("logged in")
	return copyAdmin(resp.Admin), nil
}

// Logout notifies the backend on a best-effort basis and always ends anonymous
func (s *SessionService) Logout(ctx context.Context) {
	s.begin()
	defer s.end()

	if token := s.Token(); token != "" {
		// Detached from the caller so a cancelled request still reaches the backend
		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logoutNotifyTimeout)
		defer cancel()
		if err := s.client.Post(notifyCtx, "/auth/logout", nil, nil, apiclient.WithoutUnauthorizedHook()); err != nil {
			s.logger.Debug().Err(err).Msg("logout notification failed, clearing locally")
		}
	}

	s.clearSession(models.LogoutReasonUser)
	s.logger.Info().Msg("logged out")
}

// CheckAuth verifies the token with the backend. Without a token it answers
// false and sends nothing.
func (s *SessionService) CheckAuth(ctx context.Context) bool {
	token := s.Token()
	if token == "" {
		return false
	}

	s.begin()
	defer s.end()

	err := s.client.Get(ctx, "/auth/check", nil, apiclient.WithoutUnauthorizedHook())
	if err != nil {
		reason := models.LogoutReasonInvalid
		if errors.Is(err, apiclient.ErrUnauthorized) {
			reason = models.LogoutReasonExpired
		}
		if s.clearSessionIf(token, reason) {
			s.logger.Info().Err(err).Str("reason", string(reason)).Msg("session check failed")
		}
		return false
	}
	return s.IsAuthenticated()
}

// FetchProfile re-reads the identity. Any failure clears the whole session:
// a token whose profile cannot be read is not trusted.
func (s *SessionService) FetchProfile(ctx context.Context) (*models.Admin, error) {
	token := s.Token()
	if token == "" {
		return nil, &OpError{Op: "profile", Message: msgProfileFailed, Err: ErrNotAuthenticated}
	}

	s.begin()
	defer s.end()

	admin, err := s.loadProfile(ctx, apiclient.WithoutUnauthorizedHook())
	if err != nil {
		reason := models.LogoutReasonInvalid
		if errors.Is(err, apiclient.ErrUnauthorized) {
			reason = models.LogoutReasonExpired
		}
		s.clearSessionIf(token, reason)
		s.logger.Warn().Err(err).Msg("profile fetch failed, session cleared")
		return nil, &OpError{Op: "profile", Message: msgProfileFailed, Err: err}
	}

	s.mu.Lock()
	if s.token != token {
		// A logout or new login won the race; this profile is stale
		s.mu.Unlock()
		return nil, &OpError{Op: "profile", Message: msgProfileFailed, Err: ErrNotAuthenticated}
	}
	s.admin = admin
	s.version++
	s.mu.Unlock()
	s.persist()

	return copyAdmin(admin), nil
}

// loadProfile accepts both a bare identity and {"admin": {...}}
func (s *SessionService) loadProfile(ctx context.Context, opts ...apiclient.RequestOption) (*models.Admin, error) {
	var raw json.RawMessage
	if err := s.client.Get(ctx, "/auth/me", &raw, opts...); err != nil {
		return nil, err
	}

	var wrapped struct {
		Admin *models.Admin `json:"admin"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Admin.Valid() {
		return wrapped.Admin, nil
	}

	var admin models.Admin
	if err := json.Unmarshal(raw, &admin); err != nil || !admin.Valid() {
		return nil, fmt.Errorf("%w: profile without identity", apiclient.ErrMalformedResponse)
	}
	return &admin, nil
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePassword changes the signed-in admin's password
func (s *SessionService) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	return s.simpleCall(ctx, "change_password", msgChangePasswordFailed, func(ctx context.Context) error {
		return s.client.Put(ctx, "/auth/change-password", changePasswordRequest{
			CurrentPassword: currentPassword,
			NewPassword:     newPassword,
		}, nil)
	})
}

// ForgotPassword asks the backend to send a reset link
func (s *SessionService) ForgotPassword(ctx context.Context, email string) error {
	return s.simpleCall(ctx, "forgot_password", msgForgotPasswordFailed, func(ctx context.Context) error {
		return s.client.Post(ctx, "/auth/forgot-password", map[string]string{"email": email}, nil, apiclient.Anonymous())
	})
}

// ResetPassword sets a new password using a reset token from the emailed link
func (s *SessionService) ResetPassword(ctx context.Context, resetToken, password string) error {
	return s.simpleCall(ctx, "reset_password", msgResetPasswordFailed, func(ctx context.Context) error {
		path := "/auth/reset-password/" + url.PathEscape(resetToken)
		return s.client.Post(ctx, path, map[string]string{"password": password}, nil, apiclient.Anonymous())
	})
}

// simpleCall runs a request that only manages the loading/error flags
func (s *SessionService) simpleCall(ctx context.Context, op, fallback string, call func(context.Context) error) error {
	s.mu.Lock()
	s.inFlight++
	s.errMsg = ""
	s.mu.Unlock()
	defer s.end()

	if err := call(ctx); err != nil {
		opErr := newOpError(op, fallback, err)
		s.setError(opErr.Message)
		s.logger.Info().Err(err).Str("op", op).Msg("session operation failed")
		return opErr
	}
	return nil
}

func (s *SessionService) begin() {
	s.mu.Lock()
	s.inFlight++
	s.mu.Unlock()
}

func (s *SessionService) end() {
	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()
}

func (s *SessionService) setError(msg string) {
	s.mu.Lock()
	s.errMsg = msg
	s.mu.Unlock()
}

// setSession installs identity and token together
func (s *SessionService) setSession(admin *models.Admin, token string) {
	s.mu.Lock()
	was := s.authenticatedLocked()
	prevToken := s.token
	s.admin = copyAdmin(admin)
	s.token = token
	s.errMsg = ""
	s.reason = models.LogoutReasonNone
	s.version++
	now := s.authenticatedLocked()
	s.mu.Unlock()

	s.persist()
	// A new token is a new session even when one was already signed in
	if was != now || prevToken != token {
		s.notify(now)
	}
}

// clearSession drops identity and token together
func (s *SessionService) clearSession(reason models.LogoutReason) {
	s.mu.Lock()
	was := s.authenticatedLocked()
	s.admin = nil
	s.token = ""
	s.reason = reason
	s.version++
	s.mu.Unlock()

	s.persist()
	if was {
		s.notify(false)
	}
}

// clearSessionIf clears only while token is still the current one, so a late
// failure for an old token cannot end a newer session. Reports whether it cleared.
func (s *SessionService) clearSessionIf(token string, reason models.LogoutReason) bool {
	s.mu.Lock()
	if token == "" || s.token != token {
		s.mu.Unlock()
		return false
	}
	was := s.authenticatedLocked()
	s.admin = nil
	s.token = ""
	s.reason = reason
	s.version++
	s.mu.Unlock()

	s.persist()
	if was {
		s.notify(false)
	}
	return true
}

// persist writes the durable fields. Versions keep a slow older write from
// overwriting a newer one.
func (s *SessionService) persist() {
	s.mu.RLock()
	version := s.version
	doc := models.PersistedSession{
		Admin:           copyAdmin(s.admin),
		Token:           s.token,
		IsAuthenticated: s.authenticatedLocked(),
	}
	s.mu.RUnlock()

	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if version <= s.persistedVersion {
		return
	}

	data, err := json.Marshal(doc)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode session")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.store.Save(ctx, s.cfg.StorageKey, data); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist session")
		return
	}
	s.persistedVersion = version
}

func (s *SessionService) notify(authenticated bool) {
	s.listenersMu.Lock()
	listeners := make([]func(bool), len(s.listeners))
	copy(listeners, s.listeners)
	s.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(authenticated)
	}
}

func copyAdmin(a *models.Admin) *models.Admin {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

// tokenExpiry reads exp from a JWT without verifying it. Opaque tokens
// have no expiry to show.
func tokenExpiry(token string) *time.Time {
	if token == "" {
		return nil
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil || claims.ExpiresAt == nil {
		return nil
	}
	exp := claims.ExpiresAt.Time
	return &exp
}
