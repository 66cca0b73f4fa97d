package models

import "time"

// PersistedSession is the durable part of the session. Loading and error
// flags are runtime-only and never written.
type PersistedSession struct {
	Admin           *Admin `json:"admin"`
	Token           string `json:"token"`
	IsAuthenticated bool   `json:"isAuthenticated"`
}

// SessionSnapshot is a point-in-time copy of the session for readers
type SessionSnapshot struct {
	Admin            *Admin       `json:"admin"`
	HasToken         bool         `json:"has_token"`
	IsAuthenticated  bool         `json:"is_authenticated"`
	IsLoading        bool         `json:"is_loading"`
	Error            string       `json:"error,omitempty"`
	State            SessionState `json:"state"`
	TokenExpiresAt   *time.Time   `json:"token_expires_at,omitempty"`
	LastLogoutReason LogoutReason `json:"last_logout_reason,omitempty"`
}
