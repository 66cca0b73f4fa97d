package models

// SessionState is the coarse state of the console session
type SessionState string

const (
	// SessionAnonymous means no token is held
	SessionAnonymous SessionState = "anonymous"
	// SessionAuthenticating means a login is in flight and no token is held yet
	SessionAuthenticating SessionState = "authenticating"
	// SessionAuthenticated means token and admin identity are both present
	SessionAuthenticated SessionState = "authenticated"
)

// LogoutReason records why the session last went back to anonymous
type LogoutReason string

const (
	LogoutReasonNone LogoutReason = ""
	// LogoutReasonUser is an explicit logout by the operator
	LogoutReasonUser LogoutReason = "logout"
	// LogoutReasonExpired is a forced logout after the backend answered 401
	LogoutReasonExpired LogoutReason = "session_expired"
	// LogoutReasonInvalid is a failed session check or profile fetch
	LogoutReasonInvalid LogoutReason = "invalid_session"
)

// NotificationType is the open set of notification kinds sent by the backend
type NotificationType string

const (
	NotificationTypeOrder   NotificationType = "order"
	NotificationTypePayment NotificationType = "payment"
	NotificationTypeGeneric NotificationType = "generic"
)

// SessionStorageKey is the single namespaced key the session is persisted under
const SessionStorageKey = "admin-auth-storage"
