package devbackend

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/khabaroff/shop-admin-console/src/models"
	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned when email or password do not match
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAdminNotFound is returned when no admin matches
	ErrAdminNotFound = errors.New("admin not found")
	// ErrAdminExists is returned when the email is already registered
	ErrAdminExists = errors.New("admin already exists")
	// ErrWeakPassword is returned for passwords under the minimum length
	ErrWeakPassword = errors.New("password must be at least 8 characters")
	// ErrResetTokenInvalid is returned for unknown, used or expired reset tokens
	ErrResetTokenInvalid = errors.New("invalid or expired reset token")
	// ErrNotificationNotFound is returned when no notification matches
	ErrNotificationNotFound = errors.New("notification not found")
)

const minPasswordLength = 8

// Account is an admin operator with a hashed password
type Account struct {
	ID           uuid.UUID
	Username     string
	Email        string
	Role         string
	PasswordHash string
	CreatedAt    time.Time
	LastLogin    *time.Time
}

// Public returns the identity the API exposes
func (a *Account) Public() *models.Admin {
	return &models.Admin{
		ID:       a.ID.String(),
		Username: a.Username,
		Email:    a.Email,
		Role:     a.Role,
	}
}

type resetToken struct {
	email     string
	expiresAt time.Time
}

// Store holds the development backend state in memory
type Store struct {
	mu            sync.RWMutex
	admins        map[string]*Account // by lower-cased email
	revoked       map[string]time.Time
	resets        map[string]resetToken
	notifications []*models.Notification

	entropy  *ulid.MonotonicEntropy
	resetTTL time.Duration
	now      func() time.Time
}

// NewStore creates an empty store. Reset tokens live for resetTTL.
func NewStore(resetTTL time.Duration) *Store {
	if resetTTL <= 0 {
		resetTTL = time.Hour
	}
	return &Store{
		admins:   make(map[string]*Account),
		revoked:  make(map[string]time.Time),
		resets:   make(map[string]resetToken),
		entropy:  ulid.Monotonic(rand.Reader, 0),
		resetTTL: resetTTL,
		now:      time.Now,
	}
}

// CreateAdmin creates a new admin with a bcrypt-hashed password
func (s *Store) CreateAdmin(username, email, password, role string) (*Account, error) {
	email = normalizeEmail(email)
	if email == "" || len(username) < 1 || len(username) > 255 {
		return nil, errors.New("username and email are required")
	}
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.admins[email]; exists {
		return nil, ErrAdminExists
	}
	admin := &Account{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		Role:         role,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}
	s.admins[email] = admin
	return admin, nil
}

// HasAdmins reports whether any admin exists
func (s *Store) HasAdmins() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.admins) > 0
}

// Authenticate verifies email and password and records the login
func (s *Store) Authenticate(email, password string) (*Account, error) {
	s.mu.RLock()
	admin, ok := s.admins[normalizeEmail(email)]
	var hash string
	if ok {
		hash = admin.PasswordHash
	}
	s.mu.RUnlock()
	if !ok {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	s.mu.Lock()
	now := s.now()
	admin.LastLogin = &now
	s.mu.Unlock()
	return admin, nil
}

// AdminByID looks an admin up by id
func (s *Store) AdminByID(id string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, admin := range s.admins {
		if admin.ID.String() == id {
			return admin, nil
		}
	}
	return nil, ErrAdminNotFound
}

// AdminByEmail looks an admin up by email
func (s *Store) AdminByEmail(email string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if admin, ok := s.admins[normalizeEmail(email)]; ok {
		return admin, nil
	}
	return nil, ErrAdminNotFound
}

// ChangePassword replaces the password after checking the current one
func (s *Store) ChangePassword(id, current, next string) error {
	admin, err := s.AdminByID(id)
	if err != nil {
		return err
	}
	s.mu.RLock()
	hash := admin.PasswordHash
	s.mu.RUnlock()
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(current)); err != nil {
		return ErrInvalidCredentials
	}
	return s.setPassword(admin, next)
}

func (s *Store) setPassword(admin *Account, password string) error {
	if len(password) < minPasswordLength {
		return ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	s.mu.Lock()
	admin.PasswordHash = string(hash)
	s.mu.Unlock()
	return nil
}

// Revoke marks a token id as logged out until it would have expired anyway
func (s *Store) Revoke(tokenID string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[tokenID] = expiresAt
}

// IsRevoked reports whether tokenID was logged out
func (s *Store) IsRevoked(tokenID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.revoked[tokenID]
	return ok
}

// IssueResetToken creates a single-use reset token for email
func (s *Store) IssueResetToken(email string) (string, time.Time, error) {
	admin, err := s.AdminByEmail(email)
	if err != nil {
		return "", time.Time{}, err
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate reset token: %w", err)
	}
	token := hex.EncodeToString(raw)

	s.mu.Lock()
	defer s.mu.Unlock()
	expiresAt := s.now().Add(s.resetTTL)
	s.resets[token] = resetToken{email: admin.Email, expiresAt: expiresAt}
	return token, expiresAt, nil
}

// ResetPassword consumes token and sets password. The token is spent even
// when the new password is rejected.
func (s *Store) ResetPassword(token, password string) error {
	s.mu.Lock()
	rt, ok := s.resets[token]
	delete(s.resets, token)
	now := s.now()
	s.mu.Unlock()

	if !ok || now.After(rt.expiresAt) {
		return ErrResetTokenInvalid
	}
	admin, err := s.AdminByEmail(rt.email)
	if err != nil {
		return ErrResetTokenInvalid
	}
	return s.setPassword(admin, password)
}

// Prune drops expired reset tokens and revocations, returning how many went
func (s *Store) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for token, rt := range s.resets {
		if now.After(rt.expiresAt) {
			delete(s.resets, token)
			n++
		}
	}
	for id, exp := range s.revoked {
		if now.After(exp) {
			delete(s.revoked, id)
			n++
		}
	}
	return n
}

// AddNotification stores a new unread notification with a ULID id
func (s *Store) AddNotification(typ models.NotificationType, message, target string) *models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := &models.Notification{
		ID:        ulid.MustNew(ulid.Timestamp(now), s.entropy).String(),
		Type:      typ,
		Target:    target,
		Message:   message,
		CreatedAt: now.UTC(),
	}
	s.notifications = append(s.notifications, n)
	return n
}

// Notifications returns all notifications, newest first
func (s *Store) Notifications() []models.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Notification, len(s.notifications))
	for i, n := range s.notifications {
		out[i] = *n
	}
	// monotonic ULIDs sort by creation order
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

// MarkRead marks one notification read
func (s *Store) MarkRead(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notifications {
		if n.ID == id {
			n.Read = true
			return nil
		}
	}
	return ErrNotificationNotFound
}

// MarkAllRead marks every notification read and returns how many changed
func (s *Store) MarkAllRead() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := 0
	for _, n := range s.notifications {
		if !n.Read {
			n.Read = true
			changed++
		}
	}
	return changed
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
