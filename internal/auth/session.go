package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// ErrUserRequired is returned when a session is requested without an account.
var ErrUserRequired = errors.New("user id is required")

const (
	// Accounts re-authenticate after a week regardless of activity.
	defaultSessionLifetime = 7 * 24 * time.Hour
	defaultTokenBytes      = 32
)

// SessionStore persists issued tokens. Implementations index by the token
// value they are handed; the Postgres store hashes it first so raw tokens
// never reach the database.
type SessionStore interface {
	Save(token, userID string, expiresAt, absoluteExpiresAt time.Time) error
	Get(token string) (SessionRecord, bool, error)
	Delete(token string) error
	PurgeExpired(now time.Time) error
}

// SessionRecord is one stored session: who it belongs to, when it goes idle,
// and the hard deadline it can never slide past.
type SessionRecord struct {
	Token             string
	UserID            string
	ExpiresAt         time.Time
	AbsoluteExpiresAt time.Time
}

// SessionOption configures a SessionManager.
type SessionOption func(*SessionManager)

// WithStore selects the backing store. Without it sessions live in memory,
// which is fine for development and lost on restart.
func WithStore(store SessionStore) SessionOption {
	return func(m *SessionManager) {
		if store != nil {
			m.store = store
		}
	}
}

// WithTokenLength overrides the number of random bytes behind each token.
func WithTokenLength(length int) SessionOption {
	return func(m *SessionManager) {
		if length > 0 {
			m.tokenBytes = length
		}
	}
}

// WithIdleTimeout expires sessions that see no requests for the given
// duration. Activity slides the expiry forward, never past the absolute
// lifetime.
func WithIdleTimeout(timeout time.Duration) SessionOption {
	return func(m *SessionManager) {
		if timeout > 0 {
			m.idleTimeout = timeout
		}
	}
}

// SessionManager issues and validates the tokens carried by the
// vidpress_session cookie and the Authorization header.
type SessionManager struct {
	store       SessionStore
	lifetime    time.Duration
	idleTimeout time.Duration
	tokenBytes  int
	newToken    func(int) (string, error)
	now         func() time.Time
}

// NewSessionManager builds a manager whose sessions last for the given
// lifetime. A non-positive lifetime selects the one-week default.
func NewSessionManager(lifetime time.Duration, opts ...SessionOption) *SessionManager {
	if lifetime <= 0 {
		lifetime = defaultSessionLifetime
	}
	m := &SessionManager{
		lifetime:   lifetime,
		tokenBytes: defaultTokenBytes,
		newToken:   generateToken,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if m.store == nil {
		m.store = NewMemorySessionStore()
	}
	return m
}

// Create opens a session for the user and returns the token with its expiry.
func (m *SessionManager) Create(userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, ErrUserRequired
	}
	token, err := m.newToken(m.tokenBytes)
	if err != nil {
		return "", time.Time{}, err
	}
	now := m.now()
	deadline := now.Add(m.lifetime)
	expiresAt := deadline
	if m.idleTimeout > 0 {
		if idle := now.Add(m.idleTimeout); idle.Before(deadline) {
			expiresAt = idle
		}
	}
	if err := m.store.Save(token, userID, expiresAt.UTC(), deadline.UTC()); err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Validate resolves a token to its user. A valid lookup under an idle timeout
// slides the expiry forward; an expired token is deleted on sight.
func (m *SessionManager) Validate(token string) (string, time.Time, bool, error) {
	if token == "" {
		return "", time.Time{}, false, nil
	}
	record, ok, err := m.store.Get(token)
	if err != nil {
		return "", time.Time{}, false, err
	}
	if !ok {
		return "", time.Time{}, false, nil
	}
	now := m.now()
	deadline := record.AbsoluteExpiresAt
	if deadline.IsZero() {
		deadline = record.ExpiresAt
	}
	if now.After(record.ExpiresAt) || now.After(deadline) {
		_ = m.store.Delete(token)
		return "", time.Time{}, false, nil
	}
	expiresAt := record.ExpiresAt
	if m.idleTimeout > 0 {
		slid := now.Add(m.idleTimeout)
		if slid.After(deadline) {
			slid = deadline
		}
		if slid.After(expiresAt) {
			if err := m.store.Save(record.Token, record.UserID, slid.UTC(), deadline.UTC()); err != nil {
				return "", time.Time{}, false, err
			}
			expiresAt = slid
		}
	}
	return record.UserID, expiresAt, true, nil
}

// Revoke deletes the session. Revoking an unknown token is a no-op.
func (m *SessionManager) Revoke(token string) error {
	if token == "" {
		return nil
	}
	return m.store.Delete(token)
}

// PurgeExpired drops every session past its expiry. The purge worker in
// cmd/server calls this on an interval.
func (m *SessionManager) PurgeExpired() error {
	return m.store.PurgeExpired(m.now())
}

// Ping reports store reachability for the health endpoint. Stores without a
// ping, such as the in-memory one, always pass.
func (m *SessionManager) Ping(ctx context.Context) error {
	if m == nil || m.store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if pinger, ok := m.store.(interface{ Ping(context.Context) error }); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

func generateToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
