// Package session issues and validates opaque authenticated session tokens.
//
// Tokens carry no claims; every decision goes through the store. Expiry is
// explicit: validation never extends a session and refresh never resurrects an
// expired one.
package session

import (
	"context"
	"strings"
	"time"

	"github.com/venuelink/venuelink/internal/platform/errors"
	"github.com/venuelink/venuelink/internal/platform/id"
	"github.com/venuelink/venuelink/internal/services/identity/storage"
)

// tokenBytes yields 256 bits of entropy per session token.
const tokenBytes = 32

// Manager issues, validates, refreshes, and revokes sessions.
type Manager struct {
	sessions storage.SessionStore
	users    storage.UserStore
	ttl      time.Duration

	clock          func() time.Time
	idGenerator    func() (string, error)
	tokenGenerator func() (string, error)
}

// NewManager wires a session manager over the given stores.
func NewManager(sessions storage.SessionStore, users storage.UserStore, cfg Config) *Manager {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 720 * time.Hour
	}
	return &Manager{
		sessions:       sessions,
		users:          users,
		ttl:            ttl,
		clock:          time.Now,
		idGenerator:    id.NewID,
		tokenGenerator: func() (string, error) { return id.NewToken(tokenBytes) },
	}
}

// Create opens a new session for an existing user.
func (m *Manager) Create(ctx context.Context, userID, ipAddress, userAgent string) (storage.Session, error) {
	if m == nil || m.sessions == nil || m.users == nil {
		return storage.Session{}, errors.New(errors.CodeUnknown, "session manager is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return storage.Session{}, errors.New(errors.CodeNotFound, "user id is required")
	}
	if _, err := m.users.GetUser(ctx, userID); err != nil {
		return storage.Session{}, err
	}

	sessionID, err := m.idGenerator()
	if err != nil {
		return storage.Session{}, errors.Wrap(errors.CodeUnknown, "generate session id", err)
	}
	token, err := m.tokenGenerator()
	if err != nil {
		return storage.Session{}, errors.Wrap(errors.CodeUnknown, "generate session token", err)
	}

	now := m.clock().UTC()
	session := storage.Session{
		ID:        sessionID,
		UserID:    userID,
		Token:     token,
		ExpiresAt: now.Add(m.ttl),
		IPAddress: strings.TrimSpace(ipAddress),
		UserAgent: strings.TrimSpace(userAgent),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.sessions.PutSession(ctx, session); err != nil {
		return storage.Session{}, err
	}
	return session, nil
}

// Validate resolves a token to its live session. Expired sessions fail with
// a session-expired code and are never silently extended.
func (m *Manager) Validate(ctx context.Context, token string) (storage.Session, error) {
	if m == nil || m.sessions == nil {
		return storage.Session{}, errors.New(errors.CodeUnknown, "session manager is not configured")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return storage.Session{}, errors.New(errors.CodeSessionTokenEmpty, "session token is required")
	}

	session, err := m.sessions.GetSessionByToken(ctx, token)
	if err != nil {
		return storage.Session{}, err
	}
	if !session.ExpiresAt.After(m.clock().UTC()) {
		return storage.Session{}, errors.New(errors.CodeSessionExpired, "session expired")
	}
	return session, nil
}

// Refresh extends a still-valid session by one TTL from now. Expired sessions
// cannot be refreshed back to life.
func (m *Manager) Refresh(ctx context.Context, token string) (storage.Session, error) {
	session, err := m.Validate(ctx, token)
	if err != nil {
		return storage.Session{}, err
	}

	now := m.clock().UTC()
	session.ExpiresAt = now.Add(m.ttl)
	session.UpdatedAt = now
	if err := m.sessions.PutSession(ctx, session); err != nil {
		return storage.Session{}, err
	}
	return session, nil
}

// Revoke deletes a session by token. Revoking an already-revoked token
// reports not-found so clients can treat repeats as settled.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if m == nil || m.sessions == nil {
		return errors.New(errors.CodeUnknown, "session manager is not configured")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New(errors.CodeSessionTokenEmpty, "session token is required")
	}
	return m.sessions.DeleteSessionByToken(ctx, token)
}
