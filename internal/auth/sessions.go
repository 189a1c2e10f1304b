package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/formloom/formloom/internal/cache"
)

// SessionStore tracks the current refresh token per user so refresh
// tokens can be rotated and revoked before their JWT expiry. One key per
// user means a new login supersedes the previous session's refresh token.
type SessionStore struct {
	store cache.Store
	ttl   time.Duration
}

func NewSessionStore(store cache.Store, ttl time.Duration) *SessionStore {
	return &SessionStore{store: store, ttl: ttl}
}

func sessionKey(userID uuid.UUID) string {
	return fmt.Sprintf("refresh:%s", userID)
}

// Store records refreshToken as the user's current session. The entry
// expires together with the token itself.
func (s *SessionStore) Store(ctx context.Context, userID uuid.UUID, refreshToken string) error {
	return s.store.Set(ctx, sessionKey(userID), refreshToken, s.ttl)
}

// Fetch returns the user's current refresh token. found is false when no
// session exists (logged out, revoked, or expired).
func (s *SessionStore) Fetch(ctx context.Context, userID uuid.UUID) (string, bool, error) {
	return s.store.Get(ctx, sessionKey(userID))
}

// Revoke drops the user's session. Their refresh token stops working
// even though the JWT itself has not expired.
func (s *SessionStore) Revoke(ctx context.Context, userID uuid.UUID) error {
	return s.store.Delete(ctx, sessionKey(userID))
}
