package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/formloom/formloom/internal/cache"
	"github.com/formloom/formloom/pkg/crypto"
)

var ErrTokenNotFound = errors.New("token not found or already used")

const (
	verificationTTL = 24 * time.Hour
	resetTTL        = 1 * time.Hour

	onetimeTokenBytes = 32
)

// OneTimeTokens issues and consumes single-use email-verification and
// password-reset tokens. Tokens are opaque random strings; the cache maps
// them back to the user and enforces expiry.
type OneTimeTokens struct {
	store cache.Store
}

func NewOneTimeTokens(store cache.Store) *OneTimeTokens {
	return &OneTimeTokens{store: store}
}

func verifyKey(token string) string { return fmt.Sprintf("verify:%s", token) }
func resetKey(token string) string  { return fmt.Sprintf("reset:%s", token) }

// CreateVerification issues an email-verification token for userID.
func (o *OneTimeTokens) CreateVerification(ctx context.Context, userID uuid.UUID) (string, error) {
	return o.create(ctx, verifyKey, userID, verificationTTL)
}

// CreateReset issues a password-reset token for userID.
func (o *OneTimeTokens) CreateReset(ctx context.Context, userID uuid.UUID) (string, error) {
	return o.create(ctx, resetKey, userID, resetTTL)
}

func (o *OneTimeTokens) create(ctx context.Context, key func(string) string, userID uuid.UUID, ttl time.Duration) (string, error) {
	token, err := crypto.GenerateRandomString(onetimeTokenBytes)
	if err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	if err := o.store.Set(ctx, key(token), userID.String(), ttl); err != nil {
		return "", fmt.Errorf("storing token: %w", err)
	}
	return token, nil
}

// ConsumeVerification resolves and invalidates a verification token.
// A second consume of the same token fails with ErrTokenNotFound.
func (o *OneTimeTokens) ConsumeVerification(ctx context.Context, token string) (uuid.UUID, error) {
	return o.consume(ctx, verifyKey(token))
}

// ConsumeReset resolves and invalidates a password-reset token.
func (o *OneTimeTokens) ConsumeReset(ctx context.Context, token string) (uuid.UUID, error) {
	return o.consume(ctx, resetKey(token))
}

func (o *OneTimeTokens) consume(ctx context.Context, key string) (uuid.UUID, error) {
	val, found, err := o.store.Get(ctx, key)
	if err != nil {
		return uuid.Nil, fmt.Errorf("fetching token: %w", err)
	}
	if !found {
		return uuid.Nil, ErrTokenNotFound
	}

	userID, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parsing token owner: %w", err)
	}

	// Best effort: a failed delete leaves the token consumable again until
	// expiry, which is preferable to rejecting a valid one.
	_ = o.store.Delete(ctx, key)

	return userID, nil
}
