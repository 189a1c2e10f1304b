package auth_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formloom/formloom/internal/auth"
)

func newTestJWT() *auth.JWTService {
	return auth.NewJWTService("test-secret-key-for-testing", time.Hour, 720*time.Hour)
}

func TestJWTService_GenerateAndValidate(t *testing.T) {
	svc := newTestJWT()
	userID := uuid.New()
	workspaceID := uuid.New()

	token, err := svc.GenerateToken(userID, workspaceID, "ada@example.com", "owner", auth.TokenKindAccess)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token, auth.TokenKindAccess)
	require.NoError(t, err)

	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, workspaceID, claims.WorkspaceID)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Equal(t, "owner", claims.Role)
	assert.Equal(t, auth.TokenKindAccess, claims.Kind)
	assert.Equal(t, userID.String(), claims.Subject)
}

func TestJWTService_GeneratePair(t *testing.T) {
	svc := newTestJWT()
	userID := uuid.New()
	workspaceID := uuid.New()

	pair, err := svc.GeneratePair(userID, workspaceID, "ada@example.com", "editor")
	require.NoError(t, err)

	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	assert.Equal(t, int64(3600), pair.ExpiresIn)

	access, err := svc.ValidateToken(pair.AccessToken, auth.TokenKindAccess)
	require.NoError(t, err)
	assert.Equal(t, auth.TokenKindAccess, access.Kind)

	refresh, err := svc.ValidateToken(pair.RefreshToken, auth.TokenKindRefresh)
	require.NoError(t, err)
	assert.Equal(t, auth.TokenKindRefresh, refresh.Kind)

	// Refresh outlives access.
	assert.True(t, refresh.ExpiresAt.After(access.ExpiresAt.Time))
}

func TestJWTService_KindMismatch(t *testing.T) {
	svc := newTestJWT()
	pair, err := svc.GeneratePair(uuid.New(), uuid.New(), "ada@example.com", "owner")
	require.NoError(t, err)

	t.Run("refresh token rejected as access", func(t *testing.T) {
		_, err := svc.ValidateToken(pair.RefreshToken, auth.TokenKindAccess)
		assert.ErrorIs(t, err, auth.ErrWrongTokenKind)
	})

	t.Run("access token rejected as refresh", func(t *testing.T) {
		_, err := svc.ValidateToken(pair.AccessToken, auth.TokenKindRefresh)
		assert.ErrorIs(t, err, auth.ErrWrongTokenKind)
	})
}

func TestJWTService_ExpiredToken(t *testing.T) {
	svc := auth.NewJWTService("test-secret-key-for-testing", -time.Minute, 720*time.Hour)

	token, err := svc.GenerateToken(uuid.New(), uuid.New(), "ada@example.com", "owner", auth.TokenKindAccess)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token, auth.TokenKindAccess)
	assert.ErrorIs(t, err, auth.ErrExpiredToken)
}

func TestJWTService_WrongSecret(t *testing.T) {
	svc := newTestJWT()
	other := auth.NewJWTService("a-completely-different-secret", time.Hour, 720*time.Hour)

	token, err := svc.GenerateToken(uuid.New(), uuid.New(), "ada@example.com", "owner", auth.TokenKindAccess)
	require.NoError(t, err)

	_, err = other.ValidateToken(token, auth.TokenKindAccess)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestJWTService_MalformedToken(t *testing.T) {
	svc := newTestJWT()

	for _, tok := range []string{"", "garbage", "a.b.c"} {
		_, err := svc.ValidateToken(tok, auth.TokenKindAccess)
		assert.ErrorIs(t, err, auth.ErrInvalidToken, "token %q", tok)
	}
}
