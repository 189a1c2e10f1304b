package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/formloom/formloom/internal/database/models"
)

// Authenticator defines the interface for user authentication operations.
type Authenticator interface {
	Register(ctx context.Context, input RegisterInput) (*AuthResponse, error)
	Login(ctx context.Context, input LoginInput) (*AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, userID uuid.UUID) error
	SwitchWorkspace(ctx context.Context, userID, workspaceID uuid.UUID) (*AuthResponse, error)
	VerifyEmail(ctx context.Context, token string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// TokenService defines the interface for JWT token operations.
type TokenService interface {
	GenerateToken(userID, workspaceID uuid.UUID, email, role string, kind TokenKind) (string, error)
	GeneratePair(userID, workspaceID uuid.UUID, email, role string) (*TokenPair, error)
	ValidateToken(tokenString string, kind TokenKind) (*Claims, error)
}

// Compile-time interface satisfaction checks
var (
	_ Authenticator = (*Service)(nil)
	_ TokenService  = (*JWTService)(nil)
)
