package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token has expired")
	ErrWrongTokenKind = errors.New("wrong token kind")
)

// TokenKind tags a JWT as access or refresh. Validation rejects a token
// presented as the wrong kind, so a refresh token can never authorize an
// API call and an access token can never mint new tokens.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

type Claims struct {
	UserID      uuid.UUID `json:"user_id"`
	WorkspaceID uuid.UUID `json:"workspace_id"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	Kind        TokenKind `json:"kind"`
	jwt.RegisteredClaims
}

// TokenPair is what login, signup, refresh, and workspace switch return.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"` // access token lifetime, seconds
}

type JWTService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewJWTService(secret string, accessTTL, refreshTTL time.Duration) *JWTService {
	return &JWTService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

func (s *JWTService) ttl(kind TokenKind) time.Duration {
	if kind == TokenKindRefresh {
		return s.refreshTTL
	}
	return s.accessTTL
}

func (s *JWTService) GenerateToken(userID, workspaceID uuid.UUID, email, role string, kind TokenKind) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:      userID,
		WorkspaceID: workspaceID,
		Email:       email,
		Role:        role,
		Kind:        kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl(kind))),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "formloom",
			Subject:   userID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// GeneratePair issues a fresh access + refresh token pair for the user
// scoped to the given workspace and role.
func (s *JWTService) GeneratePair(userID, workspaceID uuid.UUID, email, role string) (*TokenPair, error) {
	access, err := s.GenerateToken(userID, workspaceID, email, role, TokenKindAccess)
	if err != nil {
		return nil, err
	}
	refresh, err := s.GenerateToken(userID, workspaceID, email, role, TokenKindRefresh)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

// ValidateToken parses and verifies tokenString and checks it is of the
// expected kind. Tokens issued before kind tagging carry an empty kind
// and only pass as access tokens.
func (s *JWTService) ValidateToken(tokenString string, kind TokenKind) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	got := claims.Kind
	if got == "" {
		got = TokenKindAccess
	}
	if got != kind {
		return nil, ErrWrongTokenKind
	}

	return claims, nil
}

// RefreshTTL exposes the refresh token lifetime so the session store can
// expire its record together with the token.
func (s *JWTService) RefreshTTL() time.Duration {
	return s.refreshTTL
}
