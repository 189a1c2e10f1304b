package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"github.com/formloom/formloom/internal/database/models"
	"github.com/formloom/formloom/internal/tasks"
	"github.com/formloom/formloom/pkg/util"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveUser       = errors.New("user is inactive")
	ErrNoWorkspace        = errors.New("user has no workspace")
	ErrNotMember          = errors.New("user is not a member of this workspace")
	ErrSessionRevoked     = errors.New("session has been revoked")
)

type Service struct {
	db       *gorm.DB
	jwt      *JWTService
	sessions *SessionStore
	onetime  *OneTimeTokens
	enqueuer tasks.Enqueuer
	log      *slog.Logger
}

func NewService(db *gorm.DB, jwt *JWTService, sessions *SessionStore, onetime *OneTimeTokens, enqueuer tasks.Enqueuer, log *slog.Logger) *Service {
	return &Service{
		db:       db,
		jwt:      jwt,
		sessions: sessions,
		onetime:  onetime,
		enqueuer: enqueuer,
		log:      log,
	}
}

type RegisterInput struct {
	Email         string
	Password      string
	Name          string
	WorkspaceName string // optional; defaults to "<Name>'s Workspace"
}

type LoginInput struct {
	Email    string
	Password string
}

type AuthResponse struct {
	User      *models.User      `json:"user"`
	Workspace *models.Workspace `json:"workspace"`
	Role      string            `json:"role"`
	Tokens    *TokenPair        `json:"tokens"`
}

// Register creates the user together with their first workspace and an
// owner membership, all in one transaction. A verification mail is
// enqueued afterwards; its failure does not fail the signup.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))

	var existing models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error; err == nil {
		return nil, ErrUserExists
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	wsName := strings.TrimSpace(input.WorkspaceName)
	var slug string
	if wsName == "" {
		wsName = input.Name + "'s Workspace"
		slug = util.Slugify(input.Name) + "-workspace"
	} else {
		slug = util.Slugify(wsName)
	}

	var user models.User
	var workspace models.Workspace

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user = models.User{
			Email:        email,
			PasswordHash: hash,
			Name:         input.Name,
			IsActive:     true,
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}

		workspace = models.Workspace{
			Name: wsName,
			Slug: s.uniqueSlug(tx, slug),
		}
		if err := tx.Create(&workspace).Error; err != nil {
			return err
		}

		member := models.WorkspaceMember{
			UserID:      user.ID,
			WorkspaceID: workspace.ID,
			Role:        models.RoleOwner,
		}
		return tx.Create(&member).Error
	})
	if err != nil {
		return nil, err
	}

	pair, err := s.issuePair(ctx, &user, workspace.ID, models.RoleOwner)
	if err != nil {
		return nil, err
	}

	s.sendVerification(ctx, &user)

	return &AuthResponse{User: &user, Workspace: &workspace, Role: models.RoleOwner, Tokens: pair}, nil
}

// Login authenticates the user and scopes the token pair to their
// oldest workspace membership. Wrong email and wrong password are
// indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, input LoginInput) (*AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))

	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.IsActive {
		return nil, ErrInactiveUser
	}

	if !CheckPassword(input.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	member, err := s.firstMembership(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	pair, err := s.issuePair(ctx, &user, member.WorkspaceID, member.Role)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{User: &user, Workspace: member.Workspace, Role: member.Role, Tokens: pair}, nil
}

// Refresh rotates a refresh token: the presented token must be the
// user's current session, and the pair it returns replaces it. Session
// store read failures are tolerated so an unavailable cache does not
// lock everyone out.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.jwt.ValidateToken(refreshToken, TokenKindRefresh)
	if err != nil {
		return nil, err
	}

	current, found, err := s.sessions.Fetch(ctx, claims.UserID)
	if err != nil {
		s.log.Warn("session store unavailable, accepting refresh token on JWT validity alone",
			"user_id", claims.UserID, "error", err)
	} else if !found || current != refreshToken {
		return nil, ErrSessionRevoked
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, claims.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}

	// Memberships may have changed since the token was minted; re-read
	// the role rather than trusting the old claims.
	var member models.WorkspaceMember
	err = s.db.WithContext(ctx).
		Where("user_id = ? AND workspace_id = ?", user.ID, claims.WorkspaceID).
		First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotMember
		}
		return nil, err
	}

	return s.issuePair(ctx, &user, member.WorkspaceID, member.Role)
}

// Logout revokes the user's refresh session. Outstanding access tokens
// stay valid until they expire.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID) error {
	return s.sessions.Revoke(ctx, userID)
}

// SwitchWorkspace issues a token pair scoped to another workspace the
// user belongs to.
func (s *Service) SwitchWorkspace(ctx context.Context, userID, workspaceID uuid.UUID) (*AuthResponse, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	var member models.WorkspaceMember
	err := s.db.WithContext(ctx).
		Preload("Workspace").
		Where("user_id = ? AND workspace_id = ?", userID, workspaceID).
		First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotMember
		}
		return nil, err
	}

	pair, err := s.issuePair(ctx, &user, member.WorkspaceID, member.Role)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{User: &user, Workspace: member.Workspace, Role: member.Role, Tokens: pair}, nil
}

// VerifyEmail consumes a verification token and marks the user verified.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	userID, err := s.onetime.ConsumeVerification(ctx, token)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("email_verified", true).Error
}

// ForgotPassword issues a reset token and enqueues the reset mail. It
// succeeds for unknown addresses too, so it cannot be used to probe for
// accounts.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	token, err := s.onetime.CreateReset(ctx, user.ID)
	if err != nil {
		return err
	}

	s.enqueue(func() (*asynq.Task, error) {
		return tasks.NewEmailPasswordResetTask(tasks.EmailPasswordResetPayload{
			UserID: user.ID,
			Email:  user.Email,
			Name:   user.Name,
			Token:  token,
		})
	}, "email:password_reset", user.ID)

	return nil
}

// ResetPassword consumes a reset token, replaces the password, and
// revokes the user's refresh session.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	userID, err := s.onetime.ConsumeReset(ctx, token)
	if err != nil {
		return err
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	if err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("password_hash", hash).Error; err != nil {
		return err
	}

	if err := s.sessions.Revoke(ctx, userID); err != nil {
		s.log.Warn("failed to revoke session after password reset", "user_id", userID, "error", err)
	}

	return nil
}

func (s *Service) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// ResendVerification re-issues the verification mail for an
// unverified user.
func (s *Service) ResendVerification(ctx context.Context, userID uuid.UUID) error {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return nil
	}
	s.sendVerification(ctx, user)
	return nil
}

func (s *Service) issuePair(ctx context.Context, user *models.User, workspaceID uuid.UUID, role string) (*TokenPair, error) {
	pair, err := s.jwt.GeneratePair(user.ID, workspaceID, user.Email, role)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Store(ctx, user.ID, pair.RefreshToken); err != nil {
		s.log.Warn("failed to store refresh session", "user_id", user.ID, "error", err)
	}
	return pair, nil
}

func (s *Service) firstMembership(ctx context.Context, userID uuid.UUID) (*models.WorkspaceMember, error) {
	var member models.WorkspaceMember
	err := s.db.WithContext(ctx).
		Preload("Workspace").
		Where("user_id = ?", userID).
		Order("created_at ASC").
		First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoWorkspace
		}
		return nil, err
	}
	return &member, nil
}

func (s *Service) uniqueSlug(tx *gorm.DB, slug string) string {
	var count int64
	tx.Model(&models.Workspace{}).Where("slug = ?", slug).Count(&count)
	if count == 0 {
		return slug
	}
	return slug + "-" + uuid.New().String()[:8]
}

func (s *Service) sendVerification(ctx context.Context, user *models.User) {
	token, err := s.onetime.CreateVerification(ctx, user.ID)
	if err != nil {
		s.log.Warn("failed to create verification token", "user_id", user.ID, "error", err)
		return
	}

	s.enqueue(func() (*asynq.Task, error) {
		return tasks.NewEmailVerificationTask(tasks.EmailVerificationPayload{
			UserID: user.ID,
			Email:  user.Email,
			Name:   user.Name,
			Token:  token,
		})
	}, "email:verification", user.ID)
}

func (s *Service) enqueue(build func() (*asynq.Task, error), kind string, userID uuid.UUID) {
	if s.enqueuer == nil {
		return
	}
	task, err := build()
	if err != nil {
		s.log.Error("failed to build task", "type", kind, "user_id", userID, "error", err)
		return
	}
	if _, err := s.enqueuer.Enqueue(task); err != nil {
		s.log.Warn("failed to enqueue task", "type", kind, "user_id", userID, "error", err)
	}
}
