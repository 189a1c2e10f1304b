package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/formloom/formloom/internal/auth"
	"github.com/formloom/formloom/internal/cache"
	"github.com/formloom/formloom/internal/database/models"
)

// SetupTestDB creates an in-memory SQLite database for testing
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	// Run migrations
	err = db.AutoMigrate(
		&models.User{},
		&models.Workspace{},
		&models.WorkspaceMember{},
		&models.Form{},
		&models.Submission{},
		&models.Webhook{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// CleanupTestDB closes the test database connection
func CleanupTestDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Logf("warning: failed to get sql.DB: %v", err)
		return
	}
	sqlDB.Close()
}

// SilentLogger returns a logger that discards everything.
func SilentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// CreateTestUser creates an active, verified user
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()

	hash, err := auth.HashPassword("testpassword123")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Base: models.Base{
			ID: uuid.New(),
		},
		Email:         "test-" + uuid.New().String()[:8] + "@example.com",
		PasswordHash:  hash,
		Name:          "Test User",
		IsActive:      true,
		EmailVerified: true,
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}

	return user
}

// CreateTestWorkspace creates a workspace
func CreateTestWorkspace(t *testing.T, db *gorm.DB) *models.Workspace {
	t.Helper()

	workspace := &models.Workspace{
		Base: models.Base{
			ID: uuid.New(),
		},
		Name: "Test Workspace",
		Slug: "test-workspace-" + uuid.New().String()[:8],
		Plan: "free",
	}

	if err := db.Create(workspace).Error; err != nil {
		t.Fatalf("failed to create test workspace: %v", err)
	}

	return workspace
}

// CreateTestMember links a user to a workspace with the given role
func CreateTestMember(t *testing.T, db *gorm.DB, userID, workspaceID uuid.UUID, role string) *models.WorkspaceMember {
	t.Helper()

	member := &models.WorkspaceMember{
		UserID:      userID,
		WorkspaceID: workspaceID,
		Role:        role,
	}

	if err := db.Create(member).Error; err != nil {
		t.Fatalf("failed to create test membership: %v", err)
	}

	return member
}

// CreateTestForm creates a form in the given workspace and status
func CreateTestForm(t *testing.T, db *gorm.DB, workspaceID uuid.UUID, status string) *models.Form {
	t.Helper()

	form := &models.Form{
		Base: models.Base{
			ID: uuid.New(),
		},
		WorkspaceID: workspaceID,
		Title:       "Test Form",
		Slug:        "test-form-" + uuid.New().String()[:8],
		Status:      status,
		Fields: models.JSON(`[
			{"key":"name","type":"text","label":"Name","required":true},
			{"key":"email","type":"email","label":"Email","required":true},
			{"key":"message","type":"textarea","label":"Message","required":false}
		]`),
	}

	if status == models.FormStatusPublished {
		now := time.Now()
		form.PublishedAt = &now
	}

	if err := db.Create(form).Error; err != nil {
		t.Fatalf("failed to create test form: %v", err)
	}

	return form
}

// CreateTestSubmission creates a submission at the given epoch-millis
// timestamp (0 means now)
func CreateTestSubmission(t *testing.T, db *gorm.DB, formID uuid.UUID, submittedAt int64) *models.Submission {
	t.Helper()

	submission := &models.Submission{
		ID:          uuid.New(),
		FormID:      formID,
		Payload:     models.JSON(`{"name":"Ada","email":"ada@example.com","message":"hello"}`),
		SubmittedAt: submittedAt,
		IPAddress:   "203.0.113.7",
		UserAgent:   "test-agent",
	}

	if err := db.Create(submission).Error; err != nil {
		t.Fatalf("failed to create test submission: %v", err)
	}

	return submission
}

// CreateTestJWTService creates a JWT service for testing
func CreateTestJWTService() *auth.JWTService {
	return auth.NewJWTService("test-secret-key-for-testing", time.Hour, 720*time.Hour)
}

// CreateTestAuthService wires an auth service against an in-memory
// cache, with no task enqueuer
func CreateTestAuthService(t *testing.T, db *gorm.DB) *auth.Service {
	t.Helper()

	jwtService := CreateTestJWTService()
	store := cache.NewMemoryStore()
	sessions := auth.NewSessionStore(store, 720*time.Hour)
	onetime := auth.NewOneTimeTokens(store)

	return auth.NewService(db, jwtService, sessions, onetime, nil, SilentLogger())
}

// GenerateTestToken generates a valid access token for the given user
// scoped to the workspace
func GenerateTestToken(t *testing.T, jwtService *auth.JWTService, user *models.User, workspaceID uuid.UUID, role string) string {
	t.Helper()

	token, err := jwtService.GenerateToken(user.ID, workspaceID, user.Email, role, auth.TokenKindAccess)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}

	return token
}

// AuthenticatedRequest creates an HTTP request with authentication
func AuthenticatedRequest(t *testing.T, method, path string, body interface{}, token string) *http.Request {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

// UnauthenticatedRequest creates an HTTP request without authentication
func UnauthenticatedRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	return AuthenticatedRequest(t, method, path, body, "")
}

// AssertStatus checks if the response has the expected status code
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if rr.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, rr.Code, rr.Body.String())
	}
}

// ParseJSONResponse parses the response body into the given struct
func ParseJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response body: %v. Body: %s", err, rr.Body.String())
	}
}

// TestContext creates a context with a timeout for tests
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestSetup holds all the common test dependencies
type TestSetup struct {
	DB         *gorm.DB
	JWTService *auth.JWTService
	Workspace  *models.Workspace
	User       *models.User
	Token      string
}

// NewTestContext creates a complete test setup with DB, workspace,
// owner user, and access token
func NewTestContext(t *testing.T) *TestSetup {
	t.Helper()

	db := SetupTestDB(t)
	jwtService := CreateTestJWTService()
	workspace := CreateTestWorkspace(t, db)
	user := CreateTestUser(t, db)
	CreateTestMember(t, db, user.ID, workspace.ID, models.RoleOwner)
	token := GenerateTestToken(t, jwtService, user, workspace.ID, models.RoleOwner)

	t.Cleanup(func() {
		CleanupTestDB(t, db)
	})

	return &TestSetup{
		DB:         db,
		JWTService: jwtService,
		Workspace:  workspace,
		User:       user,
		Token:      token,
	}
}
