//go:build ignore

package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/formloom/formloom/internal/auth"
	"github.com/formloom/formloom/internal/cache"
	"github.com/formloom/formloom/internal/database"
	"github.com/formloom/formloom/internal/database/models"
	"github.com/formloom/formloom/internal/forms"
	"github.com/formloom/formloom/pkg/config"
	"github.com/formloom/formloom/pkg/util"
)

// Seeds a workspace owner and a published demo form for local
// development. Run with: go run scripts/seed.go
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Server.Env)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessTTL(), cfg.JWT.RefreshTTL())
	store := cache.NewMemoryStore()
	sessions := auth.NewSessionStore(store, cfg.JWT.RefreshTTL())
	onetime := auth.NewOneTimeTokens(store)
	authService := auth.NewService(db, jwtService, sessions, onetime, nil, logger)

	email := os.Getenv("OWNER_EMAIL")
	password := os.Getenv("OWNER_PASSWORD")
	name := os.Getenv("OWNER_NAME")

	if email == "" {
		email = "owner@example.com"
	}
	if password == "" {
		password = "Owner123!"
	}
	if name == "" {
		name = "Owner"
	}

	ctx := context.Background()

	resp, err := authService.Register(ctx, auth.RegisterInput{
		Email:         email,
		Password:      password,
		Name:          name,
		WorkspaceName: "Demo Workspace",
	})
	if err != nil {
		if err == auth.ErrUserExists {
			fmt.Printf("Owner already exists: %s\n", email)
			return
		}
		log.Fatalf("failed to create owner: %v", err)
	}

	// Seeded accounts skip the verification mail loop.
	if err := db.Model(resp.User).Update("email_verified", true).Error; err != nil {
		log.Fatalf("failed to verify owner: %v", err)
	}

	formService := forms.NewService(db)
	form, err := formService.Create(ctx, resp.Workspace.ID, forms.CreateInput{
		Title:       "Contact Us",
		Description: "Demo contact form",
		Fields: models.JSON(`[
			{"key":"name","type":"text","label":"Name","required":true},
			{"key":"email","type":"email","label":"Email","required":true},
			{"key":"message","type":"textarea","label":"Message"}
		]`),
	})
	if err != nil {
		log.Fatalf("failed to create demo form: %v", err)
	}
	if _, err := formService.Publish(ctx, resp.Workspace.ID, form.ID); err != nil {
		log.Fatalf("failed to publish demo form: %v", err)
	}

	fmt.Printf("Owner created successfully!\n")
	fmt.Printf("Email: %s\n", resp.User.Email)
	fmt.Printf("Workspace: %s\n", resp.Workspace.Name)
	fmt.Printf("Demo form: %s (%s)\n", form.Title, form.ID)
	fmt.Printf("Access token: %s\n", resp.Tokens.AccessToken)
}
