package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"ticketgate/internal/config"
	"ticketgate/internal/database"
	"ticketgate/internal/logger"
	"ticketgate/internal/middleware"
	"ticketgate/internal/models"
	"ticketgate/internal/repository"

	"github.com/spf13/pflag"
)

var (
	email       = pflag.String("email", "", "login of the new account")
	displayName = pflag.String("name", "", "display name")
	password    = pflag.String("password", "", "password, read from USER_PASSWORD when empty")
	inactive    = pflag.Bool("inactive", false, "create the account disabled")
	dryRun      = pflag.Bool("dry-run", false, "validate input without writing")
)

func main() {
	pflag.Parse()

	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg); err != nil {
		slog.Error("Failed to create user", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	login := strings.TrimSpace(*email)
	if login == "" || !strings.Contains(login, "@") {
		return fmt.Errorf("--email must be an email address")
	}

	secret := *password
	if secret == "" {
		secret = os.Getenv("USER_PASSWORD")
	}
	hash, err := middleware.HashPassword(secret)
	if err != nil {
		return err
	}

	user := &models.User{
		Email:        login,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(*displayName),
		IsActive:     !*inactive,
	}

	if *dryRun {
		slog.Info("Dry run, user not created", "email", user.Email, "active", user.IsActive)
		return nil
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	users := repository.NewUserRepository(db)
	existing, err := users.GetByEmail(ctx, user.Email)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("user %s already exists", user.Email)
	}

	if err := users.Create(ctx, user); err != nil {
		return err
	}

	slog.Info("User created", "user_id", user.ID, "email", user.Email, "active", user.IsActive)
	return nil
}
