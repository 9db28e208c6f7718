package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"accounts/backend/internal/config"
	domain "accounts/backend/internal/domain/account"
	"accounts/backend/internal/httpserver"
	"accounts/backend/internal/infrastructure/email"
	"accounts/backend/internal/infrastructure/memory"
	"accounts/backend/internal/infrastructure/password"
	"accounts/backend/internal/infrastructure/postgres"
	"accounts/backend/internal/infrastructure/token"
	"accounts/backend/internal/logger"
	accountusecase "accounts/backend/internal/usecase/account"
)

func main() {
	if err := run(); err != nil {
		logger.Log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// run owns every resource so deferred cleanup happens before main exits.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Initialize(cfg.LogLevel, strings.EqualFold(cfg.LogFormat, "json"))

	rootCtx := context.Background()
	users, closeStore, err := storeOpener(rootCtx, cfg)
	if err != nil {
		return fmt.Errorf("open %s credential store: %w", cfg.StorageDriver, err)
	}
	defer closeStore()

	notifier, err := email.New(email.Settings{
		Provider:       cfg.Email.Provider,
		From:           cfg.Email.From,
		FromName:       cfg.Email.FromName,
		SMTPHost:       cfg.Email.SMTPHost,
		SMTPPort:       cfg.Email.SMTPPort,
		SMTPUsername:   cfg.Email.SMTPUsername,
		SMTPPassword:   cfg.Email.SMTPPassword,
		SendGridAPIKey: cfg.Email.SendGridAPIKey,
		Timeout:        cfg.Email.Timeout,
	})
	if err != nil {
		return fmt.Errorf("configure email: %w", err)
	}

	accountService, err := accountusecase.NewService(
		users,
		password.NewHasher(cfg.BcryptCost),
		token.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer),
		token.NewConfirmationCodec(users, cfg.ConfirmationTokenTTL),
		token.NewPasswordResetCodec(users, cfg.PasswordResetTokenTTL),
		notifier,
		accountusecase.Options{
			SessionTTL:            cfg.JWTExpiry,
			EmailTimeout:          cfg.Email.Timeout,
			RequireConfirmedEmail: cfg.RequireConfirmedEmail,
			Mail: accountusecase.MailSettings{
				ClientURL:         cfg.ClientURL,
				ConfirmEmailPath:  cfg.ConfirmEmailPath,
				ResetPasswordPath: cfg.ResetPasswordPath,
				ApplicationName:   cfg.ApplicationName,
			},
		},
	)
	if err != nil {
		return fmt.Errorf("build account service: %w", err)
	}

	server := httpserver.NewServer(cfg, accountService)
	logger.Log.Info("HTTP server listening", "addr", server.Addr(), "storage", cfg.StorageDriver, "email", cfg.Email.Provider)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			return
		}
		logger.Log.Info("HTTP server closed")
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var runErr error
	select {
	case <-shutdownCtx.Done():
	case runErr = <-serverErr:
		logger.Log.Error("server error", "error", runErr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Log.Error("graceful shutdown failed", "error", err)
	} else {
		logger.Log.Info("graceful shutdown completed")
	}
	return runErr
}

// storeOpener is swapped in tests.
var storeOpener = openStore

// openStore returns the credential store selected by STORAGE_DRIVER and a release func.
func openStore(ctx context.Context, cfg config.Config) (domain.CredentialStore, func(), error) {
	if cfg.StorageDriver == "memory" {
		logger.Log.Warn("using in-memory credential store; accounts are lost on restart")
		return memory.NewUserRepository(), func() {}, nil
	}

	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return postgres.NewUserRepository(db.Pool), db.Close, nil
}
