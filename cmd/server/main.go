package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/sumire/studenthub/internal/config"
	"github.com/sumire/studenthub/internal/handler"
	"github.com/sumire/studenthub/internal/mailer"
	"github.com/sumire/studenthub/internal/repository"
	"github.com/sumire/studenthub/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := sqlx.Connect("pgx", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	slog.Info("database connected")

	store := repository.NewStore(db)
	mail := mailer.NewBrevoClient(cfg.BrevoAPIKey, cfg.MailSenderEmail, cfg.MailSenderName)

	authSvc := service.NewAuthService(store, mail, cfg.OTPTTL)
	oauthSvc := service.NewOAuthService(store, service.OAuthConfig{
		GitHubClientID:     cfg.GitHubClientID,
		GitHubClientSecret: cfg.GitHubClientSecret,
		GoogleClientID:     cfg.GoogleClientID,
		GoogleClientSecret: cfg.GoogleClientSecret,
		BaseURL:            cfg.BaseURL,
	})
	sessions := service.NewSessionManager(cfg.SessionSecret, cfg.SessionTTL)

	authHandler := handler.NewAuthHandler(authSvc, oauthSvc, sessions, cfg.FrontendURL)

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewAppValidator()
	e.HTTPErrorHandler = handler.HTTPErrorHandler

	e.Use(middleware.RequestID())
	e.Use(handler.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderAccept, echo.HeaderContentType},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	e.Use(handler.Session(sessions))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	e.POST("/auth/send-otp", authHandler.SendOTP)
	e.POST("/auth/verify-otp", authHandler.VerifyOTP)
	e.GET("/auth/github", authHandler.GitHubRedirect)
	e.GET("/auth/github/callback", authHandler.GitHubCallback)
	e.GET("/auth/google", authHandler.GoogleRedirect)
	e.GET("/auth/google/callback", authHandler.GoogleCallback)
	e.GET("/auth/me", authHandler.Me)
	e.POST("/auth/logout", authHandler.Logout)

	// TODO: blog, question, comment, tag and vote routes

	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 30 * time.Second
	e.Server.IdleTimeout = 60 * time.Second

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.Port)
		errCh <- e.Start(fmt.Sprintf(":%d", cfg.Port))
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
