package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/sundayezeilo/qrhistory/internal/config"
	"github.com/sundayezeilo/qrhistory/internal/qrapi"
	"github.com/sundayezeilo/qrhistory/internal/qrsync"
	"github.com/sundayezeilo/qrhistory/internal/qrview"
	"github.com/sundayezeilo/qrhistory/internal/server"
)

// App holds the application dependencies and configuration.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Client     *qrapi.Client
	Controller qrsync.Controller
	Server     *server.Server
	Handler    *qrview.Handler
}

// New initializes and returns a new App instance with all dependencies wired up.
func New(ctx context.Context) (*App, error) {
	if err := loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := setupLogger(cfg.App.LogLevel)

	logger.Info("starting application",
		"env", cfg.App.Environment,
		"version", cfg.App.ServiceVersion,
	)

	return Build(ctx, cfg, logger)
}

// Build wires the application from an already loaded configuration.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	client, err := qrapi.New(qrapi.Config{
		BaseURL:        cfg.API.BaseURL,
		Timeout:        cfg.API.Timeout,
		ConnectTimeout: cfg.API.ConnectTimeout,
		MaxPages:       cfg.API.MaxPages,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create api client: %w", err)
	}

	strategy := qrsync.ReloadAfterCreate
	if !cfg.Sync.ReloadAfterCreate {
		strategy = qrsync.MergeAfterCreate
	}
	ctrl := qrsync.New(client, &qrsync.Config{
		SuccessTTL:     cfg.Sync.SuccessTTL,
		CreateStrategy: strategy,
		Logger:         logger,
	})

	presenter := qrview.NewPresenter(qrview.PresenterConfig{
		Images:         client,
		PreviewBaseURL: cfg.Preview.BaseURL,
		PreviewSize:    cfg.Preview.Size,
	})
	handler := qrview.NewHandler(qrview.HandlerConfig{
		Controller: ctrl,
		Presenter:  presenter,
		Images:     client,
		Logger:     logger,
	})

	srv := server.New(cfg, logger, handler)

	// The first load happens at startup. A failure is kept in the state as
	// last_error and the gateway still comes up.
	if err := ctrl.Refresh(ctx); err != nil {
		logger.Warn("initial refresh failed",
			"api_base_url", client.BaseURL(),
			"error", err,
		)
	}

	logger.Info("application initialized",
		"port", cfg.Server.Port,
		"api_base_url", client.BaseURL(),
		"records", len(ctrl.State().Records),
	)

	return &App{
		Config:     cfg,
		Logger:     logger,
		Client:     client,
		Controller: ctrl,
		Server:     srv,
		Handler:    handler,
	}, nil
}

// Start starts the application server.
func (a *App) Start(ctx context.Context) error {
	a.Logger.Info("server starting",
		"port", a.Config.Server.Port,
		"api_base_url", a.Client.BaseURL(),
	)

	if err := a.Server.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown() error {
	a.Logger.Info("shutting down application")
	a.Controller.Close()
	return nil
}

// loadEnv loads the .env file only in non-production environments.
func loadEnv() error {
	env := os.Getenv("APP_ENV")
	if env == "development" || env == "test" {
		return config.LoadDotEnv()
	}
	return nil
}

// setupLogger creates a structured logger based on the log level.
func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	return slog.New(handler)
}
