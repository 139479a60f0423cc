// cmd/service/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"
	"golang.org/x/sync/errgroup"

	"github-streak-manager/internal/api"
	"github-streak-manager/internal/config"
	"github-streak-manager/internal/database"
	"github-streak-manager/internal/dispatcher"
	"github-streak-manager/internal/github"
	"github-streak-manager/internal/sweeper"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("Application startup error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Initialize structured logger
	logLevel := new(slog.LevelVar)
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// 2. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	setLogLevel(cfg.LogLevel, logLevel)
	logger.Info("Configuration loaded successfully", "timezone", cfg.Location.String())

	// 3. Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. Initialize database connection and run migrations
	dbpool, err := pgxpool.New(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbpool.Close()
	logger.Info("Database connection established")

	if err := runMigrations(cfg.DBURL); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	logger.Info("Database migrations applied successfully")

	// 5. Initialize application components
	queries := database.New(dbpool)
	clients, err := github.NewFactory(cfg.GithubAPIURL, logger)
	if err != nil {
		return fmt.Errorf("failed to create GitHub client factory: %w", err)
	}

	router, sweep := newApp(cfg, queries, clients, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 6. Run the HTTP server and the sweeper until shutdown
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received. Draining HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.SweepSchedule != "" {
		g.Go(func() error {
			return sweep.Start(gctx, cfg.SweepSchedule)
		})
	} else {
		logger.Info("In-process sweeper disabled; relying on /internal/sweep")
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Application stopped")
	return nil
}

// newApp wires the store and GitHub clients into the HTTP router and the sweeper.
func newApp(cfg *config.Config, queries *database.Queries, clients *github.Factory, logger *slog.Logger) (http.Handler, *sweeper.Sweeper) {
	bulk := dispatcher.New(queries, func(token string) dispatcher.GitService {
		return clients.ForToken(token)
	}, cfg.Location, logger)

	sweep := sweeper.NewSweeper(queries, func(token string) sweeper.FileCommitter {
		return clients.ForToken(token)
	}, logger, sweeper.Options{
		BatchSize:     cfg.SweepBatchSize,
		MaxAttempts:   cfg.SweepMaxAttempts,
		RetryInterval: cfg.SweepRetryInterval,
	})

	router := api.NewRouter(api.Deps{
		DB:         queries,
		Dispatcher: bulk,
		Sweeper:    sweep,
		OAuth: &oauth2.Config{
			ClientID:     cfg.GithubClientID,
			ClientSecret: cfg.GithubClientSecret,
			RedirectURL:  cfg.GithubRedirectURL,
			Scopes:       cfg.GithubOAuthScopes,
			Endpoint:     githuboauth.Endpoint,
		},
		Clients: func(token string) api.UserClient {
			return clients.ForToken(token)
		},
		CronSecret: cfg.CronSecret,
		SessionTTL: cfg.SessionTTL,
		Location:   cfg.Location,
		Logger:     logger,
	})
	return router, sweep
}

func runMigrations(dbURL string) error {
	m, err := migrate.New("file://migrations", dbURL)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func setLogLevel(level string, v *slog.LevelVar) {
	switch level {
	case "debug":
		v.Set(slog.LevelDebug)
	case "warn":
		v.Set(slog.LevelWarn)
	case "error":
		v.Set(slog.LevelError)
	default:
		v.Set(slog.LevelInfo)
	}
}
