package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campusync/internal/config"
	"campusync/internal/domain"
	"campusync/internal/handler"
	"campusync/internal/httpapi"
	"campusync/internal/middleware"
	"campusync/internal/remote"
	"campusync/internal/repository"
	"campusync/internal/repository/badger"
	"campusync/internal/repository/postgres"
	"campusync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	postgresdb "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := newLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Campusync Bot",
		zap.String("store", cfg.StoreBackend),
		zap.String("semester", cfg.DefaultSemester),
	)

	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer closeStore()

	logger.Info("Store opened")

	// Backend client
	client := remote.NewHTTPClient(cfg.API.BaseURL, cfg.API.Timeout, logger)
	api := remote.NewAPI(client)

	// Initialize services
	sessions := service.NewSessionService(api, store, logger)
	if err := sessions.Restore(); err != nil {
		logger.Fatal("Failed to restore session", zap.Error(err))
	}
	timetable := service.NewTimetableService(api, store, sessions, cfg.Calendar, cfg.DefaultSemester, logger)
	grades := service.NewGradeService(api, store, sessions, logger)

	// Initialize Telegram bot
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.BotToken,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}
	bot.Use(middleware.OwnerOnly(cfg.OwnerID, logger))

	logger.Info("Telegram bot initialized")

	h := handler.NewHandler(bot, sessions, timetable, grades, logger)
	h.RegisterHandlers()

	logger.Info("Handlers registered")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Keep the session warm in background
	go runRefreshJob(ctx, sessions, cfg.RefreshInterval, logger)

	// Optional local API
	var srv *http.Server
	if cfg.HTTPAddr != "" {
		if !cfg.Debug {
			gin.SetMode(gin.ReleaseMode)
		}
		srv = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           httpapi.NewServer(sessions, timetable, grades, cfg.HTTPOrigins, logger).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP API listening", zap.String("addr", cfg.HTTPAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP API stopped", zap.Error(err))
			}
		}()
	}

	// Start bot in background
	go func() {
		logger.Info("Bot started successfully")
		bot.Start()
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan

	logger.Info("Shutdown signal received, stopping bot...")

	// Graceful shutdown
	bot.Stop()
	cancel()

	if srv != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to stop HTTP API", zap.Error(err))
		}
		stop()
	}

	logger.Info("Bot stopped gracefully")
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// openStore opens the configured backend; the returned func releases it
func openStore(cfg *config.Config, logger *zap.Logger) (repository.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := connectDatabase(cfg.DSN(), logger)
		if err != nil {
			return nil, nil, err
		}
		if err := runMigrations(db, logger); err != nil {
			db.Close()
			return nil, nil, err
		}
		return postgres.NewKVStore(db), func() { db.Close() }, nil
	default:
		store, err := badger.Open(cfg.BadgerDir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Error("Failed to close store", zap.Error(err))
			}
		}, nil
	}
}

// connectDatabase connects to PostgreSQL with retries
func connectDatabase(dsn string, logger *zap.Logger) (*sql.DB, error) {
	var db *sql.DB
	var err error

	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		db, err = sql.Open("postgres", dsn)
		if err != nil {
			logger.Warn("Failed to open database connection",
				zap.Int("attempt", i+1),
				zap.Error(err),
			)
			time.Sleep(retryDelay)
			continue
		}

		if err = db.Ping(); err != nil {
			logger.Warn("Failed to ping database",
				zap.Int("attempt", i+1),
				zap.Error(err),
			)
			db.Close()
			time.Sleep(retryDelay)
			continue
		}

		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)

		return db, nil
	}

	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
}

// runMigrations runs database migrations
func runMigrations(db *sql.DB, logger *zap.Logger) error {
	driver, err := postgresdb.WithInstance(db, &postgresdb.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Info("No new migrations to apply")
	case err != nil:
		return fmt.Errorf("failed to run migrations: %w", err)
	default:
		logger.Info("Migrations applied successfully")
	}

	return nil
}

// runRefreshJob re-authenticates once at startup and then on every tick
func runRefreshJob(ctx context.Context, sessions *service.SessionService, interval time.Duration, logger *zap.Logger) {
	refresh := func() {
		refreshCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()

		err := sessions.SilentRefresh(refreshCtx)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrNoStoredCredentials):
			logger.Debug("Silent refresh skipped, no stored credentials")
		default:
			logger.Warn("Silent refresh failed", zap.Error(err))
		}
	}

	refresh()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Refresh job stopped")
			return
		case <-ticker.C:
			logger.Info("Running scheduled silent refresh")
			refresh()
		}
	}
}
