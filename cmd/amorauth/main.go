package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/amorlabs/amorauth/pkg/api"
	"github.com/amorlabs/amorauth/pkg/auditlog"
	"github.com/amorlabs/amorauth/pkg/cache"
	"github.com/amorlabs/amorauth/pkg/config"
	"github.com/amorlabs/amorauth/pkg/directory"
	"github.com/amorlabs/amorauth/pkg/identity"
	"github.com/amorlabs/amorauth/pkg/login"
	"github.com/amorlabs/amorauth/pkg/oauthflow"
	"github.com/amorlabs/amorauth/pkg/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logging.Level, cfg.Logging.JSONFormat, os.Stdout)
	metrics := observability.NewMetrics(nil)

	db, err := openDatabase(cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	cacheStore, err := newCacheStore(cfg.Redis)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize cache")
	}

	userStore, err := directory.NewPostgresStore(db)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize user store")
	}

	users := directory.New(userStore, cacheStore, logger,
		directory.WithCacheTTL(cfg.Redis.CacheTTL),
		directory.WithMetrics(metrics))

	recorder, err := auditlog.NewRecorder(db, logger, auditlog.WithMetrics(metrics))
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize audit log")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := oauthflow.NewGoogleProvider(ctx, oauthflow.Config{
		ClientID:         cfg.OAuth.ClientID,
		ClientSecret:     cfg.OAuth.ClientSecret,
		RedirectURL:      cfg.OAuth.RedirectURL,
		IssuerURL:        cfg.OAuth.IssuerURL,
		SkipVerification: cfg.OAuth.SkipVerification,
		ProxyEnabled:     cfg.OAuth.ProxyEnabled,
		ProxyHost:        cfg.OAuth.ProxyHost,
		ProxyPort:        cfg.OAuth.ProxyPort,
		Timeout:          cfg.OAuth.Timeout,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize Google OIDC provider")
	}

	resolver := identity.NewResolver(logger)
	logins := login.NewService(resolver, users, recorder, logger, login.WithMetrics(metrics))
	handlers := api.NewHandlers(provider, logins, users, recorder, logger)

	router := mux.NewRouter()
	router.Use(api.RequestIDMiddleware)
	router.Use(api.LoggingMiddleware(logger))
	router.Use(metrics.Middleware)
	handlers.RegisterRoutes(router)

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	opsMux := http.NewServeMux()
	opsMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	opsMux.Handle("/metrics", metrics.Handler())

	opsServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.OpsPort,
		Handler: opsMux,
	}

	// Scheduled login-log retention purge.
	retention := time.Duration(cfg.Audit.RetentionDays) * 24 * time.Hour
	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.Audit.PurgeSchedule, func() {
		purged, err := recorder.Purge(context.Background(), retention)
		if err != nil {
			logger.WithError(err).Error("login log purge failed")
			return
		}
		logger.WithField("purged", purged).Info("login log purge completed")
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to schedule login log purge")
	}
	scheduler.Start()
	defer scheduler.Stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("starting API server")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		logger.WithField("addr", opsServer.Addr).Info("starting ops server")
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("API server shutdown failed")
		}
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("ops server shutdown failed")
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		logger.WithError(err).Fatal("server exited with error")
	}
}

// openDatabase opens the PostgreSQL pool and verifies connectivity.
func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MinConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)
	db.SetConnMaxIdleTime(cfg.MaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// newCacheStore selects Redis when an address is configured, otherwise
// the in-memory LRU.
func newCacheStore(cfg config.RedisConfig) (cache.Store, error) {
	if cfg.Addr == "" {
		return cache.NewMemoryStore(cfg.MaxEntries, cfg.CacheTTL), nil
	}
	return cache.NewRedisStore(cache.RedisConfig{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		MaxRetries: cfg.MaxRetries,
		PoolSize:   cfg.PoolSize,
	})
}
