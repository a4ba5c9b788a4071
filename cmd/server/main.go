package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DukeRupert/pinreport/internal"
	"github.com/DukeRupert/pinreport/internal/domain"
	"github.com/DukeRupert/pinreport/internal/email"
	"github.com/DukeRupert/pinreport/internal/geocode"
	"github.com/DukeRupert/pinreport/internal/handler"
	"github.com/DukeRupert/pinreport/internal/jobs"
	"github.com/DukeRupert/pinreport/internal/location"
	"github.com/DukeRupert/pinreport/internal/media"
	"github.com/DukeRupert/pinreport/internal/metrics"
	"github.com/DukeRupert/pinreport/internal/middleware"
	"github.com/DukeRupert/pinreport/internal/notify"
	"github.com/DukeRupert/pinreport/internal/repository"
	"github.com/DukeRupert/pinreport/internal/service"
	"github.com/DukeRupert/pinreport/internal/storage"
	"github.com/DukeRupert/pinreport/internal/worker"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if err := internal.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	queries := repository.New(db)
	reports := service.NewReportRepository(queries)

	// ==========================================================================
	// Storage
	// ==========================================================================

	store, err := newStorage(cfg, logger)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}
	uploader := storage.NewUploader(store, domain.MaxUploadSize)

	// ==========================================================================
	// Location validation
	// ==========================================================================

	geocodeClient, err := geocode.NewClient(geocode.ClientConfig{
		BaseURL:   cfg.GeocoderBaseURL,
		UserAgent: cfg.GeocoderUserAgent,
		Timeout:   cfg.GeocoderTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("geocoder initialization failed: %w", err)
	}

	var geocoder geocode.Geocoder = geocodeClient
	if cfg.RedisAddr != "" {
		rdb, err := geocode.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
		defer rdb.Close()
		geocoder = geocode.NewCachedGeocoder(geocodeClient, geocode.NewRedisCache(rdb), cfg.GeocoderCacheTTL, logger)
		logger.Info("Geocode cache enabled", "addr", cfg.RedisAddr)
	}
	validator := location.NewValidator(geocoder, nil, logger)

	// ==========================================================================
	// Media
	// ==========================================================================

	previews := media.NewPreviewRegistry()
	preparer := media.NewPreparer(previews, logger)
	preparer.MaxBytes = cfg.MediaMaxBytes
	preparer.MaxDimension = cfg.MediaMaxDimension

	// ==========================================================================
	// Official notification
	// ==========================================================================

	var mailer email.EmailService
	if cfg.SMTPHost != "" {
		smtp, err := email.NewSMTPEmailService(email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}, cfg.BaseURL, logger)
		if err != nil {
			return fmt.Errorf("email initialization failed: %w", err)
		}
		mailer = smtp
	} else {
		logger.Warn("SMTP_HOST not set, officials will not be e-mailed")
	}
	notifier := notify.NewService(queries, mailer, nil, logger)

	deps := service.SubmissionDeps{
		Identity:  middleware.ContextIdentity{},
		Profiles:  reports,
		Reports:   reports,
		Objects:   uploader,
		Validator: validator,
		Notifier:  notifier,
	}

	var w *worker.Worker
	if cfg.WorkerEnabled {
		wcfg := worker.DefaultConfig()
		wcfg.Concurrency = cfg.WorkerConcurrency
		wcfg.PollInterval = cfg.WorkerPollInterval
		wcfg.JobTimeout = cfg.WorkerJobTimeout

		w, err = worker.New(db, queries, wcfg, logger)
		if err != nil {
			return fmt.Errorf("worker initialization failed: %w", err)
		}
		w.Register(jobs.NewNotifyOfficialsHandler(notifier, logger))
		deps.Queue = worker.NewNotificationQueue(queries, cfg.NotifyRetryDelay)
	}

	submissions := service.NewSubmissionCoordinator(deps, service.SubmissionConfig{
		UploadConcurrency: cfg.MediaUploadConcurrency,
		BackgroundTimeout: cfg.SubmissionTimeout,
	}, logger)

	// ==========================================================================
	// Middleware and routes
	// ==========================================================================

	identityMw := middleware.NewIdentityMiddleware(reports, logger)
	limiter := middleware.NewRateLimiter(cfg.SubmissionRateLimit, cfg.SubmissionRateWindow)
	rateLimitMw := middleware.NewRateLimitMiddleware(limiter, logger)
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	securityMw := middleware.NewSecurityHeadersMiddleware(cfg.IsSecure())
	metricsAuthMw := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)

	mux := http.NewServeMux()

	mux.Handle("GET /health", handler.NewHealthHandler(db, logger))
	mux.Handle("GET /metrics", metricsAuthMw.Handler(promhttp.Handler()))

	if local, ok := store.(*storage.LocalStorage); ok {
		files := http.FileServer(http.Dir(local.BasePath()))
		mux.Handle("GET /files/", http.StripPrefix("/files/", files))
	}

	reportHandler := handler.NewReportHandler(submissions, preparer, previews, logger)
	reportHandler.RegisterRoutes(mux, middleware.Stack(
		identityMw.RequireUser,
		rateLimitMw.Limit,
	))

	root := middleware.Stack(
		securityMw.Handler,
		identityMw.Resolve,
		loggingMw.Handler,
	)(metrics.Middleware(mux))

	// ==========================================================================
	// Start
	// ==========================================================================

	if w != nil {
		w.Start(ctx)
	}

	sweeperStop := make(chan struct{})
	go limiter.RunSweeper(sweeperStop)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	close(sweeperStop)
	if w != nil {
		w.Stop()
	}
	if n := previews.Outstanding(); n > 0 {
		logger.Warn("previews still outstanding at shutdown", "count", n)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

func newStorage(cfg *internal.Config, logger *slog.Logger) (storage.Storage, error) {
	switch cfg.StorageProvider {
	case storage.ProviderR2:
		return storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
		}, logger)
	default:
		return storage.NewLocalStorage(storage.LocalConfig{
			BasePath: cfg.LocalStoragePath,
			BaseURL:  cfg.LocalStorageURL,
		}, logger)
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
