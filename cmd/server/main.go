package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hormur/event-syndicator/internal/assets"
	"github.com/hormur/event-syndicator/internal/broker"
	"github.com/hormur/event-syndicator/internal/browser"
	"github.com/hormur/event-syndicator/internal/config"
	"github.com/hormur/event-syndicator/internal/dispatch"
	"github.com/hormur/event-syndicator/internal/handlers"
	"github.com/hormur/event-syndicator/internal/metrics"
	"github.com/hormur/event-syndicator/internal/results"
	"github.com/hormur/event-syndicator/internal/storage"
	"github.com/hormur/event-syndicator/internal/workflow"
)

func main() {
	// Setup logger
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("address", cfg.Addr()).
		Str("mode", cfg.Mode).
		Interface("platforms", cfg.Platforms).
		Msg("Starting event syndicator")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := map[string]handlers.HealthChecker{}

	var store storage.JobStore
	if cfg.PostgresEnabled() {
		log.Info().Msg("Initializing Postgres job store...")
		pg, err := storage.NewPostgresJobStore(cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Postgres job store")
		}
		defer pg.Close()
		store = pg
		log.Info().Msg("Postgres job store initialized")
	} else {
		log.Warn().Msg("DB_HOST not set - job records are kept in memory")
		store = storage.NewMemoryJobStore()
	}
	checks["jobs"] = store

	pipeline := assets.NewPipeline(nil, nil)
	opts := workflow.Options{
		NavigationTimeout: cfg.NavigationTimeout,
		StepTimeout:       cfg.StepTimeout,
		SubmitTimeout:     cfg.SubmitTimeout,
		StrictVerify:      cfg.StrictVerify,
	}
	if cfg.MinIOEnabled() {
		log.Info().Msg("Initializing MinIO storage...")
		minioStorage, err := storage.NewMinIOStorage(
			cfg.MinIOEndpoint,
			cfg.MinIOPublicEndpoint,
			cfg.MinIOAccessKey,
			cfg.MinIOSecretKey,
			cfg.MinIOBucket,
			cfg.MinIOUseSSL,
			cfg.JobRetention,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize MinIO storage")
		}
		pipeline = assets.NewPipeline(nil, minioStorage)
		opts.Artifacts = minioStorage
		checks["storage"] = minioStorage
		log.Info().Msg("MinIO storage initialized successfully")
	} else {
		log.Warn().Msg("MinIO not configured - failure screenshots are disabled")
	}

	launcher := browser.NewChromeLauncher(browser.ChromeOptions{
		ExecPath: cfg.ChromePath,
		Headless: cfg.BrowserHeadless,
	})
	engine := workflow.NewEngine(launcher, pipeline, cfg.Credentials, workflow.DefaultRegistry(), opts)

	var (
		strategy dispatch.Strategy
		status   handlers.StatusReader
	)
	workersDone := make(chan struct{})
	switch cfg.Mode {
	case config.ModeQueue:
		log.Info().Msg("Initializing RabbitMQ...")
		rabbitMQ, err := broker.NewRabbitMQ(cfg.RabbitMQURL, cfg.RabbitMQExchange, cfg.QueuePrefix, cfg.Platforms)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize RabbitMQ")
		}
		defer rabbitMQ.Close()
		checks["rabbitmq"] = rabbitMQ
		log.Info().Msg("RabbitMQ initialized successfully")

		strategy = dispatch.NewQueueStrategy(store, rabbitMQ)
		status = results.NewStatusService(store, rabbitMQ, cfg.Platforms)

		pool := dispatch.NewWorkerPool(rabbitMQ, store, engine, cfg.Platforms, cfg.WorkersPerPlatform)
		go func() {
			defer close(workersDone)
			pool.Run(ctx)
		}()
		go pruneJobs(ctx, store, cfg.JobRetention)
	default:
		strategy = dispatch.NewParallelStrategy(engine)
		close(workersDone)
	}

	dispatcher := dispatch.New(cfg.Platforms, strategy)
	handler := handlers.NewHandler(dispatcher, status, results.NewTrigger(engine, cfg.Platforms), checks)

	router := setupRouter(handler)

	// Parallel mode answers only once every browser run has ended.
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("address", srv.Addr).
			Msg("🚀 Server starting...")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	log.Info().Msg("✅ Event syndicator is running")

	<-ctx.Done()

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Waiting for in-flight jobs...")
	<-workersDone

	log.Info().Msg("Server exited gracefully")
}

// pruneJobs removes terminal job records older than retention, once an hour.
func pruneJobs(ctx context.Context, store storage.JobStore, retention time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Prune(ctx, time.Now().Add(-retention))
			if err != nil {
				log.Error().Err(err).Msg("Failed to prune job records")
				continue
			}
			if n > 0 {
				log.Info().Int64("removed", n).Msg("🧹 Pruned job records")
			}
		}
	}
}

// setupRouter configures all routes and middleware
func setupRouter(h *handlers.Handler) *mux.Router {
	r := mux.NewRouter()

	// Middleware
	r.Use(loggingMiddleware)
	r.Use(recoveryMiddleware)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/publish-event", h.PublishEventHandler).Methods("POST")
	api.HandleFunc("/status", h.StatusHandler).Methods("GET")
	api.HandleFunc("/test/{platform}", h.TestPlatformHandler).Methods("POST")
	api.HandleFunc("/health", h.HealthCheckHandler).Methods("GET")

	r.HandleFunc("/health", h.HealthCheckHandler).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods("GET")

	log.Info().Msg("Routes configured successfully")
	return r
}

// loggingMiddleware logs all HTTP requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.statusCode).
			Dur("duration_ms", time.Since(start)).
			Str("remote_addr", r.RemoteAddr).
			Msg("HTTP request")
	})
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().
					Interface("error", err).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Msg("Panic recovered")

				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
