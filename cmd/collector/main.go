package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/telhawk-systems/rtc-telemetry/internal/config"
	"github.com/telhawk-systems/rtc-telemetry/internal/dlq"
	"github.com/telhawk-systems/rtc-telemetry/internal/handlers"
	"github.com/telhawk-systems/rtc-telemetry/internal/logging"
	"github.com/telhawk-systems/rtc-telemetry/internal/ratelimit"
	"github.com/telhawk-systems/rtc-telemetry/internal/repository"
	"github.com/telhawk-systems/rtc-telemetry/internal/server"
	"github.com/telhawk-systems/rtc-telemetry/internal/service"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("collector"))
	logging.SetDefault(logger)

	slog.Info("Starting telemetry collector",
		slog.String("addr", cfg.Server.Addr()),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Database migrations before anything touches the schema. The slowlink
	// migration lives apart so deployments can opt out of that table.
	if cfg.Database.Migrate {
		m, err := migrate.New("file://"+cfg.Database.MigrationsPath, cfg.Database.URL)
		if err != nil {
			slog.Error("Failed to initialize migrations", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			slog.Error("Failed to run migrations", slog.String("error", err.Error()))
			os.Exit(1)
		}
		version, dirty, err := m.Version()
		if err != nil {
			slog.Warn("Could not get migration version", slog.String("error", err.Error()))
		} else {
			slog.Info("Database migration complete",
				slog.Uint64("version", uint64(version)),
				slog.Bool("dirty", dirty),
			)
		}
	}

	repo, err := repository.NewPostgresRepository(context.Background(), cfg.Database.URL)
	if err != nil {
		slog.Error("Failed to connect to PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("Connected to PostgreSQL")

	var rateLimiter ratelimit.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter, err := ratelimit.NewRedisRateLimiter(
			cfg.RateLimit.RedisURL,
			cfg.RateLimit.Requests,
			cfg.RateLimit.Window,
			false,
		)
		if err != nil {
			slog.Warn("Rate limiter unavailable, continuing without",
				slog.String("error", err.Error()))
			rateLimiter = &ratelimit.NoOpRateLimiter{}
		} else {
			rateLimiter = limiter
			slog.Info("Rate limiting enabled",
				slog.Int("requests", cfg.RateLimit.Requests),
				slog.Duration("window", cfg.RateLimit.Window))
		}
	} else {
		rateLimiter = &ratelimit.NoOpRateLimiter{}
	}
	defer rateLimiter.Close()

	ingestService := service.NewIngestService(repo, logger)

	switch cfg.DLQ.Backend {
	case "jetstream":
		queue, err := dlq.NewJetStreamQueue(context.Background(), cfg.DLQ.NatsURL)
		if err != nil {
			slog.Error("Failed to initialize JetStream DLQ", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer queue.Close()
		ingestService.WithDLQ(queue)
		slog.Info("Dead letter queue enabled", slog.String("backend", "jetstream"))
	case "file":
		queue, err := dlq.NewFileQueue(cfg.DLQ.Path)
		if err != nil {
			slog.Error("Failed to initialize file DLQ", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer queue.Close()
		ingestService.WithDLQ(queue)
		slog.Info("Dead letter queue enabled",
			slog.String("backend", "file"), slog.String("path", cfg.DLQ.Path))
	case "none", "":
		slog.Info("Dead letter queue disabled")
	default:
		slog.Error("Unknown DLQ backend", slog.String("backend", cfg.DLQ.Backend))
		os.Exit(1)
	}

	hookHandler := handlers.NewHookHandler(ingestService, rateLimiter, logger, cfg.Hook.MaxBodyBytes)
	apiHandler := handlers.NewAPIHandler(repo, logger)
	router := server.NewRouter(hookHandler, apiHandler, cfg.Hook.Username, cfg.Hook.Password)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("Collector listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	slog.Info("Server stopped")
}
