package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/paletsayim/server/internal/config"
	"github.com/paletsayim/server/internal/handlers"
	"github.com/paletsayim/server/internal/models"
	"github.com/paletsayim/server/internal/observability"
	"github.com/paletsayim/server/internal/repository"
	"github.com/paletsayim/server/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	observability.GetLogger().SetLevel(observability.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize telemetry
	telemetry, err := observability.Initialize(ctx, observability.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: handlers.Version,
		Environment:    cfg.Telemetry.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
	})
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}

	// Initialize database and repository
	var db *sql.DB
	var palletRepo repository.PalletRepo
	if cfg.UsePostgres() {
		observability.Info("Using PostgreSQL database")
		db, err = repository.NewPostgresDB(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to initialize PostgreSQL database: %v", err)
		}
		palletRepo = repository.NewPalletRepositoryPostgres(db)
	} else {
		observability.WithField("path", cfg.DatabasePath).Info("Using SQLite database")
		db, err = repository.NewSQLiteDB(cfg.DatabasePath)
		if err != nil {
			log.Fatalf("Failed to initialize SQLite database: %v", err)
		}
		palletRepo = repository.NewPalletRepository(db)
	}
	defer db.Close()

	// Initialize metrics
	var palletMetrics *observability.PalletMetrics
	if cfg.Metrics.Enabled {
		palletMetrics = observability.NewPalletMetrics()
	}
	var httpMetrics *observability.HTTPMetrics
	var serviceName string
	if cfg.Telemetry.Enabled {
		serviceName = cfg.Telemetry.ServiceName
		httpMetrics, err = observability.NewHTTPMetrics()
		if err != nil {
			log.Fatalf("Failed to initialize HTTP metrics: %v", err)
		}
	}

	// Initialize services
	var palletService *services.PalletService
	eventHub := services.NewEventHub(func(ctx context.Context) (*models.StockStats, error) {
		return palletService.Stats(ctx)
	}, cfg.Events.StatsInterval())
	palletService = services.NewPalletService(palletRepo, eventHub, palletMetrics)
	allocator := services.NewReturnAllocator(palletRepo, eventHub, palletMetrics)
	reportService := services.NewReportService(palletRepo)
	labelService := services.NewLabelService(palletService)

	eventHub.Start()

	// Initialize handlers
	router := handlers.NewRouter(handlers.RouterConfig{
		Pallets:      handlers.NewPalletHandler(palletService, allocator, reportService, labelService),
		Events:       handlers.NewEventsHandler(eventHub),
		Status:       handlers.NewStatusHandler(),
		APIKey:       cfg.Security.APIKey,
		APIKeyHeader: cfg.Security.APIKeyHeader,
		ServiceName:  serviceName,
		HTTPMetrics:  httpMetrics,
		Metrics:      palletMetrics,
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if cfg.Security.APIKey == "" {
		observability.Warn("API_KEY is not set, the API is open to anyone who can reach it")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		observability.WithFields(map[string]interface{}{
			"address": cfg.ServerAddress,
			"version": handlers.Version,
		}).Info("Pallet server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		observability.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		eventHub.Stop()
		if tErr := telemetry.Shutdown(shutdownCtx); tErr != nil {
			observability.Errorf("Telemetry shutdown failed: %v", tErr)
		}
		return err
	})

	if err := g.Wait(); err != nil {
		observability.Errorf("Server stopped with error: %v", err)
		os.Exit(1)
	}

	observability.Info("Server exited")
}
