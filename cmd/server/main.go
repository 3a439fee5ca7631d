package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"mesh-orchestrator/api/rest/routes"
	"mesh-orchestrator/config"
	"mesh-orchestrator/core/capability"
	"mesh-orchestrator/core/monitoring"
	"mesh-orchestrator/core/repository"
	"mesh-orchestrator/core/scheduler"
	"mesh-orchestrator/core/spec"
	"mesh-orchestrator/core/supervisor"
	"mesh-orchestrator/providers"
	"mesh-orchestrator/storage"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize database
	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	logger.Info("Database connected successfully")

	runRepo := repository.NewRunRepository(db)
	metrics := monitoring.DefaultMetrics()

	// Mesh publishing is enabled by S3_BUCKET
	var publisher scheduler.Publisher
	if cfg.S3Bucket != "" {
		client, err := storage.NewS3Client(ctx, cfg.AWSRegion)
		if err != nil {
			logger.Fatal("Failed to initialize S3 client", zap.Error(err))
		}
		publisher = storage.NewMeshPublisher(client, cfg.S3Bucket, "meshes",
			repository.NewArtifactRepository(db), logger.Named("storage"))
	}

	backends := providers.BackendsFromConfig(cfg)
	backends.ScratchRoot = filepath.Join(cfg.WorkRoot, ".scratch")
	factory := func(rs *spec.RunSpec) (capability.Set, error) {
		return providers.NewSet(backends.WithRunSpec(rs), logger.Named("providers"))
	}

	// Initialize scheduler
	sched := scheduler.NewScheduler(runRepo, factory, scheduler.Options{
		WorkRoot:      cfg.WorkRoot,
		MaxConcurrent: cfg.MaxConcurrentRuns,
		Observers: []supervisor.Observer{
			repository.NewRecorder(db, logger.Named("recorder")),
			metrics,
		},
		Publisher: publisher,
		Lifecycle: metrics,
	}, logger.Named("scheduler"))

	schedDone := make(chan struct{})
	go func() {
		sched.Start(ctx)
		close(schedDone)
	}()

	// Initialize run monitor
	monitor := monitoring.NewRunMonitor(runRepo, metrics, logger.Named("monitor"), time.Minute, 2*cfg.GmshTimeout)
	go monitor.Start(ctx)

	// Setup routes with database and scheduler
	r := mux.NewRouter()
	routes.SetupRoutes(r, db, sched, promhttp.Handler())

	// Start server
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// Graceful shutdown
	go func() {
		logger.Info("Starting server", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Stop accepting runs and wait for the ones in flight
	cancel()
	<-schedDone
	logger.Info("Server exited")
}
