package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"face-search-go/config"
	"face-search-go/internal/api/handlers"
	"face-search-go/internal/cache"
	"face-search-go/internal/cleanup"
	"face-search-go/internal/core/clustering"
	"face-search-go/internal/core/extractor"
	"face-search-go/internal/core/processor"
	"face-search-go/internal/core/search"
	"face-search-go/internal/db"
	"face-search-go/internal/db/repository"
	"face-search-go/internal/integrations/insightface"
	"face-search-go/internal/integrations/mqtt"
	"face-search-go/internal/logger"
	"face-search-go/internal/storage"
)

const defaultConfigPath = "/config/config.yaml"

func main() {
	configPath := os.Getenv("FACESEARCH_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Log); err != nil {
		log.Errorf("Failed to initialize logger completely: %v", err)
	}

	// Initialize database connection
	log.Info("Initializing database...")
	database, err := db.Open(cfg.DB)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	log.Info("Database initialization complete.")

	repo := repository.NewGormRepository(database)

	// Initialize local image store
	store, err := storage.NewLocalStore(cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize image store: %v", err)
	}

	// Start orphaned-file sweeper
	cleanupService := cleanup.NewService(repo, cfg.Storage.DataDir, cfg.Cleanup)
	cleanupService.StartBackgroundCleanup()
	defer cleanupService.StopBackgroundCleanup()

	// Initialize InsightFace detector client
	detector := insightface.NewAPIClient(cfg.InsightFace)
	extractorSvc := extractor.NewService(detector, cfg.Processing.EmbeddingDim)

	// Initialize result cache
	resultCache := cache.NewResultCache(time.Duration(cfg.Cache.TTLMinutes) * time.Minute)

	// Initialize MQTT publisher if enabled
	publisher := mqtt.NewPublisher(cfg.MQTT)
	if publisher != nil {
		if err := publisher.Start(); err != nil {
			log.Warnf("Failed to start MQTT publisher: %v. Continuing without MQTT.", err)
		}
		defer publisher.Stop()
	}

	// Initialize processing pipeline
	imageProcessor := processor.NewImageProcessor(repo, store, extractorSvc, resultCache, publisher, cfg.Processing)
	pool := processor.NewWorkerPool(imageProcessor, cfg.Processing.Workers)
	defer pool.Shutdown()

	// Query services
	searchSvc := search.NewService(repo, extractorSvc, cfg.Storage.DataDir)
	clusteringSvc := clustering.NewService(repo)

	// Setup router
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	router.Use(cors.New(corsConfig))

	apiHandler := handlers.NewAPIHandler(cfg, repo, imageProcessor, pool, searchSvc, clusteringSvc,
		resultCache, detector, store)
	apiHandler.RegisterRoutes(router.Group("/api"))

	// Serve stored images directly
	router.Static("/images", cfg.Storage.DataDir)
	log.Infof("Serving stored images from %s under /images/ route", cfg.Storage.DataDir)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		log.Infof("Starting server on %s", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	log.Info("Server stopped.")
}
