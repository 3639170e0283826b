package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/vidqa/internal/api"
	"github.com/timmy/vidqa/internal/config"
	"github.com/timmy/vidqa/internal/docstore"
	"github.com/timmy/vidqa/internal/index"
	"github.com/timmy/vidqa/internal/logger"
	"github.com/timmy/vidqa/internal/media"
	"github.com/timmy/vidqa/internal/pipeline"
	"github.com/timmy/vidqa/internal/service"
	"github.com/timmy/vidqa/internal/storage"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "vidqa-api",
	})
	logger.SetDefaultLogger(appLogger)

	ctx := context.Background()

	// Initialize Qdrant repository
	qdrantRepo, err := index.NewQdrantRepository(&index.ConnectionConfig{
		Host:            cfg.Qdrant.Host,
		Port:            cfg.Qdrant.Port,
		Collection:      cfg.Qdrant.Collection,
		VectorDimension: cfg.Embedding.Dimensions,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize Qdrant repository")
	}
	defer qdrantRepo.Close()

	if err := qdrantRepo.EnsureCollection(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to ensure Qdrant collection")
	}

	// Initialize S3-compatible object storage (MinIO, R2, S3)
	objectStorage, err := storage.NewStorage(&storage.S3Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		PublicURL: cfg.Storage.PublicURL,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize storage")
	}

	if err := objectStorage.EnsureBucket(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
	}

	docs := docstore.New(objectStorage)

	// Initialize services
	embeddingService := service.NewEmbeddingService(&service.EmbeddingConfig{
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
	})

	chatService := service.NewChatService(&service.ChatConfig{
		BaseURL: cfg.Chat.BaseURL,
		APIKey:  cfg.Chat.APIKey,
		Model:   cfg.Chat.Model,
	})

	selectionChat := service.NewChatService(&service.ChatConfig{
		BaseURL: cfg.Chat.BaseURL,
		APIKey:  cfg.Chat.APIKey,
		Model:   cfg.Chat.SelectionModel,
	})

	captionerService := service.NewCaptionerService(&service.CaptionerConfig{
		BaseURL:      cfg.Captioner.BaseURL,
		APIKey:       cfg.Captioner.APIKey,
		Model:        cfg.Captioner.Model,
		PollInterval: time.Duration(cfg.Captioner.PollIntervalSeconds) * time.Second,
		PollTimeout:  time.Duration(cfg.Captioner.PollTimeoutSeconds) * time.Second,
	}, appLogger)

	retrievalService := service.NewRetrievalService(embeddingService, qdrantRepo, cfg.Query.TopK, appLogger)

	toolProvider := service.NewToolProvider(&service.ToolProviderConfig{
		SSEURL:        cfg.Tools.ResearchSSEURL,
		SelectionMode: cfg.Tools.SelectionMode,
		CallTimeout:   time.Duration(cfg.Tools.CallTimeoutSeconds) * time.Second,
		SelectionChat: selectionChat,
	}, appLogger)

	synthesizer := service.NewSynthesizer(chatService, appLogger)

	queryService := service.NewQueryService(docs, retrievalService, toolProvider, synthesizer, appLogger)

	// Media adapters for the ingestion pipeline
	downloader := media.NewYtDlpDownloader("yt-dlp", appLogger)
	splitter := media.NewFFmpegSplitter("ffmpeg", "ffprobe", appLogger)

	pipe := pipeline.New(
		pipeline.Config{
			WorkDir:             cfg.Pipeline.WorkDir,
			CaptionWorkers:      cfg.Pipeline.CaptionWorkers,
			CaptionRetries:      cfg.Pipeline.CaptionRetries,
			EmbedWorkers:        cfg.Pipeline.EmbedWorkers,
			UpsertBatchSize:     cfg.Pipeline.UpsertBatchSize,
			ExistenceFetchBatch: cfg.Pipeline.ExistenceFetchBatch,
			FallbackWindowSecs:  cfg.Pipeline.FallbackWindowSeconds,
		},
		docs,
		objectStorage,
		qdrantRepo,
		embeddingService,
		chatService,
		captionerService,
		downloader,
		splitter,
		appLogger,
	)

	// Setup router
	router := api.SetupRouter(api.RouterDeps{
		Queries:        queryService,
		Pipeline:       pipe,
		Docs:           docs,
		Logger:         appLogger,
		AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
	}, cfg.Server.Mode)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
