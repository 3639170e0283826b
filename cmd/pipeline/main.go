package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

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
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "vidqa-pipeline",
	})
	logger.SetDefaultLogger(appLogger)

	// Parse command line flags
	videoURL := flag.String("url", "", "Video URL to process")
	clearInteractions := flag.Bool("clear-interactions", false, "Delete all stored interaction records and exit")
	clearWorkers := flag.Int("clear-workers", 8, "Concurrency for -clear-interactions")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	// Initialize S3-compatible object storage
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

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	if err := objectStorage.EnsureBucket(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
	}

	docs := docstore.New(objectStorage)

	// Housekeeping mode: wipe interaction history and exit
	if *clearInteractions {
		deleted, err := docs.ClearAllInteractions(ctx, *clearWorkers)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to clear interactions")
		}
		appLogger.WithField("deleted", deleted).Info("Cleared interaction records")
		return
	}

	if *videoURL == "" {
		appLogger.Fatal("Missing required -url flag")
	}

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

	captionerService := service.NewCaptionerService(&service.CaptionerConfig{
		BaseURL:      cfg.Captioner.BaseURL,
		APIKey:       cfg.Captioner.APIKey,
		Model:        cfg.Captioner.Model,
		PollInterval: time.Duration(cfg.Captioner.PollIntervalSeconds) * time.Second,
		PollTimeout:  time.Duration(cfg.Captioner.PollTimeoutSeconds) * time.Second,
	}, appLogger)

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

	appLogger.WithField("url", *videoURL).Info("Starting video processing")

	videoID, err := pipe.Run(ctx, *videoURL)
	if err != nil {
		appLogger.WithError(err).WithField("video_id", videoID).Fatal("Pipeline failed")
	}

	appLogger.WithField("video_id", videoID).Info("Pipeline completed")
}
