// Package pipeline runs the durable ingestion pipeline for one video:
// download, scene segmentation, per-segment captioning, summarization and
// vector indexing. All durable state lives in the video's JSON document in
// object storage; every stage re-reads it and skips work it finds already
// done, so an interrupted run can be re-invoked with the same URL.
package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/timmy/vidqa/internal/docstore"
	"github.com/timmy/vidqa/internal/domain"
	"github.com/timmy/vidqa/internal/index"
	"github.com/timmy/vidqa/internal/logger"
	"github.com/timmy/vidqa/internal/service"
	"github.com/timmy/vidqa/internal/storage"
)

// DownloadResult carries the fetched file and the source metadata the
// downloader could probe.
type DownloadResult struct {
	LocalPath    string
	UploaderName string
	LikeCount    int64
}

// Downloader fetches the source video to a local path.
type Downloader interface {
	Download(ctx context.Context, url, destPath string) (*DownloadResult, error)
}

// Scene is a half-open [Start, End) interval in seconds.
type Scene struct {
	Start float64
	End   float64
}

// SceneSplitter probes a video, detects scene boundaries and cuts the file
// into per-scene clips.
type SceneSplitter interface {
	Probe(ctx context.Context, videoPath string) (durationSeconds float64, err error)
	DetectScenes(ctx context.Context, videoPath string) ([]Scene, error)
	Split(ctx context.Context, videoPath string, scenes []Scene, outPaths []string) error
}

// Captioner describes one local segment file. Implementations own the
// upload/poll/cleanup lifecycle of any remote artifact they create.
type Captioner interface {
	Caption(ctx context.Context, localPath, prompt string) (string, error)
}

// VectorIndex is the slice of the vector store the indexing stage needs.
type VectorIndex interface {
	ExistingChunkNames(ctx context.Context, chunkNames []string) (map[string]bool, error)
	UpsertBatch(ctx context.Context, points []index.SegmentPoint) error
}

// Config holds the tunables of the pipeline stages.
type Config struct {
	WorkDir             string
	CaptionWorkers      int
	CaptionRetries      int
	EmbedWorkers        int
	UpsertBatchSize     int
	ExistenceFetchBatch int
	FallbackWindowSecs  float64
}

func (c *Config) applyDefaults() {
	if c.CaptionWorkers <= 0 {
		c.CaptionWorkers = 8
	}
	if c.CaptionRetries <= 0 {
		c.CaptionRetries = 5
	}
	if c.EmbedWorkers <= 0 {
		c.EmbedWorkers = 8
	}
	if c.UpsertBatchSize <= 0 {
		c.UpsertBatchSize = 100
	}
	if c.ExistenceFetchBatch <= 0 {
		c.ExistenceFetchBatch = 1000
	}
	if c.FallbackWindowSecs <= 0 {
		c.FallbackWindowSecs = 4.0
	}
	if c.WorkDir == "" {
		c.WorkDir = "video-data"
	}
}

// Pipeline wires the stages to their collaborators.
type Pipeline struct {
	cfg        Config
	docs       *docstore.Store
	store      storage.ObjectStorage
	idx        VectorIndex
	embedding  *service.EmbeddingService
	chat       *service.ChatService
	captioner  Captioner
	downloader Downloader
	splitter   SceneSplitter
	logger     *logger.Logger

	// swappable in tests
	sleep  func(time.Duration)
	jitter func() float64
}

// New creates a pipeline with the given collaborators.
func New(
	cfg Config,
	docs *docstore.Store,
	store storage.ObjectStorage,
	idx VectorIndex,
	embedding *service.EmbeddingService,
	chat *service.ChatService,
	captioner Captioner,
	downloader Downloader,
	splitter SceneSplitter,
	log *logger.Logger,
) *Pipeline {
	cfg.applyDefaults()
	return &Pipeline{
		cfg:        cfg,
		docs:       docs,
		store:      store,
		idx:        idx,
		embedding:  embedding,
		chat:       chat,
		captioner:  captioner,
		downloader: downloader,
		splitter:   splitter,
		logger:     log,
		sleep:      time.Sleep,
		jitter:     rand.Float64,
	}
}

func (p *Pipeline) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return p.logger
}

// Run executes all stages for the video at the given URL and returns the
// derived video id. A stage error marks the document FAILED with an
// error_message and aborts the remaining stages.
func (p *Pipeline) Run(ctx context.Context, url string) (string, error) {
	videoID := domain.VideoIDFromURL(url)
	ctx = logger.SetVideoID(ctx, videoID)
	start := time.Now()
	p.log(ctx).WithFields(logger.Fields{"url": url}).Info("Starting video pipeline")

	localPath, err := p.download(ctx, videoID, url)
	if err != nil {
		p.recordFailure(ctx, videoID, fmt.Sprintf("Download failed: %v", err))
		return videoID, fmt.Errorf("download stage: %w", err)
	}

	if err := p.segment(ctx, videoID, localPath); err != nil {
		p.recordFailure(ctx, videoID, fmt.Sprintf("Chunking failed: %v", err))
		return videoID, fmt.Errorf("segment stage: %w", err)
	}

	if err := p.caption(ctx, videoID); err != nil {
		p.recordFailure(ctx, videoID, fmt.Sprintf("Captioning failed: %v", err))
		return videoID, fmt.Errorf("caption stage: %w", err)
	}

	if err := p.summarize(ctx, videoID); err != nil {
		p.recordFailure(ctx, videoID, fmt.Sprintf("Summarization failed: %v", err))
		return videoID, fmt.Errorf("summarize stage: %w", err)
	}

	if err := p.index(ctx, videoID); err != nil {
		p.recordFailure(ctx, videoID, fmt.Sprintf("Indexing failed: %v", err))
		return videoID, fmt.Errorf("index stage: %w", err)
	}

	p.log(ctx).WithFields(logger.Fields{
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Info("Video pipeline finished")
	return videoID, nil
}

// recordFailure is best effort; the stage error is what callers see.
func (p *Pipeline) recordFailure(ctx context.Context, videoID, message string) {
	err := p.docs.UpdateVideo(ctx, videoID, func(rec *domain.VideoRecord) error {
		rec.ProcessingStatus = domain.ProcessingStatusFailed
		rec.ErrorMessage = message
		return nil
	})
	if err != nil {
		p.log(ctx).WithError(err).Error("Failed to record pipeline failure")
	}
}
