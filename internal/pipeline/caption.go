package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/timmy/vidqa/internal/docstore"
	"github.com/timmy/vidqa/internal/domain"
	"github.com/timmy/vidqa/internal/logger"
	"github.com/timmy/vidqa/internal/prompts"
	"github.com/timmy/vidqa/internal/service"
)

const captionBackoffBase = 2 * time.Second

// caption generates a description for every segment that does not have one
// yet. Segments are processed by a bounded worker pool; each worker retries
// transient provider failures with exponential backoff and jitter. A failed
// segment gets a nil caption and an error note, never a stage failure.
func (p *Pipeline) caption(ctx context.Context, videoID string) error {
	ctx = logger.SetStage(ctx, "caption")

	rec, err := p.docs.ReadVideo(ctx, videoID)
	if err != nil {
		return fmt.Errorf("failed to read metadata document: %w", err)
	}
	if len(rec.Chunks) == 0 {
		return fmt.Errorf("no segments recorded for %s", videoID)
	}

	var pending []domain.SegmentMetadata
	for _, c := range rec.Chunks {
		if c.Caption == nil || *c.Caption == "" {
			pending = append(pending, c)
		}
	}
	if len(pending) == 0 {
		p.log(ctx).Info("All segments already captioned, skipping captioning")
		return nil
	}

	chunksDir := filepath.Join(p.cfg.WorkDir, videoID, "chunks")
	if err := os.MkdirAll(chunksDir, 0o755); err != nil {
		return fmt.Errorf("failed to create chunks directory: %w", err)
	}

	// Resolve a local clip for each pending segment, restoring from object
	// storage when the work directory lost it.
	var missing []string
	var toProcess []captionJob
	for _, c := range pending {
		localPath := filepath.Join(chunksDir, c.ChunkName+".mp4")
		if _, statErr := os.Stat(localPath); statErr != nil {
			if fetchErr := p.fetchObjectToFile(ctx, docstore.SegmentFileKey(videoID, c.ChunkName), localPath); fetchErr != nil {
				p.log(ctx).WithError(fetchErr).WithFields(logger.Fields{"chunk": c.ChunkName}).Warn("Segment clip unavailable locally and in storage")
				missing = append(missing, c.ChunkName+".mp4")
				continue
			}
		}
		toProcess = append(toProcess, captionJob{chunkName: c.ChunkName, localPath: localPath})
	}

	p.log(ctx).WithFields(logger.Fields{
		logger.FieldCount: len(toProcess),
		"missing_files":   len(missing),
	}).Info("Starting caption generation")

	results := make(map[string]captionResult, len(toProcess))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.CaptionWorkers)
	for _, job := range toProcess {
		job := job
		g.Go(func() error {
			caption, err := p.captionWithRetry(gctx, job.localPath)
			mu.Lock()
			results[job.chunkName] = captionResult{caption: caption, err: err}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
		}
	}

	err = p.docs.UpdateVideo(ctx, videoID, func(rec *domain.VideoRecord) error {
		for i := range rec.Chunks {
			chunk := &rec.Chunks[i]
			if r, ok := results[chunk.ChunkName]; ok {
				if r.err != nil {
					chunk.Caption = nil
					chunk.CaptionError = r.err.Error()
				} else {
					caption := r.caption
					chunk.Caption = &caption
					chunk.CaptionError = ""
				}
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			rec.CaptioningWarnings = append(rec.CaptioningWarnings,
				fmt.Sprintf("Missing chunk files: %s", strings.Join(missing, ", ")))
		}
		if failed > 0 {
			rec.CaptioningErrors = append(rec.CaptioningErrors,
				fmt.Sprintf("%d chunk(s) failed caption generation", failed))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record captions: %w", err)
	}

	p.log(ctx).WithFields(logger.Fields{
		"succeeded": len(toProcess) - failed,
		"failed":    failed,
	}).Info("Caption generation complete")
	return nil
}

type captionJob struct {
	chunkName string
	localPath string
}

type captionResult struct {
	caption string
	err     error
}

// captionWithRetry attempts the caption up to CaptionRetries times. Only
// errors the provider marks transient are retried; the backoff doubles per
// attempt with up to one second of jitter.
func (p *Pipeline) captionWithRetry(ctx context.Context, localPath string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < p.cfg.CaptionRetries; attempt++ {
		caption, err := p.captioner.Caption(ctx, localPath, prompts.CaptionPrompt)
		if err == nil {
			return caption, nil
		}
		lastErr = err
		if !service.IsRetryable(err) {
			break
		}
		if attempt < p.cfg.CaptionRetries-1 {
			backoff := captionBackoffBase*(1<<attempt) + time.Duration(p.jitter()*float64(time.Second))
			p.log(ctx).WithError(err).WithFields(logger.Fields{
				"file":    filepath.Base(localPath),
				"attempt": attempt + 1,
				"backoff": backoff.String(),
			}).Warn("Retryable captioning error")
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			p.sleep(backoff)
		}
	}
	return "", lastErr
}
