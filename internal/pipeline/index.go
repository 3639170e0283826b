package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/timmy/vidqa/internal/domain"
	"github.com/timmy/vidqa/internal/index"
	"github.com/timmy/vidqa/internal/logger"
)

// indexOutcome accumulates what the indexing run produced before it is
// merged into the metadata document.
type indexOutcome struct {
	status      domain.IndexingStatus
	upserted    int
	errs        []string
	warnings    []string
	completedAt string
}

// index embeds the captioned segments that are not in the vector index yet
// and upserts them in batches. The stage always finishes by marking the
// overall processing FINISHED, even when it recorded partial errors, so the
// video becomes queryable with whatever made it in.
func (p *Pipeline) index(ctx context.Context, videoID string) error {
	ctx = logger.SetStage(ctx, "index")

	rec, err := p.docs.ReadVideo(ctx, videoID)
	if err != nil {
		return fmt.Errorf("failed to read metadata document: %w", err)
	}

	switch rec.IndexingStatus {
	case domain.IndexingStatusCompleted, domain.IndexingStatusSkippedNoCaptions, domain.IndexingStatusSkippedAlreadyDone:
		p.log(ctx).WithFields(logger.Fields{"indexing_status": rec.IndexingStatus}).Info("Indexing already resolved, skipping")
		return p.finalize(ctx, videoID, nil)
	}

	// Mark the run in progress immediately so a crash is visible in the
	// document rather than looking like an unstarted stage.
	err = p.docs.UpdateVideo(ctx, videoID, func(rec *domain.VideoRecord) error {
		rec.IndexingStatus = domain.IndexingStatusInProgress
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to mark indexing in progress: %w", err)
	}

	outcome := p.runIndexing(ctx, videoID, rec)
	return p.finalize(ctx, videoID, outcome)
}

func (p *Pipeline) runIndexing(ctx context.Context, videoID string, rec *domain.VideoRecord) *indexOutcome {
	outcome := &indexOutcome{
		completedAt: time.Now().UTC().Format(time.RFC3339),
	}

	captioned := rec.CaptionedChunks()
	if len(captioned) == 0 {
		p.log(ctx).Warn("No captioned segments to index")
		outcome.status = domain.IndexingStatusSkippedNoCaptions
		return outcome
	}

	// Existence check against the index; a fetch failure degrades to
	// attempting every segment, which upserts are idempotent about.
	chunkNames := make([]string, 0, len(captioned))
	for _, c := range captioned {
		chunkNames = append(chunkNames, c.ChunkName)
	}

	fetchFailed := false
	existing := map[string]bool{}
	for start := 0; start < len(chunkNames); start += p.cfg.ExistenceFetchBatch {
		end := min(start+p.cfg.ExistenceFetchBatch, len(chunkNames))
		batch, err := p.idx.ExistingChunkNames(ctx, chunkNames[start:end])
		if err != nil {
			p.log(ctx).WithError(err).Warn("Failed to fetch existing vectors, attempting all segments")
			fetchFailed = true
			outcome.warnings = append(outcome.warnings, fmt.Sprintf("Failed to fetch existing IDs: %v", err))
			existing = map[string]bool{}
			break
		}
		for name := range batch {
			existing[name] = true
		}
	}

	var toProcess []domain.SegmentMetadata
	for _, c := range captioned {
		if !existing[c.ChunkName] {
			toProcess = append(toProcess, c)
		}
	}
	p.log(ctx).WithFields(logger.Fields{
		"captioned": len(captioned),
		"existing":  len(existing),
		"to_index":  len(toProcess),
	}).Info("Resolved segments to index")

	embeddingFailed := false
	upsertFailed := false

	if len(toProcess) > 0 {
		vectors := make([][]float32, len(toProcess))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.cfg.EmbedWorkers)
		for i, c := range toProcess {
			i, c := i, c
			g.Go(func() error {
				vec, err := p.embedding.Embed(gctx, *c.Caption)
				if err != nil {
					p.log(ctx).WithError(err).WithFields(logger.Fields{"chunk": c.ChunkName}).Error("Embedding failed")
					return nil
				}
				vectors[i] = vec
				return nil
			})
		}
		_ = g.Wait()

		var points []index.SegmentPoint
		skipped := 0
		for i, c := range toProcess {
			if vectors[i] == nil {
				embeddingFailed = true
				skipped++
				outcome.errs = append(outcome.errs,
					fmt.Sprintf("Embedding failed for caption starting: %s", truncate(*c.Caption, 50)))
				continue
			}
			points = append(points, index.SegmentPoint{
				Vector: vectors[i],
				Payload: index.SegmentPayload{
					VideoID:             videoID,
					ChunkName:           c.ChunkName,
					Caption:             *c.Caption,
					StartTimestamp:      c.StartTimestamp,
					EndTimestamp:        c.EndTimestamp,
					NormalizedStartTime: c.NormalizedStartTime,
					NormalizedEndTime:   c.NormalizedEndTime,
				},
			})
		}
		if skipped > 0 {
			outcome.warnings = append(outcome.warnings,
				fmt.Sprintf("%d chunks skipped due to embedding errors", skipped))
		}

		// Upsert in batches; a failed batch stops further upserts but keeps
		// the progress already made.
		for start := 0; start < len(points); start += p.cfg.UpsertBatchSize {
			end := min(start+p.cfg.UpsertBatchSize, len(points))
			batch := points[start:end]
			if err := p.idx.UpsertBatch(ctx, batch); err != nil {
				batchNum := start/p.cfg.UpsertBatchSize + 1
				p.log(ctx).WithError(err).WithFields(logger.Fields{"batch": batchNum}).Error("Vector upsert batch failed")
				outcome.errs = append(outcome.errs, fmt.Sprintf("Upsert failed for batch %d: %v", batchNum, err))
				upsertFailed = true
				break
			}
			outcome.upserted += len(batch)
		}
	}

	switch {
	case upsertFailed || embeddingFailed || fetchFailed:
		outcome.status = domain.IndexingStatusCompletedWithErrors
	case len(toProcess) > 0:
		outcome.status = domain.IndexingStatusCompleted
	default:
		outcome.status = domain.IndexingStatusSkippedAlreadyDone
	}
	return outcome
}

// finalize merges the indexing outcome (if any) and marks the document
// FINISHED regardless, closing out the pipeline.
func (p *Pipeline) finalize(ctx context.Context, videoID string, outcome *indexOutcome) error {
	err := p.docs.UpdateVideo(ctx, videoID, func(rec *domain.VideoRecord) error {
		rec.ProcessingStatus = domain.ProcessingStatusFinished
		if outcome != nil {
			rec.IndexingStatus = outcome.status
			rec.VectorsIndexedCount += outcome.upserted
			rec.IndexingErrors = append(rec.IndexingErrors, outcome.errs...)
			rec.IndexingWarnings = append(rec.IndexingWarnings, outcome.warnings...)
			rec.IndexingCompletedAt = outcome.completedAt
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record final status: %w", err)
	}

	fields := logger.Fields{logger.FieldStatus: string(domain.ProcessingStatusFinished)}
	if outcome != nil {
		fields["indexing_status"] = string(outcome.status)
		fields["upserted"] = outcome.upserted
	}
	p.log(ctx).WithFields(fields).Info("Indexing stage finished")
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
