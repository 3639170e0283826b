package pipeline

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/timmy/vidqa/internal/docstore"
	"github.com/timmy/vidqa/internal/domain"
	"github.com/timmy/vidqa/internal/logger"
)

// segment detects scene boundaries, cuts the video into per-scene clips
// and records the segment metadata. When detection yields one scene or
// fewer, the stage falls back to fixed-length windows so every video gets
// captionable intervals.
func (p *Pipeline) segment(ctx context.Context, videoID, localPath string) error {
	ctx = logger.SetStage(ctx, "segment")

	rec, err := p.docs.ReadVideo(ctx, videoID)
	if err != nil {
		return fmt.Errorf("failed to read metadata document: %w", err)
	}
	if len(rec.Chunks) > 0 {
		p.log(ctx).Info("Segments already recorded, skipping segmentation")
		return nil
	}

	duration, err := p.splitter.Probe(ctx, localPath)
	if err != nil {
		return fmt.Errorf("failed to probe video: %w", err)
	}
	if duration <= 0 {
		return fmt.Errorf("probed non-positive duration %f", duration)
	}

	scenes, err := p.splitter.DetectScenes(ctx, localPath)
	if err != nil {
		return fmt.Errorf("scene detection failed: %w", err)
	}

	detectionMethod := "Scene Detection"
	if len(scenes) <= 1 {
		p.log(ctx).WithFields(logger.Fields{
			"detected": len(scenes),
			"window_s": p.cfg.FallbackWindowSecs,
		}).Info("Too few scenes detected, using fixed-length windows")
		detectionMethod = fmt.Sprintf("Fixed %gs Chunking", p.cfg.FallbackWindowSecs)
		scenes = fixedWindows(duration, p.cfg.FallbackWindowSecs)
	}
	if len(scenes) == 0 {
		return fmt.Errorf("no segments produced for %f second video", duration)
	}

	chunks := make([]domain.SegmentMetadata, 0, len(scenes))
	for i, scene := range scenes {
		number := i + 1
		start, end := scene.Start, scene.End
		if end <= start {
			end = start + 0.04
		}
		chunks = append(chunks, domain.SegmentMetadata{
			ChunkName:            fmt.Sprintf("%s-Scene-%03d", videoID, number),
			ChunkNumber:          number,
			StartTimestamp:       formatTimestamp(start),
			EndTimestamp:         formatTimestamp(end),
			NormalizedStartTime:  round3(start / duration),
			NormalizedEndTime:    round3(end / duration),
			ChunkDurationSeconds: round3(end - start),
		})
	}

	chunksDir := filepath.Join(p.cfg.WorkDir, videoID, "chunks")
	if err := os.MkdirAll(chunksDir, 0o755); err != nil {
		return fmt.Errorf("failed to create chunks directory: %w", err)
	}

	outPaths := make([]string, len(chunks))
	for i, c := range chunks {
		outPaths[i] = filepath.Join(chunksDir, c.ChunkName+".mp4")
	}
	if err := p.splitter.Split(ctx, localPath, scenes, outPaths); err != nil {
		return fmt.Errorf("failed to split video: %w", err)
	}

	// Verify and upload the produced clips. Missing or empty files are a
	// warning on the record, not a stage failure.
	verified := 0
	for i, c := range chunks {
		info, statErr := os.Stat(outPaths[i])
		if statErr != nil || info.Size() == 0 {
			p.log(ctx).WithFields(logger.Fields{"chunk": c.ChunkName}).Warn("Segment clip missing or empty after split")
			continue
		}
		if err := p.uploadFile(ctx, outPaths[i], docstore.SegmentFileKey(videoID, c.ChunkName), "video/mp4"); err != nil {
			p.log(ctx).WithError(err).WithFields(logger.Fields{"chunk": c.ChunkName}).Warn("Failed to upload segment clip")
			continue
		}
		verified++
	}

	var warnings []string
	if verified != len(chunks) {
		warnings = append(warnings, fmt.Sprintf("Only %d/%d chunks verified successfully.", verified, len(chunks)))
	}

	err = p.docs.UpdateVideo(ctx, videoID, func(rec *domain.VideoRecord) error {
		rec.NumChunks = len(chunks)
		rec.TotalDurationSeconds = round3(duration)
		rec.DetectionMethod = detectionMethod
		rec.Chunks = chunks
		rec.ChunkingWarnings = append(rec.ChunkingWarnings, warnings...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record segments: %w", err)
	}

	p.log(ctx).WithFields(logger.Fields{
		logger.FieldCount:  len(chunks),
		"verified":         verified,
		"detection_method": detectionMethod,
	}).Info("Segmentation complete")
	return nil
}

// fixedWindows tiles [0, duration) with windowSecs-long scenes; the final
// window is clamped to the video end.
func fixedWindows(duration, windowSecs float64) []Scene {
	count := int(math.Ceil(duration / windowSecs))
	scenes := make([]Scene, 0, count)
	for i := 0; i < count; i++ {
		start := float64(i) * windowSecs
		end := math.Min(start+windowSecs, duration)
		if start >= end {
			continue
		}
		scenes = append(scenes, Scene{Start: start, End: end})
	}
	return scenes
}

// formatTimestamp renders seconds as "mm:ss.mmm".
func formatTimestamp(seconds float64) string {
	minutes := int(seconds) / 60
	rem := seconds - float64(minutes*60)
	return fmt.Sprintf("%02d:%06.3f", minutes, rem)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
