package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/timmy/vidqa/internal/domain"
	"github.com/timmy/vidqa/internal/index"
	"github.com/timmy/vidqa/internal/logger"
	"github.com/timmy/vidqa/internal/prompts"
)

// SegmentSearcher finds indexed segments by vector similarity, restricted
// to a single video.
type SegmentSearcher interface {
	Search(ctx context.Context, vector []float32, topK int, videoID string) ([]index.ScoredSegment, error)
}

// RetrievalService embeds a user query and fetches the most relevant
// captioned segments for a single video from the vector index.
type RetrievalService struct {
	embedding *EmbeddingService
	idx       SegmentSearcher
	topK      int
	logger    *logger.Logger
}

// NewRetrievalService creates a new retrieval service
func NewRetrievalService(embedding *EmbeddingService, idx SegmentSearcher, topK int, log *logger.Logger) *RetrievalService {
	if topK <= 0 {
		topK = 3
	}
	return &RetrievalService{
		embedding: embedding,
		idx:       idx,
		topK:      topK,
		logger:    log,
	}
}

func (s *RetrievalService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// Retrieve returns up to topK segment matches for the query, restricted to
// the given video. An embedding failure is fatal; an index failure degrades
// to an empty result so context assembly can still proceed.
func (s *RetrievalService) Retrieve(ctx context.Context, videoID, userQuery string) ([]domain.SegmentMatch, error) {
	start := time.Now()
	vector, err := s.embedding.Embed(ctx, userQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	s.log(ctx).WithFields(logger.Fields{
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Debug("Embedded user query")

	scored, err := s.idx.Search(ctx, vector, s.topK, videoID)
	if err != nil {
		s.log(ctx).WithError(err).WithFields(logger.Fields{
			logger.FieldVideoID: videoID,
		}).Error("Vector search failed, proceeding with empty retrieval")
		return []domain.SegmentMatch{}, nil
	}

	matches := make([]domain.SegmentMatch, 0, len(scored))
	for _, hit := range scored {
		if hit.Payload == nil {
			continue
		}
		matches = append(matches, domain.SegmentMatch{
			ChunkName:           hit.Payload.ChunkName,
			Caption:             hit.Payload.Caption,
			StartTimestamp:      hit.Payload.StartTimestamp,
			EndTimestamp:        hit.Payload.EndTimestamp,
			NormalizedStartTime: hit.Payload.NormalizedStartTime,
			NormalizedEndTime:   hit.Payload.NormalizedEndTime,
			Score:               hit.Score,
		})
	}

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldVideoID: videoID,
		logger.FieldCount:   len(matches),
	}).Info("Retrieved relevant segments")
	return matches, nil
}

// AssembleContext renders the video metadata and retrieved clips into the
// context block consumed by the downstream prompts. Matches must be in
// relevance order; the clip listing preserves it.
func AssembleContext(video *domain.VideoRecord, matches []domain.SegmentMatch) string {
	summary := video.OverallSummary
	if summary == "" {
		summary = "No summary available."
	}

	var parts []string
	parts = append(parts, "Video Summary:")
	parts = append(parts, summary)

	if handle := domain.UploaderHandle(video.VideoID); handle != "" {
		parts = append(parts, fmt.Sprintf("\nUsername of TikTok account that posted this video:\n%s", handle))
	}

	if video.KeyThemes != "" {
		parts = append(parts, "\nKey Themes:")
		parts = append(parts, video.KeyThemes)
	}

	if video.TotalDurationSeconds > 0 {
		parts = append(parts, fmt.Sprintf("\nTotal Video Duration: %.2f seconds", video.TotalDurationSeconds))
	}

	parts = append(parts, "\nPotentially Relevant Video Clips (in order from most to least relevant):")
	parts = append(parts, "---")

	if len(matches) == 0 {
		parts = append(parts, prompts.NoClipsPlaceholder)
	} else {
		for i, m := range matches {
			caption := m.Caption
			if caption == "" {
				caption = "(Caption text missing)"
			}
			parts = append(parts, fmt.Sprintf("Video Clip from %s to %s %s:", m.StartTimestamp, m.EndTimestamp, positionHint(m.NormalizedStartTime, m.NormalizedEndTime)))
			parts = append(parts, caption)
			if i < len(matches)-1 {
				parts = append(parts, "---")
			}
		}
	}

	return strings.Join(parts, "\n")
}

// positionHint describes where a clip sits in the video. A clip can be
// near both ends at once when it spans most of a short video.
func positionHint(normStart, normEnd float64) string {
	var hints []string
	if normStart <= 0.15 {
		hints = append(hints, "near the beginning")
	}
	if normEnd >= 0.85 {
		hints = append(hints, "near the end")
	}
	if len(hints) == 0 && normStart > 0.15 && normEnd < 0.85 {
		hints = append(hints, "around the middle")
	}
	if len(hints) == 0 {
		return ""
	}
	return fmt.Sprintf(" (%s)", strings.Join(hints, " and "))
}
