package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/timmy/vidqa/internal/domain"
	"github.com/timmy/vidqa/internal/logger"
	"github.com/timmy/vidqa/internal/storage"
)

// ReadInteractions fetches the interactions log for a video. A missing or
// corrupt log yields an empty list rather than an error so that status
// polling stays usable while the first interaction is still being written.
func (s *Store) ReadInteractions(ctx context.Context, videoID string) ([]domain.InteractionRecord, error) {
	key := InteractionsKey(videoID)
	body, err := s.storage.Download(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return []domain.InteractionRecord{}, nil
		}
		return nil, fmt.Errorf("read interactions for %s: %w", videoID, err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read interactions for %s: %w", videoID, err)
	}

	var interactions []domain.InteractionRecord
	if err := json.Unmarshal(data, &interactions); err != nil {
		logger.CtxWarn(ctx, "corrupt interactions log for %s, treating as empty: %v", videoID, err)
		return []domain.InteractionRecord{}, nil
	}
	return interactions, nil
}

// AppendInteraction adds a new interaction to the log. The read-modify-write
// cycle is retried on storage errors like UpdateVideo; near-simultaneous
// appends can still race and one may be lost.
func (s *Store) AppendInteraction(ctx context.Context, videoID string, interaction domain.InteractionRecord) error {
	var lastErr error
	for attempt := 0; attempt < updateRetries; attempt++ {
		if attempt > 0 {
			s.sleep(retryBackoff(attempt))
		}

		interactions, err := s.ReadInteractions(ctx, videoID)
		if err != nil {
			lastErr = err
			continue
		}

		interactions = append(interactions, interaction)
		if err := s.putJSON(ctx, InteractionsKey(videoID), interactions); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("append interaction %s after %d attempts: %w", interaction.InteractionID, updateRetries, lastErr)
}

// UpdateInteraction sets the status and, when non-empty, the answer of an
// existing interaction. The answer timestamp is stamped on every update so
// failed interactions also record when they resolved. An unknown interaction
// id is logged and ignored; nothing is written in that case. Storage errors
// retry the whole read-modify-write cycle like UpdateVideo.
func (s *Store) UpdateInteraction(ctx context.Context, videoID, interactionID string, status domain.InteractionStatus, aiAnswer string) error {
	var lastErr error
	for attempt := 0; attempt < updateRetries; attempt++ {
		if attempt > 0 {
			s.sleep(retryBackoff(attempt))
		}

		interactions, err := s.ReadInteractions(ctx, videoID)
		if err != nil {
			lastErr = err
			continue
		}
		if len(interactions) == 0 {
			logger.CtxWarn(ctx, "interactions log for %s is empty, cannot update %s", videoID, interactionID)
			return nil
		}

		found := false
		for i := range interactions {
			if interactions[i].InteractionID != interactionID {
				continue
			}
			interactions[i].Status = status
			interactions[i].AnswerTimestamp = time.Now().UTC().Format(time.RFC3339)
			if aiAnswer != "" {
				interactions[i].AIAnswer = aiAnswer
			}
			found = true
		}
		if !found {
			logger.CtxWarn(ctx, "interaction %s not found in log for %s, no update performed", interactionID, videoID)
			return nil
		}

		if err := s.putJSON(ctx, InteractionsKey(videoID), interactions); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("update interaction %s after %d attempts: %w", interactionID, updateRetries, lastErr)
}
