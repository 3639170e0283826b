package docstore

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/timmy/vidqa/internal/domain"
	"github.com/timmy/vidqa/internal/logger"
)

// ListFinishedVideoIDs scans the video-data/ prefix and returns the ids of
// every video whose metadata document reports FINISHED. Videos whose
// document is missing or unreadable are skipped with a warning.
func (s *Store) ListFinishedVideoIDs(ctx context.Context) ([]string, error) {
	keys, err := s.storage.List(ctx, videoDataPrefix)
	if err != nil {
		return nil, fmt.Errorf("list video documents: %w", err)
	}

	var ids []string
	for _, key := range keys {
		videoID, ok := videoIDFromMetadataKey(key)
		if !ok {
			continue
		}
		record, err := s.ReadVideo(ctx, videoID)
		if err != nil {
			logger.CtxWarn(ctx, "skipping %s while listing finished videos: %v", videoID, err)
			continue
		}
		if record.ProcessingStatus == domain.ProcessingStatusFinished {
			ids = append(ids, videoID)
		}
	}
	return ids, nil
}

// videoIDFromMetadataKey reports whether key names a metadata document
// (video-data/<id>/<id>.json) and extracts the id.
func videoIDFromMetadataKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, videoDataPrefix)
	if !ok {
		return "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		return "", false
	}
	if parts[1] != parts[0]+".json" {
		return "", false
	}
	return parts[0], true
}

// ClearAllInteractions deletes every interactions.json under video-data/,
// with bounded concurrency. Used by the housekeeping subcommand to reset
// demo state between runs. Returns the number of logs deleted.
func (s *Store) ClearAllInteractions(ctx context.Context, concurrency int) (int, error) {
	if concurrency <= 0 {
		concurrency = 8
	}

	keys, err := s.storage.List(ctx, videoDataPrefix)
	if err != nil {
		return 0, fmt.Errorf("list interaction logs: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	deleted := 0
	for _, key := range keys {
		if !strings.HasSuffix(key, "/interactions.json") {
			continue
		}
		deleted++
		g.Go(func() error {
			if err := s.storage.Delete(gctx, key); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}
	return deleted, nil
}
