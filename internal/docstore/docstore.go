// Package docstore persists pipeline state as JSON documents in object
// storage. Each video owns two documents under video-data/<video_id>/:
// the metadata record and the interactions log. There is no database;
// read-modify-write on these documents is the only mutation primitive,
// and concurrent writers can lose updates (acceptable for this workload).
package docstore

import (
	"bytes"
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

// ErrNotFound is returned when a video's metadata document does not exist.
var ErrNotFound = errors.New("video document not found")

const (
	videoDataPrefix = "video-data/"
	contentTypeJSON = "application/json"

	updateRetries = 3
)

// Store reads and writes video documents in object storage.
type Store struct {
	storage storage.ObjectStorage

	// sleep is swappable in tests to avoid real backoff waits.
	sleep func(time.Duration)
}

// New creates a Store over the given object storage backend.
func New(s storage.ObjectStorage) *Store {
	return &Store{storage: s, sleep: time.Sleep}
}

// retryBackoff is the wait before the given retry attempt: 2s, then 4s.
func retryBackoff(attempt int) time.Duration {
	return time.Duration(2<<(attempt-1)) * time.Second
}

// VideoKey returns the object key of the metadata document.
func VideoKey(videoID string) string {
	return fmt.Sprintf("%s%s/%s.json", videoDataPrefix, videoID, videoID)
}

// InteractionsKey returns the object key of the interactions log.
func InteractionsKey(videoID string) string {
	return fmt.Sprintf("%s%s/interactions.json", videoDataPrefix, videoID)
}

// VideoFileKey returns the object key of the stored source video file.
func VideoFileKey(videoID string) string {
	return fmt.Sprintf("%s%s/%s.mp4", videoDataPrefix, videoID, videoID)
}

// SegmentFileKey returns the object key for a segment clip upload.
func SegmentFileKey(videoID, chunkName string) string {
	return fmt.Sprintf("%s%s/chunks/%s.mp4", videoDataPrefix, videoID, chunkName)
}

// VideoFileURL returns the public URL of the stored source video file.
func (s *Store) VideoFileURL(videoID string) string {
	return s.storage.GetURL(VideoFileKey(videoID))
}

// ReadVideo fetches and decodes the metadata document.
// Returns ErrNotFound when the document does not exist.
func (s *Store) ReadVideo(ctx context.Context, videoID string) (*domain.VideoRecord, error) {
	key := VideoKey(videoID)
	body, err := s.storage.Download(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, fmt.Errorf("read video %s: %w", videoID, ErrNotFound)
		}
		return nil, fmt.Errorf("read video %s: %w", videoID, err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read video %s: %w", videoID, err)
	}

	var record domain.VideoRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode video %s: %w", videoID, err)
	}
	return &record, nil
}

// WriteVideo encodes and stores the metadata document, replacing any
// previous version.
func (s *Store) WriteVideo(ctx context.Context, record *domain.VideoRecord) error {
	return s.putJSON(ctx, VideoKey(record.VideoID), record)
}

// UpdateVideo applies mutate to the current metadata document and writes the
// result back. The whole read-modify-write cycle is retried on storage
// errors with exponential backoff starting at 2s; ErrNotFound and mutate
// errors are not retried.
func (s *Store) UpdateVideo(ctx context.Context, videoID string, mutate func(*domain.VideoRecord) error) error {
	var lastErr error
	for attempt := 0; attempt < updateRetries; attempt++ {
		if attempt > 0 {
			s.sleep(retryBackoff(attempt))
		}

		record, err := s.ReadVideo(ctx, videoID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return err
			}
			lastErr = err
			continue
		}

		if err := mutate(record); err != nil {
			return fmt.Errorf("update video %s: %w", videoID, err)
		}

		if err := s.WriteVideo(ctx, record); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("update video %s after %d attempts: %w", videoID, updateRetries, lastErr)
}

// SetProcessingStatus writes the top-level processing status, creating a
// minimal document when none exists yet. Used by the pipeline to mark
// PROCESSING before the download stage has produced a full record.
func (s *Store) SetProcessingStatus(ctx context.Context, videoID string, status domain.ProcessingStatus) error {
	var lastErr error
	for attempt := 0; attempt < updateRetries; attempt++ {
		if attempt > 0 {
			s.sleep(retryBackoff(attempt))
		}

		record, err := s.ReadVideo(ctx, videoID)
		if errors.Is(err, ErrNotFound) {
			record = &domain.VideoRecord{VideoID: videoID}
		} else if err != nil {
			lastErr = err
			continue
		}

		record.ProcessingStatus = status
		if err := s.WriteVideo(ctx, record); err != nil {
			lastErr = err
			continue
		}
		logger.CtxInfo(ctx, "set processing_status=%s for video %s", status, videoID)
		return nil
	}
	return fmt.Errorf("set status for video %s after %d attempts: %w", videoID, updateRetries, lastErr)
}

func (s *Store) putJSON(ctx context.Context, key string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.storage.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), contentTypeJSON); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}
