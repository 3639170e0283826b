package docstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/timmy/vidqa/internal/domain"
	"github.com/timmy/vidqa/internal/storage"
)

// memStorage is an in-memory ObjectStorage for tests. failDownloads makes
// the next N Download calls fail with a transient error.
type memStorage struct {
	mu            sync.Mutex
	objects       map[string][]byte
	failDownloads int
	failUploads   int
	downloadCalls int
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}}
}

func (m *memStorage) Upload(_ context.Context, key string, reader io.Reader, _ int64, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUploads > 0 {
		m.failUploads--
		return errors.New("simulated upload failure")
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *memStorage) Download(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloadCalls++
	if m.failDownloads > 0 {
		m.failDownloads--
		return nil, errors.New("simulated download failure")
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStorage) GetURL(key string) string {
	return "https://cdn.example.com/" + key
}

func (m *memStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memStorage) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memStorage) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *memStorage) EnsureBucket(context.Context) error { return nil }

func newTestStore(m *memStorage) *Store {
	s := New(m)
	s.sleep = func(time.Duration) {}
	return s
}

func TestObjectKeys(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{VideoKey("user-123"), "video-data/user-123/user-123.json"},
		{InteractionsKey("user-123"), "video-data/user-123/interactions.json"},
		{VideoFileKey("user-123"), "video-data/user-123/user-123.mp4"},
		{SegmentFileKey("user-123", "user-123-Scene-001"), "video-data/user-123/chunks/user-123-Scene-001.mp4"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got key %q, want %q", tt.got, tt.want)
		}
	}
}

func TestReadVideo_NotFound(t *testing.T) {
	s := newTestStore(newMemStorage())
	_, err := s.ReadVideo(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestWriteReadVideo_Roundtrip(t *testing.T) {
	s := newTestStore(newMemStorage())
	ctx := context.Background()

	in := &domain.VideoRecord{
		VideoID:          "user-123",
		SourceURL:        "https://www.tiktok.com/@user/video/123",
		ProcessingStatus: domain.ProcessingStatusProcessing,
		UploaderName:     "user",
		LikeCount:        42,
	}
	if err := s.WriteVideo(ctx, in); err != nil {
		t.Fatalf("WriteVideo failed: %v", err)
	}

	out, err := s.ReadVideo(ctx, "user-123")
	if err != nil {
		t.Fatalf("ReadVideo failed: %v", err)
	}
	if out.SourceURL != in.SourceURL || out.LikeCount != 42 || out.ProcessingStatus != domain.ProcessingStatusProcessing {
		t.Errorf("roundtrip mismatch: %+v", out)
	}
}

func TestUpdateVideo_RetriesTransientReadFailure(t *testing.T) {
	m := newMemStorage()
	s := newTestStore(m)
	ctx := context.Background()

	if err := s.WriteVideo(ctx, &domain.VideoRecord{VideoID: "v-1"}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	m.failDownloads = 1

	err := s.UpdateVideo(ctx, "v-1", func(rec *domain.VideoRecord) error {
		rec.OverallSummary = "updated"
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateVideo failed: %v", err)
	}

	rec, err := s.ReadVideo(ctx, "v-1")
	if err != nil {
		t.Fatalf("ReadVideo failed: %v", err)
	}
	if rec.OverallSummary != "updated" {
		t.Errorf("mutation not applied, summary = %q", rec.OverallSummary)
	}
}

func TestUpdateVideo_NotFoundIsNotRetried(t *testing.T) {
	m := newMemStorage()
	s := newTestStore(m)

	err := s.UpdateVideo(context.Background(), "missing", func(*domain.VideoRecord) error { return nil })
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if m.downloadCalls != 1 {
		t.Errorf("expected a single read attempt, got %d", m.downloadCalls)
	}
}

func TestUpdateVideo_MutateErrorAborts(t *testing.T) {
	s := newTestStore(newMemStorage())
	ctx := context.Background()
	if err := s.WriteVideo(ctx, &domain.VideoRecord{VideoID: "v-1"}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	wantErr := errors.New("mutate rejected")
	err := s.UpdateVideo(ctx, "v-1", func(*domain.VideoRecord) error { return wantErr })
	if !errors.Is(err, wantErr) {
		t.Errorf("expected mutate error, got %v", err)
	}
}

func TestSetProcessingStatus_CreatesMinimalDocument(t *testing.T) {
	s := newTestStore(newMemStorage())
	ctx := context.Background()

	if err := s.SetProcessingStatus(ctx, "fresh-1", domain.ProcessingStatusProcessing); err != nil {
		t.Fatalf("SetProcessingStatus failed: %v", err)
	}

	rec, err := s.ReadVideo(ctx, "fresh-1")
	if err != nil {
		t.Fatalf("ReadVideo failed: %v", err)
	}
	if rec.VideoID != "fresh-1" || rec.ProcessingStatus != domain.ProcessingStatusProcessing {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestVideoIDFromMetadataKey(t *testing.T) {
	tests := []struct {
		key    string
		wantID string
		wantOK bool
	}{
		{"video-data/user-123/user-123.json", "user-123", true},
		{"video-data/user-123/interactions.json", "", false},
		{"video-data/user-123/chunks/user-123-Scene-001.mp4", "", false},
		{"video-data/user-123/other.json", "", false},
		{"elsewhere/user-123/user-123.json", "", false},
	}
	for _, tt := range tests {
		id, ok := videoIDFromMetadataKey(tt.key)
		if id != tt.wantID || ok != tt.wantOK {
			t.Errorf("videoIDFromMetadataKey(%q) = (%q, %v), want (%q, %v)", tt.key, id, ok, tt.wantID, tt.wantOK)
		}
	}
}

func TestListFinishedVideoIDs(t *testing.T) {
	m := newMemStorage()
	s := newTestStore(m)
	ctx := context.Background()

	if err := s.WriteVideo(ctx, &domain.VideoRecord{VideoID: "done-1", ProcessingStatus: domain.ProcessingStatusFinished}); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteVideo(ctx, &domain.VideoRecord{VideoID: "pending-1", ProcessingStatus: domain.ProcessingStatusProcessing}); err != nil {
		t.Fatal(err)
	}
	// Non-metadata objects must be ignored.
	m.objects["video-data/done-1/done-1.mp4"] = []byte("binary")
	m.objects["video-data/done-1/interactions.json"] = []byte("[]")

	ids, err := s.ListFinishedVideoIDs(ctx)
	if err != nil {
		t.Fatalf("ListFinishedVideoIDs failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "done-1" {
		t.Errorf("expected [done-1], got %v", ids)
	}
}

func TestReadInteractions_MissingAndCorrupt(t *testing.T) {
	m := newMemStorage()
	s := newTestStore(m)
	ctx := context.Background()

	got, err := s.ReadInteractions(ctx, "v-1")
	if err != nil || len(got) != 0 {
		t.Errorf("missing log: got (%v, %v), want empty", got, err)
	}

	m.objects[InteractionsKey("v-1")] = []byte("{not json")
	got, err = s.ReadInteractions(ctx, "v-1")
	if err != nil || len(got) != 0 {
		t.Errorf("corrupt log: got (%v, %v), want empty", got, err)
	}
}

func TestAppendAndUpdateInteraction(t *testing.T) {
	s := newTestStore(newMemStorage())
	ctx := context.Background()

	first := domain.InteractionRecord{
		InteractionID:  "int-1",
		UserName:       "viewer",
		UserQuery:      "what happens at the end?",
		QueryTimestamp: "2026-08-28T10:00:00Z",
		Status:         domain.InteractionStatusProcessing,
	}
	if err := s.AppendInteraction(ctx, "v-1", first); err != nil {
		t.Fatalf("AppendInteraction failed: %v", err)
	}

	if err := s.UpdateInteraction(ctx, "v-1", "int-1", domain.InteractionStatusCompleted, "the dog wins"); err != nil {
		t.Fatalf("UpdateInteraction failed: %v", err)
	}

	got, err := s.ReadInteractions(ctx, "v-1")
	if err != nil {
		t.Fatalf("ReadInteractions failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 interaction, got %d", len(got))
	}
	if got[0].Status != domain.InteractionStatusCompleted || got[0].AIAnswer != "the dog wins" {
		t.Errorf("unexpected interaction: %+v", got[0])
	}
	if got[0].AnswerTimestamp == "" {
		t.Error("answer timestamp not stamped")
	}
}

func TestUpdateInteraction_FailedKeepsExistingAnswer(t *testing.T) {
	s := newTestStore(newMemStorage())
	ctx := context.Background()

	if err := s.AppendInteraction(ctx, "v-1", domain.InteractionRecord{
		InteractionID: "int-1",
		Status:        domain.InteractionStatusProcessing,
	}); err != nil {
		t.Fatal(err)
	}

	// Empty answer marks status only.
	if err := s.UpdateInteraction(ctx, "v-1", "int-1", domain.InteractionStatusFailed, ""); err != nil {
		t.Fatalf("UpdateInteraction failed: %v", err)
	}
	got, _ := s.ReadInteractions(ctx, "v-1")
	if got[0].Status != domain.InteractionStatusFailed || got[0].AIAnswer != "" {
		t.Errorf("unexpected interaction: %+v", got[0])
	}
}

func TestUpdateInteraction_UnknownIDIsIgnored(t *testing.T) {
	s := newTestStore(newMemStorage())
	ctx := context.Background()

	if err := s.AppendInteraction(ctx, "v-1", domain.InteractionRecord{InteractionID: "int-1"}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateInteraction(ctx, "v-1", "nope", domain.InteractionStatusCompleted, "answer"); err != nil {
		t.Fatalf("expected unknown id to be ignored, got %v", err)
	}
	got, _ := s.ReadInteractions(ctx, "v-1")
	if got[0].AIAnswer != "" {
		t.Errorf("unexpected write to unmatched interaction: %+v", got[0])
	}
}

func TestClearAllInteractions(t *testing.T) {
	m := newMemStorage()
	s := newTestStore(m)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		videoID := fmt.Sprintf("v-%d", i)
		m.objects[InteractionsKey(videoID)] = []byte("[]")
		m.objects[VideoKey(videoID)] = []byte("{}")
	}

	deleted, err := s.ClearAllInteractions(ctx, 2)
	if err != nil {
		t.Fatalf("ClearAllInteractions failed: %v", err)
	}
	if deleted != 3 {
		t.Errorf("expected 3 deletions, got %d", deleted)
	}
	for i := 0; i < 3; i++ {
		videoID := fmt.Sprintf("v-%d", i)
		if _, ok := m.objects[InteractionsKey(videoID)]; ok {
			t.Errorf("interactions log for %s not deleted", videoID)
		}
		if _, ok := m.objects[VideoKey(videoID)]; !ok {
			t.Errorf("metadata document for %s was deleted", videoID)
		}
	}
}

func TestVideoFileURL(t *testing.T) {
	s := newTestStore(newMemStorage())
	want := "https://cdn.example.com/video-data/user-123/user-123.mp4"
	if got := s.VideoFileURL("user-123"); got != want {
		t.Errorf("VideoFileURL = %q, want %q", got, want)
	}
}

func TestAppendInteraction_RetriesTransientReadFailure(t *testing.T) {
	m := newMemStorage()
	s := newTestStore(m)
	ctx := context.Background()

	m.failDownloads = 1
	interaction := domain.InteractionRecord{
		InteractionID: "int-1",
		UserQuery:     "does the append survive a blip?",
		Status:        domain.InteractionStatusProcessing,
	}
	if err := s.AppendInteraction(ctx, "v-1", interaction); err != nil {
		t.Fatalf("AppendInteraction failed: %v", err)
	}
	if m.downloadCalls != 2 {
		t.Errorf("expected 2 read attempts, got %d", m.downloadCalls)
	}

	interactions, err := s.ReadInteractions(ctx, "v-1")
	if err != nil {
		t.Fatalf("ReadInteractions failed: %v", err)
	}
	if len(interactions) != 1 || interactions[0].InteractionID != "int-1" {
		t.Errorf("interaction not recorded: %+v", interactions)
	}
}

func TestAppendInteraction_ExhaustedRetries(t *testing.T) {
	m := newMemStorage()
	s := newTestStore(m)
	ctx := context.Background()

	m.failDownloads = 3
	err := s.AppendInteraction(ctx, "v-1", domain.InteractionRecord{InteractionID: "int-1"})
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestUpdateInteraction_RetriesTransientWriteFailure(t *testing.T) {
	m := newMemStorage()
	s := newTestStore(m)
	ctx := context.Background()

	if err := s.AppendInteraction(ctx, "v-1", domain.InteractionRecord{
		InteractionID: "int-1",
		Status:        domain.InteractionStatusProcessing,
	}); err != nil {
		t.Fatalf("AppendInteraction failed: %v", err)
	}

	m.failUploads = 1
	if err := s.UpdateInteraction(ctx, "v-1", "int-1", domain.InteractionStatusCompleted, "the dog wins"); err != nil {
		t.Fatalf("UpdateInteraction failed: %v", err)
	}

	interactions, err := s.ReadInteractions(ctx, "v-1")
	if err != nil {
		t.Fatalf("ReadInteractions failed: %v", err)
	}
	if interactions[0].Status != domain.InteractionStatusCompleted || interactions[0].AIAnswer != "the dog wins" {
		t.Errorf("terminal status lost across the retry: %+v", interactions[0])
	}
}

func TestRetryBackoffStartsAtTwoSeconds(t *testing.T) {
	m := newMemStorage()
	s := New(m)
	var slept []time.Duration
	s.sleep = func(d time.Duration) { slept = append(slept, d) }
	ctx := context.Background()

	m.failDownloads = 3
	if err := s.UpdateVideo(ctx, "v-1", func(*domain.VideoRecord) error { return nil }); err == nil {
		t.Fatal("expected error after exhausted retries")
	}

	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(slept) != len(want) {
		t.Fatalf("expected %d backoff sleeps, got %v", len(want), slept)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Errorf("sleep %d = %v, want %v", i, slept[i], want[i])
		}
	}
}
