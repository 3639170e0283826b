package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/timmy/vidqa/internal/docstore"
	"github.com/timmy/vidqa/internal/domain"
	"github.com/timmy/vidqa/internal/logger"
	"github.com/timmy/vidqa/internal/storage"
)

type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStorage() *memStorage {
	return &memStorage{objects: make(map[string][]byte)}
}

func (m *memStorage) Upload(_ context.Context, key string, reader io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memStorage) Download(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
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

func newTestRouter(t *testing.T) (http.Handler, *docstore.Store) {
	t.Helper()
	docs := docstore.New(newMemStorage())
	log := logger.New(&logger.Config{Level: "error", Format: "json", ServiceName: "test"})
	r := SetupRouter(RouterDeps{
		Docs:   docs,
		Logger: log,
	}, "test")
	return r, docs
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doRequest(t, r, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %q", resp["status"])
	}
}

func TestQueryAsync_InvalidBody(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doRequest(t, r, http.MethodPost, "/api/v1/query/async", `{"video_id": "abc"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing user_query, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Invalid request") {
		t.Errorf("expected validation error in body, got %s", w.Body.String())
	}
}

func TestProcessAndQueryAsync_InvalidBody(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doRequest(t, r, http.MethodPost, "/api/v1/process_and_query/async", `{"user_query": "what happens?"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing video_url, got %d", w.Code)
	}
}

func TestStatus_NotFound(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doRequest(t, r, http.MethodGet, "/api/v1/query/status/ghost-video", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Status not available for video ghost-video") {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestStatus_ReturnsInteractions(t *testing.T) {
	r, docs := newTestRouter(t)
	ctx := context.Background()

	if err := docs.WriteVideo(ctx, &domain.VideoRecord{
		VideoID:          "creator-1",
		ProcessingStatus: domain.ProcessingStatusFinished,
	}); err != nil {
		t.Fatalf("WriteVideo failed: %v", err)
	}
	if err := docs.AppendInteraction(ctx, "creator-1", domain.InteractionRecord{
		InteractionID: "int-1",
		UserQuery:     "what is shown?",
		Status:        domain.InteractionStatusCompleted,
		AIAnswer:      "A dog racing through a park.",
	}); err != nil {
		t.Fatalf("AppendInteraction failed: %v", err)
	}

	w := doRequest(t, r, http.MethodGet, "/api/v1/query/status/creator-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		VideoID          string                     `json:"video_id"`
		ProcessingStatus domain.ProcessingStatus    `json:"processing_status"`
		Interactions     []domain.InteractionRecord `json:"interactions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if resp.VideoID != "creator-1" {
		t.Errorf("expected video_id creator-1, got %q", resp.VideoID)
	}
	if resp.ProcessingStatus != domain.ProcessingStatusFinished {
		t.Errorf("expected FINISHED, got %q", resp.ProcessingStatus)
	}
	if len(resp.Interactions) != 1 || resp.Interactions[0].AIAnswer != "A dog racing through a park." {
		t.Errorf("unexpected interactions: %+v", resp.Interactions)
	}
}

func TestStatus_NoInteractionsYet(t *testing.T) {
	r, docs := newTestRouter(t)
	ctx := context.Background()

	if err := docs.SetProcessingStatus(ctx, "creator-2", domain.ProcessingStatusProcessing); err != nil {
		t.Fatalf("SetProcessingStatus failed: %v", err)
	}

	w := doRequest(t, r, http.MethodGet, "/api/v1/query/status/creator-2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"interactions":[]`) {
		t.Errorf("expected empty interactions array, got %s", w.Body.String())
	}
}

func TestForYou_Empty(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doRequest(t, r, http.MethodGet, "/api/v1/videos/foryou", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("expected empty array, got %s", w.Body.String())
	}
}

func TestForYou_SamplesFinishedVideos(t *testing.T) {
	r, docs := newTestRouter(t)
	ctx := context.Background()

	for _, id := range []string{"done-1", "done-2", "done-3", "done-4"} {
		if err := docs.WriteVideo(ctx, &domain.VideoRecord{
			VideoID:          id,
			ProcessingStatus: domain.ProcessingStatusFinished,
		}); err != nil {
			t.Fatalf("WriteVideo failed: %v", err)
		}
	}
	if err := docs.WriteVideo(ctx, &domain.VideoRecord{
		VideoID:          "pending-1",
		ProcessingStatus: domain.ProcessingStatusProcessing,
	}); err != nil {
		t.Fatalf("WriteVideo failed: %v", err)
	}

	w := doRequest(t, r, http.MethodGet, "/api/v1/videos/foryou", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var videos []struct {
		VideoID  string `json:"video_id"`
		VideoURL string `json:"video_url"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &videos); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if len(videos) != 3 {
		t.Fatalf("expected 3 sampled videos, got %d", len(videos))
	}
	for _, v := range videos {
		if v.VideoID == "pending-1" {
			t.Errorf("unfinished video leaked into feed: %+v", v)
		}
		if !strings.HasPrefix(v.VideoURL, "https://cdn.example.com/video-data/") {
			t.Errorf("unexpected video URL %q", v.VideoURL)
		}
	}
}

func TestCORSHeaders(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/videos/foryou", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected wildcard origin with no allowlist, got %q", got)
	}
}
