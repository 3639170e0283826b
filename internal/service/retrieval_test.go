package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/timmy/vidqa/internal/domain"
	"github.com/timmy/vidqa/internal/index"
	"github.com/timmy/vidqa/internal/logger"
)

type recordingSearcher struct {
	gotVideoID string
	gotTopK    int
	hits       []index.ScoredSegment
	err        error
}

func (r *recordingSearcher) Search(_ context.Context, _ []float32, topK int, videoID string) ([]index.ScoredSegment, error) {
	r.gotVideoID = videoID
	r.gotTopK = topK
	return r.hits, r.err
}

func newRetrievalForTest(t *testing.T, searcher SegmentSearcher) *RetrievalService {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":[{"embedding":[0.1,0.2],"index":0}]}`)
	}))
	t.Cleanup(srv.Close)
	embedding := NewEmbeddingService(&EmbeddingConfig{BaseURL: srv.URL, Model: "test-embed", Dimensions: 2})
	log := logger.New(&logger.Config{Level: "error", Format: "json", ServiceName: "test"})
	return NewRetrievalService(embedding, searcher, 3, log)
}

func TestRetrieve_ScopesToVideoAndKeepsOrder(t *testing.T) {
	searcher := &recordingSearcher{hits: []index.ScoredSegment{
		{Score: 0.91, Payload: &index.SegmentPayload{ChunkName: "creator-1-Scene-002", Caption: "second scene"}},
		{Score: 0.80, Payload: nil},
		{Score: 0.77, Payload: &index.SegmentPayload{ChunkName: "creator-1-Scene-001", Caption: "first scene"}},
	}}
	s := newRetrievalForTest(t, searcher)

	matches, err := s.Retrieve(context.Background(), "creator-1", "what happens second?")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if searcher.gotVideoID != "creator-1" {
		t.Errorf("search not scoped to video, got %q", searcher.gotVideoID)
	}
	if searcher.gotTopK != 3 {
		t.Errorf("expected topK 3, got %d", searcher.gotTopK)
	}
	// Similarity order is preserved and the payload-less hit is dropped.
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].ChunkName != "creator-1-Scene-002" || matches[1].ChunkName != "creator-1-Scene-001" {
		t.Errorf("order not preserved: %+v", matches)
	}
	if matches[0].Score != 0.91 {
		t.Errorf("score not carried over: %v", matches[0].Score)
	}
}

func TestRetrieve_SearchFailureDegradesToEmpty(t *testing.T) {
	searcher := &recordingSearcher{err: fmt.Errorf("index down")}
	s := newRetrievalForTest(t, searcher)

	matches, err := s.Retrieve(context.Background(), "creator-1", "anything")
	if err != nil {
		t.Fatalf("index failure must not be fatal: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("expected empty matches, got %+v", matches)
	}
}

func TestAssembleContext_NoMatches(t *testing.T) {
	video := &domain.VideoRecord{VideoID: "creator-1"}

	got := AssembleContext(video, nil)
	want := strings.Join([]string{
		"Video Summary:",
		"No summary available.",
		"",
		"Username of TikTok account that posted this video:",
		"creator",
		"",
		"Potentially Relevant Video Clips (in order from most to least relevant):",
		"---",
		"(No specific video clips retrieved based on query)",
	}, "\n")
	if got != want {
		t.Errorf("context mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestAssembleContext_FullMetadata(t *testing.T) {
	video := &domain.VideoRecord{
		VideoID:              "creator-1",
		OverallSummary:       "A dog fetches a ball.",
		KeyThemes:            "dogs, play",
		TotalDurationSeconds: 12.5,
	}
	matches := []domain.SegmentMatch{
		{
			Caption:             "the dog sprints across the lawn",
			StartTimestamp:      "00:00.000",
			EndTimestamp:        "00:02.500",
			NormalizedStartTime: 0,
			NormalizedEndTime:   0.2,
		},
		{
			Caption:             "",
			StartTimestamp:      "00:05.000",
			EndTimestamp:        "00:07.500",
			NormalizedStartTime: 0.4,
			NormalizedEndTime:   0.6,
		},
	}

	got := AssembleContext(video, matches)

	for _, fragment := range []string{
		"A dog fetches a ball.",
		"Username of TikTok account that posted this video:\ncreator",
		"Key Themes:\ndogs, play",
		"Total Video Duration: 12.50 seconds",
		"the dog sprints across the lawn",
		"(Caption text missing)",
		"(near the beginning)",
		"(around the middle)",
	} {
		if !strings.Contains(got, fragment) {
			t.Errorf("context missing %q:\n%s", fragment, got)
		}
	}

	// Clips are separated, not trailed, by dividers.
	if strings.Count(got, "---") != 2 {
		t.Errorf("expected 2 dividers, got %d:\n%s", strings.Count(got, "---"), got)
	}
}

func TestPositionHint(t *testing.T) {
	tests := []struct {
		name      string
		normStart float64
		normEnd   float64
		want      string
	}{
		{"opening clip", 0, 0.25, " (near the beginning)"},
		{"closing clip", 0.9, 1.0, " (near the end)"},
		{"spans both ends", 0.05, 0.95, " (near the beginning and near the end)"},
		{"middle clip", 0.3, 0.6, " (around the middle)"},
		{"end boundary", 0.2, 0.85, " (near the end)"},
		{"begin boundary", 0.15, 0.5, " (near the beginning)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := positionHint(tt.normStart, tt.normEnd); got != tt.want {
				t.Errorf("positionHint(%g, %g) = %q, want %q", tt.normStart, tt.normEnd, got, tt.want)
			}
		})
	}
}
