package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestEmbeddingService_EmbedBatch_PlacesByIndex(t *testing.T) {
	var gotBody embeddingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		// Items deliberately out of order; the client must place by index.
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":[
			{"embedding":[0.4,0.5],"index":1},
			{"embedding":[0.1,0.2],"index":0}
		],"usage":{"total_tokens":8}}`)
	}))
	defer srv.Close()

	s := NewEmbeddingService(&EmbeddingConfig{BaseURL: srv.URL, Model: "text-embedding-3-small", Dimensions: 2})

	got, err := s.EmbedBatch(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(got))
	}
	if got[0][0] != 0.1 || got[1][0] != 0.4 {
		t.Errorf("vectors not placed by index: %v", got)
	}
	if gotBody.Model != "text-embedding-3-small" || gotBody.Dimensions != 2 || len(gotBody.Input) != 2 {
		t.Errorf("unexpected request: %+v", gotBody)
	}
}

func TestEmbeddingService_EmbedBatch_Empty(t *testing.T) {
	s := NewEmbeddingService(&EmbeddingConfig{BaseURL: "http://unused", Model: "m"})
	got, err := s.EmbedBatch(context.Background(), nil)
	if err != nil || len(got) != 0 {
		t.Errorf("empty batch: got (%v, %v)", got, err)
	}
}

func TestEmbeddingService_EmbedBatch_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":[{"embedding":[0.1],"index":0}]}`)
	}))
	defer srv.Close()

	s := NewEmbeddingService(&EmbeddingConfig{BaseURL: srv.URL, Model: "m"})
	_, err := s.EmbedBatch(context.Background(), []string{"a", "b"})
	if err == nil || !strings.Contains(err.Error(), "unexpected number of embeddings") {
		t.Errorf("expected count mismatch error, got %v", err)
	}
}

func TestEmbeddingService_EmbedBatch_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"invalid api key","type":"auth"}}`)
	}))
	defer srv.Close()

	s := NewEmbeddingService(&EmbeddingConfig{BaseURL: srv.URL, Model: "m"})
	_, err := s.Embed(context.Background(), "text")
	if err == nil || !strings.Contains(err.Error(), "invalid api key") {
		t.Errorf("expected API error to surface the message, got %v", err)
	}
}
