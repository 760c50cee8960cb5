package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/slipstream/catalogsync/internal/config"
)

func newTestClient(server *httptest.Server) *Client {
	cfg := config.TMDBConfig{
		APIKey:  "test-api-key",
		BaseURL: server.URL,
		Timeout: 5,
	}
	c := NewClient(cfg, zerolog.Nop())
	c.retryDelay = time.Millisecond
	return c
}

func TestClient_IsConfigured(t *testing.T) {
	tests := []struct {
		name   string
		apiKey string
		want   bool
	}{
		{"with key", "abc123", true},
		{"without key", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(config.TMDBConfig{APIKey: tt.apiKey}, zerolog.Nop())
			if got := client.IsConfigured(); got != tt.want {
				t.Errorf("IsConfigured() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClient_FindByIMDbID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/find/tt0903747" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("external_source"); got != "imdb_id" {
			t.Errorf("external_source = %q", got)
		}
		if got := r.URL.Query().Get("api_key"); got != "test-api-key" {
			t.Errorf("api_key = %q", got)
		}
		json.NewEncoder(w).Encode(FindResponse{
			MovieResults: []MovieResult{{ID: 1, Title: "Movie Cut", ReleaseDate: "2013-01-01"}},
			TVResults:    []TVResult{{ID: 1396, Name: "Breaking Bad", FirstAirDate: "2008-01-20"}},
		})
	}))
	defer server.Close()

	client := newTestClient(server)

	title, err := client.FindByIMDbID(context.Background(), "tt0903747", true)
	if err != nil {
		t.Fatalf("FindByIMDbID() error = %v", err)
	}
	if title.Name != "Breaking Bad" || title.Year != 2008 || !title.IsSeries {
		t.Errorf("unexpected series title: %+v", title)
	}

	title, err = client.FindByIMDbID(context.Background(), "tt0903747", false)
	if err != nil {
		t.Fatalf("FindByIMDbID() error = %v", err)
	}
	if title.Name != "Movie Cut" || title.IsSeries {
		t.Errorf("unexpected movie title: %+v", title)
	}
}

func TestClient_FindByIMDbID_NoResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(FindResponse{})
	}))
	defer server.Close()

	_, err := newTestClient(server).FindByIMDbID(context.Background(), "tt0000000", false)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestClient_NotConfigured(t *testing.T) {
	client := NewClient(config.TMDBConfig{}, zerolog.Nop())
	if _, err := client.FindByIMDbID(context.Background(), "tt1", false); !errors.Is(err, ErrAPIKeyMissing) {
		t.Errorf("expected ErrAPIKeyMissing, got %v", err)
	}
}

func TestClient_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(FindResponse{MovieResults: []MovieResult{{ID: 278, Title: "The Shawshank Redemption"}}})
	}))
	defer server.Close()

	title, err := newTestClient(server).FindByIMDbID(context.Background(), "tt0111161", false)
	if err != nil {
		t.Fatalf("FindByIMDbID() error = %v", err)
	}
	if title.TMDBID != 278 {
		t.Errorf("TMDBID = %d, want 278", title.TMDBID)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(ErrorResponse{StatusCode: 7, StatusMessage: "Invalid API key"})
	}))
	defer server.Close()

	_, err := newTestClient(server).FindByIMDbID(context.Background(), "tt1", false)
	if !errors.Is(err, ErrAPIError) {
		t.Errorf("expected ErrAPIError, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestClient_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestClient(server).FindByIMDbID(context.Background(), "tt1", false)
	if !errors.Is(err, ErrAPIError) {
		t.Errorf("expected ErrAPIError, got %v", err)
	}
	if calls.Load() != maxAttempts {
		t.Errorf("calls = %d, want %d", calls.Load(), maxAttempts)
	}
}
