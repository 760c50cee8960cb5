package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slipstream/catalogsync/internal/config"
)

var skipPattern = regexp.MustCompile(`/skip=(\d+)\.json$`)

// catalogServer serves pages of the given sizes in order, regardless of the cursor.
type catalogServer struct {
	mu       sync.Mutex
	pages    []int
	served   int
	requests []string
	status   map[int]int // page index -> status code
	nextID   int
}

func (s *catalogServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.requests = append(s.requests, r.URL.EscapedPath())
		idx := s.served
		s.served++

		if code, ok := s.status[idx]; ok {
			w.WriteHeader(code)
			return
		}

		size := 0
		if idx < len(s.pages) {
			size = s.pages[idx]
		}

		metas := make([]Item, size)
		for i := range metas {
			s.nextID++
			metas[i] = Item{ID: fmt.Sprintf("tt%07d", s.nextID), Name: fmt.Sprintf("Item %d", s.nextID), Type: "movie"}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(pageResponse{Metas: metas}); err != nil {
			t.Errorf("encode: %v", err)
		}
	}
}

func (s *catalogServer) skips(t *testing.T) []int {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]int, 0, len(s.requests))
	for _, p := range s.requests {
		m := skipPattern.FindStringSubmatch(p)
		if m == nil {
			out = append(out, 0)
			continue
		}
		n, err := strconv.Atoi(m[1])
		require.NoError(t, err)
		out = append(out, n)
	}
	return out
}

func newTestClient(maxItems int) *Client {
	return NewClient(config.CatalogConfig{Timeout: 5 * time.Second, MaxItems: maxItems, UserAgent: "test"}, zerolog.Nop())
}

func TestFetchCatalog_CursorIsRunningCount(t *testing.T) {
	cs := &catalogServer{pages: []int{37, 100, 12, 0}}
	server := httptest.NewServer(cs.handler(t))
	defer server.Close()

	client := newTestClient(1000)
	items, err := client.FetchCatalog(context.Background(), Source{BaseURL: server.URL, CatalogID: "top", Kind: KindMovie}, 0)
	require.NoError(t, err)

	assert.Len(t, items, 149)
	assert.Equal(t, []int{0, 37, 137, 149}, cs.skips(t))
	assert.Equal(t, "/catalog/movie/top.json", cs.requests[0])
	assert.Equal(t, "/catalog/movie/top/skip=37.json", cs.requests[1])
}

func TestFetchCatalog_MaxItemsBound(t *testing.T) {
	cs := &catalogServer{pages: []int{100, 100, 100, 100, 100}}
	server := httptest.NewServer(cs.handler(t))
	defer server.Close()

	client := newTestClient(1000)
	items, err := client.FetchCatalog(context.Background(), Source{BaseURL: server.URL, CatalogID: "top", Kind: KindMovie}, 50)
	require.NoError(t, err)

	assert.Len(t, items, 50)
	assert.Len(t, cs.requests, 1, "first page already satisfies maxItems")
}

func TestFetchCatalog_DefaultMaxItemsFromConfig(t *testing.T) {
	cs := &catalogServer{pages: []int{20, 20, 20}}
	server := httptest.NewServer(cs.handler(t))
	defer server.Close()

	client := newTestClient(30)
	items, err := client.FetchCatalog(context.Background(), Source{BaseURL: server.URL, CatalogID: "top", Kind: KindSeries}, 0)
	require.NoError(t, err)
	assert.Len(t, items, 30)
	assert.Equal(t, []int{0, 20}, cs.skips(t))
}

func TestFetchCatalog_NonSuccessIsSoft(t *testing.T) {
	cs := &catalogServer{pages: []int{10, 10, 10}, status: map[int]int{1: http.StatusBadGateway}}
	server := httptest.NewServer(cs.handler(t))
	defer server.Close()

	client := newTestClient(1000)
	items, err := client.FetchCatalog(context.Background(), Source{BaseURL: server.URL, CatalogID: "top", Kind: KindMovie}, 0)

	assert.Len(t, items, 10)
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusBadGateway, fetchErr.StatusCode)
	assert.Equal(t, 10, fetchErr.Fetched)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestFetchCatalog_TransportErrorIsSoft(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := newTestClient(100)
	items, err := client.FetchCatalog(context.Background(), Source{BaseURL: url, CatalogID: "top", Kind: KindMovie}, 0)

	assert.Empty(t, items)
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Zero(t, fetchErr.StatusCode)
}

func TestFetchCatalog_EscapesCatalogID(t *testing.T) {
	cs := &catalogServer{pages: []int{0}}
	server := httptest.NewServer(cs.handler(t))
	defer server.Close()

	client := newTestClient(100)
	_, err := client.FetchCatalog(context.Background(), Source{BaseURL: server.URL + "/manifest.json", CatalogID: "top rated", Kind: KindMovie}, 0)
	require.NoError(t, err)
	require.Len(t, cs.requests, 1)
	assert.Equal(t, "/catalog/movie/top%20rated.json", cs.requests[0])
}

func TestFetchCatalog_YieldsItemsWithoutExternalID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if skipPattern.MatchString(r.URL.Path) {
			json.NewEncoder(w).Encode(pageResponse{})
			return
		}
		json.NewEncoder(w).Encode(pageResponse{Metas: []Item{
			{ID: "tt0000001", Name: "A"},
			{ID: "kitsu:42", Name: "B"},
		}})
	}))
	defer server.Close()

	client := newTestClient(100)
	items, err := client.FetchCatalog(context.Background(), Source{BaseURL: server.URL, CatalogID: "anime", Kind: KindSeries}, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "", items[1].ExternalID())
}

func TestFetchCatalog_InvalidSource(t *testing.T) {
	client := newTestClient(100)

	tests := []struct {
		name string
		src  Source
	}{
		{"missing base", Source{CatalogID: "x", Kind: KindMovie}},
		{"missing catalog", Source{BaseURL: "http://x", Kind: KindMovie}},
		{"bad kind", Source{BaseURL: "http://x", CatalogID: "x", Kind: "anime"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.FetchCatalog(context.Background(), tt.src, 10)
			assert.ErrorIs(t, err, ErrInvalidSource)
		})
	}
}

func TestProbeKind(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/catalog/movie/shows.json":
			json.NewEncoder(w).Encode(pageResponse{})
		case "/catalog/series/shows.json":
			json.NewEncoder(w).Encode(pageResponse{Metas: []Item{{ID: "tt0903747"}}})
		default:
			json.NewEncoder(w).Encode(pageResponse{})
		}
	}))
	defer server.Close()

	client := newTestClient(100)
	kind, items, err := client.ProbeKind(context.Background(), server.URL, "shows", 0)
	require.NoError(t, err)
	assert.Equal(t, KindSeries, kind)
	assert.Len(t, items, 1)

	_, _, err = client.ProbeKind(context.Background(), server.URL, "nothing", 0)
	assert.ErrorIs(t, err, ErrEmptyCatalog)
}

func TestFetchManifest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/manifest.json" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(Manifest{
			ID:      "org.example.lists",
			Name:    "Lists",
			Version: "1.0.0",
			Types:   []string{"movie", "series"},
			Catalogs: []ManifestCatalog{
				{Type: "movie", ID: "top", Name: "Top Movies"},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(100)
	m, err := client.FetchManifest(context.Background(), server.URL+"/manifest.json")
	require.NoError(t, err)
	assert.Equal(t, "Lists", m.Name)

	c, ok := m.FindCatalog("TOP", KindMovie)
	assert.True(t, ok)
	assert.Equal(t, "Top Movies", c.Name)

	_, ok = m.FindCatalog("top", KindSeries)
	assert.False(t, ok)
}

func TestNormalizeBaseURL(t *testing.T) {
	tests := map[string]string{
		"https://addon.example/":              "https://addon.example",
		"https://addon.example/manifest.json": "https://addon.example",
		" https://addon.example/cfg/ ":        "https://addon.example/cfg",
		"":                                    "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeBaseURL(in), in)
	}
}

func TestItem_ExternalID(t *testing.T) {
	tests := []struct {
		name string
		item Item
		want string
	}{
		{"raw tt id", Item{ID: "tt0111161"}, "tt0111161"},
		{"imdb field wins", Item{ID: "tmdb:278", ImdbID: "tt0111161"}, "tt0111161"},
		{"imdb field over raw tt", Item{ID: "tt0000001", ImdbID: "tt0000002"}, "tt0000002"},
		{"suffix stripped", Item{ID: "tt0903747:1:2"}, "tt0903747"},
		{"upper case", Item{ID: "TT0111161"}, "tt0111161"},
		{"malformed imdb falls back", Item{ID: "tt0000003", ImdbID: "n/a"}, "tt0000003"},
		{"no id", Item{ID: "kitsu:1"}, ""},
		{"empty", Item{}, ""},
		{"bare prefix", Item{ID: "tt"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.item.ExternalID())
		})
	}
}

func TestParseMediaKind(t *testing.T) {
	k, err := ParseMediaKind(" Series ")
	require.NoError(t, err)
	assert.Equal(t, KindSeries, k)
	assert.Equal(t, "tv", k.ImporterKind())
	assert.Equal(t, "movie", KindMovie.ImporterKind())

	_, err = ParseMediaKind("channel")
	assert.ErrorIs(t, err, ErrInvalidSource)
}
