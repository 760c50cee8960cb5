package metadata

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/slipstream/catalogsync/internal/metadata/tmdb"
)

const defaultTitleTTL = 24 * time.Hour

// TitleFinder looks up a title by IMDb id.
type TitleFinder interface {
	IsConfigured() bool
	FindByIMDbID(ctx context.Context, imdbID string, series bool) (*tmdb.Title, error)
}

// Resolver resolves external ids to display titles, caching results.
type Resolver struct {
	finder TitleFinder
	cache  *Cache[tmdb.Title]
	ttl    time.Duration
	logger zerolog.Logger
}

// NewResolver creates a title resolver. A nil or unconfigured finder makes
// every lookup fall back to the external id itself.
func NewResolver(finder TitleFinder, cache *Cache[tmdb.Title], ttl time.Duration, logger zerolog.Logger) *Resolver {
	if ttl <= 0 {
		ttl = defaultTitleTTL
	}
	if cache == nil {
		cache = NewCache[tmdb.Title](0)
	}
	return &Resolver{
		finder: finder,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With().Str("component", "metadata").Logger(),
	}
}

// ResolveTitle returns a display title for the external id. found is false
// when the provider knows nothing about the id; the returned title then
// carries the id as its name.
func (r *Resolver) ResolveTitle(ctx context.Context, externalID string, series bool) (title tmdb.Title, found bool, err error) {
	fallback := tmdb.Title{Name: externalID, IsSeries: series}
	if r.finder == nil || !r.finder.IsConfigured() {
		return fallback, true, nil
	}

	key := cacheKey(externalID, series)
	if cached, ok := r.cache.Get(key); ok {
		return cached, true, nil
	}

	t, err := r.finder.FindByIMDbID(ctx, externalID, series)
	if err != nil {
		if errors.Is(err, tmdb.ErrNotFound) {
			return fallback, false, nil
		}
		return fallback, false, err
	}

	r.cache.Set(key, *t, r.ttl)
	return *t, true, nil
}

// Invalidate drops any cached title for the external id.
func (r *Resolver) Invalidate(externalID string) {
	r.cache.Invalidate(cacheKey(externalID, false))
	r.cache.Invalidate(cacheKey(externalID, true))
}

func cacheKey(externalID string, series bool) string {
	if series {
		return "tv:" + externalID
	}
	return "movie:" + externalID
}
