// Package importer materializes catalog items in the local library as .strm
// placeholders pointing at the addon's stream endpoint.
package importer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/slipstream/catalogsync/internal/catalog"
	"github.com/slipstream/catalogsync/internal/library/media"
	"github.com/slipstream/catalogsync/internal/metadata/tmdb"
)

var (
	ErrInvalidExternalID = errors.New("invalid external id")
	ErrNoLibraryRoot     = errors.New("library root is not configured")
)

const (
	moviesDir = "movies"
	seriesDir = "tv"
)

// TitleResolver resolves an external id to a display title. found is false
// when the provider does not know the id.
type TitleResolver interface {
	ResolveTitle(ctx context.Context, externalID string, series bool) (title tmdb.Title, found bool, err error)
}

// AddonLocator returns the base URL of the addon that serves streams.
type AddonLocator interface {
	BaseURL(ctx context.Context) (string, error)
}

// MediaRegistry stores imported items.
type MediaRegistry interface {
	FindByExternalID(ctx context.Context, externalID string) (*media.Item, error)
	Create(ctx context.Context, input media.CreateItemInput) (*media.Item, error)
}

// StrmImporter imports items by writing a .strm file into the library and
// registering it in the media store.
type StrmImporter struct {
	fs     afero.Fs
	root   string
	store  MediaRegistry
	titles TitleResolver
	addon  AddonLocator
	logger zerolog.Logger

	// mu serialises filesystem writes and store registration.
	mu sync.Mutex
}

// NewStrmImporter creates a .strm importer rooted at root on fs.
func NewStrmImporter(fs afero.Fs, root string, store MediaRegistry, titles TitleResolver, addon AddonLocator, logger zerolog.Logger) *StrmImporter {
	return &StrmImporter{
		fs:     fs,
		root:   filepath.Clean(strings.TrimSpace(root)),
		store:  store,
		titles: titles,
		addon:  addon,
		logger: logger.With().Str("component", "importer").Logger(),
	}
}

// ImportByExternalID imports the item identified by externalID. It returns
// (nil, nil) when the title provider does not recognise the id. Importing an
// id that is already registered returns the existing item.
func (i *StrmImporter) ImportByExternalID(ctx context.Context, externalID string, kind catalog.MediaKind) (*media.Item, error) {
	id := catalog.NormalizeExternalID(externalID)
	if id == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidExternalID, externalID)
	}
	if i.root == "" || i.root == "." {
		return nil, ErrNoLibraryRoot
	}

	series := kind == catalog.KindSeries
	title, found, err := i.titles.ResolveTitle(ctx, id, series)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve title for %s: %w", id, err)
	}
	if !found {
		i.logger.Info().Str("externalId", id).Msg("Title provider does not know item, skipping import")
		return nil, nil
	}

	base, err := i.addon.BaseURL(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve addon url: %w", err)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if existing, err := i.store.FindByExternalID(ctx, id); err == nil {
		return existing, nil
	} else if !errors.Is(err, media.ErrNotFound) {
		return nil, err
	}

	filePath := i.strmPath(title, id, series)
	if err := i.fs.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create item directory: %w", err)
	}
	if err := afero.WriteFile(i.fs, filePath, []byte(StreamURL(base, kind, id)+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write strm file: %w", err)
	}

	item, err := i.store.Create(ctx, media.CreateItemInput{
		ExternalID: id,
		Kind:       kind.ImporterKind(),
		Title:      displayTitle(title, id),
		Path:       filePath,
	})
	if err != nil {
		if rmErr := i.fs.Remove(filePath); rmErr != nil {
			i.logger.Warn().Err(rmErr).Str("path", filePath).Msg("Failed to remove strm file after registration error")
		}
		return nil, err
	}

	i.logger.Info().
		Str("externalId", id).
		Str("title", item.Title).
		Str("path", filePath).
		Msg("Imported item")

	return item, nil
}

func (i *StrmImporter) strmPath(title tmdb.Title, id string, series bool) string {
	folder := SanitizeName(displayTitle(title, id))
	if folder == "" {
		folder = id
	}
	if folder != id {
		folder = fmt.Sprintf("%s [%s]", folder, id)
	}

	dir := moviesDir
	if series {
		dir = seriesDir
	}
	return filepath.Join(i.root, dir, folder, id+".strm")
}

// StreamURL returns the addon stream endpoint for the item.
func StreamURL(baseURL string, kind catalog.MediaKind, externalID string) string {
	return fmt.Sprintf("%s/stream/%s/%s.json", catalog.NormalizeBaseURL(baseURL), kind, url.PathEscape(externalID))
}

func displayTitle(t tmdb.Title, id string) string {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return id
	}
	if t.Year > 0 {
		return fmt.Sprintf("%s (%d)", name, t.Year)
	}
	return name
}
