// Package catalog fetches paginated media catalogs from Stremio-style addons.
package catalog

import (
	"fmt"
	"regexp"
	"strings"
)

// MediaKind is the catalog media type as used in addon URLs.
type MediaKind string

const (
	KindMovie  MediaKind = "movie"
	KindSeries MediaKind = "series"
)

// Kinds lists every supported media kind in probe order.
var Kinds = []MediaKind{KindMovie, KindSeries}

// ParseMediaKind validates a media kind string.
func ParseMediaKind(s string) (MediaKind, error) {
	switch MediaKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindMovie:
		return KindMovie, nil
	case KindSeries:
		return KindSeries, nil
	default:
		return "", fmt.Errorf("%w: unknown media kind %q", ErrInvalidSource, s)
	}
}

// ImporterKind maps the catalog kind onto the media importer's vocabulary.
func (k MediaKind) ImporterKind() string {
	if k == KindSeries {
		return "tv"
	}
	return "movie"
}

func (k MediaKind) String() string {
	return string(k)
}

// Source identifies one catalog on one addon. It is immutable for a sync run.
type Source struct {
	BaseURL   string    `json:"baseUrl"`
	CatalogID string    `json:"catalogId"`
	Kind      MediaKind `json:"kind"`
}

// Validate checks that the source can be fetched.
func (s Source) Validate() error {
	if s.BaseURL == "" {
		return fmt.Errorf("%w: base url is empty", ErrInvalidSource)
	}
	if strings.TrimSpace(s.CatalogID) == "" {
		return fmt.Errorf("%w: catalog id is empty", ErrInvalidSource)
	}
	if _, err := ParseMediaKind(string(s.Kind)); err != nil {
		return err
	}
	return nil
}

// Item is one meta entry returned by a catalog page.
type Item struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	ImdbID string `json:"imdb_id,omitempty"`
	Type   string `json:"type,omitempty"`
}

var imdbIDPattern = regexp.MustCompile(`(?i)^tt\d+`)

// ExternalID returns the item's IMDB-style id, lower-cased, or "" when none can be
// extracted. The imdb_id field wins over the raw id; a raw id only counts when it
// starts with a tt-number, and any suffix after that token is dropped.
func (i Item) ExternalID() string {
	if id := extractImdbID(i.ImdbID); id != "" {
		return id
	}
	return extractImdbID(i.ID)
}

// NormalizeExternalID lower-cases and trims an external id for comparison.
func NormalizeExternalID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func extractImdbID(raw string) string {
	m := imdbIDPattern.FindString(strings.TrimSpace(raw))
	return strings.ToLower(m)
}

// pageResponse is the body of a catalog page.
type pageResponse struct {
	Metas []Item `json:"metas"`
}

// Manifest describes an addon and the catalogs it serves.
type Manifest struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Description string            `json:"description,omitempty"`
	Types       []string          `json:"types"`
	Catalogs    []ManifestCatalog `json:"catalogs"`
}

// ManifestCatalog is a catalog entry in an addon manifest.
type ManifestCatalog struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// FindCatalog returns the manifest entry matching id and kind.
func (m *Manifest) FindCatalog(id string, kind MediaKind) (ManifestCatalog, bool) {
	for _, c := range m.Catalogs {
		if strings.EqualFold(c.ID, id) && strings.EqualFold(c.Type, string(kind)) {
			return c, true
		}
	}
	return ManifestCatalog{}, false
}
