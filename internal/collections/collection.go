package collections

import (
	"strings"
	"time"

	"github.com/slipstream/catalogsync/internal/catalog"
)

// ProviderStremio is the provider-id key under which the catalog tag is stored.
const ProviderStremio = "Stremio"

// Collection is a named aggregation of media items.
type Collection struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	ProviderIDs map[string]string `json:"providerIds"`
	MemberCount int               `json:"memberCount"`
	// MaxItems is the catalog limit last requested for this collection; 0 uses the configured default.
	MaxItems    int               `json:"maxItems,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// ProviderTag returns the Stremio provider-id value, if any.
func (c *Collection) ProviderTag() string {
	return c.ProviderIDs[ProviderStremio]
}

// Member is a media item linked to a collection.
type Member struct {
	MediaItemID int64     `json:"mediaItemId"`
	ExternalID  string    `json:"externalId,omitempty"`
	Title       string    `json:"title"`
	Kind        string    `json:"kind"`
	AddedAt     time.Time `json:"addedAt"`
}

// ProviderTag builds the provider-id value for a catalog: "{catalogId}.{kind}".
func ProviderTag(catalogID string, kind catalog.MediaKind) string {
	if kind == "" {
		return catalogID
	}
	return catalogID + "." + string(kind)
}

// ParseProviderTag splits a provider tag into catalog id and kind. Tags written
// before the kind suffix was introduced carry only the catalog id; hasKind is
// false for those.
func ParseProviderTag(tag string) (catalogID string, kind catalog.MediaKind, hasKind bool) {
	idx := strings.LastIndex(tag, ".")
	if idx > 0 {
		if k, err := catalog.ParseMediaKind(tag[idx+1:]); err == nil {
			return tag[:idx], k, true
		}
	}
	return tag, "", false
}
