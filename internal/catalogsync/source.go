package catalogsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/slipstream/catalogsync/internal/catalog"
	"github.com/slipstream/catalogsync/internal/config"
	"github.com/slipstream/catalogsync/internal/database"
)

const sourceSettingsKey = "catalog_source"

// ErrConfigurationMissing is returned when no catalog addon is configured.
var ErrConfigurationMissing = errors.New("no catalog source configured")

// SourceSettings is the persisted catalog source.
type SourceSettings struct {
	BaseURL string `json:"baseUrl"`
}

// SourceResolver determines the addon base URL. A value stored in the
// settings table takes precedence over the config file.
type SourceResolver struct {
	settings *database.Settings
	config   *config.CatalogConfig
}

// NewSourceResolver creates a new source resolver. settings may be nil.
func NewSourceResolver(settings *database.Settings, cfg *config.CatalogConfig) *SourceResolver {
	return &SourceResolver{settings: settings, config: cfg}
}

// BaseURL returns the normalized addon base URL.
func (r *SourceResolver) BaseURL(ctx context.Context) (string, error) {
	if stored, err := r.stored(ctx); err != nil {
		return "", err
	} else if stored != "" {
		return stored, nil
	}

	if r.config != nil {
		if base := catalog.NormalizeBaseURL(r.config.BaseURL); base != "" {
			return base, nil
		}
	}
	return "", ErrConfigurationMissing
}

// Resolve builds a catalog source for the given catalog and kind.
func (r *SourceResolver) Resolve(ctx context.Context, catalogID string, kind catalog.MediaKind) (catalog.Source, error) {
	base, err := r.BaseURL(ctx)
	if err != nil {
		return catalog.Source{}, err
	}
	return catalog.Source{BaseURL: base, CatalogID: catalogID, Kind: kind}, nil
}

// SetBaseURL persists the addon base URL. An empty value clears the stored
// override so the config file value applies again.
func (r *SourceResolver) SetBaseURL(ctx context.Context, baseURL string) error {
	if r.settings == nil {
		return fmt.Errorf("settings store unavailable")
	}
	data, err := json.Marshal(SourceSettings{BaseURL: catalog.NormalizeBaseURL(baseURL)})
	if err != nil {
		return err
	}
	return r.settings.Set(ctx, sourceSettingsKey, string(data))
}

func (r *SourceResolver) stored(ctx context.Context) (string, error) {
	if r.settings == nil {
		return "", nil
	}
	raw, err := r.settings.Get(ctx, sourceSettingsKey)
	if err != nil {
		if errors.Is(err, database.ErrSettingNotFound) {
			return "", nil
		}
		return "", err
	}

	var s SourceSettings
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return "", fmt.Errorf("decode %s setting: %w", sourceSettingsKey, err)
	}
	return catalog.NormalizeBaseURL(s.BaseURL), nil
}
