package catalogsync

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// SeedCatalog is one catalog listed in the seed file.
type SeedCatalog struct {
	CatalogID string `yaml:"catalogId"`
	Kind      string `yaml:"kind"`
	Name      string `yaml:"name"`
	MaxItems  int    `yaml:"maxItems"`
}

type seedFile struct {
	Catalogs []SeedCatalog `yaml:"catalogs"`
}

// LoadSeedFile reads the catalogs to mirror at startup.
//
// Example:
//
//	catalogs:
//	  - catalogId: top
//	    kind: movie
//	    name: Top Movies
//	    maxItems: 100
func LoadSeedFile(fs afero.Fs, path string) ([]SeedCatalog, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}

	for i, c := range f.Catalogs {
		req := SyncRequest{CatalogID: c.CatalogID, MediaKind: c.Kind, MaxItems: c.MaxItems}
		if _, err := req.validate(); err != nil {
			return nil, fmt.Errorf("seed catalog %d: %w", i, err)
		}
	}
	return f.Catalogs, nil
}

// SubmitSeed starts an on-demand sync for every seed catalog and returns how
// many were queued. Failures are logged and do not stop the remaining entries.
func (s *Service) SubmitSeed(ctx context.Context, catalogs []SeedCatalog) int {
	queued := 0
	for _, c := range catalogs {
		result, err := s.Start(ctx, SyncRequest{
			CatalogID:      c.CatalogID,
			MediaKind:      c.Kind,
			MaxItems:       c.MaxItems,
			CollectionName: c.Name,
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("catalogId", c.CatalogID).Msg("Failed to queue seed catalog")
			continue
		}
		s.logger.Debug().Str("runId", result.RunID).Str("catalogId", c.CatalogID).Msg("Queued seed catalog")
		queued++
	}
	return queued
}
