package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/slipstream/catalogsync/internal/config"
)

const defaultMaxItems = 500

// Client fetches catalogs and manifests from addon endpoints.
type Client struct {
	httpClient *http.Client
	config     config.CatalogConfig
	logger     zerolog.Logger
}

// NewClient creates a new catalog client.
func NewClient(cfg config.CatalogConfig, logger zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		logger: logger.With().Str("component", "catalog").Logger(),
	}
}

// NormalizeBaseURL trims trailing slashes and a trailing manifest.json so that
// users can paste the addon install URL verbatim.
func NormalizeBaseURL(raw string) string {
	u := strings.TrimSpace(raw)
	u = strings.TrimRight(u, "/")
	u = strings.TrimSuffix(u, "/manifest.json")
	return strings.TrimRight(u, "/")
}

// PageURL returns the URL of the catalog page starting after skip items.
func PageURL(src Source, skip int) string {
	base := fmt.Sprintf("%s/catalog/%s/%s", NormalizeBaseURL(src.BaseURL), src.Kind, url.PathEscape(src.CatalogID))
	if skip <= 0 {
		return base + ".json"
	}
	return fmt.Sprintf("%s/skip=%d.json", base, skip)
}

// FetchCatalog retrieves up to maxItems catalog entries, page by page.
//
// The skip cursor sent with each page is the number of items received so far,
// so addons with irregular page sizes are walked correctly. Pagination ends on
// an empty page or once maxItems is reached. A failed page also ends it: the
// items gathered up to that point are returned together with a *FetchError.
func (c *Client) FetchCatalog(ctx context.Context, src Source, maxItems int) ([]Item, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if maxItems <= 0 {
		maxItems = c.config.MaxItems
	}
	if maxItems <= 0 {
		maxItems = defaultMaxItems
	}

	var items []Item
	page := 0
	for len(items) < maxItems {
		pageURL := PageURL(src, len(items))

		metas, status, err := c.fetchPage(ctx, pageURL)
		if err != nil {
			fetchErr := &FetchError{URL: pageURL, StatusCode: status, Fetched: len(items), Err: err}
			c.logger.Warn().
				Err(err).
				Str("catalogId", src.CatalogID).
				Str("kind", src.Kind.String()).
				Int("page", page).
				Int("fetched", len(items)).
				Msg("Catalog page failed, stopping pagination")
			return items, fetchErr
		}

		if len(metas) == 0 {
			break
		}

		items = append(items, metas...)
		page++

		c.logger.Debug().
			Str("catalogId", src.CatalogID).
			Int("page", page).
			Int("pageSize", len(metas)).
			Int("total", len(items)).
			Msg("Fetched catalog page")
	}

	if len(items) > maxItems {
		items = items[:maxItems]
	}

	c.logger.Info().
		Str("catalogId", src.CatalogID).
		Str("kind", src.Kind.String()).
		Int("items", len(items)).
		Int("pages", page).
		Msg("Catalog fetched")

	return items, nil
}

// ProbeKind fetches the catalog as a movie catalog and then as a series catalog
// and returns the first kind that yields items. Fetch errors fall through to the
// next kind; ErrEmptyCatalog is returned when neither kind has any items.
func (c *Client) ProbeKind(ctx context.Context, baseURL, catalogID string, maxItems int) (MediaKind, []Item, error) {
	for _, kind := range Kinds {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}

		items, err := c.FetchCatalog(ctx, Source{BaseURL: baseURL, CatalogID: catalogID, Kind: kind}, maxItems)
		if len(items) > 0 {
			return kind, items, err
		}
		if err != nil {
			c.logger.Debug().Err(err).Str("catalogId", catalogID).Str("kind", kind.String()).Msg("Probe fetch failed")
		}
	}
	return "", nil, fmt.Errorf("%w: %s", ErrEmptyCatalog, catalogID)
}

// FetchManifest retrieves the addon manifest.
func (c *Client) FetchManifest(ctx context.Context, baseURL string) (*Manifest, error) {
	base := NormalizeBaseURL(baseURL)
	if base == "" {
		return nil, fmt.Errorf("%w: base url is empty", ErrInvalidSource)
	}

	endpoint := base + "/manifest.json"
	var manifest Manifest
	if status, err := c.doJSON(ctx, endpoint, &manifest); err != nil {
		return nil, &FetchError{URL: endpoint, StatusCode: status, Err: err}
	}
	return &manifest, nil
}

func (c *Client) fetchPage(ctx context.Context, pageURL string) ([]Item, int, error) {
	var page pageResponse
	status, err := c.doJSON(ctx, pageURL, &page)
	if err != nil {
		return nil, status, err
	}
	return page.Metas, status, nil
}

func (c *Client) doJSON(ctx context.Context, endpoint string, result interface{}) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		if errors.Is(err, io.EOF) {
			return resp.StatusCode, nil
		}
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}

	return resp.StatusCode, nil
}
