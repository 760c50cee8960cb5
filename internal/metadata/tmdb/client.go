package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"

	"github.com/slipstream/catalogsync/internal/config"
)

var (
	ErrAPIKeyMissing = errors.New("TMDB API key is not configured")
	ErrNotFound      = errors.New("title not found")
	ErrAPIError      = errors.New("TMDB API error")
	ErrRateLimited   = errors.New("TMDB API rate limited")
)

const maxAttempts = 3

// Client is a TMDB API client.
type Client struct {
	httpClient *http.Client
	config     config.TMDBConfig
	logger     zerolog.Logger
	retryDelay time.Duration
}

// NewClient creates a new TMDB client.
func NewClient(cfg config.TMDBConfig, logger zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		config:     cfg,
		logger:     logger.With().Str("component", "tmdb").Logger(),
		retryDelay: 500 * time.Millisecond,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "tmdb"
}

// IsConfigured returns true if the API key is set.
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}

// FindByIMDbID looks up a title by its IMDb id. When series is true a TV match
// is preferred over a movie match, and the other way around.
func (c *Client) FindByIMDbID(ctx context.Context, imdbID string, series bool) (*Title, error) {
	if !c.IsConfigured() {
		return nil, ErrAPIKeyMissing
	}

	endpoint := fmt.Sprintf("%s/find/%s", c.config.BaseURL, url.PathEscape(imdbID))
	params := url.Values{}
	params.Set("api_key", c.config.APIKey)
	params.Set("external_source", "imdb_id")

	var response FindResponse
	if err := c.doRequest(ctx, endpoint, params, &response); err != nil {
		return nil, err
	}

	movie := firstMovie(response.MovieResults)
	tv := firstTV(response.TVResults)

	var title *Title
	switch {
	case series && tv != nil:
		title = tv
	case !series && movie != nil:
		title = movie
	case tv != nil:
		title = tv
	case movie != nil:
		title = movie
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, imdbID)
	}

	c.logger.Debug().
		Str("imdbId", imdbID).
		Int("tmdbId", title.TMDBID).
		Str("title", title.Name).
		Msg("Resolved external id")

	return title, nil
}

func firstMovie(results []MovieResult) *Title {
	if len(results) == 0 {
		return nil
	}
	m := results[0]
	return &Title{TMDBID: m.ID, Name: m.Title, Year: parseYear(m.ReleaseDate)}
}

func firstTV(results []TVResult) *Title {
	if len(results) == 0 {
		return nil
	}
	s := results[0]
	return &Title{TMDBID: s.ID, Name: s.Name, Year: parseYear(s.FirstAirDate), IsSeries: true}
}

func parseYear(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, _ := strconv.Atoi(date[:4])
	return year
}

// doRequest performs a GET and decodes the JSON body. Rate limiting, server
// errors and transport failures are retried with backoff.
func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values, result interface{}) error {
	reqURL := endpoint
	if len(params) > 0 {
		reqURL = fmt.Sprintf("%s?%s", endpoint, params.Encode())
	}

	return retry.Do(
		func() error {
			return c.doOnce(ctx, endpoint, reqURL, result)
		},
		retry.Context(ctx),
		retry.Attempts(maxAttempts),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug().Err(err).Uint("attempt", n+1).Str("url", endpoint).Msg("Retrying TMDB request")
		}),
	)
}

type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.status == http.StatusTooManyRequests || se.status >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, errDecode)
}

var errDecode = errors.New("failed to decode response")

func (c *Client) doOnce(ctx context.Context, endpoint, reqURL string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return retry.Unrecoverable(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("url", endpoint).Msg("HTTP request failed")
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil {
			c.logger.Error().
				Int("status", resp.StatusCode).
				Str("message", errResp.StatusMessage).
				Msg("TMDB API error")
		}

		switch resp.StatusCode {
		case http.StatusNotFound:
			return &statusError{status: resp.StatusCode, err: ErrNotFound}
		case http.StatusUnauthorized:
			return &statusError{status: resp.StatusCode, err: fmt.Errorf("%w: invalid API key", ErrAPIError)}
		case http.StatusTooManyRequests:
			return &statusError{status: resp.StatusCode, err: ErrRateLimited}
		default:
			return &statusError{status: resp.StatusCode, err: fmt.Errorf("%w: status %d", ErrAPIError, resp.StatusCode)}
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("%w: %v", errDecode, err)
	}

	return nil
}
