package catalog

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSource    = errors.New("invalid catalog source")
	ErrUnexpectedStatus = errors.New("unexpected catalog response status")
	ErrEmptyCatalog     = errors.New("catalog returned no items")
)

// FetchError reports a page request that ended pagination early. Items fetched
// before the failure are still returned alongside it.
type FetchError struct {
	URL        string
	StatusCode int
	Fetched    int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("catalog fetch %s: status %d after %d items", e.URL, e.StatusCode, e.Fetched)
	}
	return fmt.Sprintf("catalog fetch %s after %d items: %v", e.URL, e.Fetched, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
