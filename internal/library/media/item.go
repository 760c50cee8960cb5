package media

import "time"

// Kind values as stored in media_items.kind.
const (
	KindMovie = "movie"
	KindTV    = "tv"
)

// Item is a media item known to the local library.
type Item struct {
	ID         int64     `json:"id"`
	ExternalID string    `json:"externalId,omitempty"`
	Kind       string    `json:"kind"`
	Title      string    `json:"title"`
	Path       string    `json:"path,omitempty"`
	AddedAt    time.Time `json:"addedAt"`
}

// CreateItemInput contains fields for registering a media item.
type CreateItemInput struct {
	ExternalID string `json:"externalId"`
	Kind       string `json:"kind"`
	Title      string `json:"title"`
	Path       string `json:"path,omitempty"`
}

// ListOptions controls item listing.
type ListOptions struct {
	Kind     string
	Page     int
	PageSize int
}
