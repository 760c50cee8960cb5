package media

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrNotFound            = errors.New("media item not found")
	ErrInvalidItem         = errors.New("invalid media item")
	ErrDuplicateExternalID = errors.New("media item with this external id already exists")
)

// Service provides local media store operations.
type Service struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewService creates a new media service.
func NewService(db *sql.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "media").Logger(),
	}
}

const itemColumns = `id, external_id, kind, title, path, added_at`

// Get retrieves a media item by ID.
func (s *Service) Get(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM media_items WHERE id = ?`, id)
	return scanItem(row)
}

// FindByExternalID returns the item carrying the given external id.
// Lookup is case-insensitive. Returns ErrNotFound when absent.
func (s *Service) FindByExternalID(ctx context.Context, externalID string) (*Item, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM media_items WHERE external_id = ? COLLATE NOCASE`, externalID)
	return scanItem(row)
}

// Create registers a new media item.
func (s *Service) Create(ctx context.Context, input CreateItemInput) (*Item, error) {
	if input.Title == "" || (input.Kind != KindMovie && input.Kind != KindTV) {
		return nil, ErrInvalidItem
	}

	if input.ExternalID != "" {
		_, err := s.FindByExternalID(ctx, input.ExternalID)
		if err == nil {
			return nil, ErrDuplicateExternalID
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO media_items (external_id, kind, title, path) VALUES (?, ?, ?, ?)`,
		nullString(strings.ToLower(input.ExternalID)), input.Kind, input.Title, nullString(input.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to create media item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read media item id: %w", err)
	}

	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("id", item.ID).Str("externalId", item.ExternalID).Str("title", item.Title).Msg("Created media item")
	return item, nil
}

// List returns media items, newest first.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]*Item, error) {
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.Page <= 0 {
		opts.Page = 1
	}
	offset := (opts.Page - 1) * opts.PageSize

	query := `SELECT ` + itemColumns + ` FROM media_items`
	args := []any{}
	if opts.Kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, opts.Kind)
	}
	query += ` ORDER BY id DESC LIMIT ? OFFSET ?`
	args = append(args, opts.PageSize, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list media items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Count returns the number of media items in the store.
func (s *Service) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM media_items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count media items: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (*Item, error) {
	var (
		item       Item
		externalID sql.NullString
		path       sql.NullString
		addedAt    time.Time
	)
	if err := row.Scan(&item.ID, &externalID, &item.Kind, &item.Title, &path, &addedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan media item: %w", err)
	}
	item.ExternalID = externalID.String
	item.Path = path.String
	item.AddedAt = addedAt
	return &item, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
