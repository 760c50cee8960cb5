package collections

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
	ErrCollectionNotFound   = errors.New("collection not found")
	ErrInvalidCollection    = errors.New("invalid collection data")
	ErrDuplicateProviderTag = errors.New("a collection with this provider tag already exists")
)

// Service persists collections and their membership.
type Service struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewService creates a new collection service.
func NewService(db *sql.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "collections").Logger(),
	}
}

// Get retrieves a collection by ID.
func (s *Service) Get(ctx context.Context, id int64) (*Collection, error) {
	var (
		c         Collection
		createdAt time.Time
		updatedAt time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.name, c.max_items, c.created_at, c.updated_at,
		       (SELECT COUNT(*) FROM collection_items ci WHERE ci.collection_id = c.id)
		FROM collections c WHERE c.id = ?`, id).
		Scan(&c.ID, &c.Name, &c.MaxItems, &createdAt, &updatedAt, &c.MemberCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCollectionNotFound
		}
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}
	c.CreatedAt = createdAt
	c.UpdatedAt = updatedAt

	providerIDs, err := s.providerIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	c.ProviderIDs = providerIDs
	return &c, nil
}

// FindByProviderTag returns the collection tagged with the given Stremio provider id.
func (s *Service) FindByProviderTag(ctx context.Context, tag string) (*Collection, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT collection_id FROM collection_provider_ids WHERE provider = ? AND value = ? COLLATE NOCASE`,
		ProviderStremio, tag).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCollectionNotFound
		}
		return nil, fmt.Errorf("failed to find collection by tag: %w", err)
	}
	return s.Get(ctx, id)
}

// Create creates a collection carrying the provider tag. Untagged collections
// whose name matches (case-insensitively) are deleted first so a manually
// created or legacy collection does not linger next to the tagged one.
func (s *Service) Create(ctx context.Context, name, tag string) (*Collection, error) {
	name = strings.TrimSpace(name)
	tag = strings.TrimSpace(tag)
	if name == "" || tag == "" {
		return nil, ErrInvalidCollection
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM collection_provider_ids WHERE provider = ? AND value = ? COLLATE NOCASE`,
		ProviderStremio, tag).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check provider tag: %w", err)
	}
	if exists > 0 {
		return nil, ErrDuplicateProviderTag
	}

	removed, err := deleteUntaggedByName(ctx, tx, name)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `INSERT INTO collections (name) VALUES (?)`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read collection id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO collection_provider_ids (collection_id, provider, value) VALUES (?, ?, ?)`,
		id, ProviderStremio, tag); err != nil {
		return nil, fmt.Errorf("failed to tag collection: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit collection: %w", err)
	}

	for _, rid := range removed {
		s.logger.Info().Int64("collectionId", rid).Str("name", name).Msg("Deleted untagged duplicate collection")
	}
	s.logger.Info().Int64("collectionId", id).Str("name", name).Str("tag", tag).Msg("Created collection")

	return s.Get(ctx, id)
}

// EnsureCollection returns the collection tagged with tag, creating it when absent.
func (s *Service) EnsureCollection(ctx context.Context, name, tag string) (*Collection, bool, error) {
	c, err := s.FindByProviderTag(ctx, tag)
	if err == nil {
		return c, false, nil
	}
	if !errors.Is(err, ErrCollectionNotFound) {
		return nil, false, err
	}

	c, err = s.Create(ctx, name, tag)
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

// SetMaxItems records the catalog limit used when re-syncing the collection.
func (s *Service) SetMaxItems(ctx context.Context, id int64, maxItems int) error {
	if maxItems < 0 {
		return ErrInvalidCollection
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE collections SET max_items = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, maxItems, id)
	if err != nil {
		return fmt.Errorf("failed to set collection max items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set collection max items: %w", err)
	}
	if n == 0 {
		return ErrCollectionNotFound
	}
	return nil
}

func deleteUntaggedByName(ctx context.Context, tx *sql.Tx, name string) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT c.id FROM collections c
		WHERE c.name = ? COLLATE NOCASE
		  AND NOT EXISTS (
		      SELECT 1 FROM collection_provider_ids p
		      WHERE p.collection_id = c.id AND p.provider = ?)`, name, ProviderStremio)
	if err != nil {
		return nil, fmt.Errorf("failed to find untagged duplicates: %w", err)
	}

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan duplicate: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, id); err != nil {
			return nil, fmt.Errorf("failed to delete duplicate collection %d: %w", id, err)
		}
	}
	return ids, nil
}

// CreateUntagged creates a plain collection without a provider tag, as a user
// would in the media server UI.
func (s *Service) CreateUntagged(ctx context.Context, name string) (*Collection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidCollection
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO collections (name) VALUES (?)`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read collection id: %w", err)
	}
	return s.Get(ctx, id)
}

// CurrentMemberExternalIDs returns the external ids of all members. Members
// whose media item has no external id are left out.
func (s *Service) CurrentMemberExternalIDs(ctx context.Context, collectionID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.external_id FROM collection_items ci
		JOIN media_items m ON m.id = ci.media_item_id
		WHERE ci.collection_id = ? AND m.external_id IS NOT NULL AND m.external_id != ''
		ORDER BY ci.rowid`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list member ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan member id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AddMembers links media items to a collection. Already linked items are ignored.
func (s *Service) AddMembers(ctx context.Context, collectionID int64, mediaItemIDs []int64) error {
	if len(mediaItemIDs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM collections WHERE id = ?`, collectionID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists == 0 {
		return ErrCollectionNotFound
	}

	for _, mid := range mediaItemIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO collection_items (collection_id, media_item_id) VALUES (?, ?)`,
			collectionID, mid); err != nil {
			return fmt.Errorf("failed to add member %d: %w", mid, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE collections SET updated_at = CURRENT_TIMESTAMP WHERE id = ?`, collectionID); err != nil {
		return fmt.Errorf("failed to touch collection: %w", err)
	}

	return tx.Commit()
}

// ListTagged returns every collection carrying a Stremio provider tag, oldest first.
func (s *Service) ListTagged(ctx context.Context) ([]*Collection, error) {
	return s.list(ctx, `
		SELECT c.id FROM collections c
		JOIN collection_provider_ids p ON p.collection_id = c.id AND p.provider = ?
		ORDER BY c.id`, ProviderStremio)
}

// List returns all collections.
func (s *Service) List(ctx context.Context) ([]*Collection, error) {
	return s.list(ctx, `SELECT id FROM collections ORDER BY name COLLATE NOCASE, id`)
}

func (s *Service) list(ctx context.Context, query string, args ...any) ([]*Collection, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan collection id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*Collection, 0, len(ids))
	for _, id := range ids {
		c, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// ListMembers returns the media items linked to a collection in attach order.
func (s *Service) ListMembers(ctx context.Context, collectionID int64) ([]Member, error) {
	if _, err := s.Get(ctx, collectionID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.external_id, m.title, m.kind, ci.added_at
		FROM collection_items ci
		JOIN media_items m ON m.id = ci.media_item_id
		WHERE ci.collection_id = ?
		ORDER BY ci.rowid`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := []Member{}
	for rows.Next() {
		var (
			m          Member
			externalID sql.NullString
		)
		if err := rows.Scan(&m.MediaItemID, &externalID, &m.Title, &m.Kind, &m.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.ExternalID = externalID.String
		members = append(members, m)
	}
	return members, rows.Err()
}

// Delete removes a collection and its membership links. Media items are kept.
func (s *Service) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	if n == 0 {
		return ErrCollectionNotFound
	}
	s.logger.Info().Int64("collectionId", id).Msg("Deleted collection")
	return nil
}

func (s *Service) providerIDs(ctx context.Context, id int64) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT provider, value FROM collection_provider_ids WHERE collection_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load provider ids: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var provider, value string
		if err := rows.Scan(&provider, &value); err != nil {
			return nil, fmt.Errorf("failed to scan provider id: %w", err)
		}
		out[provider] = value
	}
	return out, rows.Err()
}
