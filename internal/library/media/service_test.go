package media

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slipstream/catalogsync/internal/testutil"
)

func TestMediaService_CreateAndFind(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	service := NewService(tdb.Conn, tdb.Logger)
	ctx := context.Background()

	item, err := service.Create(ctx, CreateItemInput{ExternalID: "TT0133093", Kind: KindMovie, Title: "The Matrix"})
	require.NoError(t, err)
	assert.NotZero(t, item.ID)
	assert.Equal(t, "tt0133093", item.ExternalID)

	found, err := service.FindByExternalID(ctx, "tt0133093")
	require.NoError(t, err)
	assert.Equal(t, item.ID, found.ID)

	found, err = service.FindByExternalID(ctx, "TT0133093")
	require.NoError(t, err)
	assert.Equal(t, item.ID, found.ID)
}

func TestMediaService_FindMissing(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	service := NewService(tdb.Conn, tdb.Logger)

	_, err := service.FindByExternalID(context.Background(), "tt404")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = service.FindByExternalID(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMediaService_CreateValidation(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	service := NewService(tdb.Conn, tdb.Logger)
	ctx := context.Background()

	_, err := service.Create(ctx, CreateItemInput{Kind: KindMovie})
	assert.ErrorIs(t, err, ErrInvalidItem)

	_, err = service.Create(ctx, CreateItemInput{Kind: "series", Title: "x"})
	assert.ErrorIs(t, err, ErrInvalidItem)

	_, err = service.Create(ctx, CreateItemInput{ExternalID: "tt1", Kind: KindTV, Title: "a"})
	require.NoError(t, err)
	_, err = service.Create(ctx, CreateItemInput{ExternalID: "TT1", Kind: KindTV, Title: "b"})
	assert.ErrorIs(t, err, ErrDuplicateExternalID)
}

func TestMediaService_ListAndCount(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	service := NewService(tdb.Conn, tdb.Logger)
	ctx := context.Background()

	for _, in := range []CreateItemInput{
		{ExternalID: "tt1", Kind: KindMovie, Title: "One"},
		{ExternalID: "tt2", Kind: KindTV, Title: "Two"},
		{ExternalID: "tt3", Kind: KindMovie, Title: "Three"},
	} {
		_, err := service.Create(ctx, in)
		require.NoError(t, err)
	}

	movies, err := service.List(ctx, ListOptions{Kind: KindMovie})
	require.NoError(t, err)
	require.Len(t, movies, 2)
	assert.Equal(t, "Three", movies[0].Title)

	page, err := service.List(ctx, ListOptions{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, page, 1)

	n, err := service.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}
