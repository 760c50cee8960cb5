package catalogsync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slipstream/catalogsync/internal/catalog"
	"github.com/slipstream/catalogsync/internal/collections"
	"github.com/slipstream/catalogsync/internal/config"
	"github.com/slipstream/catalogsync/internal/database"
	"github.com/slipstream/catalogsync/internal/library/media"
	"github.com/slipstream/catalogsync/internal/testutil"
)

// addonServer serves one page per catalog; every skip page is empty.
type addonServer struct {
	mu       sync.Mutex
	catalogs map[string][]catalog.Item // "movie/top" -> items
	failing  map[string]bool
	*httptest.Server
}

func newAddonServer(t *testing.T) *addonServer {
	t.Helper()
	a := &addonServer{catalogs: make(map[string][]catalog.Item), failing: make(map[string]bool)}
	a.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		defer a.mu.Unlock()

		if r.URL.Path == "/manifest.json" {
			json.NewEncoder(w).Encode(catalog.Manifest{
				ID:       "test.addon",
				Name:     "Test",
				Catalogs: []catalog.ManifestCatalog{{Type: "movie", ID: "top", Name: "Top Movies"}},
			})
			return
		}

		path := strings.TrimPrefix(r.URL.Path, "/catalog/")
		if strings.Contains(path, "/skip=") {
			json.NewEncoder(w).Encode(map[string]any{"metas": []catalog.Item{}})
			return
		}
		key := strings.TrimSuffix(path, ".json")
		if a.failing[key] {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"metas": a.catalogs[key]})
	}))
	t.Cleanup(a.Close)
	return a
}

func (a *addonServer) fail(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failing[key] = true
}

func (a *addonServer) set(key string, ids ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.catalogs[key] = items(ids...)
}

// dbImporter registers media directly in the store, like a successful import.
type dbImporter struct {
	mu       sync.Mutex
	store    *media.Service
	calls    []string
	onImport func(externalID string)
}

func (d *dbImporter) ImportByExternalID(ctx context.Context, externalID string, kind catalog.MediaKind) (*media.Item, error) {
	d.mu.Lock()
	d.calls = append(d.calls, externalID)
	hook := d.onImport
	d.mu.Unlock()
	if hook != nil {
		hook(externalID)
	}
	return d.store.Create(ctx, media.CreateItemInput{ExternalID: externalID, Kind: kind.ImporterKind(), Title: externalID})
}

func (d *dbImporter) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

type harness struct {
	svc      *Service
	colls    *collections.Service
	media    *media.Service
	importer *dbImporter
	addon    *addonServer
	settings *database.Settings
	queue    *Queue
}

func newHarness(t *testing.T, baseURL bool) *harness {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	t.Cleanup(tdb.Close)

	logger := zerolog.Nop()
	addon := newAddonServer(t)

	catalogCfg := &config.CatalogConfig{Timeout: 5 * time.Second, MaxItems: 100}
	if baseURL {
		catalogCfg.BaseURL = addon.URL + "/manifest.json"
	}
	syncCfg := &config.SyncConfig{Enabled: true, Interval: 12 * time.Hour}

	mediaService := media.NewService(tdb.Conn, logger)
	collectionService := collections.NewService(tdb.Conn, logger)
	importer := &dbImporter{store: mediaService}
	settings := database.NewSettings(tdb.Conn)

	queue := NewQueue(8, logger)
	queue.Start(context.Background())
	t.Cleanup(queue.Stop)

	svc := NewService(
		catalog.NewClient(*catalogCfg, logger),
		collectionService,
		NewOrchestrator(importer, mediaService, collectionService, nil, logger),
		NewSourceResolver(settings, catalogCfg),
		queue,
		syncCfg,
		nil,
		logger,
	)

	return &harness{
		svc:      svc,
		colls:    collectionService,
		media:    mediaService,
		importer: importer,
		addon:    addon,
		settings: settings,
		queue:    queue,
	}
}

func (h *harness) startAndWait(t *testing.T, req SyncRequest) RunStatus {
	t.Helper()
	res, err := h.svc.Start(context.Background(), req)
	require.NoError(t, err)
	require.True(t, res.Started)

	var st RunStatus
	require.Eventually(t, func() bool {
		st, err = h.svc.Run(res.RunID)
		return err == nil && (st.State == RunCompleted || st.State == RunFailed)
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, RunCompleted, st.State, st.Error)
	return st
}

func (h *harness) memberIDs(t *testing.T, tag string) []string {
	t.Helper()
	coll, err := h.colls.FindByProviderTag(context.Background(), tag)
	require.NoError(t, err)
	ids, err := h.colls.CurrentMemberExternalIDs(context.Background(), coll.ID)
	require.NoError(t, err)
	return ids
}

func TestService_SyncScenario(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	h.addon.set("movie/top", "tt001", "tt002", "tt003")

	coll, _, err := h.colls.EnsureCollection(ctx, "Top Movies", "top.movie")
	require.NoError(t, err)
	existing, err := h.media.Create(ctx, media.CreateItemInput{ExternalID: "tt001", Kind: media.KindMovie, Title: "One"})
	require.NoError(t, err)
	require.NoError(t, h.colls.AddMembers(ctx, coll.ID, []int64{existing.ID}))

	preview, err := h.svc.Preview(ctx, SyncRequest{CatalogID: "top", MediaKind: "movie"})
	require.NoError(t, err)
	assert.Equal(t, 3, preview.TotalCatalogItems)
	assert.Equal(t, 1, preview.ExistingItems)
	assert.Equal(t, 2, preview.NewItems)
	assert.Equal(t, []string{"tt002", "tt003"}, preview.MissingIDs)
	assert.Zero(t, h.importer.callCount(), "preview never imports")

	st := h.startAndWait(t, SyncRequest{CatalogID: "top", MediaKind: "movie"})
	assert.Equal(t, coll.ID, st.CollectionID)
	assert.Equal(t, 2, st.MissingCount)
	assert.Equal(t, 2, st.SuccessCount)

	assert.Equal(t, []string{"tt001", "tt002", "tt003"}, h.memberIDs(t, "top.movie"))
}

func TestService_SyncIsIdempotent(t *testing.T) {
	h := newHarness(t, true)
	h.addon.set("series/shows", "tt1", "tt2", "tt2", "kitsu:9")

	first := h.startAndWait(t, SyncRequest{CatalogID: "shows", MediaKind: "series", CollectionName: "Shows"})
	assert.Equal(t, 2, first.SuccessCount)
	assert.Equal(t, 1, first.Unidentified)
	assert.Equal(t, 2, h.importer.callCount(), "duplicate ids import once")

	second := h.startAndWait(t, SyncRequest{CatalogID: "shows", MediaKind: "series", CollectionName: "Shows"})
	assert.Zero(t, second.MissingCount)
	assert.Zero(t, second.SuccessCount)
	assert.Equal(t, first.CollectionID, second.CollectionID)
	assert.Equal(t, 2, h.importer.callCount())

	coll, err := h.colls.Get(context.Background(), first.CollectionID)
	require.NoError(t, err)
	assert.Equal(t, "Shows", coll.Name)
	assert.Equal(t, "shows.series", coll.ProviderTag())
}

func TestService_EmptyCatalogCreatesEmptyCollection(t *testing.T) {
	h := newHarness(t, true)

	res, err := h.svc.Start(context.Background(), SyncRequest{CatalogID: "top", MediaKind: "movie"})
	require.NoError(t, err)
	assert.Zero(t, res.CatalogSizeAtRequestTime)

	require.Eventually(t, func() bool {
		st, err := h.svc.Run(res.RunID)
		return err == nil && st.State == RunCompleted
	}, 5*time.Second, 10*time.Millisecond)

	coll, err := h.colls.FindByProviderTag(context.Background(), "top.movie")
	require.NoError(t, err)
	assert.Equal(t, "Top Movies", coll.Name, "name taken from the manifest")
	assert.Zero(t, coll.MemberCount)
	assert.Zero(t, h.importer.callCount())
}

func TestService_ConfigurationMissing(t *testing.T) {
	h := newHarness(t, false)

	_, err := h.svc.Start(context.Background(), SyncRequest{CatalogID: "top", MediaKind: "movie"})
	assert.ErrorIs(t, err, ErrConfigurationMissing)

	_, err = h.svc.Preview(context.Background(), SyncRequest{CatalogID: "top", MediaKind: "movie"})
	assert.ErrorIs(t, err, ErrConfigurationMissing)

	require.NoError(t, h.svc.Sweep(context.Background()))
	assert.Equal(t, ErrConfigurationMissing.Error(), h.svc.LastStatus().Error)

	// A stored source takes over from the empty config value.
	resolver := NewSourceResolver(h.settings, &config.CatalogConfig{})
	require.NoError(t, resolver.SetBaseURL(context.Background(), h.addon.URL+"/"))
	base, err := resolver.BaseURL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, h.addon.URL, base)
}

func TestService_StartValidation(t *testing.T) {
	h := newHarness(t, true)

	_, err := h.svc.Start(context.Background(), SyncRequest{MediaKind: "movie"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = h.svc.Start(context.Background(), SyncRequest{CatalogID: "top", MediaKind: "music"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestService_SweepImportsOnlyDelta(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	h.addon.set("movie/top", "tt1", "tt2")
	h.addon.set("series/legacy", "tt7")
	h.addon.fail("movie/broken")

	h.startAndWait(t, SyncRequest{CatalogID: "top", MediaKind: "movie"})
	require.Equal(t, 2, h.importer.callCount())

	_, err := h.colls.Create(ctx, "Legacy", "legacy")
	require.NoError(t, err)
	_, err = h.colls.Create(ctx, "Broken", "broken.movie")
	require.NoError(t, err)

	h.addon.set("movie/top", "tt1", "tt2", "tt3")

	require.NoError(t, h.svc.Sweep(ctx))

	status := h.svc.LastStatus()
	assert.False(t, status.Running)
	assert.Equal(t, 3, status.Collections)
	assert.Equal(t, 1, status.CollectionsFailed, "a failing catalog does not abort siblings")
	assert.Equal(t, 2, status.SuccessCount)
	assert.Equal(t, 4, h.importer.callCount(), "only tt3 and tt7 are imported")

	assert.Equal(t, []string{"tt1", "tt2", "tt3"}, h.memberIDs(t, "top.movie"))
	assert.Equal(t, []string{"tt7"}, h.memberIDs(t, "legacy"))

	item, err := h.media.FindByExternalID(ctx, "tt7")
	require.NoError(t, err)
	assert.Equal(t, media.KindTV, item.Kind, "probed kind is used for import")
}

func TestService_SweepKeepsMembersRemovedFromCatalog(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	h.addon.set("movie/top", "tt1", "tt2", "tt3")
	h.startAndWait(t, SyncRequest{CatalogID: "top", MediaKind: "movie"})

	h.addon.set("movie/top", "tt1")
	require.NoError(t, h.svc.Sweep(ctx))

	assert.Equal(t, []string{"tt1", "tt2", "tt3"}, h.memberIDs(t, "top.movie"))
	assert.Equal(t, 3, h.importer.callCount())

	preview, err := h.svc.Preview(ctx, SyncRequest{CatalogID: "top", MediaKind: "movie"})
	require.NoError(t, err)
	assert.Equal(t, 2, preview.RemovedItems)
	assert.Equal(t, 1, preview.ExistingItems)
	assert.Zero(t, preview.NewItems)
}

func TestService_SweepUsesStoredMaxItems(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	h.addon.set("movie/top", "tt1", "tt2", "tt3")
	st := h.startAndWait(t, SyncRequest{CatalogID: "top", MediaKind: "movie", MaxItems: 2})
	assert.Equal(t, 2, st.SuccessCount)

	coll, err := h.colls.Get(ctx, st.CollectionID)
	require.NoError(t, err)
	assert.Equal(t, 2, coll.MaxItems)

	require.NoError(t, h.svc.Sweep(ctx))

	assert.Equal(t, 2, h.importer.callCount(), "sweep fetches the same window as the sync")
	assert.Equal(t, []string{"tt1", "tt2"}, h.memberIDs(t, "top.movie"))
}

func TestService_SweepRejectsConcurrentRun(t *testing.T) {
	h := newHarness(t, true)
	h.svc.running.Store(true)

	assert.ErrorIs(t, h.svc.Sweep(context.Background()), ErrSweepRunning)
	assert.ErrorIs(t, h.svc.TriggerSweep(), ErrSweepRunning)
	assert.True(t, h.svc.LastStatus().Running)
}

func TestService_SweepCancelledBetweenItems(t *testing.T) {
	h := newHarness(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.addon.set("movie/a", "tt1", "tt2")
	h.addon.set("movie/b", "tt3")
	_, err := h.colls.Create(ctx, "A", "a.movie")
	require.NoError(t, err)
	_, err = h.colls.Create(ctx, "B", "b.movie")
	require.NoError(t, err)

	h.importer.onImport = func(string) { cancel() }

	require.NoError(t, h.svc.Sweep(ctx))

	status := h.svc.LastStatus()
	assert.True(t, status.Cancelled)
	assert.Equal(t, 1, status.Collections)
	assert.Equal(t, 1, status.SuccessCount, "the in-flight item still completes")
	assert.Equal(t, 1, h.importer.callCount())
	assert.Equal(t, []string{"tt1"}, h.memberIDs(t, "a.movie"))
}

func TestService_Manifest(t *testing.T) {
	h := newHarness(t, true)
	m, err := h.svc.Manifest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test.addon", m.ID)
}
