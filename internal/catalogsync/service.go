package catalogsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/slipstream/catalogsync/internal/catalog"
	"github.com/slipstream/catalogsync/internal/collections"
	"github.com/slipstream/catalogsync/internal/config"
)

var (
	ErrInvalidRequest = errors.New("invalid catalog sync request")
	ErrSweepRunning   = errors.New("catalog sweep already running")
)

// SyncRequest asks for a catalog to be mirrored into a collection.
type SyncRequest struct {
	CatalogID      string `json:"catalogId"`
	MediaKind      string `json:"mediaKind"`
	MaxItems       int    `json:"maxItems,omitempty"`
	CollectionName string `json:"collectionName,omitempty"`
}

func (r SyncRequest) validate() (catalog.MediaKind, error) {
	if strings.TrimSpace(r.CatalogID) == "" {
		return "", fmt.Errorf("%w: catalogId is required", ErrInvalidRequest)
	}
	if r.MaxItems < 0 {
		return "", fmt.Errorf("%w: maxItems must not be negative", ErrInvalidRequest)
	}
	kind, err := catalog.ParseMediaKind(r.MediaKind)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return kind, nil
}

// PreviewResult summarizes what a sync would change.
type PreviewResult struct {
	CatalogID         string   `json:"catalogId"`
	Kind              string   `json:"kind"`
	CollectionID      int64    `json:"collectionId,omitempty"`
	TotalCatalogItems int      `json:"totalCatalogItems"`
	ExistingItems     int      `json:"existingItems"`
	NewItems          int      `json:"newItems"`
	RemovedItems      int      `json:"removedItems"`
	Unidentified      int      `json:"unidentified"`
	MissingIDs        []string `json:"missingIds"`
	Truncated         bool     `json:"truncated,omitempty"`
}

// StartResult acknowledges an on-demand sync.
type StartResult struct {
	Started                  bool   `json:"started"`
	RunID                    string `json:"runId"`
	CatalogSizeAtRequestTime int    `json:"catalogSizeAtRequestTime"`
}

// SweepStatus holds the result of the last periodic sweep.
type SweepStatus struct {
	Running           bool      `json:"running"`
	LastRun           time.Time `json:"lastRun,omitempty"`
	Collections       int       `json:"collections"`
	CollectionsFailed int       `json:"collectionsFailed"`
	SuccessCount      int       `json:"successCount"`
	FailedCount       int       `json:"failedCount"`
	Cancelled         bool      `json:"cancelled,omitempty"`
	ElapsedMs         int       `json:"elapsed"`
	Error             string    `json:"error,omitempty"`
}

// Service wires catalog fetching, diffing and importing into the on-demand
// and periodic entry points.
type Service struct {
	client       *catalog.Client
	collections  *collections.Service
	orchestrator *Orchestrator
	sources      *SourceResolver
	queue        *Queue
	config       *config.SyncConfig
	hub          Broadcaster
	logger       zerolog.Logger

	bgCtx   context.Context
	running atomic.Bool
	mu      sync.RWMutex
	status  SweepStatus
}

// NewService creates a new catalog sync service.
func NewService(
	client *catalog.Client,
	collectionService *collections.Service,
	orchestrator *Orchestrator,
	sources *SourceResolver,
	queue *Queue,
	cfg *config.SyncConfig,
	hub Broadcaster,
	logger zerolog.Logger,
) *Service {
	return &Service{
		client:       client,
		collections:  collectionService,
		orchestrator: orchestrator,
		sources:      sources,
		queue:        queue,
		config:       cfg,
		hub:          hub,
		logger:       logger.With().Str("component", "catalogsync").Logger(),
		bgCtx:        context.Background(),
	}
}

// SetBackgroundContext sets the context used for sweeps triggered over HTTP.
func (s *Service) SetBackgroundContext(ctx context.Context) {
	s.bgCtx = ctx
}

// Preview fetches the catalog and diffs it against the matching collection
// without changing anything.
func (s *Service) Preview(ctx context.Context, req SyncRequest) (*PreviewResult, error) {
	kind, err := req.validate()
	if err != nil {
		return nil, err
	}
	src, err := s.sources.Resolve(ctx, req.CatalogID, kind)
	if err != nil {
		return nil, err
	}

	items, truncated, err := s.fetch(ctx, src, req.MaxItems)
	if err != nil {
		return nil, err
	}

	result := &PreviewResult{CatalogID: src.CatalogID, Kind: kind.String(), Truncated: truncated}

	var current []string
	coll, err := s.collections.FindByProviderTag(ctx, collections.ProviderTag(src.CatalogID, kind))
	switch {
	case err == nil:
		result.CollectionID = coll.ID
		if current, err = s.collections.CurrentMemberExternalIDs(ctx, coll.ID); err != nil {
			return nil, err
		}
	case !errors.Is(err, collections.ErrCollectionNotFound):
		return nil, err
	}

	diff := Diff(items, current)
	result.TotalCatalogItems = diff.TotalCatalogItems
	result.ExistingItems = len(diff.ExistingIDs)
	result.NewItems = len(diff.MissingIDs)
	result.RemovedItems = len(diff.RemovedIDs)
	result.Unidentified = diff.Unidentified
	result.MissingIDs = diff.MissingIDs
	return result, nil
}

// Start fetches the catalog, queues the import and returns without waiting for it.
func (s *Service) Start(ctx context.Context, req SyncRequest) (*StartResult, error) {
	kind, err := req.validate()
	if err != nil {
		return nil, err
	}
	src, err := s.sources.Resolve(ctx, req.CatalogID, kind)
	if err != nil {
		return nil, err
	}

	items, _, err := s.fetch(ctx, src, req.MaxItems)
	if err != nil {
		return nil, err
	}

	name := s.collectionName(ctx, src, req.CollectionName)

	status, err := s.queue.Submit(RunRequest{
		CatalogID:      src.CatalogID,
		Kind:           kind.String(),
		CollectionName: name,
	}, func(jobCtx context.Context, runID string) (RunResult, error) {
		return s.syncCatalog(jobCtx, runID, name, src, req.MaxItems, items)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("runId", status.ID).
		Str("catalogId", src.CatalogID).
		Str("kind", kind.String()).
		Int("items", len(items)).
		Msg("Catalog sync queued")

	return &StartResult{
		Started:                  true,
		RunID:                    status.ID,
		CatalogSizeAtRequestTime: len(items),
	}, nil
}

// Runs returns retained on-demand run statuses, newest first.
func (s *Service) Runs() []RunStatus {
	return s.queue.List()
}

// Run returns a single run status.
func (s *Service) Run(id string) (RunStatus, error) {
	return s.queue.Get(id)
}

// Manifest returns the configured addon's manifest.
func (s *Service) Manifest(ctx context.Context) (*catalog.Manifest, error) {
	base, err := s.sources.BaseURL(ctx)
	if err != nil {
		return nil, err
	}
	return s.client.FetchManifest(ctx, base)
}

// IsSweepRunning returns whether a sweep is in progress.
func (s *Service) IsSweepRunning() bool {
	return s.running.Load()
}

// LastStatus returns the last sweep status.
func (s *Service) LastStatus() SweepStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.status
	st.Running = s.running.Load()
	return st
}

// TriggerSweep starts a sweep in the background.
func (s *Service) TriggerSweep() error {
	if s.IsSweepRunning() {
		return ErrSweepRunning
	}
	go func() {
		if err := s.Sweep(s.bgCtx); err != nil && !errors.Is(err, ErrSweepRunning) {
			s.logger.Error().Err(err).Msg("Catalog sweep failed")
		}
	}()
	return nil
}

// Sweep re-syncs every tagged collection, one after another. A failing
// collection is counted and skipped. Cancellation is checked between
// collections and between items.
func (s *Service) Sweep(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrSweepRunning
	}
	defer s.running.Store(false)

	start := time.Now()
	s.logger.Info().Msg("Catalog sweep starting")

	base, err := s.sources.BaseURL(ctx)
	if err != nil {
		if errors.Is(err, ErrConfigurationMissing) {
			s.logger.Warn().Msg("No catalog source configured, ending sweep")
			s.setStatus(SweepStatus{LastRun: start, Error: err.Error()})
			return nil
		}
		s.failSweep(start, err)
		return err
	}

	tagged, err := s.collections.ListTagged(ctx)
	if err != nil {
		s.failSweep(start, err)
		return err
	}

	s.broadcast(EventSweepStarted, SweepStartedEvent{CollectionCount: len(tagged)})

	status := SweepStatus{LastRun: start}
	for _, coll := range tagged {
		if ctx.Err() != nil {
			status.Cancelled = true
			break
		}

		result, err := s.sweepCollection(ctx, base, coll)
		status.Collections++
		status.SuccessCount += result.Report.SuccessCount
		status.FailedCount += result.Report.FailedCount

		if err != nil {
			status.CollectionsFailed++
			s.logger.Error().Err(err).
				Int64("collectionId", coll.ID).
				Str("tag", coll.ProviderTag()).
				Msg("Collection sync failed")
			continue
		}
		if result.Report.Cancelled {
			status.Cancelled = true
			break
		}
	}

	status.ElapsedMs = int(time.Since(start).Milliseconds())
	s.setStatus(status)

	s.logger.Info().
		Int("collections", status.Collections).
		Int("collectionsFailed", status.CollectionsFailed).
		Int("attached", status.SuccessCount).
		Int("failed", status.FailedCount).
		Bool("cancelled", status.Cancelled).
		Int("elapsedMs", status.ElapsedMs).
		Msg("Catalog sweep complete")

	s.broadcast(EventSweepCompleted, SweepCompletedEvent{
		Collections:  status.Collections,
		SuccessCount: status.SuccessCount,
		FailedCount:  status.FailedCount,
		ElapsedMs:    status.ElapsedMs,
	})
	return nil
}

func (s *Service) sweepCollection(ctx context.Context, base string, coll *collections.Collection) (RunResult, error) {
	tag := coll.ProviderTag()
	catalogID, kind, hasKind := collections.ParseProviderTag(tag)

	var (
		items []catalog.Item
		err   error
	)
	if hasKind {
		items, err = s.client.FetchCatalog(ctx, catalog.Source{BaseURL: base, CatalogID: catalogID, Kind: kind}, coll.MaxItems)
	} else {
		// Legacy tags carry no kind; the first kind with items wins even if
		// the addon serves the id under both kinds.
		s.logger.Warn().Str("tag", tag).Msg("Provider tag has no media kind, probing movie then series")
		kind, items, err = s.client.ProbeKind(ctx, base, catalogID, coll.MaxItems)
	}
	if err != nil {
		// A truncated catalog is still synced; one that failed before
		// yielding anything counts against the collection.
		var fetchErr *catalog.FetchError
		if !errors.As(err, &fetchErr) || len(items) == 0 {
			return RunResult{CollectionID: coll.ID}, fmt.Errorf("fetch catalog %q: %w", tag, err)
		}
		s.logger.Warn().Err(err).Str("tag", tag).Int("fetched", len(items)).Msg("Catalog fetch truncated")
	}

	return s.importDelta(ctx, "", coll, catalogID, kind, items, s.config.SweepCooldown)
}

// syncCatalog imports the fetched items into the tagged collection. A
// non-zero maxItems is stored on the collection so sweeps fetch the same window.
func (s *Service) syncCatalog(
	ctx context.Context,
	runID, name string,
	src catalog.Source,
	maxItems int,
	items []catalog.Item,
) (RunResult, error) {
	coll, created, err := s.collections.EnsureCollection(ctx, name, collections.ProviderTag(src.CatalogID, src.Kind))
	if err != nil {
		s.broadcast(EventFailed, FailedEvent{RunID: runID, CatalogID: src.CatalogID, Error: err.Error()})
		return RunResult{}, fmt.Errorf("ensure collection: %w", err)
	}
	if created {
		s.logger.Info().Int64("collectionId", coll.ID).Str("name", coll.Name).Msg("Created collection for catalog")
	}
	if maxItems > 0 && maxItems != coll.MaxItems {
		if err := s.collections.SetMaxItems(ctx, coll.ID, maxItems); err != nil {
			s.logger.Warn().Err(err).Int64("collectionId", coll.ID).Msg("Failed to store collection max items")
		} else {
			coll.MaxItems = maxItems
		}
	}

	return s.importDelta(ctx, runID, coll, src.CatalogID, src.Kind, items, s.config.InteractiveCooldown)
}

// importDelta diffs items against the collection and imports only what is missing.
func (s *Service) importDelta(
	ctx context.Context,
	runID string,
	coll *collections.Collection,
	catalogID string,
	kind catalog.MediaKind,
	items []catalog.Item,
	cooldown time.Duration,
) (RunResult, error) {
	current, err := s.collections.CurrentMemberExternalIDs(ctx, coll.ID)
	if err != nil {
		return RunResult{CollectionID: coll.ID}, err
	}

	diff := Diff(items, current)
	missing := MissingItems(items, diff)
	result := RunResult{CollectionID: coll.ID, Diff: diff}

	s.logger.Info().
		Str("runId", runID).
		Int64("collectionId", coll.ID).
		Int("total", diff.TotalCatalogItems).
		Int("existing", len(diff.ExistingIDs)).
		Int("missing", len(diff.MissingIDs)).
		Int("unidentified", diff.Unidentified).
		Msg("Catalog diffed")

	s.broadcast(EventStarted, StartedEvent{
		RunID:        runID,
		CollectionID: coll.ID,
		CatalogID:    catalogID,
		Kind:         kind.String(),
		MissingCount: len(missing),
	})

	start := time.Now()
	if len(missing) > 0 {
		result.Report = s.orchestrator.ImportMissing(ctx, coll, missing, kind, KnownSet(current), ImportOptions{
			Cooldown: cooldown,
			RunID:    runID,
		})
	}

	s.broadcast(EventCompleted, CompletedEvent{
		RunID:        runID,
		CollectionID: coll.ID,
		SuccessCount: result.Report.SuccessCount,
		FailedCount:  result.Report.FailedCount,
		SkippedCount: result.Report.SkippedCount,
		Cancelled:    result.Report.Cancelled,
		ElapsedMs:    int(time.Since(start).Milliseconds()),
	})
	return result, nil
}

// fetch treats a *catalog.FetchError as a truncation: the partial items are
// returned and truncated is set.
func (s *Service) fetch(ctx context.Context, src catalog.Source, maxItems int) ([]catalog.Item, bool, error) {
	items, err := s.client.FetchCatalog(ctx, src, maxItems)
	if err == nil {
		return items, false, nil
	}

	var fetchErr *catalog.FetchError
	if !errors.As(err, &fetchErr) {
		return nil, false, err
	}
	s.logger.Warn().Err(err).
		Str("catalogId", src.CatalogID).
		Int("fetched", len(items)).
		Msg("Catalog fetch truncated")
	return items, true, nil
}

func (s *Service) collectionName(ctx context.Context, src catalog.Source, requested string) string {
	if name := strings.TrimSpace(requested); name != "" {
		return name
	}
	manifest, err := s.client.FetchManifest(ctx, src.BaseURL)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Manifest unavailable, naming collection after catalog id")
		return src.CatalogID
	}
	if c, ok := manifest.FindCatalog(src.CatalogID, src.Kind); ok && c.Name != "" {
		return c.Name
	}
	return src.CatalogID
}

func (s *Service) setStatus(status SweepStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *Service) failSweep(start time.Time, err error) {
	s.logger.Error().Err(err).Msg("Catalog sweep failed")
	s.setStatus(SweepStatus{LastRun: start, Error: err.Error()})
	s.broadcast(EventSweepCompleted, SweepCompletedEvent{Error: err.Error()})
}

func (s *Service) broadcast(eventType string, payload interface{}) {
	if s.hub == nil {
		return
	}
	if err := s.hub.Broadcast(eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("failed to broadcast catalog sync event")
	}
}
