package catalogsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/slipstream/catalogsync/internal/catalog"
	"github.com/slipstream/catalogsync/internal/collections"
	"github.com/slipstream/catalogsync/internal/library/media"
)

// Importer imports a media item that is not yet in the local store.
// A nil item with a nil error means the importer produced nothing.
type Importer interface {
	ImportByExternalID(ctx context.Context, externalID string, kind catalog.MediaKind) (*media.Item, error)
}

// MediaStore looks up locally imported media. It returns media.ErrNotFound
// when no item carries the external id.
type MediaStore interface {
	FindByExternalID(ctx context.Context, externalID string) (*media.Item, error)
}

// MemberStore attaches media items to a collection.
type MemberStore interface {
	AddMembers(ctx context.Context, collectionID int64, mediaItemIDs []int64) error
}

// Broadcaster publishes events to connected clients.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

// OutcomeStatus is the terminal state of a single item.
type OutcomeStatus string

const (
	StatusAttached OutcomeStatus = "attached"
	StatusSkipped  OutcomeStatus = "skipped"
	StatusFailed   OutcomeStatus = "failed"
)

// Outcome reasons for skipped and failed items.
const (
	ReasonNoID                 = "no-id"
	ReasonDuplicate            = "duplicate"
	ReasonImportError          = "import-error"
	ReasonPostImportLookupMiss = "post-import-lookup-miss"
	ReasonAttachError          = "attach-error"
)

var (
	errImporterReturnedNothing = errors.New("importer returned nothing")
	errPostImportLookupMiss    = errors.New("imported item not found in media store")
)

// ImportOutcome records what happened to one catalog item.
type ImportOutcome struct {
	ExternalID  string        `json:"externalId,omitempty"`
	Name        string        `json:"name,omitempty"`
	Status      OutcomeStatus `json:"status"`
	Reason      string        `json:"reason,omitempty"`
	MediaItemID int64         `json:"mediaItemId,omitempty"`
	Imported    bool          `json:"imported,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// ImportReport aggregates the outcomes of one import pass.
type ImportReport struct {
	Outcomes     []ImportOutcome `json:"outcomes"`
	SuccessCount int             `json:"successCount"`
	FailedCount  int             `json:"failedCount"`
	SkippedCount int             `json:"skippedCount"`
	Cancelled    bool            `json:"cancelled"`
}

// ImportOptions tunes a single import pass.
type ImportOptions struct {
	// Cooldown is waited after every item before the next one.
	Cooldown time.Duration
	RunID    string
}

// Orchestrator imports missing catalog items one at a time and attaches them
// to a collection.
type Orchestrator struct {
	importer Importer
	media    MediaStore
	members  MemberStore
	hub      Broadcaster
	logger   zerolog.Logger

	wait func(ctx context.Context, d time.Duration) bool
}

// NewOrchestrator creates a new import orchestrator. hub may be nil.
func NewOrchestrator(importer Importer, mediaStore MediaStore, members MemberStore, hub Broadcaster, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		importer: importer,
		media:    mediaStore,
		members:  members,
		hub:      hub,
		logger:   logger.With().Str("component", "catalogsync-orchestrator").Logger(),
		wait:     sleepCtx,
	}
}

// ImportMissing processes items sequentially in catalog order. Ids already in
// known are skipped as duplicates; known itself is not modified.
//
// Cancellation is observed before each item and during the cooldown. An item
// that has started runs to completion regardless of ctx.
func (o *Orchestrator) ImportMissing(
	ctx context.Context,
	coll *collections.Collection,
	items []catalog.Item,
	kind catalog.MediaKind,
	known map[string]struct{},
	opts ImportOptions,
) ImportReport {
	report := ImportReport{Outcomes: make([]ImportOutcome, 0, len(items))}

	seen := make(map[string]struct{}, len(known)+len(items))
	for id := range known {
		seen[catalog.NormalizeExternalID(id)] = struct{}{}
	}

	logger := o.logger.With().Int64("collectionId", coll.ID).Str("runId", opts.RunID).Logger()

	for i, item := range items {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}

		outcome := o.processItem(context.WithoutCancel(ctx), coll, item, kind, seen)
		report.Outcomes = append(report.Outcomes, outcome)

		switch outcome.Status {
		case StatusAttached:
			report.SuccessCount++
		case StatusFailed:
			report.FailedCount++
			logger.Warn().
				Str("externalId", outcome.ExternalID).
				Str("reason", outcome.Reason).
				Str("error", outcome.Error).
				Msg("Catalog item failed")
		case StatusSkipped:
			report.SkippedCount++
		}

		o.broadcast(EventProgress, ProgressEvent{
			RunID:        opts.RunID,
			CollectionID: coll.ID,
			Index:        i + 1,
			Total:        len(items),
			Outcome:      outcome,
		})

		if i < len(items)-1 && opts.Cooldown > 0 {
			if !o.wait(ctx, opts.Cooldown) {
				report.Cancelled = true
				break
			}
		}
	}

	logger.Info().
		Int("attached", report.SuccessCount).
		Int("failed", report.FailedCount).
		Int("skipped", report.SkippedCount).
		Bool("cancelled", report.Cancelled).
		Msg("Import pass finished")

	return report
}

// processItem runs the per-item state machine.
func (o *Orchestrator) processItem(
	ctx context.Context,
	coll *collections.Collection,
	item catalog.Item,
	kind catalog.MediaKind,
	seen map[string]struct{},
) (outcome ImportOutcome) {
	id := item.ExternalID()
	outcome = ImportOutcome{ExternalID: id, Name: item.Name}

	if id == "" {
		outcome.Status, outcome.Reason = StatusSkipped, ReasonNoID
		return outcome
	}
	if _, dup := seen[id]; dup {
		outcome.Status, outcome.Reason = StatusSkipped, ReasonDuplicate
		return outcome
	}
	seen[id] = struct{}{}

	defer func() {
		if r := recover(); r != nil {
			outcome.Status, outcome.Reason = StatusFailed, ReasonImportError
			outcome.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	mediaItem, err := o.media.FindByExternalID(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, media.ErrNotFound):
		mediaItem, err = o.importAndLookup(ctx, id, kind)
		if err != nil {
			outcome.Status = StatusFailed
			outcome.Reason = ReasonImportError
			if errors.Is(err, errPostImportLookupMiss) {
				outcome.Reason = ReasonPostImportLookupMiss
			}
			outcome.Error = err.Error()
			return outcome
		}
		outcome.Imported = true
	default:
		outcome.Status, outcome.Reason = StatusFailed, ReasonImportError
		outcome.Error = fmt.Sprintf("media lookup: %v", err)
		return outcome
	}

	if err := o.members.AddMembers(ctx, coll.ID, []int64{mediaItem.ID}); err != nil {
		outcome.Status, outcome.Reason = StatusFailed, ReasonAttachError
		outcome.MediaItemID = mediaItem.ID
		outcome.Error = err.Error()
		return outcome
	}

	outcome.Status = StatusAttached
	outcome.MediaItemID = mediaItem.ID
	return outcome
}

func (o *Orchestrator) importAndLookup(ctx context.Context, id string, kind catalog.MediaKind) (*media.Item, error) {
	handle, err := o.importer.ImportByExternalID(ctx, id, kind)
	if err != nil {
		return nil, err
	}
	if handle == nil {
		return nil, errImporterReturnedNothing
	}

	found, err := o.media.FindByExternalID(ctx, id)
	if err != nil {
		if errors.Is(err, media.ErrNotFound) {
			return nil, errPostImportLookupMiss
		}
		return nil, fmt.Errorf("%w: %v", errPostImportLookupMiss, err)
	}
	return found, nil
}

func (o *Orchestrator) broadcast(eventType string, payload interface{}) {
	if o.hub == nil {
		return
	}
	if err := o.hub.Broadcast(eventType, payload); err != nil {
		o.logger.Debug().Err(err).Str("event", eventType).Msg("failed to broadcast catalog sync event")
	}
}

// sleepCtx waits for d and reports false if ctx was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
