package catalogsync

// WebSocket event types for catalog sync.
const (
	EventStarted        = "catalog-sync:started"
	EventProgress       = "catalog-sync:progress"
	EventCompleted      = "catalog-sync:completed"
	EventFailed         = "catalog-sync:failed"
	EventSweepStarted   = "catalog-sync:sweep-started"
	EventSweepCompleted = "catalog-sync:sweep-completed"
)

type StartedEvent struct {
	RunID        string `json:"runId"`
	CollectionID int64  `json:"collectionId"`
	CatalogID    string `json:"catalogId"`
	Kind         string `json:"kind"`
	MissingCount int    `json:"missingCount"`
}

type ProgressEvent struct {
	RunID        string        `json:"runId,omitempty"`
	CollectionID int64         `json:"collectionId"`
	Index        int           `json:"index"`
	Total        int           `json:"total"`
	Outcome      ImportOutcome `json:"outcome"`
}

type CompletedEvent struct {
	RunID        string `json:"runId,omitempty"`
	CollectionID int64  `json:"collectionId"`
	SuccessCount int    `json:"successCount"`
	FailedCount  int    `json:"failedCount"`
	SkippedCount int    `json:"skippedCount"`
	Cancelled    bool   `json:"cancelled"`
	ElapsedMs    int    `json:"elapsed"`
}

type FailedEvent struct {
	RunID     string `json:"runId,omitempty"`
	CatalogID string `json:"catalogId,omitempty"`
	Error     string `json:"error"`
}

type SweepStartedEvent struct {
	CollectionCount int `json:"collectionCount"`
}

type SweepCompletedEvent struct {
	Collections  int    `json:"collections"`
	SuccessCount int    `json:"successCount"`
	FailedCount  int    `json:"failedCount"`
	ElapsedMs    int    `json:"elapsed"`
	Error        string `json:"error,omitempty"`
}
