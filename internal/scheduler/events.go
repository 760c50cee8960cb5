package scheduler

// WebSocket event types for scheduled tasks.
const (
	EventTaskStarted   = "scheduler:task-started"
	EventTaskCompleted = "scheduler:task-completed"
)

type TaskEvent struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DurationMs int    `json:"duration,omitempty"`
	Error      string `json:"error,omitempty"`
}
