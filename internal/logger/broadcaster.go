package logger

import (
	"encoding/json"
	"sync"
)

const defaultBufferSize = 1000

// Broadcaster is the interface for broadcasting messages.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

// LogEntry represents a parsed log entry for streaming.
type LogEntry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Component string         `json:"component,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// LogBroadcaster implements io.Writer, keeps the most recent entries and
// forwards each one to the websocket hub when set.
type LogBroadcaster struct {
	mu      sync.RWMutex
	hub     Broadcaster
	entries []LogEntry
	next    int
	full    bool
}

// NewLogBroadcaster creates a new log broadcaster.
// Hub can be nil initially and set later with SetHub.
func NewLogBroadcaster(hub Broadcaster, bufferSize int) *LogBroadcaster {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &LogBroadcaster{
		hub:     hub,
		entries: make([]LogEntry, bufferSize),
	}
}

// SetHub sets the broadcaster hub for sending messages.
func (b *LogBroadcaster) SetHub(hub Broadcaster) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hub = hub
}

// Write implements io.Writer. It receives JSON log entries from zerolog.
func (b *LogBroadcaster) Write(p []byte) (int, error) {
	n := len(p)

	entry, err := parseLogEntry(p)
	if err != nil {
		return n, nil //nolint:nilerr // malformed entries are dropped
	}

	b.mu.Lock()
	b.entries[b.next] = entry
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
	hub := b.hub
	b.mu.Unlock()

	if hub != nil {
		_ = hub.Broadcast("logs:entry", entry)
	}

	return n, nil
}

// GetRecentLogs returns all buffered log entries, oldest first.
func (b *LogBroadcaster) GetRecentLogs() []LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.full {
		out := make([]LogEntry, b.next)
		copy(out, b.entries[:b.next])
		return out
	}

	out := make([]LogEntry, 0, len(b.entries))
	out = append(out, b.entries[b.next:]...)
	out = append(out, b.entries[:b.next]...)
	return out
}

func parseLogEntry(data []byte) (LogEntry, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return LogEntry{}, err
	}

	entry := LogEntry{Fields: make(map[string]any)}

	if ts, ok := raw["time"].(string); ok {
		entry.Timestamp = ts
		delete(raw, "time")
	}
	if level, ok := raw["level"].(string); ok {
		entry.Level = level
		delete(raw, "level")
	}
	if component, ok := raw["component"].(string); ok {
		entry.Component = component
		delete(raw, "component")
	}
	if msg, ok := raw["message"].(string); ok {
		entry.Message = msg
		delete(raw, "message")
	}

	for k, v := range raw {
		entry.Fields[k] = v
	}

	return entry, nil
}
