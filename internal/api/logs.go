package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/slipstream/catalogsync/internal/logger"
)

// LogsProvider provides access to log data.
type LogsProvider interface {
	GetRecentLogs() []logger.LogEntry
	GetLogFilePath() string
}

// LogsHandlers serves buffered log entries and the active log file.
type LogsHandlers struct {
	provider LogsProvider
}

// NewLogsHandlers creates a new logs handlers instance.
func NewLogsHandlers(provider LogsProvider) *LogsHandlers {
	return &LogsHandlers{provider: provider}
}

// RegisterRoutes registers log routes on the given group.
func (h *LogsHandlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.GetRecentLogs)
	g.GET("/download", h.DownloadLogFile)
}

// logFilter selects entries by level, component and sync run.
type logFilter struct {
	level     string
	component string
	runID     string
}

func (f logFilter) match(entry logger.LogEntry) bool {
	if f.level != "" && entry.Level != f.level {
		return false
	}
	if f.component != "" && entry.Component != f.component {
		return false
	}
	if f.runID != "" {
		if id, _ := entry.Fields["runId"].(string); id != f.runID {
			return false
		}
	}
	return true
}

// GetRecentLogs returns buffered entries, oldest first.
// GET /api/v1/system/logs?level=&component=&runId=&limit=
// limit keeps only the newest matching entries.
func (h *LogsHandlers) GetRecentLogs(c echo.Context) error {
	filter := logFilter{
		level:     c.QueryParam("level"),
		component: c.QueryParam("component"),
		runID:     c.QueryParam("runId"),
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = n
	}

	entries := []logger.LogEntry{}
	for _, entry := range h.provider.GetRecentLogs() {
		if filter.match(entry) {
			entries = append(entries, entry)
		}
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return c.JSON(http.StatusOK, entries)
}

// DownloadLogFile serves the active log file as an attachment.
func (h *LogsHandlers) DownloadLogFile(c echo.Context) error {
	logPath := h.provider.GetLogFilePath()
	if logPath == "" {
		return echo.NewHTTPError(http.StatusNotFound, "file logging is disabled")
	}
	if _, err := os.Stat(logPath); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "log file not found")
	}
	return c.Attachment(logPath, filepath.Base(logPath))
}
