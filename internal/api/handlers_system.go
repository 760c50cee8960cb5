package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/slipstream/catalogsync/internal/config"
	"github.com/slipstream/catalogsync/internal/database"
)

// --- Handler implementations ---

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getStatus(c echo.Context) error {
	ctx := c.Request().Context()

	mediaCount, _ := s.mediaService.Count(ctx)
	collections, _ := s.collectionService.ListTagged(ctx)

	_, sourceErr := s.sourceResolver.BaseURL(ctx)
	schemaVersion, _ := database.SchemaVersion(ctx, s.db)

	response := map[string]interface{}{
		"version":            config.Version,
		"startTime":          s.startTime.Format(time.RFC3339),
		"schemaVersion":      schemaVersion,
		"mediaCount":         mediaCount,
		"catalogCollections": len(collections),
		"catalogConfigured":  sourceErr == nil,
		"tmdbConfigured":     s.tmdbClient.IsConfigured(),
		"sweepRunning":       s.syncService.IsSweepRunning(),
		"websocketClients":   s.hub.ClientCount(),
	}
	if s.scheduler != nil {
		response["tasks"] = len(s.scheduler.ListTasks())
	}
	return c.JSON(http.StatusOK, response)
}
