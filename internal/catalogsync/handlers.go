package catalogsync

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/slipstream/catalogsync/internal/catalog"
)

// Handlers provides HTTP handlers for catalog sync operations.
type Handlers struct {
	service *Service
}

// NewHandlers creates new catalog sync handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers the catalog sync routes.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.POST("/preview", h.Preview)
	g.POST("/sync", h.Sync)
	g.GET("/runs", h.ListRuns)
	g.GET("/runs/:id", h.GetRun)
	g.POST("/sweep", h.Sweep)
	g.GET("/status", h.GetStatus)
	g.GET("/manifest", h.GetManifest)
}

// Preview reports what a sync would change.
// POST /api/v1/catalogsync/preview
func (h *Handlers) Preview(c echo.Context) error {
	var req SyncRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.Preview(c.Request().Context(), req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// Sync starts an on-demand sync.
// POST /api/v1/catalogsync/sync
func (h *Handlers) Sync(c echo.Context) error {
	var req SyncRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.Start(c.Request().Context(), req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusAccepted, result)
}

// ListRuns returns recent on-demand runs.
// GET /api/v1/catalogsync/runs
func (h *Handlers) ListRuns(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.Runs())
}

// GetRun returns one run.
// GET /api/v1/catalogsync/runs/:id
func (h *Handlers) GetRun(c echo.Context) error {
	run, err := h.service.Run(c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, run)
}

// Sweep triggers a sweep of every tagged collection.
// POST /api/v1/catalogsync/sweep
func (h *Handlers) Sweep(c echo.Context) error {
	if err := h.service.TriggerSweep(); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{
		"message": "Catalog sweep started",
	})
}

// GetStatus returns the last sweep status.
// GET /api/v1/catalogsync/status
func (h *Handlers) GetStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.LastStatus())
}

// GetManifest returns the configured addon manifest.
// GET /api/v1/catalogsync/manifest
func (h *Handlers) GetManifest(c echo.Context) error {
	manifest, err := h.service.Manifest(c.Request().Context())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, manifest)
}

func mapError(err error) error {
	var fetchErr *catalog.FetchError
	switch {
	case errors.Is(err, ErrConfigurationMissing):
		return echo.NewHTTPError(http.StatusPreconditionFailed, err.Error())
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, catalog.ErrInvalidSource):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrRunNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrSweepRunning):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrQueueFull), errors.Is(err, ErrQueueStopped):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &fetchErr):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
