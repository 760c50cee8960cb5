package catalogsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/slipstream/catalogsync/internal/config"
	"github.com/slipstream/catalogsync/internal/database"
	"github.com/slipstream/catalogsync/internal/scheduler"
)

const settingsKey = "catalogsync_settings"

// Settings represents user-configurable catalog sync settings.
type Settings struct {
	Enabled       bool   `json:"enabled"`
	IntervalHours int    `json:"intervalHours"`
	BaseURL       string `json:"baseUrl"`
}

type storedSettings struct {
	Enabled       bool `json:"enabled"`
	IntervalHours int  `json:"intervalHours"`
}

// ScheduleUpdater is a function that updates the catalog sync task schedule.
type ScheduleUpdater func(sched *scheduler.Scheduler, service *Service, cfg *config.SyncConfig) error

// SettingsHandler provides HTTP handlers for catalog sync settings.
type SettingsHandler struct {
	settings        *database.Settings
	sources         *SourceResolver
	config          *config.SyncConfig
	scheduler       *scheduler.Scheduler
	service         *Service
	scheduleUpdater ScheduleUpdater
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(settings *database.Settings, sources *SourceResolver, cfg *config.SyncConfig) *SettingsHandler {
	return &SettingsHandler{
		settings: settings,
		sources:  sources,
		config:   cfg,
	}
}

// SetScheduler sets the scheduler and service for dynamic task updates.
func (h *SettingsHandler) SetScheduler(sched *scheduler.Scheduler, service *Service, updater ScheduleUpdater) {
	h.scheduler = sched
	h.service = service
	h.scheduleUpdater = updater
}

// GetSettings returns current catalog sync settings.
// GET /api/v1/settings/catalogsync
func (h *SettingsHandler) GetSettings(c echo.Context) error {
	ctx := c.Request().Context()

	settings := h.current(ctx)
	return c.JSON(http.StatusOK, settings)
}

// UpdateSettings updates catalog sync settings.
// PUT /api/v1/settings/catalogsync
func (h *SettingsHandler) UpdateSettings(c echo.Context) error {
	ctx := c.Request().Context()

	var input Settings
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if input.IntervalHours < 1 || input.IntervalHours > 168 {
		return echo.NewHTTPError(http.StatusBadRequest, "intervalHours must be between 1 and 168")
	}

	data, err := json.Marshal(storedSettings{Enabled: input.Enabled, IntervalHours: input.IntervalHours})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := h.settings.Set(ctx, settingsKey, string(data)); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := h.sources.SetBaseURL(ctx, input.BaseURL); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.config.Enabled = input.Enabled
	h.config.Interval = time.Duration(input.IntervalHours) * time.Hour

	if h.scheduler != nil && h.scheduleUpdater != nil {
		if err := h.scheduleUpdater(h.scheduler, h.service, h.config); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to update schedule: "+err.Error())
		}
	}

	return c.JSON(http.StatusOK, h.current(ctx))
}

func (h *SettingsHandler) current(ctx context.Context) *Settings {
	settings := &Settings{
		Enabled:       h.config.Enabled,
		IntervalHours: int(h.config.Interval / time.Hour),
	}
	if base, err := h.sources.BaseURL(ctx); err == nil {
		settings.BaseURL = base
	}
	return settings
}

// LoadSettingsIntoConfig loads saved catalog sync settings from the database into config at startup.
func LoadSettingsIntoConfig(ctx context.Context, settings *database.Settings, cfg *config.SyncConfig) error {
	raw, err := settings.Get(ctx, settingsKey)
	if err != nil {
		if errors.Is(err, database.ErrSettingNotFound) {
			return nil
		}
		return err
	}

	var stored storedSettings
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return fmt.Errorf("decode %s setting: %w", settingsKey, err)
	}
	cfg.Enabled = stored.Enabled
	if stored.IntervalHours > 0 {
		cfg.Interval = time.Duration(stored.IntervalHours) * time.Hour
	}
	return nil
}
