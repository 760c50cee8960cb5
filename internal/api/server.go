package api

import (
	"context"
	"database/sql"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/slipstream/catalogsync/internal/catalog"
	"github.com/slipstream/catalogsync/internal/catalogsync"
	"github.com/slipstream/catalogsync/internal/collections"
	"github.com/slipstream/catalogsync/internal/config"
	"github.com/slipstream/catalogsync/internal/database"
	"github.com/slipstream/catalogsync/internal/importer"
	"github.com/slipstream/catalogsync/internal/library/media"
	"github.com/slipstream/catalogsync/internal/metadata"
	"github.com/slipstream/catalogsync/internal/metadata/tmdb"
	"github.com/slipstream/catalogsync/internal/scheduler"
	"github.com/slipstream/catalogsync/internal/scheduler/tasks"
	"github.com/slipstream/catalogsync/internal/websocket"
)

const (
	titleCacheSize       = 10000
	titleCacheSweepEvery = 10 * time.Minute
)

// Server handles HTTP requests for the catalog sync API.
type Server struct {
	echo      *echo.Echo
	db        *sql.DB
	hub       *websocket.Hub
	logger    zerolog.Logger
	cfg       *config.Config
	startTime time.Time

	// Services
	settingsStore     *database.Settings
	mediaService      *media.Service
	collectionService *collections.Service
	catalogClient     *catalog.Client
	tmdbClient        *tmdb.Client
	titleCache        *metadata.Cache[tmdb.Title]
	titleResolver     *metadata.Resolver
	strmImporter      *importer.StrmImporter
	sourceResolver    *catalogsync.SourceResolver
	runQueue          *catalogsync.Queue
	orchestrator      *catalogsync.Orchestrator
	syncService       *catalogsync.Service
	syncSettings      *catalogsync.SettingsHandler

	scheduler *scheduler.Scheduler
	api       *echo.Group
}

// NewServer creates a new API server instance. libraryFs is the filesystem
// imported items are written to.
func NewServer(db *sql.DB, hub *websocket.Hub, cfg *config.Config, libraryFs afero.Fs, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		db:        db,
		hub:       hub,
		logger:    logger,
		cfg:       cfg,
		startTime: time.Now(),
	}

	s.settingsStore = database.NewSettings(db)
	s.mediaService = media.NewService(db, logger)
	s.collectionService = collections.NewService(db, logger)

	s.catalogClient = catalog.NewClient(cfg.Catalog, logger)
	s.sourceResolver = catalogsync.NewSourceResolver(s.settingsStore, &cfg.Catalog)

	// Titles come from TMDB when an API key is configured, otherwise the
	// external id itself is used.
	s.tmdbClient = tmdb.NewClient(cfg.Metadata.TMDB, logger)
	s.titleCache = metadata.NewCache[tmdb.Title](titleCacheSize)
	s.titleResolver = metadata.NewResolver(s.tmdbClient, s.titleCache, cfg.Metadata.TMDB.CacheTTL, logger)

	s.strmImporter = importer.NewStrmImporter(
		libraryFs,
		cfg.Importer.LibraryPath,
		s.mediaService,
		s.titleResolver,
		s.sourceResolver,
		logger,
	)

	s.orchestrator = catalogsync.NewOrchestrator(s.strmImporter, s.mediaService, s.collectionService, hub, logger)
	s.runQueue = catalogsync.NewQueue(cfg.Sync.QueueSize, logger)
	s.syncService = catalogsync.NewService(
		s.catalogClient,
		s.collectionService,
		s.orchestrator,
		s.sourceResolver,
		s.runQueue,
		&cfg.Sync,
		hub,
		logger,
	)
	s.syncSettings = catalogsync.NewSettingsHandler(s.settingsStore, s.sourceResolver, &cfg.Sync)

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// SetScheduler wires the task scheduler: its routes become available and
// settings changes reschedule the catalog sweep.
func (s *Server) SetScheduler(sched *scheduler.Scheduler) {
	s.scheduler = sched
	s.syncSettings.SetScheduler(sched, s.syncService, tasks.UpdateCatalogSyncTask)
	s.setupSchedulerRoutes()
}

// SetLogsProvider exposes recent log entries over the API.
func (s *Server) SetLogsProvider(provider LogsProvider) {
	NewLogsHandlers(provider).RegisterRoutes(s.api.Group("/system/logs"))
}

// StartBackground starts the run queue and cache maintenance. Everything it
// starts stops when ctx is cancelled or Shutdown is called.
func (s *Server) StartBackground(ctx context.Context) {
	s.syncService.SetBackgroundContext(ctx)
	s.runQueue.Start(ctx)
	go s.titleCache.RunJanitor(ctx, titleCacheSweepEvery)
}

// Start begins listening for HTTP requests.
func (s *Server) Start(address string) error {
	s.logger.Info().Str("address", address).Msg("starting HTTP server")
	return s.echo.Start(address)
}

// Shutdown gracefully stops the server and cancels queued sync runs.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	err := s.echo.Shutdown(ctx)
	s.runQueue.Stop()
	return err
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// CatalogSync returns the catalog sync service.
func (s *Server) CatalogSync() *catalogsync.Service {
	return s.syncService
}

// SettingsStore returns the runtime settings store.
func (s *Server) SettingsStore() *database.Settings {
	return s.settingsStore
}
