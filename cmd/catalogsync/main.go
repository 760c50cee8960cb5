package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"

	"github.com/slipstream/catalogsync/internal/api"
	"github.com/slipstream/catalogsync/internal/catalogsync"
	"github.com/slipstream/catalogsync/internal/config"
	"github.com/slipstream/catalogsync/internal/database"
	"github.com/slipstream/catalogsync/internal/logger"
	"github.com/slipstream/catalogsync/internal/scheduler"
	"github.com/slipstream/catalogsync/internal/scheduler/tasks"
	"github.com/slipstream/catalogsync/internal/startup"
	"github.com/slipstream/catalogsync/internal/websocket"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	envFile := flag.String("env-file", ".env", "Path to an optional .env file")
	flag.Parse()

	// Missing .env files are fine; values may come from the real environment.
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		panic("failed to load env file: " + err.Error())
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(logger.Config{
		Level:           cfg.Logging.Level,
		Format:          cfg.Logging.Format,
		Path:            cfg.Logging.Path,
		MaxSizeMB:       cfg.Logging.MaxSizeMB,
		MaxBackups:      cfg.Logging.MaxBackups,
		MaxAgeDays:      cfg.Logging.MaxAgeDays,
		Compress:        cfg.Logging.Compress,
		EnableStreaming: true,
		BufferSize:      1000,
	})
	defer log.Close()

	log.Info().
		Str("version", config.Version).
		Str("logLevel", cfg.Logging.Level).
		Msg("starting catalogsync")

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	log.Info().Msg("running database migrations")
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	if version, err := database.SchemaVersion(context.Background(), db.Conn()); err == nil {
		log.Info().Int64("schemaVersion", version).Msg("database ready")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	settings := database.NewSettings(db.Conn())
	if err := catalogsync.LoadSettingsIntoConfig(ctx, settings, &cfg.Sync); err != nil {
		log.Warn().Err(err).Msg("failed to load catalog sync settings")
	}

	hub := websocket.NewHub(log.Logger)
	go hub.Run(ctx)

	// Stream log entries to websocket clients now that the hub is running
	if b := log.Broadcaster(); b != nil {
		b.SetHub(hub)
	}

	server := api.NewServer(db.Conn(), hub, cfg, afero.NewOsFs(), log.Logger)
	server.SetLogsProvider(log)
	server.StartBackground(ctx)

	sched, err := scheduler.New(log.Logger, hub)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scheduler")
	}
	if err := tasks.RegisterCatalogSyncTask(sched, server.CatalogSync(), &cfg.Sync); err != nil {
		log.Fatal().Err(err).Msg("failed to register catalog sync task")
	}
	server.SetScheduler(sched)
	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}

	if cfg.Sync.SeedFile != "" {
		go submitSeed(ctx, server.CatalogSync(), cfg.Sync.SeedFile, log)
	}

	go func() {
		addr := cfg.Server.Address()
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sched.Stop(); err != nil {
		log.Error().Err(err).Msg("scheduler shutdown error")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("server stopped")
}

// submitSeed waits for the addon to be reachable, then queues every catalog
// listed in the seed file.
func submitSeed(ctx context.Context, service *catalogsync.Service, path string, log *logger.Logger) {
	catalogs, err := catalogsync.LoadSeedFile(afero.NewOsFs(), path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to load seed file")
		return
	}
	if len(catalogs) == 0 {
		return
	}

	err = startup.WithRetry(ctx, "catalog addon manifest", startup.DefaultRetryConfig(), func() error {
		_, err := service.Manifest(ctx)
		return err
	}, log.Logger)
	if err != nil {
		log.Warn().Err(err).Msg("catalog addon unreachable, seed catalogs not submitted")
		return
	}

	queued := service.SubmitSeed(ctx, catalogs)
	log.Info().Int("queued", queued).Int("catalogs", len(catalogs)).Msg("seed catalogs submitted")
}
