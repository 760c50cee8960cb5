package api

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/slipstream/catalogsync/internal/api/handlers"
	apimw "github.com/slipstream/catalogsync/internal/api/middleware"
	"github.com/slipstream/catalogsync/internal/catalogsync"
	"github.com/slipstream/catalogsync/internal/collections"
	"github.com/slipstream/catalogsync/internal/library/media"
)

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.echo.Use(middleware.Recover())

	// Request ID
	s.echo.Use(middleware.RequestID())

	// Security headers
	s.echo.Use(apimw.SecurityHeaders())

	// Request body size limit (2MB)
	s.echo.Use(middleware.BodyLimit("2M"))

	// Request logging
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/health"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Err(v.Error).
					Msg("request error")
			} else {
				s.logger.Debug().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Msg("request")
			}
			return nil
		},
	}))

	// Block proxy probes (absolute URI requests like GET http://www.google.com/)
	s.echo.Use(apimw.ProxyRequestBlock())

	// Gzip compression
	s.echo.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			// Skip compression for WebSocket
			return c.Request().Header.Get("Upgrade") == "websocket"
		},
	}))
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/ws", s.hub.HandleWebSocket)

	s.api = s.echo.Group("/api/v1")
	s.api.GET("/status", s.getStatus)

	collections.NewHandlers(s.collectionService).RegisterRoutes(s.api.Group("/collections"))
	media.NewHandlers(s.mediaService).RegisterRoutes(s.api.Group("/media"))
	catalogsync.NewHandlers(s.syncService).RegisterRoutes(s.api.Group("/catalogsync"))

	settings := s.api.Group("/settings")
	settings.GET("/catalogsync", s.syncSettings.GetSettings)
	settings.PUT("/catalogsync", s.syncSettings.UpdateSettings)
}

func (s *Server) setupSchedulerRoutes() {
	if s.scheduler == nil {
		return
	}
	handlers.NewTaskHandler(s.scheduler).RegisterRoutes(s.api.Group("/scheduler"))
}
