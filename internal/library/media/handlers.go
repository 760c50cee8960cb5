package media

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handlers provides HTTP handlers for media item operations.
type Handlers struct {
	service *Service
}

// NewHandlers creates new media handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers the media routes.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.List)
	g.GET("/:id", h.Get)
}

// List returns media items.
// GET /api/v1/media
func (h *Handlers) List(c echo.Context) error {
	opts := ListOptions{Kind: c.QueryParam("kind")}
	if p := c.QueryParam("page"); p != "" {
		opts.Page, _ = strconv.Atoi(p)
	}
	if ps := c.QueryParam("pageSize"); ps != "" {
		opts.PageSize, _ = strconv.Atoi(ps)
	}

	items, err := h.service.List(c.Request().Context(), opts)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Item{}
	}
	return c.JSON(http.StatusOK, items)
}

// Get returns a single media item.
// GET /api/v1/media/:id
func (h *Handlers) Get(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	item, err := h.service.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, item)
}
