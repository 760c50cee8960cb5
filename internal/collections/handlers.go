package collections

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handlers provides HTTP handlers for collection operations.
type Handlers struct {
	service *Service
}

// NewHandlers creates new collection handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers the collection routes.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.GET("/:id/items", h.ListItems)
	g.DELETE("/:id", h.Delete)
}

// List returns all collections.
// GET /api/v1/collections
func (h *Handlers) List(c echo.Context) error {
	var (
		list []*Collection
		err  error
	)
	if c.QueryParam("tagged") == "true" {
		list, err = h.service.ListTagged(c.Request().Context())
	} else {
		list, err = h.service.List(c.Request().Context())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, list)
}

// Get returns a single collection.
// GET /api/v1/collections/:id
func (h *Handlers) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	coll, err := h.service.Get(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, coll)
}

// ListItems returns the members of a collection.
// GET /api/v1/collections/:id/items
func (h *Handlers) ListItems(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	members, err := h.service.ListMembers(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, members)
}

// Delete removes a collection.
// DELETE /api/v1/collections/:id
func (h *Handlers) Delete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	if err := h.service.Delete(c.Request().Context(), id); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func mapError(err error) error {
	if errors.Is(err, ErrCollectionNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
