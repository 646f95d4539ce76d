package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"bus-radar/internal/tracker"
	"bus-radar/internal/transit"
)

// Handler exposes the tracker to presentation clients: the latest snapshot,
// the full catalog, and the observer/radius controls.
type Handler struct {
	trk     *tracker.Tracker
	catalog []transit.Stop
}

func NewHandler(trk *tracker.Tracker, catalog []transit.Stop) *Handler {
	return &Handler{trk: trk, catalog: catalog}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.GET("/snapshot", h.Snapshot)
	g.GET("/stops", h.Stops)
	g.PUT("/observer", h.SetObserver)
	g.DELETE("/observer", h.ClearObserver)
	g.PUT("/radius", h.SetRadius)
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Snapshot always answers 200 with the latest published snapshot, which may
// be empty or carry status no_position.
func (h *Handler) Snapshot(c echo.Context) error {
	return c.JSON(http.StatusOK, h.trk.Snapshot())
}

func (h *Handler) Stops(c echo.Context) error {
	return c.JSON(http.StatusOK, h.catalog)
}

func (h *Handler) SetObserver(c echo.Context) error {
	var req transit.Position
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Latitude < -90 || req.Latitude > 90 || req.Longitude < -180 || req.Longitude > 180 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "coordinates out of range"})
	}
	h.trk.SetObserver(req.Latitude, req.Longitude)
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ClearObserver(c echo.Context) error {
	h.trk.ClearObserver()
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) SetRadius(c echo.Context) error {
	var req struct {
		Radius float64 `json:"radius"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := h.trk.SetRadius(req.Radius); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
