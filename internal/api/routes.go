package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-safe-routes/internal/apperr"
	"github.com/mr1hm/go-safe-routes/internal/models"
	"github.com/mr1hm/go-safe-routes/internal/routing"
)

type routeRequest struct {
	Origin      *models.Coordinate      `json:"origin"`
	Destination *models.Coordinate      `json:"destination"`
	Preferences models.RoutePreferences `json:"preferences"`
}

type analyzeRequest struct {
	Coordinates []models.Coordinate     `json:"coordinates"`
	Preferences models.RoutePreferences `json:"preferences"`
}

type routeFunc func(ctx context.Context, req routing.RouteRequest) (*routing.RouteResult, error)

func (h *Handler) safeRoute(c *gin.Context) {
	h.serveRoute(c, "api.safeRoute", h.engine.SafeRoute)
}

func (h *Handler) fastestRoute(c *gin.Context) {
	h.serveRoute(c, "api.fastestRoute", h.engine.FastestRoute)
}

func (h *Handler) optimizeRoute(c *gin.Context) {
	h.serveRoute(c, "api.optimizeRoute", h.engine.OptimizeRoute)
}

func (h *Handler) serveRoute(c *gin.Context, op string, fn routeFunc) {
	req, err := bindRouteRequest(c, op)
	if err != nil {
		writeError(c, err)
		return
	}

	result, err := fn(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) compareRoutes(c *gin.Context) {
	req, err := bindRouteRequest(c, "api.compareRoutes")
	if err != nil {
		writeError(c, err)
		return
	}

	cmp, err := h.engine.CompareRoutes(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}

func (h *Handler) analyzeSafety(c *gin.Context) {
	const op = "api.analyzeSafety"

	var body analyzeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, apperr.Validation(op, "invalid request body: %v", err))
		return
	}
	prefs, err := body.Preferences.Normalize()
	if err != nil {
		writeError(c, apperr.Validation(op, "preferences: %v", err))
		return
	}

	analysis, err := h.engine.AnalyzeSafety(c.Request.Context(), body.Coordinates, prefs)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

func bindRouteRequest(c *gin.Context, op string) (routing.RouteRequest, error) {
	var body routeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		return routing.RouteRequest{}, apperr.Validation(op, "invalid request body: %v", err)
	}
	if body.Origin == nil || body.Destination == nil {
		return routing.RouteRequest{}, apperr.Validation(op, "origin and destination are required")
	}
	prefs, err := body.Preferences.Normalize()
	if err != nil {
		return routing.RouteRequest{}, apperr.Validation(op, "preferences: %v", err)
	}

	return routing.RouteRequest{
		Origin:      *body.Origin,
		Destination: *body.Destination,
		Preferences: prefs,
	}, nil
}
