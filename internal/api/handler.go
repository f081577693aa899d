package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-safe-routes/internal/hazardindex"
	"github.com/mr1hm/go-safe-routes/internal/models"
	"github.com/mr1hm/go-safe-routes/internal/provider"
	"github.com/mr1hm/go-safe-routes/internal/repository"
	"github.com/mr1hm/go-safe-routes/internal/routing"
	"github.com/mr1hm/go-safe-routes/internal/worker"
)

// RouteEngine is the scoring and selection surface the HTTP API exposes.
type RouteEngine interface {
	SafeRoute(ctx context.Context, req routing.RouteRequest) (*routing.RouteResult, error)
	FastestRoute(ctx context.Context, req routing.RouteRequest) (*routing.RouteResult, error)
	OptimizeRoute(ctx context.Context, req routing.RouteRequest) (*routing.RouteResult, error)
	CompareRoutes(ctx context.Context, req routing.RouteRequest) (*routing.Comparison, error)
	AnalyzeSafety(ctx context.Context, route []models.Coordinate, prefs models.Preferences) (*models.SafetyAnalysis, error)
	PoolStats() worker.Stats
}

// IndexMonitor reports on the hazard snapshot and accepts rebuild requests
// after moderation changes.
type IndexMonitor interface {
	Status() hazardindex.Status
	Invalidate()
}

type ProviderCache interface {
	CacheStats() provider.CacheStats
	ClearCache() int
}

type Handler struct {
	engine RouteEngine
	repo   repository.HazardRepository
	index  IndexMonitor
	cache  ProviderCache
}

func NewHandler(engine RouteEngine, repo repository.HazardRepository, index IndexMonitor, cache ProviderCache) *Handler {
	return &Handler{
		engine: engine,
		repo:   repo,
		index:  index,
		cache:  cache,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	routes := r.Group("/api/routes")
	routes.POST("/safe", h.safeRoute)
	routes.POST("/fastest", h.fastestRoute)
	routes.POST("/optimize", h.optimizeRoute)
	routes.POST("/compare", h.compareRoutes)
	routes.POST("/analyze-safety", h.analyzeSafety)

	hazards := r.Group("/api/hazards")
	hazards.GET("", h.listHazards)
	hazards.POST("", h.createHazard)
	hazards.GET("/:id", h.getHazard)
	hazards.PATCH("/:id/status", h.updateHazardStatus)
	hazards.POST("/:id/vote", h.voteHazard)
	hazards.DELETE("/:id", h.deleteHazard)

	r.GET("/api/statistics/hazards", h.hazardStatistics)
	r.GET("/api/cache/stats", h.cacheStats)
	r.POST("/api/cache/clear", h.clearCache)
	r.GET("/health", h.health)
}

func (h *Handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	if err := h.repo.Ping(ctx); err != nil {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":  status,
		"index":   h.index.Status(),
		"workers": h.engine.PoolStats(),
	})
}

func (h *Handler) cacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.cache.CacheStats())
}

func (h *Handler) clearCache(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "cache cleared",
		"cleared": h.cache.ClearCache(),
	})
}
