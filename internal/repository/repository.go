package repository

import (
	"context"

	"github.com/mr1hm/go-safe-routes/internal/models"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

type Filter struct {
	Limit  int
	Type   *models.HazardType
	Status *models.Status
}

type NearbyHazard struct {
	models.HazardReport
	DistanceKm float64 `json:"distanceKm"`
}

type TypeStatistics struct {
	Type     models.HazardType `json:"type"`
	Count    int               `json:"count"`
	Verified int               `json:"verified"`
	Pending  int               `json:"pending"`
	Rejected int               `json:"rejected"`
}

type Statistics struct {
	ByType   []TypeStatistics `json:"byType"`
	Total    int              `json:"total"`
	Verified int              `json:"verified"`
	Pending  int              `json:"pending"`
}

// HazardRepository is the durable hazard store. Moderation (status, votes)
// happens here; the scoring engine only ever reads through LoadHazards.
type HazardRepository interface {
	Create(ctx context.Context, h *models.HazardReport) error
	GetByID(ctx context.Context, id string) (*models.HazardReport, error)
	List(ctx context.Context, opts Filter) ([]models.HazardReport, error)
	Nearby(ctx context.Context, center models.Coordinate, radiusKm float64, opts Filter) ([]NearbyHazard, error)
	UpdateStatus(ctx context.Context, id string, status models.Status, verifiedBy string) (*models.HazardReport, error)
	Vote(ctx context.Context, id string, up bool) (*models.HazardReport, error)
	Delete(ctx context.Context, id string) error
	Statistics(ctx context.Context) (*Statistics, error)
	LoadHazards(ctx context.Context) ([]models.HazardReport, error)
	Ping(ctx context.Context) error
}
