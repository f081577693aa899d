package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-safe-routes/internal/models"
	"github.com/mr1hm/go-safe-routes/internal/repository"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

func toGeoJSON(hazards []models.HazardReport) FeatureCollection {
	features := make([]Feature, 0, len(hazards))
	for _, h := range hazards {
		features = append(features, hazardFeature(h))
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}

func nearbyToGeoJSON(hazards []repository.NearbyHazard) FeatureCollection {
	features := make([]Feature, 0, len(hazards))
	for _, h := range hazards {
		f := hazardFeature(h.HazardReport)
		f.Properties["distanceKm"] = h.DistanceKm
		features = append(features, f)
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}

func hazardFeature(h models.HazardReport) Feature {
	props := map[string]any{
		"id":          h.ID,
		"type":        h.Type,
		"severity":    h.Severity,
		"status":      h.Status,
		"upvotes":     h.Votes.Upvotes,
		"downvotes":   h.Votes.Downvotes,
		"description": h.Description,
		"address":     h.Address,
		"createdAt":   h.CreatedAt,
	}
	if h.VerifiedAt != nil {
		props["verifiedAt"] = h.VerifiedAt
	}

	return Feature{
		Type: "Feature",
		Geometry: Geometry{
			Type:        "Point",
			Coordinates: []float64{h.Location.Lon, h.Location.Lat},
		},
		Properties: props,
	}
}

func writeGeoJSON(c *gin.Context, fc FeatureCollection) {
	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, fc)
}
