// Package provider adapts external routing engines to routing.Provider.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mr1hm/go-safe-routes/internal/apperr"
	"github.com/mr1hm/go-safe-routes/internal/config"
	"github.com/mr1hm/go-safe-routes/internal/models"
)

const maxResponseBytes = 8 << 20 // 8 MB

type osrmResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Routes  []osrmRoute `json:"routes"`
}

type osrmRoute struct {
	Distance float64      `json:"distance"` // meters
	Duration float64      `json:"duration"` // seconds
	Geometry osrmGeometry `json:"geometry"`
}

type osrmGeometry struct {
	Type        string      `json:"type"`
	Coordinates [][]float64 `json:"coordinates"` // [lon, lat]
}

// OSRMClient asks an OSRM server for a route plus alternatives, returning
// full GeoJSON geometries.
type OSRMClient struct {
	baseURL  string
	profile  string
	client   *http.Client
	cache    *Cache
	cacheTTL time.Duration
}

func NewOSRMClient(cfg config.RoutingConfig) *OSRMClient {
	c := &OSRMClient{
		baseURL: strings.TrimRight(cfg.OSRMURL, "/"),
		profile: cfg.Profile,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		cacheTTL: cfg.CacheTTL,
	}
	if cfg.CacheTTL > 0 {
		c.cache = NewCache(cfg.CacheTTL)
	}
	return c
}

func (c *OSRMClient) Candidates(ctx context.Context, origin, destination models.Coordinate, prefs models.Preferences) ([]models.RouteCandidate, error) {
	const op = "provider.OSRM"

	body, err := c.fetch(ctx, c.routeURL(origin, destination, prefs))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, apperr.Unavailable(op, err)
	}

	var data osrmResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, apperr.Unavailable(op, fmt.Errorf("error decoding response: %w", err))
	}

	switch data.Code {
	case "Ok":
	case "NoRoute", "NoSegment":
		return []models.RouteCandidate{}, nil
	default:
		return nil, apperr.Unavailable(op, fmt.Errorf("osrm returned %s: %s", data.Code, data.Message))
	}

	candidates := make([]models.RouteCandidate, 0, len(data.Routes))
	for _, r := range data.Routes {
		geometry := make([]models.Coordinate, 0, len(r.Geometry.Coordinates))
		for _, pt := range r.Geometry.Coordinates {
			if len(pt) < 2 {
				continue
			}
			geometry = append(geometry, models.Coordinate{Lat: pt[1], Lon: pt[0]})
		}
		if len(geometry) < 2 {
			continue
		}
		candidates = append(candidates, models.RouteCandidate{
			Geometry:        geometry,
			DistanceMeters:  r.Distance,
			DurationSeconds: r.Duration,
		})
	}
	return candidates, nil
}

func (c *OSRMClient) routeURL(origin, destination models.Coordinate, prefs models.Preferences) string {
	u := fmt.Sprintf("%s/route/v1/%s/%f,%f;%f,%f?alternatives=true&overview=full&geometries=geojson",
		c.baseURL, c.profile, origin.Lon, origin.Lat, destination.Lon, destination.Lat)

	var exclude []string
	if prefs.AvoidTolls {
		exclude = append(exclude, "toll")
	}
	if prefs.AvoidHighways {
		exclude = append(exclude, "motorway")
	}
	if len(exclude) > 0 {
		u += "&exclude=" + strings.Join(exclude, ",")
	}
	return u
}

// fetch returns the response body for url, served from cache when fresh.
// OSRM answers NoRoute with a 400, so that body is treated as a result.
func (c *OSRMClient) fetch(ctx context.Context, url string) ([]byte, error) {
	if c.cache != nil {
		if data, ok := c.cache.Get(url); ok {
			return data, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusBadRequest && isNoRoute(body):
	default:
		return nil, fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}

	if c.cache != nil {
		c.cache.Set(url, body, c.cacheTTL)
	}
	return body, nil
}

func isNoRoute(body []byte) bool {
	var data osrmResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return false
	}
	return data.Code == "NoRoute" || data.Code == "NoSegment"
}

func (c *OSRMClient) CacheStats() CacheStats {
	if c.cache == nil {
		return CacheStats{}
	}
	return c.cache.Stats()
}

func (c *OSRMClient) ClearCache() int {
	if c.cache == nil {
		return 0
	}
	return c.cache.Clear()
}

func (c *OSRMClient) Close() {
	if c.cache != nil {
		c.cache.Close()
	}
}
