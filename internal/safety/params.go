// Package safety turns the hazards along a route into a safety score and a
// list of risk zones. Everything here is pure and deterministic for a given
// snapshot.
package safety

import (
	"time"

	"github.com/mr1hm/go-safe-routes/internal/config"
)

const (
	// ProximityMeters is the distance at which a hazard's influence halves.
	ProximityMeters = 50.0
	// ScoreScale controls how fast the score falls with hazard density.
	ScoreScale = 4.0

	RecencyHalfLife = 180 * 24 * time.Hour
	RecencyHorizon  = 365 * 24 * time.Hour
	RecencyFloor    = 0.35
)

type Params struct {
	BufferMeters     float64
	ZoneSampleMeters float64
	ZoneThreshold    float64
	ZoneMergeMeters  float64
}

func DefaultParams() Params {
	return Params{
		BufferMeters:     100,
		ZoneSampleMeters: 25,
		ZoneThreshold:    1.0,
		ZoneMergeMeters:  100,
	}
}

func ParamsFromConfig(cfg config.ScoringConfig) Params {
	return Params{
		BufferMeters:     cfg.BufferMeters,
		ZoneSampleMeters: cfg.ZoneSampleMeters,
		ZoneThreshold:    cfg.ZoneThreshold,
		ZoneMergeMeters:  cfg.ZoneMergeMeters,
	}
}
