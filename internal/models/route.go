package models

import (
	"fmt"
	"strings"
)

type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lng"`
}

func (c Coordinate) Validate() error {
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", c.Lat)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", c.Lon)
	}
	return nil
}

type TimeOfDay string

const (
	TimeOfDayUnset     TimeOfDay = ""
	TimeOfDayMorning   TimeOfDay = "morning"
	TimeOfDayAfternoon TimeOfDay = "afternoon"
	TimeOfDayEvening   TimeOfDay = "evening"
	TimeOfDayNight     TimeOfDay = "night"
)

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	switch TimeOfDay(strings.ToLower(strings.TrimSpace(s))) {
	case TimeOfDayUnset:
		return TimeOfDayUnset, nil
	case TimeOfDayMorning:
		return TimeOfDayMorning, nil
	case TimeOfDayAfternoon:
		return TimeOfDayAfternoon, nil
	case TimeOfDayEvening:
		return TimeOfDayEvening, nil
	case TimeOfDayNight:
		return TimeOfDayNight, nil
	}
	return "", fmt.Errorf("unknown time of day %q", s)
}

const (
	DefaultSafetyPriority   = 50
	DefaultMaxDetourPercent = 20
)

// RoutePreferences are the caller's routing knobs. Pointer fields
// distinguish "not sent" from an explicit zero/false so defaults apply
// only to omitted values.
type RoutePreferences struct {
	SafetyPriority     *int      `json:"safetyPriority,omitempty"`
	MaxDetourPercent   *int      `json:"maxDetour,omitempty"`
	AvoidTolls         bool      `json:"avoidTolls"`
	AvoidHighways      bool      `json:"avoidHighways"`
	AvoidTraffic       *bool     `json:"avoidTraffic,omitempty"`
	PreferSaferStreets *bool     `json:"preferSaferStreets,omitempty"`
	TimeOfDay          TimeOfDay `json:"timeOfDay,omitempty"`
}

// Preferences is the normalized, fully defaulted form used by the engine.
type Preferences struct {
	SafetyPriority     int       `json:"safetyPriority"`
	MaxDetourPercent   int       `json:"maxDetour"`
	AvoidTolls         bool      `json:"avoidTolls"`
	AvoidHighways      bool      `json:"avoidHighways"`
	AvoidTraffic       bool      `json:"avoidTraffic"`
	PreferSaferStreets bool      `json:"preferSaferStreets"`
	TimeOfDay          TimeOfDay `json:"timeOfDay,omitempty"`
}

// DefaultPreferences mirrors an empty request body.
func DefaultPreferences() Preferences {
	p, _ := RoutePreferences{}.Normalize()
	return p
}

// Normalize applies defaults and clamps the numeric knobs to [0, 100].
func (p RoutePreferences) Normalize() (Preferences, error) {
	tod, err := ParseTimeOfDay(string(p.TimeOfDay))
	if err != nil {
		return Preferences{}, err
	}

	out := Preferences{
		SafetyPriority:     DefaultSafetyPriority,
		MaxDetourPercent:   DefaultMaxDetourPercent,
		AvoidTolls:         p.AvoidTolls,
		AvoidHighways:      p.AvoidHighways,
		AvoidTraffic:       true,
		PreferSaferStreets: true,
		TimeOfDay:          tod,
	}
	if p.SafetyPriority != nil {
		out.SafetyPriority = clampPercent(*p.SafetyPriority)
	}
	if p.MaxDetourPercent != nil {
		out.MaxDetourPercent = clampPercent(*p.MaxDetourPercent)
	}
	if p.AvoidTraffic != nil {
		out.AvoidTraffic = *p.AvoidTraffic
	}
	if p.PreferSaferStreets != nil {
		out.PreferSaferStreets = *p.PreferSaferStreets
	}
	return out, nil
}

func clampPercent(v int) int {
	return max(0, min(100, v))
}

type RouteCandidate struct {
	Geometry        []Coordinate `json:"geometry"`
	DistanceMeters  float64      `json:"distance"`
	DurationSeconds float64      `json:"duration"`
}

func (r *RouteCandidate) Validate() error {
	if len(r.Geometry) < 2 {
		return fmt.Errorf("route geometry needs at least 2 points, got %d", len(r.Geometry))
	}
	for i, c := range r.Geometry {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("geometry point %d: %w", i, err)
		}
	}
	if r.DistanceMeters < 0 || r.DurationSeconds < 0 {
		return fmt.Errorf("route distance and duration must be non-negative")
	}
	return nil
}

type RiskZone struct {
	StartIndex          int      `json:"startIndex"`
	EndIndex            int      `json:"endIndex"`
	StartOffsetMeters   float64  `json:"startOffset"`
	EndOffsetMeters     float64  `json:"endOffset"`
	Severity            Severity `json:"severity"`
	ContributingHazards []string `json:"contributingHazards"`
	PeakDensity         float64  `json:"peakDensity"`
}

type ScoredRoute struct {
	RouteCandidate
	SafetyScore float64    `json:"safetyScore"`
	RiskZones   []RiskZone `json:"riskZones"`
	HazardCount int        `json:"hazardCount"`
	Degraded    bool       `json:"degraded,omitempty"`
}

type SafetyAnalysis struct {
	OverallScore    float64    `json:"overallScore"`
	RiskZones       []RiskZone `json:"riskZones"`
	HazardCount     int        `json:"hazardCount"`
	DistanceMeters  float64    `json:"distance"`
	SnapshotVersion uint64     `json:"snapshotVersion"`
	Degraded        bool       `json:"degraded,omitempty"`
}
