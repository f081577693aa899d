package safety

import (
	"math"
	"time"

	"github.com/mr1hm/go-safe-routes/internal/apperr"
	"github.com/mr1hm/go-safe-routes/internal/hazardindex"
	"github.com/mr1hm/go-safe-routes/internal/models"
)

// WeightedHazard is a corridor hazard with its effective weight for one
// request.
type WeightedHazard struct {
	Hazard   models.HazardReport
	Weight   float64
	Distance float64
	Offset   float64
	Index    int
}

// Aggregate collects the hazards inside the route's corridor and weights
// each by severity, credibility, recency, time of day and moderation status.
// Ages are measured against the snapshot's build time.
func Aggregate(snap *hazardindex.Snapshot, route []models.Coordinate, prefs models.Preferences, params Params) ([]WeightedHazard, error) {
	hits, err := snap.QueryCorridor(route, params.BufferMeters)
	if err != nil {
		return nil, err
	}

	out := make([]WeightedHazard, 0, len(hits))
	for _, hit := range hits {
		w, err := Weight(hit.Hazard, prefs.TimeOfDay, snap.BuiltAt(), snap.Policy())
		if err != nil {
			return nil, err
		}
		out = append(out, WeightedHazard{
			Hazard:   hit.Hazard,
			Weight:   w,
			Distance: hit.Distance,
			Offset:   hit.Offset,
			Index:    hit.Index,
		})
	}
	return out, nil
}

func Weight(h models.HazardReport, tod models.TimeOfDay, asOf time.Time, policy hazardindex.Policy) (float64, error) {
	sev, err := severityWeight(h.Severity)
	if err != nil {
		return 0, err
	}
	todf, err := timeOfDayFactor(h.Type, tod)
	if err != nil {
		return 0, err
	}
	status, err := statusFactor(h.Status, policy)
	if err != nil {
		return 0, err
	}
	return sev * credibility(h.Votes) * recencyDecay(h.ReferenceTime(), asOf) * todf * status, nil
}

func severityWeight(s models.Severity) (float64, error) {
	switch s {
	case models.SeverityLow:
		return 1, nil
	case models.SeverityMedium:
		return 2, nil
	case models.SeverityHigh:
		return 4, nil
	}
	return 0, apperr.Invariant("safety.severityWeight", "unknown severity %q", s)
}

// credibility maps net votes into (0.5, 1.5); zero votes is neutral.
func credibility(v models.Votes) float64 {
	return 1 + 0.5*math.Tanh(float64(v.Net())/5)
}

// recencyDecay halves a report's influence every RecencyHalfLife, never
// dropping below RecencyFloor. Past RecencyHorizon the floor applies.
func recencyDecay(ref, asOf time.Time) float64 {
	age := asOf.Sub(ref)
	if age <= 0 {
		return 1
	}
	if age >= RecencyHorizon {
		return RecencyFloor
	}
	decay := math.Exp2(-float64(age) / float64(RecencyHalfLife))
	return math.Max(RecencyFloor, decay)
}

func timeOfDayFactor(t models.HazardType, tod models.TimeOfDay) (float64, error) {
	var lighting, surveillance float64
	switch tod {
	case models.TimeOfDayUnset, models.TimeOfDayMorning, models.TimeOfDayAfternoon:
		lighting, surveillance = 1, 1
	case models.TimeOfDayEvening:
		lighting, surveillance = 1.5, 1.25
	case models.TimeOfDayNight:
		lighting, surveillance = 2.0, 1.5
	default:
		return 0, apperr.Invariant("safety.timeOfDayFactor", "unknown time of day %q", tod)
	}

	switch t {
	case models.HazardTypeNoStreetLight, models.HazardTypeDarkArea:
		return lighting, nil
	case models.HazardTypeCCTV:
		return surveillance, nil
	case models.HazardTypeAbandonedHouse, models.HazardTypePothole, models.HazardTypeAccidentProne, models.HazardTypeOther:
		return 1, nil
	}
	return 0, apperr.Invariant("safety.timeOfDayFactor", "unknown hazard type %q", t)
}

func statusFactor(s models.Status, policy hazardindex.Policy) (float64, error) {
	switch s {
	case models.StatusVerified:
		return 1, nil
	case models.StatusPending:
		if policy.IncludePending {
			return policy.PendingWeight, nil
		}
		return 0, apperr.Invariant("safety.statusFactor", "pending hazard in a verified-only snapshot")
	case models.StatusRejected:
		return 0, apperr.Invariant("safety.statusFactor", "rejected hazard reached scoring")
	}
	return 0, apperr.Invariant("safety.statusFactor", "unknown status %q", s)
}
