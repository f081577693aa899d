package routing

import (
	"fmt"
	"sort"

	"github.com/mr1hm/go-safe-routes/internal/apperr"
	"github.com/mr1hm/go-safe-routes/internal/models"
)

type Mode int

const (
	ModeSafe Mode = iota
	ModeFastest
	ModeOptimize
)

func (m Mode) String() string {
	switch m {
	case ModeSafe:
		return "safe"
	case ModeFastest:
		return "fastest"
	case ModeOptimize:
		return "optimize"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

const (
	durationWeight        = 0.6
	durationWeightTraffic = 0.8
)

// RankedRoute is a scored candidate with the numbers that decided its rank.
type RankedRoute struct {
	Index          int                `json:"index"`
	Route          models.ScoredRoute `json:"route"`
	SpeedScore     float64            `json:"speedScore"`
	CompositeScore float64            `json:"compositeScore"`
	DetourPercent  float64            `json:"detourPercent"`
	Eligible       bool               `json:"eligible"`
	Objective      float64            `json:"objective"`
}

type Selection struct {
	Mode   Mode
	Chosen RankedRoute
	Ranked []RankedRoute
}

// Select ranks scored candidates for the given mode and returns the winner
// first. It never invents a route: an empty input is NotFound.
//
//   - safe: highest composite among routes within MaxDetourPercent of the
//     fastest; ties by safety, duration, fewer risk zones (when
//     PreferSaferStreets), then input order.
//   - fastest: shortest duration; ties by speed score, safety, input order.
//   - optimize: highest composite minus detourPenalty per percent over the
//     detour bound, over every candidate. A safety priority of 0 ranks
//     exactly like fastest.
func Select(mode Mode, routes []models.ScoredRoute, prefs models.Preferences, detourPenalty float64) (Selection, error) {
	if len(routes) == 0 {
		return Selection{}, apperr.NotFound("routing.Select", "no candidate routes")
	}

	ranked := rank(routes, prefs, detourPenalty)

	less := func(a, b RankedRoute) bool { return safeLess(a, b, prefs.PreferSaferStreets) }
	switch mode {
	case ModeSafe:
		sort.SliceStable(ranked, func(i, j int) bool {
			if ranked[i].Eligible != ranked[j].Eligible {
				return ranked[i].Eligible
			}
			return less(ranked[i], ranked[j])
		})
	case ModeFastest:
		sort.SliceStable(ranked, func(i, j int) bool { return fastestLess(ranked[i], ranked[j]) })
	case ModeOptimize:
		if prefs.SafetyPriority == 0 {
			sort.SliceStable(ranked, func(i, j int) bool { return fastestLess(ranked[i], ranked[j]) })
			break
		}
		sort.SliceStable(ranked, func(i, j int) bool {
			if ranked[i].Objective != ranked[j].Objective {
				return ranked[i].Objective > ranked[j].Objective
			}
			return less(ranked[i], ranked[j])
		})
	default:
		return Selection{}, apperr.Invariant("routing.Select", "unknown mode %v", mode)
	}

	return Selection{Mode: mode, Chosen: ranked[0], Ranked: ranked}, nil
}

func rank(routes []models.ScoredRoute, prefs models.Preferences, detourPenalty float64) []RankedRoute {
	fastest := 0
	minDist := routes[0].DistanceMeters
	for i, r := range routes {
		if r.DurationSeconds < routes[fastest].DurationSeconds {
			fastest = i
		}
		minDist = min(minDist, r.DistanceMeters)
	}
	minDur := routes[fastest].DurationSeconds

	wd := durationWeight
	if prefs.AvoidTraffic {
		wd = durationWeightTraffic
	}
	p := float64(prefs.SafetyPriority) / 100
	bound := float64(prefs.MaxDetourPercent)

	ranked := make([]RankedRoute, len(routes))
	for i, r := range routes {
		speed := wd*relativeScore(minDur, r.DurationSeconds) + (1-wd)*relativeScore(minDist, r.DistanceMeters)
		composite := p*r.SafetyScore + (1-p)*speed
		detour := max(
			excessPercent(r.DistanceMeters, routes[fastest].DistanceMeters),
			excessPercent(r.DurationSeconds, minDur),
		)

		ranked[i] = RankedRoute{
			Index:          i,
			Route:          r,
			SpeedScore:     speed,
			CompositeScore: composite,
			DetourPercent:  detour,
			Eligible:       detour <= bound,
			Objective:      composite - detourPenalty*max(0, detour-bound),
		}
	}
	return ranked
}

// relativeScore is 100 for the best value and proportionally less for
// worse ones.
func relativeScore(best, v float64) float64 {
	if v <= 0 {
		return 100
	}
	return 100 * best / v
}

// excessPercent is how much v exceeds ref, in percent of ref. A zero
// reference has no meaningful ratio and counts as no excess.
func excessPercent(v, ref float64) float64 {
	if ref <= 0 {
		return 0
	}
	return max(0, (v-ref)/ref*100)
}

func safeLess(a, b RankedRoute, preferSafer bool) bool {
	if a.CompositeScore != b.CompositeScore {
		return a.CompositeScore > b.CompositeScore
	}
	if a.Route.SafetyScore != b.Route.SafetyScore {
		return a.Route.SafetyScore > b.Route.SafetyScore
	}
	if a.Route.DurationSeconds != b.Route.DurationSeconds {
		return a.Route.DurationSeconds < b.Route.DurationSeconds
	}
	if preferSafer && len(a.Route.RiskZones) != len(b.Route.RiskZones) {
		return len(a.Route.RiskZones) < len(b.Route.RiskZones)
	}
	return a.Index < b.Index
}

func fastestLess(a, b RankedRoute) bool {
	if a.Route.DurationSeconds != b.Route.DurationSeconds {
		return a.Route.DurationSeconds < b.Route.DurationSeconds
	}
	if a.SpeedScore != b.SpeedScore {
		return a.SpeedScore > b.SpeedScore
	}
	if a.Route.SafetyScore != b.Route.SafetyScore {
		return a.Route.SafetyScore > b.Route.SafetyScore
	}
	return a.Index < b.Index
}
