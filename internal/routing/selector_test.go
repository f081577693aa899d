package routing

import (
	"errors"
	"testing"

	"github.com/mr1hm/go-safe-routes/internal/apperr"
	"github.com/mr1hm/go-safe-routes/internal/models"
)

func scored(duration, distance, safety float64, zones int) models.ScoredRoute {
	return models.ScoredRoute{
		RouteCandidate: models.RouteCandidate{
			DurationSeconds: duration,
			DistanceMeters:  distance,
		},
		SafetyScore: safety,
		RiskZones:   make([]models.RiskZone, zones),
	}
}

func prefs(priority, detour int) models.Preferences {
	p := models.DefaultPreferences()
	p.SafetyPriority = priority
	p.MaxDetourPercent = detour
	return p
}

func TestSelect_EmptyIsNotFound(t *testing.T) {
	for _, mode := range []Mode{ModeSafe, ModeFastest, ModeOptimize} {
		if _, err := Select(mode, nil, prefs(50, 20), 1); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("%s: expected not found, got %v", mode, err)
		}
	}
}

func TestSelect_DetourEligibility(t *testing.T) {
	routes := []models.ScoredRoute{
		scored(600, 5000, 40, 2),
		scored(650, 5000, 60, 1),
		scored(900, 5000, 100, 0),
	}

	sel, err := Select(ModeSafe, routes, prefs(100, 10), 1)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	eligible := map[int]bool{}
	for _, r := range sel.Ranked {
		eligible[r.Index] = r.Eligible
	}
	if !eligible[0] || !eligible[1] || eligible[2] {
		t.Errorf("expected only the first two routes eligible, got %v", eligible)
	}
	if sel.Chosen.Index != 1 {
		t.Errorf("expected the safer eligible route 1, got %d", sel.Chosen.Index)
	}
	if sel.Chosen.DetourPercent > 10 {
		t.Errorf("safe mode exceeded the detour bound: %.2f%%", sel.Chosen.DetourPercent)
	}
}

func TestSelect_SafeNeverExceedsDetour(t *testing.T) {
	routes := []models.ScoredRoute{
		scored(600, 5000, 10, 3),
		scored(700, 5200, 80, 1),
		scored(800, 5100, 100, 0),
		scored(610, 6500, 90, 0),
	}

	for _, bound := range []int{0, 5, 20, 40, 100} {
		for _, priority := range []int{0, 30, 50, 80, 100} {
			sel, err := Select(ModeSafe, routes, prefs(priority, bound), 1)
			if err != nil {
				t.Fatalf("Select failed: %v", err)
			}
			if sel.Chosen.DetourPercent > float64(bound) {
				t.Errorf("bound %d priority %d: chose route %d with detour %.1f%%",
					bound, priority, sel.Chosen.Index, sel.Chosen.DetourPercent)
			}
		}
	}
}

func TestSelect_FullSafetyPriorityPicksSafestEligible(t *testing.T) {
	routes := []models.ScoredRoute{
		scored(600, 5000, 30, 2),
		scored(640, 5100, 95, 0),
		scored(660, 5200, 70, 1),
	}

	sel, err := Select(ModeSafe, routes, prefs(100, 20), 1)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	for _, r := range sel.Ranked {
		if r.Eligible && r.Route.SafetyScore > sel.Chosen.Route.SafetyScore {
			t.Errorf("route %d is eligible and safer than the chosen route %d", r.Index, sel.Chosen.Index)
		}
	}
}

func TestSelect_ZeroPriorityOptimizeMatchesFastest(t *testing.T) {
	routes := []models.ScoredRoute{
		scored(700, 4000, 100, 0),
		scored(600, 6000, 20, 4),
		scored(600, 5500, 10, 5),
	}
	p := prefs(0, 20)

	fastest, err := Select(ModeFastest, routes, p, 1)
	if err != nil {
		t.Fatalf("Select fastest failed: %v", err)
	}
	optimized, err := Select(ModeOptimize, routes, p, 1)
	if err != nil {
		t.Fatalf("Select optimize failed: %v", err)
	}
	if fastest.Chosen.Index != optimized.Chosen.Index {
		t.Errorf("expected optimize to match fastest at priority 0: %d vs %d", optimized.Chosen.Index, fastest.Chosen.Index)
	}
	// equal durations: the shorter route has the better speed score
	if fastest.Chosen.Index != 2 {
		t.Errorf("expected route 2, got %d", fastest.Chosen.Index)
	}
}

func TestSelect_FastestReportsSafety(t *testing.T) {
	routes := []models.ScoredRoute{scored(900, 5000, 100, 0), scored(600, 5000, 42, 1)}
	sel, err := Select(ModeFastest, routes, prefs(100, 20), 1)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if sel.Chosen.Index != 1 || sel.Chosen.Route.SafetyScore != 42 {
		t.Errorf("expected fastest route with its safety score, got %+v", sel.Chosen)
	}
}

func TestSelect_OptimizePenalizesOverage(t *testing.T) {
	routes := []models.ScoredRoute{
		scored(600, 5000, 50, 1),
		scored(900, 5000, 100, 0), // 50% detour
	}
	p := prefs(80, 20)

	lenient, _ := Select(ModeOptimize, routes, p, 0)
	if lenient.Chosen.Index != 1 {
		t.Errorf("without a penalty the safer route should win, got %d", lenient.Chosen.Index)
	}
	strict, _ := Select(ModeOptimize, routes, p, 5)
	if strict.Chosen.Index != 0 {
		t.Errorf("a steep penalty should favour the route within bounds, got %d", strict.Chosen.Index)
	}
}

func TestSelect_SingleCandidate(t *testing.T) {
	routes := []models.ScoredRoute{scored(600, 5000, 73, 1)}
	for _, mode := range []Mode{ModeSafe, ModeFastest, ModeOptimize} {
		sel, err := Select(mode, routes, prefs(50, 0), 1)
		if err != nil {
			t.Fatalf("%s: Select failed: %v", mode, err)
		}
		if sel.Chosen.Index != 0 || sel.Chosen.Route.SafetyScore != 73 {
			t.Errorf("%s: expected the only route, got %+v", mode, sel.Chosen)
		}
	}
}

func TestSelect_TieBreaks(t *testing.T) {
	routes := []models.ScoredRoute{
		scored(600, 5000, 80, 3),
		scored(600, 5000, 80, 1),
	}

	p := prefs(50, 20)
	sel, _ := Select(ModeSafe, routes, p, 1)
	if sel.Chosen.Index != 1 {
		t.Errorf("preferSaferStreets should break ties by fewer zones, got %d", sel.Chosen.Index)
	}

	p.PreferSaferStreets = false
	sel, _ = Select(ModeSafe, routes, p, 1)
	if sel.Chosen.Index != 0 {
		t.Errorf("without preferSaferStreets ties fall to input order, got %d", sel.Chosen.Index)
	}
}
