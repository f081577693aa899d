package safety

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/mr1hm/go-safe-routes/internal/apperr"
	"github.com/mr1hm/go-safe-routes/internal/geo"
	"github.com/mr1hm/go-safe-routes/internal/hazardindex"
	"github.com/mr1hm/go-safe-routes/internal/models"
)

const metersPerDegLat = 111195.0

var (
	builtAt = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	start   = models.Coordinate{Lat: 59.91, Lon: 10.75}
	// ~2 km due east of start
	finish = models.Coordinate{Lat: 59.91, Lon: 10.7858}
	mid    = models.Coordinate{Lat: 59.91, Lon: 10.7679}
)

func north(c models.Coordinate, meters float64) models.Coordinate {
	return models.Coordinate{Lat: c.Lat + meters/metersPerDegLat, Lon: c.Lon}
}

func verified(id string, typ models.HazardType, sev models.Severity, loc models.Coordinate) models.HazardReport {
	at := builtAt.Add(-time.Hour)
	return models.HazardReport{
		ID:         id,
		Type:       typ,
		Location:   loc,
		Severity:   sev,
		Status:     models.StatusVerified,
		VerifiedAt: &at,
		CreatedAt:  at,
	}
}

func snapshot(reports ...models.HazardReport) *hazardindex.Snapshot {
	return hazardindex.Build(reports, hazardindex.BuildOptions{Version: 1, BuiltAt: builtAt})
}

func analyze(t *testing.T, snap *hazardindex.Snapshot, route []models.Coordinate, tod models.TimeOfDay) (float64, []models.RiskZone) {
	t.Helper()
	prefs := models.DefaultPreferences()
	prefs.TimeOfDay = tod

	hazards, err := Aggregate(snap, route, prefs, DefaultParams())
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	return Score(hazards, geo.PolylineLength(route)), DetectZones(route, hazards, DefaultParams())
}

func TestSeverityWeight(t *testing.T) {
	tests := []struct {
		sev  models.Severity
		want float64
	}{
		{models.SeverityLow, 1},
		{models.SeverityMedium, 2},
		{models.SeverityHigh, 4},
	}
	for _, tt := range tests {
		got, err := severityWeight(tt.sev)
		if err != nil || got != tt.want {
			t.Errorf("severityWeight(%s) = %v, %v; want %v", tt.sev, got, err, tt.want)
		}
	}

	if _, err := severityWeight("extreme"); !errors.Is(err, apperr.ErrInvariant) {
		t.Errorf("expected invariant violation for unknown severity, got %v", err)
	}
}

func TestCredibility_Bounded(t *testing.T) {
	if got := credibility(models.Votes{}); got != 1 {
		t.Errorf("expected neutral credibility 1, got %v", got)
	}
	high := credibility(models.Votes{Upvotes: 1000})
	low := credibility(models.Votes{Downvotes: 1000})
	if high >= 1.5 || high <= 1.4 {
		t.Errorf("expected credibility just under 1.5, got %v", high)
	}
	if low <= 0.5 || low >= 0.6 {
		t.Errorf("expected credibility just over 0.5, got %v", low)
	}
}

func TestRecencyDecay(t *testing.T) {
	if got := recencyDecay(builtAt, builtAt); got != 1 {
		t.Errorf("expected fresh report to weigh 1, got %v", got)
	}
	if got := recencyDecay(builtAt.Add(time.Hour), builtAt); got != 1 {
		t.Errorf("expected future timestamp to weigh 1, got %v", got)
	}
	half := recencyDecay(builtAt.Add(-RecencyHalfLife), builtAt)
	if math.Abs(half-0.5) > 1e-9 {
		t.Errorf("expected 0.5 after one half-life, got %v", half)
	}
	if got := recencyDecay(builtAt.Add(-RecencyHorizon), builtAt); got != RecencyFloor {
		t.Errorf("expected floor past the horizon, got %v", got)
	}
}

func TestTimeOfDayFactor(t *testing.T) {
	tests := []struct {
		typ  models.HazardType
		tod  models.TimeOfDay
		want float64
	}{
		{models.HazardTypeNoStreetLight, models.TimeOfDayUnset, 1},
		{models.HazardTypeNoStreetLight, models.TimeOfDayEvening, 1.5},
		{models.HazardTypeDarkArea, models.TimeOfDayNight, 2},
		{models.HazardTypeCCTV, models.TimeOfDayEvening, 1.25},
		{models.HazardTypeCCTV, models.TimeOfDayNight, 1.5},
		{models.HazardTypePothole, models.TimeOfDayNight, 1},
	}
	for _, tt := range tests {
		got, err := timeOfDayFactor(tt.typ, tt.tod)
		if err != nil || got != tt.want {
			t.Errorf("timeOfDayFactor(%s, %s) = %v, %v; want %v", tt.typ, tt.tod, got, err, tt.want)
		}
	}

	if _, err := timeOfDayFactor("graffiti", models.TimeOfDayNight); !errors.Is(err, apperr.ErrInvariant) {
		t.Errorf("expected invariant violation for unknown type, got %v", err)
	}
}

func TestStatusFactor(t *testing.T) {
	policy := hazardindex.Policy{IncludePending: true, PendingWeight: 0.5}
	if got, _ := statusFactor(models.StatusPending, policy); got != 0.5 {
		t.Errorf("expected pending weight 0.5, got %v", got)
	}
	if _, err := statusFactor(models.StatusPending, hazardindex.Policy{}); !errors.Is(err, apperr.ErrInvariant) {
		t.Errorf("expected invariant violation for pending outside policy, got %v", err)
	}
	if _, err := statusFactor(models.StatusRejected, policy); !errors.Is(err, apperr.ErrInvariant) {
		t.Errorf("expected invariant violation for rejected, got %v", err)
	}
}

func TestScore_EmptyIsPerfect(t *testing.T) {
	if got := Score(nil, 5000); got != 100 {
		t.Errorf("expected 100 with no hazards, got %v", got)
	}
}

func TestScore_Monotonic(t *testing.T) {
	one := []WeightedHazard{{Weight: 2, Distance: 20}}
	two := append(append([]WeightedHazard(nil), one...), WeightedHazard{Weight: 1, Distance: 90})
	heavier := []WeightedHazard{{Weight: 4, Distance: 20}}
	closer := []WeightedHazard{{Weight: 2, Distance: 5}}

	base := Score(one, 2000)
	if base >= 100 || base <= 0 {
		t.Fatalf("expected score in (0, 100), got %v", base)
	}
	if Score(two, 2000) >= base {
		t.Error("adding a hazard must lower the score")
	}
	if Score(heavier, 2000) >= base {
		t.Error("a heavier hazard must lower the score")
	}
	if Score(closer, 2000) >= base {
		t.Error("a closer hazard must lower the score")
	}
}

func TestScore_ShortRouteNormalizedAsOneKm(t *testing.T) {
	hazards := []WeightedHazard{{Weight: 2, Distance: 0}}
	if Score(hazards, 200) != Score(hazards, 1000) {
		t.Error("routes under 1 km should be normalized as 1 km")
	}
}

func TestScenario_LitRouteBeatsDarkRoute(t *testing.T) {
	snap := snapshot(verified("dark-1", models.HazardTypeNoStreetLight, models.SeverityHigh, north(mid, 50)))

	routeA := []models.Coordinate{start, mid, finish}
	south := -2000.0
	routeB := []models.Coordinate{start, north(start, south), north(finish, south), finish}

	scoreA, zonesA := analyze(t, snap, routeA, models.TimeOfDayNight)
	scoreB, zonesB := analyze(t, snap, routeB, models.TimeOfDayNight)

	if scoreA >= 100 {
		t.Errorf("expected route A below 100, got %v", scoreA)
	}
	if scoreB != 100 {
		t.Errorf("expected route B to score 100, got %v", scoreB)
	}
	if len(zonesA) != 1 {
		t.Fatalf("expected exactly one risk zone on route A, got %d", len(zonesA))
	}
	if len(zonesB) != 0 {
		t.Errorf("expected no zones on route B, got %d", len(zonesB))
	}

	z := zonesA[0]
	if len(z.ContributingHazards) != 1 || z.ContributingHazards[0] != "dark-1" {
		t.Errorf("expected dark-1 as the only contributor, got %v", z.ContributingHazards)
	}
	if z.Severity != models.SeverityHigh {
		t.Errorf("expected high severity zone, got %s", z.Severity)
	}
	if z.StartOffsetMeters >= z.EndOffsetMeters {
		t.Errorf("expected zone to have extent, got %v..%v", z.StartOffsetMeters, z.EndOffsetMeters)
	}
}

func TestScenario_NightWorseThanDay(t *testing.T) {
	snap := snapshot(verified("dark-1", models.HazardTypeNoStreetLight, models.SeverityMedium, north(mid, 30)))
	route := []models.Coordinate{start, finish}

	day, _ := analyze(t, snap, route, models.TimeOfDayMorning)
	night, _ := analyze(t, snap, route, models.TimeOfDayNight)
	if night >= day {
		t.Errorf("expected night score %v below day score %v", night, day)
	}
}

func TestDetectZones_SeparateAndMerged(t *testing.T) {
	east := models.Coordinate{Lat: 59.91, Lon: 10.84} // ~5 km
	route := []models.Coordinate{start, east}

	// two clusters ~3 km apart
	a := verified("a", models.HazardTypeAccidentProne, models.SeverityHigh, models.Coordinate{Lat: 59.91, Lon: 10.76})
	b := verified("b", models.HazardTypePothole, models.SeverityLow, models.Coordinate{Lat: 59.91, Lon: 10.82})
	b2 := verified("b2", models.HazardTypePothole, models.SeverityMedium, models.Coordinate{Lat: 59.91, Lon: 10.8203})

	_, zones := analyze(t, snapshot(a, b, b2), route, models.TimeOfDayUnset)
	if len(zones) != 2 {
		t.Fatalf("expected 2 zones, got %d", len(zones))
	}
	if zones[0].EndOffsetMeters >= zones[1].StartOffsetMeters {
		t.Errorf("zones overlap or are out of order: %+v", zones)
	}
	if zones[1].Severity != models.SeverityMedium {
		t.Errorf("expected max severity medium in second zone, got %s", zones[1].Severity)
	}
	if got := zones[1].ContributingHazards; len(got) != 2 || got[0] != "b" || got[1] != "b2" {
		t.Errorf("expected sorted contributors [b b2], got %v", got)
	}

	for _, z := range zones {
		for _, id := range z.ContributingHazards {
			var loc models.Coordinate
			for _, h := range []models.HazardReport{a, b, b2} {
				if h.ID == id {
					loc = h.Location
				}
			}
			assertWithinZone(t, z, id, geo.NearestOnPolyline(loc, route).Offset)
		}
	}
}

func east(c models.Coordinate, meters float64) models.Coordinate {
	return models.Coordinate{Lat: c.Lat, Lon: c.Lon + meters/(metersPerDegLat*math.Cos(c.Lat*math.Pi/180))}
}

func assertWithinZone(t *testing.T, z models.RiskZone, id string, offset float64) {
	t.Helper()
	const eps = 1e-6
	if offset < z.StartOffsetMeters-eps || offset > z.EndOffsetMeters+eps {
		t.Errorf("hazard %s at offset %.1f lies outside zone [%.1f, %.1f]", id, offset, z.StartOffsetMeters, z.EndOffsetMeters)
	}
}

func TestDetectZones_ExtentCoversContributors(t *testing.T) {
	route := []models.Coordinate{start, finish}
	// The high hazard alone makes samples hazardous; the low one, 160 m
	// further along, is only near the tail of that stretch.
	high := verified("high", models.HazardTypeAccidentProne, models.SeverityHigh, mid)
	low := verified("low", models.HazardTypePothole, models.SeverityLow, east(mid, 160))

	params := DefaultParams()
	hazards, err := Aggregate(snapshot(high, low), route, models.DefaultPreferences(), params)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	zones := DetectZones(route, hazards, params)
	if len(zones) != 1 {
		t.Fatalf("expected 1 zone, got %d: %+v", len(zones), zones)
	}
	z := zones[0]
	if got := z.ContributingHazards; len(got) != 2 || got[0] != "high" || got[1] != "low" {
		t.Fatalf("expected contributors [high low], got %v", got)
	}

	for _, wh := range hazards {
		assertWithinZone(t, z, wh.Hazard.ID, wh.Offset)
	}
	if z.StartIndex > z.EndIndex || z.EndIndex > len(route)-1 {
		t.Errorf("bad vertex range [%d, %d]", z.StartIndex, z.EndIndex)
	}
}

func TestDetectZones_MergesCloseRuns(t *testing.T) {
	route := []models.Coordinate{start, finish}
	// ~230 m apart on the route; each alone makes a zone reaching ~25 m either side
	h1 := verified("h1", models.HazardTypePothole, models.SeverityMedium, models.Coordinate{Lat: 59.91, Lon: 10.760})
	h2 := verified("h2", models.HazardTypePothole, models.SeverityMedium, models.Coordinate{Lat: 59.91, Lon: 10.7641})

	params := DefaultParams()
	params.ZoneMergeMeters = 500
	prefs := models.DefaultPreferences()
	hazards, err := Aggregate(snapshot(h1, h2), route, prefs, params)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	if zones := DetectZones(route, hazards, params); len(zones) != 1 {
		t.Errorf("expected runs within the merge gap to form one zone, got %d", len(zones))
	}

	params.ZoneMergeMeters = 0
	if zones := DetectZones(route, hazards, params); len(zones) != 2 {
		t.Errorf("expected two zones without merging, got %d", len(zones))
	}
}

func TestDetectZones_NoHazards(t *testing.T) {
	zones := DetectZones([]models.Coordinate{start, finish}, nil, DefaultParams())
	if zones == nil || len(zones) != 0 {
		t.Errorf("expected empty non-nil zones, got %v", zones)
	}
}
