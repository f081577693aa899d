package safety

import "math"

// Proximity is a hazard's influence at d meters from the route: 1 on the
// route, 0.5 at ProximityMeters, falling towards 0.
func Proximity(d float64) float64 {
	return 1 / (1 + math.Max(d, 0)/ProximityMeters)
}

// Score maps the length-normalized hazard load onto (0, 100]. No hazards
// scores 100; any added or heavier hazard strictly lowers the score.
// Routes shorter than a kilometre are normalized as one kilometre.
func Score(hazards []WeightedHazard, lengthMeters float64) float64 {
	if len(hazards) == 0 {
		return 100
	}

	load := 0.0
	for _, h := range hazards {
		load += h.Weight * Proximity(h.Distance)
	}
	raw := load / math.Max(lengthMeters/1000, 1)
	return 100 * math.Exp(-raw/ScoreScale)
}
