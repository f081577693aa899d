package safety

import (
	"sort"

	"github.com/mr1hm/go-safe-routes/internal/geo"
	"github.com/mr1hm/go-safe-routes/internal/models"
)

type zoneRun struct {
	start, end   geo.Sample
	severity     models.Severity
	peak         float64
	contributors map[string]int // hazard id -> index into hazards
}

// DetectZones samples the route every ZoneSampleMeters and marks a sample
// hazardous when the proximity-weighted hazard density around it reaches
// ZoneThreshold. Consecutive hazardous samples form a zone; zones closer
// than ZoneMergeMeters are merged. A zone's offsets span its hazardous
// samples and the route projection of every contributing hazard. Zones
// come back ordered by offset and never overlap.
func DetectZones(route []models.Coordinate, hazards []WeightedHazard, params Params) []models.RiskZone {
	if len(hazards) == 0 || len(route) == 0 {
		return []models.RiskZone{}
	}

	var runs []*zoneRun
	var open *zoneRun

	for _, sample := range geo.Densify(route, params.ZoneSampleMeters) {
		density := 0.0
		var near []int
		for i := range hazards {
			d := geo.HaversineMeters(sample.Point, hazards[i].Hazard.Location)
			if d > params.BufferMeters {
				continue
			}
			density += hazards[i].Weight * Proximity(d)
			near = append(near, i)
		}

		if density < params.ZoneThreshold {
			open = nil
			continue
		}

		if open == nil {
			if last := lastRun(runs); last != nil && sample.Offset-last.end.Offset < params.ZoneMergeMeters {
				open = last
			} else {
				open = &zoneRun{start: sample, contributors: make(map[string]int)}
				runs = append(runs, open)
			}
		}

		open.end = sample
		open.peak = max(open.peak, density)
		for _, i := range near {
			h := hazards[i].Hazard
			open.contributors[h.ID] = i
			if h.Severity.Rank() > open.severity.Rank() {
				open.severity = h.Severity
			}
		}
	}

	zones := make([]models.RiskZone, 0, len(runs))
	for _, r := range runs {
		z := r.zone(route, hazards)
		if n := len(zones); n > 0 {
			if gap := z.StartOffsetMeters - zones[n-1].EndOffsetMeters; gap <= 0 || gap < params.ZoneMergeMeters {
				zones[n-1] = mergeZones(zones[n-1], z)
				continue
			}
		}
		zones = append(zones, z)
	}
	return zones
}

// zone converts a run into a RiskZone whose extent covers both its
// hazardous samples and the projection of every contributing hazard.
func (r *zoneRun) zone(route []models.Coordinate, hazards []WeightedHazard) models.RiskZone {
	startOffset, endOffset := r.start.Offset, r.end.Offset
	startIndex, endIndex := r.start.Index, r.end.Index
	if !r.end.Vertex && endIndex < len(route)-1 {
		endIndex++
	}

	ids := make([]string, 0, len(r.contributors))
	for id, i := range r.contributors {
		ids = append(ids, id)

		h := hazards[i]
		if h.Offset < startOffset {
			startOffset = h.Offset
			startIndex = min(startIndex, h.Index)
		}
		if h.Offset > endOffset {
			endOffset = h.Offset
			endIndex = max(endIndex, min(h.Index+1, len(route)-1))
		}
	}
	sort.Strings(ids)

	return models.RiskZone{
		StartIndex:          startIndex,
		EndIndex:            endIndex,
		StartOffsetMeters:   startOffset,
		EndOffsetMeters:     endOffset,
		Severity:            r.severity,
		ContributingHazards: ids,
		PeakDensity:         r.peak,
	}
}

// mergeZones joins b into a. Widening to contributors can bring zones
// within the merge gap of each other again.
func mergeZones(a, b models.RiskZone) models.RiskZone {
	a.StartIndex = min(a.StartIndex, b.StartIndex)
	a.StartOffsetMeters = min(a.StartOffsetMeters, b.StartOffsetMeters)
	a.EndIndex = max(a.EndIndex, b.EndIndex)
	a.EndOffsetMeters = max(a.EndOffsetMeters, b.EndOffsetMeters)
	if b.Severity.Rank() > a.Severity.Rank() {
		a.Severity = b.Severity
	}
	a.PeakDensity = max(a.PeakDensity, b.PeakDensity)

	seen := make(map[string]struct{}, len(a.ContributingHazards))
	for _, id := range a.ContributingHazards {
		seen[id] = struct{}{}
	}
	for _, id := range b.ContributingHazards {
		if _, ok := seen[id]; !ok {
			a.ContributingHazards = append(a.ContributingHazards, id)
		}
	}
	sort.Strings(a.ContributingHazards)
	return a
}

func lastRun(runs []*zoneRun) *zoneRun {
	if len(runs) == 0 {
		return nil
	}
	return runs[len(runs)-1]
}
