package hazardindex

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/mr1hm/go-safe-routes/internal/apperr"
	"github.com/mr1hm/go-safe-routes/internal/geo"
	"github.com/mr1hm/go-safe-routes/internal/models"
)

const DefaultCellDegrees = 0.01

// Policy decides which reports a snapshot admits.
type Policy struct {
	IncludePending bool
	PendingWeight  float64
}

type BuildOptions struct {
	Policy      Policy
	CellDegrees float64
	Version     uint64
	BuiltAt     time.Time
}

type cellKey struct {
	lat, lon int
}

// Snapshot is an immutable, spatially bucketed view of the hazard store.
// Nothing mutates a snapshot after Build returns.
type Snapshot struct {
	version  uint64
	builtAt  time.Time
	degraded bool
	policy   Policy
	cellDeg  float64

	hazards []models.HazardReport
	byID    map[string]int
	cells   map[cellKey][]int
}

func Build(reports []models.HazardReport, opts BuildOptions) *Snapshot {
	cellDeg := opts.CellDegrees
	if cellDeg <= 0 {
		cellDeg = DefaultCellDegrees
	}

	s := &Snapshot{
		version: opts.Version,
		builtAt: opts.BuiltAt,
		policy:  opts.Policy,
		cellDeg: cellDeg,
		byID:    make(map[string]int, len(reports)),
		cells:   make(map[cellKey][]int),
	}

	for _, r := range reports {
		if !admits(opts.Policy, r.Status) {
			continue
		}
		if err := r.Location.Validate(); err != nil {
			slog.Warn("skipping hazard with invalid location", "id", r.ID, "error", err)
			continue
		}
		if _, dup := s.byID[r.ID]; dup {
			continue
		}

		idx := len(s.hazards)
		s.hazards = append(s.hazards, r)
		s.byID[r.ID] = idx
		key := s.cellOf(r.Location)
		s.cells[key] = append(s.cells[key], idx)
	}

	return s
}

// degradedSnapshot holds no hazards and marks results as safety-neutral.
func degradedSnapshot(version uint64, at time.Time, policy Policy) *Snapshot {
	s := Build(nil, BuildOptions{Policy: policy, Version: version, BuiltAt: at})
	s.degraded = true
	return s
}

func admits(p Policy, status models.Status) bool {
	switch status {
	case models.StatusVerified:
		return true
	case models.StatusPending:
		return p.IncludePending
	default:
		return false
	}
}

func (s *Snapshot) Version() uint64    { return s.version }
func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }
func (s *Snapshot) Degraded() bool     { return s.degraded }
func (s *Snapshot) Policy() Policy     { return s.policy }
func (s *Snapshot) Len() int           { return len(s.hazards) }

func (s *Snapshot) Lookup(id string) (models.HazardReport, bool) {
	idx, ok := s.byID[id]
	if !ok {
		return models.HazardReport{}, false
	}
	return s.hazards[idx], true
}

func (s *Snapshot) Event() *models.SnapshotEvent {
	return &models.SnapshotEvent{
		Version:     s.version,
		HazardCount: len(s.hazards),
		BuiltAt:     s.builtAt,
		Degraded:    s.degraded,
	}
}

func (s *Snapshot) cellOf(c models.Coordinate) cellKey {
	return cellKey{
		lat: int(math.Floor(c.Lat / s.cellDeg)),
		lon: int(math.Floor(c.Lon / s.cellDeg)),
	}
}

// within returns indices of hazards no further than radius meters from
// center, with their distances. Box pre-filter, haversine confirmation.
func (s *Snapshot) within(center models.Coordinate, radius float64, fn func(idx int, dist float64)) {
	box := geo.BoundingBox(center, radius)

	minCell := s.cellOf(models.Coordinate{Lat: box.MinLat, Lon: box.MinLon})
	maxCell := s.cellOf(models.Coordinate{Lat: box.MaxLat, Lon: box.MaxLon})
	span := float64(maxCell.lat-minCell.lat+1) * float64(maxCell.lon-minCell.lon+1)

	visit := func(idx int) {
		h := &s.hazards[idx]
		if !box.Contains(h.Location) {
			return
		}
		if d := geo.HaversineMeters(center, h.Location); d <= radius {
			fn(idx, d)
		}
	}

	if span > float64(len(s.cells)) {
		for idx := range s.hazards {
			visit(idx)
		}
		return
	}

	for lat := minCell.lat; lat <= maxCell.lat; lat++ {
		for lon := minCell.lon; lon <= maxCell.lon; lon++ {
			for _, idx := range s.cells[cellKey{lat: lat, lon: lon}] {
				visit(idx)
			}
		}
	}
}

// QueryRadius returns admitted hazards within radiusKm of center, nearest
// first, ties by id.
func (s *Snapshot) QueryRadius(center models.Coordinate, radiusKm float64) ([]models.HazardReport, error) {
	const op = "hazardindex.QueryRadius"
	if err := center.Validate(); err != nil {
		return nil, apperr.Validation(op, "center: %v", err)
	}
	if radiusKm < 0 || math.IsNaN(radiusKm) {
		return nil, apperr.Validation(op, "radius must be non-negative, got %v", radiusKm)
	}

	type found struct {
		idx  int
		dist float64
	}
	var hits []found
	s.within(center, radiusKm*1000, func(idx int, dist float64) {
		hits = append(hits, found{idx: idx, dist: dist})
	})

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].dist != hits[j].dist {
			return hits[i].dist < hits[j].dist
		}
		return s.hazards[hits[i].idx].ID < s.hazards[hits[j].idx].ID
	})

	out := make([]models.HazardReport, len(hits))
	for i, h := range hits {
		out[i] = s.hazards[h.idx]
	}
	return out, nil
}

// CorridorHit is a hazard inside a route corridor. Distance is to the
// nearest point of the route, Offset is that point's distance along it and
// Index the vertex at or before it.
type CorridorHit struct {
	Hazard   models.HazardReport
	Distance float64
	Offset   float64
	Index    int
}

// QueryCorridor returns every admitted hazard whose distance to the polyline
// is at most bufferMeters, ordered by offset along the route then id.
//
// The polyline is sampled every bufferMeters (never coarser) and each sample
// probes a radius of sqrt(b^2 + (s/2)^2), which covers the whole corridor
// between adjacent samples. Every probe hit is then confirmed against the
// exact point-to-polyline distance.
func (s *Snapshot) QueryCorridor(line []models.Coordinate, bufferMeters float64) ([]CorridorHit, error) {
	const op = "hazardindex.QueryCorridor"
	if len(line) == 0 {
		return nil, apperr.Validation(op, "polyline is empty")
	}
	for i, c := range line {
		if err := c.Validate(); err != nil {
			return nil, apperr.Validation(op, "point %d: %v", i, err)
		}
	}
	if bufferMeters < 0 || math.IsNaN(bufferMeters) {
		return nil, apperr.Validation(op, "buffer must be non-negative, got %v", bufferMeters)
	}

	var hits []CorridorHit
	if geo.IsDegenerate(line) {
		s.within(line[0], bufferMeters, func(idx int, dist float64) {
			hits = append(hits, CorridorHit{Hazard: s.hazards[idx], Distance: dist})
		})
	} else {
		spacing := math.Max(bufferMeters, 1)
		probe := math.Sqrt(bufferMeters*bufferMeters + spacing*spacing/4)

		seen := make(map[int]struct{})
		for _, sample := range geo.Densify(line, spacing) {
			s.within(sample.Point, probe, func(idx int, _ float64) {
				seen[idx] = struct{}{}
			})
		}

		for idx := range seen {
			h := s.hazards[idx]
			proj := geo.NearestOnPolyline(h.Location, line)
			if proj.Distance > bufferMeters {
				continue
			}
			hits = append(hits, CorridorHit{
				Hazard:   h,
				Distance: proj.Distance,
				Offset:   proj.Offset,
				Index:    proj.Index,
			})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Offset != hits[j].Offset {
			return hits[i].Offset < hits[j].Offset
		}
		return hits[i].Hazard.ID < hits[j].Hazard.ID
	})
	return hits, nil
}
