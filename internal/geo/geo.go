// Package geo holds the spherical geometry used by the hazard index and the
// safety scorer. Distances are great-circle meters on a spherical earth.
package geo

import (
	"math"

	"github.com/mr1hm/go-safe-routes/internal/models"
)

const EarthRadiusMeters = 6371000.0

const metersPerDegreeLat = EarthRadiusMeters * math.Pi / 180

func HaversineMeters(a, b models.Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Box is a lat/lon rectangle. It is always a superset of the circle it was
// built from; near the poles or the antimeridian it widens to every longitude.
type Box struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

func BoundingBox(center models.Coordinate, radiusMeters float64) Box {
	dLat := radiusMeters / metersPerDegreeLat
	b := Box{
		MinLat: center.Lat - dLat,
		MaxLat: center.Lat + dLat,
	}

	if b.MinLat <= -90 || b.MaxLat >= 90 {
		b.MinLat = math.Max(b.MinLat, -90)
		b.MaxLat = math.Min(b.MaxLat, 90)
		b.MinLon, b.MaxLon = -180, 180
		return b
	}

	// widest longitude span is at the latitude edge closest to a pole
	edge := math.Max(math.Abs(b.MinLat), math.Abs(b.MaxLat))
	dLon := radiusMeters / (metersPerDegreeLat * math.Cos(edge*math.Pi/180))
	b.MinLon = center.Lon - dLon
	b.MaxLon = center.Lon + dLon
	if b.MinLon < -180 || b.MaxLon > 180 || dLon >= 180 {
		b.MinLon, b.MaxLon = -180, 180
	}
	return b
}

func (b Box) Contains(c models.Coordinate) bool {
	return c.Lat >= b.MinLat && c.Lat <= b.MaxLat && c.Lon >= b.MinLon && c.Lon <= b.MaxLon
}

func PolylineLength(line []models.Coordinate) float64 {
	total := 0.0
	for i := 1; i < len(line); i++ {
		total += HaversineMeters(line[i-1], line[i])
	}
	return total
}

// Sample is a point on a polyline. Index is the vertex at or before it and
// Offset the distance travelled from the first vertex. Vertex is set when
// the sample sits exactly on vertex Index.
type Sample struct {
	Point  models.Coordinate
	Offset float64
	Index  int
	Vertex bool
}

// Densify walks the polyline emitting samples no more than spacing meters
// apart. Every vertex is emitted. A non-positive spacing returns the vertices.
func Densify(line []models.Coordinate, spacing float64) []Sample {
	if len(line) == 0 {
		return nil
	}

	samples := make([]Sample, 0, len(line))
	offset := 0.0
	for i := 0; i < len(line)-1; i++ {
		a, b := line[i], line[i+1]
		segLen := HaversineMeters(a, b)

		n := 1
		if spacing > 0 && segLen > spacing {
			n = int(math.Ceil(segLen / spacing))
		}
		for k := 0; k < n; k++ {
			t := float64(k) / float64(n)
			samples = append(samples, Sample{
				Point:  Interpolate(a, b, t),
				Offset: offset + segLen*t,
				Index:  i,
				Vertex: k == 0,
			})
		}
		offset += segLen
	}

	samples = append(samples, Sample{
		Point:  line[len(line)-1],
		Offset: offset,
		Index:  len(line) - 1,
		Vertex: true,
	})
	return samples
}

// Interpolate returns the point a fraction t of the way from a to b, taking
// the short way across the antimeridian.
func Interpolate(a, b models.Coordinate, t float64) models.Coordinate {
	dLon := normalizeLon(b.Lon - a.Lon)
	return models.Coordinate{
		Lat: a.Lat + (b.Lat-a.Lat)*t,
		Lon: normalizeLon(a.Lon + dLon*t),
	}
}

// Projection is the closest point on a polyline to some other point.
type Projection struct {
	Point    models.Coordinate
	Distance float64
	Offset   float64
	Index    int
}

// NearestOnPolyline projects p onto every segment using a local
// equirectangular frame, then measures the final distance with haversine.
// Ties go to the earlier offset.
func NearestOnPolyline(p models.Coordinate, line []models.Coordinate) Projection {
	if len(line) == 0 {
		return Projection{Distance: math.Inf(1)}
	}
	if len(line) == 1 {
		return Projection{Point: line[0], Distance: HaversineMeters(p, line[0])}
	}

	best := Projection{Distance: math.Inf(1)}
	offset := 0.0
	for i := 0; i < len(line)-1; i++ {
		a, b := line[i], line[i+1]
		segLen := HaversineMeters(a, b)

		t := segmentParam(p, a, b)
		closest := Interpolate(a, b, t)
		d := HaversineMeters(p, closest)
		if d < best.Distance {
			best = Projection{
				Point:    closest,
				Distance: d,
				Offset:   offset + segLen*t,
				Index:    i,
			}
		}
		offset += segLen
	}
	return best
}

func segmentParam(p, a, b models.Coordinate) float64 {
	cosLat := math.Cos(a.Lat * math.Pi / 180)
	bx := normalizeLon(b.Lon-a.Lon) * cosLat
	by := b.Lat - a.Lat
	px := normalizeLon(p.Lon-a.Lon) * cosLat
	py := p.Lat - a.Lat

	lenSq := bx*bx + by*by
	if lenSq == 0 {
		return 0
	}
	t := (px*bx + py*by) / lenSq
	return math.Max(0, math.Min(1, t))
}

func normalizeLon(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}

// IsDegenerate reports whether every point of the polyline coincides.
func IsDegenerate(line []models.Coordinate) bool {
	for i := 1; i < len(line); i++ {
		if line[i] != line[0] {
			return false
		}
	}
	return true
}
