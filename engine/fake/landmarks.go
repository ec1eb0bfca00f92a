package fake

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/golang/geo/r3"

	"go.viam.com/arsession/engine"
)

// cellSize is the edge length in meters of the square floor cells landmarks are generated in.
const cellSize = 1.0

// landmarkKey identifies a landmark: the cell it lives in and its index within the cell.
type landmarkKey struct {
	CellX int `cbor:"x"`
	CellZ int `cbor:"z"`
	Index int `cbor:"i"`
}

type landmark struct {
	Key       landmarkKey `cbor:"key"`
	Point     [3]float64  `cbor:"point"`
	MeasCount int         `cbor:"meas"`
}

func (l landmark) featurePoint() engine.FeaturePoint {
	return engine.FeaturePoint{Point: r3Vector(l.Point[0], l.Point[1], l.Point[2]), MeasCount: l.MeasCount}
}

func r3Vector(x, y, z float64) r3.Vector {
	return r3.Vector{X: x, Y: y, Z: z}
}

func cellOf(p r3.Vector) (int, int) {
	return int(math.Floor(p.X / cellSize)), int(math.Floor(p.Z / cellSize))
}

// landmarkAt returns the map frame position of a landmark. The same seed and key always give the
// same position, so separate sessions observing the same place see the same landmarks.
func landmarkAt(seed uint64, key landmarkKey) [3]float64 {
	h := uint64(int64(key.CellX))*73856093 ^ uint64(int64(key.CellZ))*19349663 ^ uint64(int64(key.Index))*83492791
	r := rand.New(rand.NewPCG(seed, h))
	return [3]float64{
		(float64(key.CellX) + r.Float64()) * cellSize,
		r.Float64()*2 - 0.5,
		(float64(key.CellZ) + r.Float64()) * cellSize,
	}
}

// landmarkSet is the set of landmarks a session has observed.
type landmarkSet struct {
	seed   uint64
	points map[landmarkKey]*landmark
}

func newLandmarkSet(seed uint64, from []landmark) *landmarkSet {
	s := &landmarkSet{seed: seed, points: make(map[landmarkKey]*landmark, len(from))}
	for _, l := range from {
		l := l
		s.points[l.Key] = &l
	}
	return s
}

// observe records a frame taken at mapPosition and returns the landmarks visible in it. Unknown
// landmarks are only added when grow is set.
func (s *landmarkSet) observe(mapPosition r3.Vector, perFrame int, grow bool) []engine.FeaturePoint {
	cx, cz := cellOf(mapPosition)
	seen := make([]engine.FeaturePoint, 0, perFrame)
	for i := 0; i < perFrame; i++ {
		key := landmarkKey{CellX: cx, CellZ: cz, Index: i}
		l, ok := s.points[key]
		if !ok {
			if !grow {
				continue
			}
			l = &landmark{Key: key, Point: landmarkAt(s.seed, key)}
			s.points[key] = l
		}
		l.MeasCount++
		seen = append(seen, l.featurePoint())
	}
	return seen
}

// snapshot returns every landmark ordered by key.
func (s *landmarkSet) snapshot() []landmark {
	out := make([]landmark, 0, len(s.points))
	for _, l := range s.points {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Key, out[j].Key
		if a.CellX != b.CellX {
			return a.CellX < b.CellX
		}
		if a.CellZ != b.CellZ {
			return a.CellZ < b.CellZ
		}
		return a.Index < b.Index
	})
	return out
}
