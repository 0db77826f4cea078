package geo

import (
	"math"
	"sort"
)

const (
	EarthRadiusKm   = 6371.0
	DuplicateKm     = 0.05
	DefaultRadiusKm = 5.0
)

type Point struct {
	Lat float64
	Lng float64
}

// Distance is the great-circle distance between a and b in kilometres.
func Distance(a, b Point) float64 {
	lat1, lat2 := rad(a.Lat), rad(b.Lat)
	dLat := lat2 - lat1
	dLng := rad(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }

// Near reports whether any of points lies within km of p.
func Near(points []Point, p Point, km float64) bool {
	for _, q := range points {
		if Distance(p, q) < km {
			return true
		}
	}
	return false
}

func Round2(v float64) float64 { return math.Round(v*100) / 100 }

func Valid(p Point) bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Ranked pairs an item index with its distance from an origin.
type Ranked struct {
	Index int
	Km    float64
}

// Within ranks points inside radius km of origin, nearest first.
func Within(origin Point, points []Point, km float64) []Ranked {
	var out []Ranked
	for i, p := range points {
		if d := Distance(origin, p); d <= km {
			out = append(out, Ranked{Index: i, Km: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Km < out[j].Km })
	return out
}
