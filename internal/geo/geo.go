// Package geo ranks positions by great-circle distance.
package geo

import (
	"math"
	"sort"

	"fleetops/internal/model"
)

// EarthRadiusM is the mean Earth radius used by HaversineMeters and by the
// haversine_m SQL function in internal/store/schema.sql.
const EarthRadiusM = 6371000.0

func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	// rounding can push a just past 1 for antipodal points
	a = math.Min(1, math.Max(0, a))
	return EarthRadiusM * 2 * math.Asin(math.Sqrt(a))
}

// Distance is HaversineMeters between two points.
func Distance(a, b model.GeoPoint) float64 {
	return HaversineMeters(a.Lat, a.Lng, b.Lat, b.Lng)
}

// Nearest returns up to limit items closest to origin, excluding originID,
// ordered by distance and then by ascending id.
func Nearest[T any](origin model.GeoPoint, originID int64, items []T, id func(T) int64, pos func(T) model.GeoPoint, limit int) []T {
	type ranked struct {
		item T
		id   int64
		dist float64
	}
	rs := make([]ranked, 0, len(items))
	for _, it := range items {
		if id(it) == originID {
			continue
		}
		rs = append(rs, ranked{item: it, id: id(it), dist: Distance(origin, pos(it))})
	}
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].dist != rs[j].dist {
			return rs[i].dist < rs[j].dist
		}
		return rs[i].id < rs[j].id
	})
	if limit >= 0 && len(rs) > limit {
		rs = rs[:limit]
	}
	out := make([]T, len(rs))
	for i, r := range rs {
		out[i] = r.item
	}
	return out
}
