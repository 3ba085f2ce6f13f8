package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"fleetops/internal/model"
)

func TestHaversineKnownDistance(t *testing.T) {
	// Moscow to Saint Petersburg, roughly 634 km.
	d := HaversineMeters(55.7558, 37.6173, 59.9343, 30.3351)
	assert.InDelta(t, 634000, d, 5000)
	assert.Zero(t, HaversineMeters(10, 10, 10, 10))
}

func TestNearestOrdersByDistanceThenID(t *testing.T) {
	origin := model.RetailPoint{ID: 1, Location: model.GeoPoint{Lat: 0, Lng: 0}}
	points := []model.RetailPoint{
		origin,
		{ID: 9, Location: model.GeoPoint{Lat: 0, Lng: 1}},
		{ID: 4, Location: model.GeoPoint{Lat: 0, Lng: -1}},
		{ID: 7, Location: model.GeoPoint{Lat: 0, Lng: 0.5}},
		{ID: 2, Location: model.GeoPoint{Lat: 0, Lng: 3}},
	}
	id := func(p model.RetailPoint) int64 { return p.ID }
	pos := func(p model.RetailPoint) model.GeoPoint { return p.Location }

	ids := func(ps []model.RetailPoint) []int64 {
		out := make([]int64, len(ps))
		for i, p := range ps {
			out[i] = p.ID
		}
		return out
	}

	first := Nearest(origin.Location, origin.ID, points, id, pos, 3)
	assert.Equal(t, []int64{7, 4, 9}, ids(first))
	for i := 0; i < 5; i++ {
		assert.Equal(t, ids(first), ids(Nearest(origin.Location, origin.ID, points, id, pos, 3)))
	}
	assert.Equal(t, []int64{7, 4, 9, 2}, ids(Nearest(origin.Location, origin.ID, points, id, pos, 10)))
	assert.Empty(t, Nearest(origin.Location, origin.ID, points[:1], id, pos, 10))
}

func TestAntipodalPointsRankLast(t *testing.T) {
	origin := model.GeoPoint{Lat: 0.02, Lng: 0}
	far := model.GeoPoint{Lat: -0.02, Lng: 180}
	d := Distance(origin, far)
	assert.False(t, math.IsNaN(d))
	assert.InDelta(t, math.Pi*EarthRadiusM, d, 10)

	points := []model.RetailPoint{
		{ID: 1, Location: far},
		{ID: 2, Location: model.GeoPoint{Lat: 0.02, Lng: 90}},
		{ID: 3, Location: model.GeoPoint{Lat: 0.02, Lng: 1}},
		{ID: 4, Location: model.GeoPoint{Lat: 0.02, Lng: -2}},
		{ID: 5, Location: model.GeoPoint{Lat: 0.02, Lng: 150}},
	}
	got := Nearest(origin, 0, points,
		func(p model.RetailPoint) int64 { return p.ID },
		func(p model.RetailPoint) model.GeoPoint { return p.Location }, 10)

	ids := make([]int64, len(got))
	for i, p := range got {
		ids[i] = p.ID
		if i > 0 {
			assert.LessOrEqual(t, Distance(origin, got[i-1].Location), Distance(origin, p.Location))
		}
	}
	assert.Equal(t, []int64{3, 4, 2, 5, 1}, ids)
}

func TestHaversineNeverNaN(t *testing.T) {
	for lat := 0.0; lat <= 90; lat += 0.01 {
		d := HaversineMeters(lat, 0, -lat, 180)
		if math.IsNaN(d) || d > math.Pi*EarthRadiusM+1 {
			t.Fatalf("lat %.2f: distance %v", lat, d)
		}
	}
}
