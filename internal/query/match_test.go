package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func routeDoc(id int64, vehicle int64, mileage float64, ops ...string) Doc {
	points := make([]Doc, 0, len(ops))
	for i, op := range ops {
		points = append(points, Doc{"id": id*10 + int64(i), "operationType": op, "orderNumber": i})
	}
	return Doc{
		"id":          id,
		"vehicle":     Doc{"id": vehicle},
		"mileageInKm": mileage,
		"routePoints": points,
	}
}

func TestMatch(t *testing.T) {
	c := NewCompiler(testSchema())
	d := routeDoc(1, 4, 12.5, "LOAD", "VISIT", "VISIT")

	assert.True(t, Match(c.Compile("route", nil), d))
	assert.True(t, Match(c.Compile("route", Params{{Key: "vehicleId", Value: "4"}}), d))
	assert.False(t, Match(c.Compile("route", Params{{Key: "vehicleId", Value: "5"}}), d))
	assert.True(t, Match(c.Compile("route", Params{{Key: "routePoints.operationType", Value: "VISIT"}}), d))
	assert.False(t, Match(c.Compile("route", Params{{Key: "routePoints.operationType", Value: "UNLOAD"}}), d))
	assert.True(t, Match(c.Compile("route", Params{{Key: "routePoints.orderNumber", Value: "2"}}), d))
	assert.True(t, Match(c.Compile("route", Params{{Key: "mileageInKm", Value: "12.5"}}), d))

	nilVehicle := Doc{"id": int64(2), "vehicle": nil}
	assert.False(t, Match(c.Compile("route", Params{{Key: "vehicleId", Value: "4"}}), nilVehicle))
}

func TestMatchTimeAndPointers(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	name := "Main"
	c := NewCompiler(testSchema())
	assert.True(t, Match(c.Compile("route", Params{{Key: "plannedStartTime", Value: "2024-01-02T06:04:05+03:00"}}),
		Doc{"id": int64(1), "plannedStartTime": &ts}))
	assert.True(t, Match(c.Compile("retailPoint", Params{{Key: "name", Value: "Main"}}),
		Doc{"id": int64(1), "name": &name}))
	var missing *string
	assert.False(t, Match(c.Compile("retailPoint", Params{{Key: "name", Value: "Main"}}),
		Doc{"id": int64(1), "name": missing}))
}

func TestSortDocsTieBreaksByID(t *testing.T) {
	docs := []Doc{
		routeDoc(3, 1, 5),
		routeDoc(1, 1, 7),
		routeDoc(2, 1, 5),
		{"id": int64(4), "mileageInKm": nil},
	}
	SortDocs(docs, SortSpec{{Field: "mileageInKm", Direction: Asc}})
	ids := make([]int64, len(docs))
	for i, d := range docs {
		ids[i] = d["id"].(int64)
	}
	assert.Equal(t, []int64{2, 3, 1, 4}, ids)

	SortDocs(docs, SortSpec{{Field: "mileageInKm", Direction: Desc}})
	for i, d := range docs {
		ids[i] = d["id"].(int64)
	}
	assert.Equal(t, []int64{4, 1, 2, 3}, ids)

	SortDocs(docs, nil)
	for i, d := range docs {
		ids[i] = d["id"].(int64)
	}
	assert.Equal(t, []int64{1, 2, 3, 4}, ids)
}

func TestWindow(t *testing.T) {
	lo, hi := Window(45, PageDescriptor{Page: 2, Size: 20})
	assert.Equal(t, 40, lo)
	assert.Equal(t, 45, hi)
	lo, hi = Window(5, PageDescriptor{Page: 3, Size: 20})
	assert.Equal(t, 5, lo)
	assert.Equal(t, 5, hi)
}

func TestMatchLazyReferences(t *testing.T) {
	c := NewCompiler(testSchema())
	calls := 0
	d := Doc{"id": int64(1), "vehicle": Lazy(func() any {
		calls++
		return Doc{"id": int64(4), "driver": Lazy(func() any { return Doc{"id": int64(8), "lastName": "Petrov"} })}
	})}
	assert.True(t, Match(c.Compile("route", Params{{Key: "vehicle.driver.lastName", Value: "Petrov"}}), d))
	assert.False(t, Match(c.Compile("route", Params{{Key: "vehicle.driverId", Value: "9"}}), d))
	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, func() int { calls = 0; Match(c.Compile("route", nil), d); return calls }())
}
