package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetops/internal/model"
	"fleetops/internal/query"
)

var errAbort = errors.New("abort")

func page(size int, sort ...query.Order) query.PageDescriptor {
	return query.PageDescriptor{Size: size, Sort: sort}
}

func seedMemory(t *testing.T) (*Memory, model.Route) {
	t.Helper()
	m := NewMemory()
	ctx := context.Background()
	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	var route model.Route
	err := m.Update(ctx, func(tx Tx) error {
		d := model.Driver{FirstName: "Ivan", LastName: "Petrov", Passport: "1234 567890"}
		if err := tx.Drivers().Save(ctx, &d); err != nil {
			return err
		}
		v := model.Vehicle{DriverID: d.ID, GosNumber: "A001AA", TonnageInTons: 2, BodyHeightInMeters: 2, BodyWidthInMeters: 2, BodyLengthInCubicMeters: 4}
		if err := tx.Vehicles().Save(ctx, &v); err != nil {
			return err
		}
		for _, n := range []string{"North", "South"} {
			rp := model.RetailPoint{Name: n, Address: n + " st", Type: model.PointShop, Timezone: "UTC"}
			if err := tx.RetailPoints().Save(ctx, &rp); err != nil {
				return err
			}
		}
		o := model.Order{GoodsType: "milk", VolumeInCubicMeters: 1, WeightInKg: 1}
		if err := tx.Orders().Save(ctx, &o); err != nil {
			return err
		}
		route = model.Route{VehicleID: v.ID, CreationTime: ts, PlannedStartTime: ts, PlannedEndTime: ts.Add(4 * time.Hour), MileageInKm: 10,
			Points: []model.RoutePoint{
				{RetailPointID: 1, OperationType: model.OperationLoad, OrderIDs: []int64{o.ID}, PlannedStartTime: ts, PlannedEndTime: ts, OrderNumber: 0},
				{RetailPointID: 2, OperationType: model.OperationUnload, OrderIDs: []int64{o.ID}, PlannedStartTime: ts, PlannedEndTime: ts, OrderNumber: 1},
			}}
		return tx.Routes().Save(ctx, &route)
	})
	require.NoError(t, err)
	return m, route
}

func TestMemorySaveAssignsIDs(t *testing.T) {
	_, r := seedMemory(t)
	assert.Equal(t, int64(1), r.ID)
	assert.Equal(t, int64(1), r.Points[0].ID)
	assert.Equal(t, int64(2), r.Points[1].ID)
	assert.Equal(t, r.ID, r.Points[1].RouteID)
}

func TestMemoryUpdateIsAtomic(t *testing.T) {
	m, _ := seedMemory(t)
	ctx := context.Background()
	err := m.Update(ctx, func(tx Tx) error {
		d := model.Driver{FirstName: "Anna", LastName: "Smirnova", Passport: "4321 098765"}
		if err := tx.Drivers().Save(ctx, &d); err != nil {
			return err
		}
		return errAbort
	})
	assert.ErrorIs(t, err, errAbort)
	err = m.View(ctx, func(tx Tx) error {
		p, err := tx.Drivers().List(ctx, query.Query{Filter: query.Predicate{Entity: model.EntityDriver}, Page: page(10)})
		assert.Equal(t, int64(1), p.TotalItems)
		return err
	})
	require.NoError(t, err)
}

func TestMemoryViewIsReadOnly(t *testing.T) {
	m := NewMemory()
	err := m.View(context.Background(), func(tx Tx) error {
		return tx.Drivers().Save(context.Background(), &model.Driver{FirstName: "A"})
	})
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestMemoryConstraints(t *testing.T) {
	m, _ := seedMemory(t)
	ctx := context.Background()
	var ce *ConstraintError

	err := m.Update(ctx, func(tx Tx) error {
		return tx.Vehicles().Save(ctx, &model.Vehicle{DriverID: 1, GosNumber: "A001AA"})
	})
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "uk_vehicles_gos_number", ce.Constraint)

	err = m.Update(ctx, func(tx Tx) error { return tx.Drivers().Delete(ctx, 1) })
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "fk_vehicles_driver", ce.Constraint)

	err = m.Update(ctx, func(tx Tx) error { return tx.Orders().Delete(ctx, 1) })
	require.ErrorAs(t, err, &ce)

	err = m.Update(ctx, func(tx Tx) error { return tx.RetailPoints().Delete(ctx, 2) })
	require.ErrorAs(t, err, &ce)

	err = m.Update(ctx, func(tx Tx) error { return tx.Orders().Delete(ctx, 99) })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryDeleteRouteCascadesPoints(t *testing.T) {
	m, r := seedMemory(t)
	ctx := context.Background()
	require.NoError(t, m.Update(ctx, func(tx Tx) error { return tx.Routes().Delete(ctx, r.ID) }))
	err := m.View(ctx, func(tx Tx) error {
		_, err := tx.RoutePoints().Get(ctx, r.Points[0].ID)
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)
	// the order is free again
	require.NoError(t, m.Update(ctx, func(tx Tx) error { return tx.Orders().Delete(ctx, 1) }))
}

func TestMemoryListFiltersThroughCollections(t *testing.T) {
	m, _ := seedMemory(t)
	ctx := context.Background()
	c := query.NewCompiler(model.Schema)
	err := m.View(ctx, func(tx Tx) error {
		p, err := tx.Routes().List(ctx, query.Query{
			Filter: c.Compile(model.EntityRoute, query.Params{{Key: "routePoints.retailPoint.name", Value: "South"}}),
			Page:   page(10),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), p.TotalItems)

		p, err = tx.Routes().List(ctx, query.Query{
			Filter: c.Compile(model.EntityRoute, query.Params{{Key: "vehicle.driver.lastName", Value: "Sidorov"}}),
			Page:   page(10),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(0), p.TotalItems)
		assert.Empty(t, p.Items)

		pts, err := tx.RoutePoints().List(ctx, query.Query{
			Filter: c.Compile(model.EntityRoutePoint, query.Params{{Key: "orders.goodsType", Value: "milk"}}),
			Page:   page(1, query.Order{Field: "orderNumber", Direction: query.Desc}),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), pts.TotalItems)
		assert.Equal(t, 2, pts.TotalPages)
		require.Len(t, pts.Items, 1)
		assert.Equal(t, 1, pts.Items[0].OrderNumber)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryListRejectsUnsortableField(t *testing.T) {
	m := NewMemory()
	err := m.View(context.Background(), func(tx Tx) error {
		_, err := tx.Routes().List(context.Background(), query.Query{
			Filter: query.Predicate{Entity: model.EntityRoute},
			Page:   page(5, query.Order{Field: "routePoints"}),
		})
		return err
	})
	assert.EqualError(t, err, "Cannot sort by 'routePoints' for resource 'Route'")
}

func TestMemorySaveRouteMovesPoint(t *testing.T) {
	m, r := seedMemory(t)
	ctx := context.Background()
	moved := r.Points[1]
	err := m.Update(ctx, func(tx Tx) error {
		other := model.Route{CreationTime: r.CreationTime, PlannedStartTime: r.PlannedStartTime, PlannedEndTime: r.PlannedEndTime, MileageInKm: 1,
			Points: []model.RoutePoint{moved}}
		other.Points[0].OrderNumber = 0
		return tx.Routes().Save(ctx, &other)
	})
	require.NoError(t, err)
	err = m.View(ctx, func(tx Tx) error {
		orig, err := tx.Routes().Get(ctx, r.ID)
		require.NoError(t, err)
		assert.Len(t, orig.Points, 1)
		p, err := tx.RoutePoints().Get(ctx, moved.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), p.RouteID)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryAggregates(t *testing.T) {
	m, r := seedMemory(t)
	ctx := context.Background()
	err := m.Update(ctx, func(tx Tx) error {
		for _, km := range []float64{10.001, 10.002} {
			x := model.Route{CreationTime: r.CreationTime, PlannedStartTime: r.PlannedStartTime.Add(24 * time.Hour),
				PlannedEndTime: r.PlannedEndTime.Add(24 * time.Hour), MileageInKm: km,
				Points: []model.RoutePoint{{RetailPointID: 2, OperationType: model.OperationVisit, OrderIDs: []int64{}, OrderNumber: 0}}}
			if err := tx.Routes().Save(ctx, &x); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	err = m.View(ctx, func(tx Tx) error {
		avg, err := tx.Routes().AverageMileage(ctx)
		require.NoError(t, err)
		// (10.000 + 10.001 + 10.002) / 3 = 10.001
		assert.InDelta(t, 10.001, avg, 1e-9)

		within, err := tx.Routes().WithinPeriod(ctx, r.PlannedStartTime, r.PlannedEndTime)
		require.NoError(t, err)
		require.Len(t, within, 1)
		assert.Equal(t, r.ID, within[0].ID)

		byRP, err := tx.Routes().ByRetailPoint(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, byRP, 3)

		top, err := tx.RoutePoints().TopRetailPoints(ctx, 5)
		require.NoError(t, err)
		require.Len(t, top, 2)
		assert.Equal(t, "South", top[0].RetailPoint.Name)
		assert.Equal(t, int64(3), top[0].Visits)
		assert.Equal(t, int64(1), top[1].Visits)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryAverageMileageEmpty(t *testing.T) {
	m := NewMemory()
	err := m.View(context.Background(), func(tx Tx) error {
		avg, err := tx.Routes().AverageMileage(context.Background())
		assert.Zero(t, avg)
		return err
	})
	require.NoError(t, err)
}

func TestMemoryNearest(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	pts := []model.GeoPoint{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 2}, {Lat: 0, Lng: 1}, {Lat: 0, Lng: -1}}
	err := m.Update(ctx, func(tx Tx) error {
		for i, g := range pts {
			rp := model.RetailPoint{Name: string(rune('A' + i)), Address: string(rune('a' + i)), Location: g, Type: model.PointShop, Timezone: "UTC"}
			if err := tx.RetailPoints().Save(ctx, &rp); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	err = m.View(ctx, func(tx Tx) error {
		origin, err := tx.RetailPoints().Get(ctx, 1)
		require.NoError(t, err)
		got, err := tx.RetailPoints().Nearest(ctx, origin, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		// 3 and 4 are equidistant; id breaks the tie
		assert.Equal(t, int64(3), got[0].ID)
		assert.Equal(t, int64(4), got[1].ID)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryNearestAntipodalLast(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	pts := []model.GeoPoint{
		{Lat: 0.02, Lng: 0},
		{Lat: -0.02, Lng: 180},
		{Lat: 0.02, Lng: 90},
		{Lat: 0.02, Lng: 1},
		{Lat: 0.02, Lng: -2},
	}
	err := m.Update(ctx, func(tx Tx) error {
		for i, g := range pts {
			rp := model.RetailPoint{Name: string(rune('A' + i)), Address: string(rune('a' + i)), Location: g, Type: model.PointShop, Timezone: "UTC"}
			if err := tx.RetailPoints().Save(ctx, &rp); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	err = m.View(ctx, func(tx Tx) error {
		origin, err := tx.RetailPoints().Get(ctx, 1)
		require.NoError(t, err)
		got, err := tx.RetailPoints().Nearest(ctx, origin, 10)
		require.NoError(t, err)
		ids := make([]int64, len(got))
		for i, p := range got {
			ids[i] = p.ID
		}
		assert.Equal(t, []int64{4, 5, 3, 2}, ids)
		return nil
	})
	require.NoError(t, err)
}
