package service

import (
	"context"

	"fleetops/internal/model"
	"fleetops/internal/store"
)

func collect[T any](items []T, ids func(T) []int64) []int64 {
	seen := map[int64]struct{}{}
	out := []int64{}
	for _, it := range items {
		for _, id := range ids(it) {
			if _, ok := seen[id]; ok || id == 0 {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func vehicleViews(ctx context.Context, tx store.Tx, vs []model.Vehicle) ([]model.VehicleView, error) {
	drivers, err := tx.Drivers().ByIDs(ctx, collect(vs, func(v model.Vehicle) []int64 { return []int64{v.DriverID} }))
	if err != nil {
		return nil, err
	}
	out := make([]model.VehicleView, len(vs))
	for i, v := range vs {
		out[i] = model.VehicleView{Vehicle: v, Driver: drivers[v.DriverID]}
	}
	return out, nil
}

func routePointViews(ctx context.Context, tx store.Tx, ps []model.RoutePoint) ([]model.RoutePointView, error) {
	retail, err := tx.RetailPoints().ByIDs(ctx, collect(ps, func(p model.RoutePoint) []int64 { return []int64{p.RetailPointID} }))
	if err != nil {
		return nil, err
	}
	orders, err := tx.Orders().ByIDs(ctx, collect(ps, func(p model.RoutePoint) []int64 { return p.OrderIDs }))
	if err != nil {
		return nil, err
	}
	out := make([]model.RoutePointView, len(ps))
	for i, p := range ps {
		v := model.RoutePointView{
			ID:               p.ID,
			RouteID:          p.RouteID,
			RetailPoint:      retail[p.RetailPointID],
			OperationType:    p.OperationType,
			Orders:           make([]model.Order, 0, len(p.OrderIDs)),
			PlannedStartTime: p.PlannedStartTime,
			PlannedEndTime:   p.PlannedEndTime,
			OrderNumber:      p.OrderNumber,
		}
		for _, id := range p.OrderIDs {
			if o, ok := orders[id]; ok {
				v.Orders = append(v.Orders, o)
			}
		}
		out[i] = v
	}
	return out, nil
}

func routeViews(ctx context.Context, tx store.Tx, rs []model.Route) ([]model.RouteView, error) {
	vehicles, err := tx.Vehicles().ByIDs(ctx, collect(rs, func(r model.Route) []int64 { return []int64{r.VehicleID} }))
	if err != nil {
		return nil, err
	}
	vlist := make([]model.Vehicle, 0, len(vehicles))
	for _, v := range vehicles {
		vlist = append(vlist, v)
	}
	vviews, err := vehicleViews(ctx, tx, vlist)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]model.VehicleView, len(vviews))
	for _, v := range vviews {
		byID[v.ID] = v
	}

	var points []model.RoutePoint
	for _, r := range rs {
		points = append(points, r.Points...)
	}
	pviews, err := routePointViews(ctx, tx, points)
	if err != nil {
		return nil, err
	}

	out := make([]model.RouteView, len(rs))
	next := 0
	for i, r := range rs {
		v := model.RouteView{
			ID:               r.ID,
			RoutePoints:      make([]model.RoutePointView, 0, len(r.Points)),
			CreationTime:     r.CreationTime,
			PlannedStartTime: r.PlannedStartTime,
			PlannedEndTime:   r.PlannedEndTime,
			MileageInKm:      r.MileageInKm,
		}
		v.RoutePoints = append(v.RoutePoints, pviews[next:next+len(r.Points)]...)
		next += len(r.Points)
		if vv, ok := byID[r.VehicleID]; ok {
			v.Vehicle = &vv
		}
		out[i] = v
	}
	return out, nil
}

// retailPoints drops the visit counts of a ranking.
func retailPoints(visits []model.RetailPointVisits) []model.RetailPoint {
	out := make([]model.RetailPoint, len(visits))
	for i, v := range visits {
		out[i] = v.RetailPoint
	}
	return out
}
