package service

import (
	"context"
	"slices"
	"time"

	"fleetops/internal/apperr"
	"fleetops/internal/events"
	"fleetops/internal/metrics"
	"fleetops/internal/model"
	"fleetops/internal/reconcile"
	"fleetops/internal/store"
)

// Routes manages the route aggregate. A save replaces the whole point
// collection: listed points with a known id of this route are updated, the
// rest are created, and points no longer listed are deleted.
type Routes struct {
	*CRUD[model.Route, model.RouteIn, model.RouteView]
}

func newRoutes(c *core) *Routes {
	r := &Routes{&CRUD[model.Route, model.RouteIn, model.RouteView]{
		core: c, entity: model.EntityRoute, label: "Route", topic: events.TopicRoutes,
		read:  func(tx store.Tx) store.Reader[model.Route] { return tx.Routes() },
		write: func(tx store.Tx) store.Table[model.Route] { return tx.Routes() },
		id:    func(r model.Route) int64 { return r.ID },
		views: routeViews,
	}}
	r.apply = r.applyRoute
	return r
}

func (s *Routes) applyRoute(ctx context.Context, tx store.Tx, in model.RouteIn, r *model.Route) error {
	if _, err := tx.Vehicles().Get(ctx, in.VehicleID); err != nil {
		return missing(err, "Vehicle", in.VehicleID)
	}
	if err := resolvePointRefs(ctx, tx, in.RoutePoints...); err != nil {
		return err
	}
	plan := reconcile.Plan[model.RoutePoint, model.RoutePointIn]{
		Label: "RoutePoint",
		Key: func(p model.RoutePointIn) (int64, bool) {
			if p.ID == nil {
				return 0, false
			}
			return *p.ID, true
		},
		ID:    pointID,
		Fetch: tx.RoutePoints().ByIDs,
		New: func(in model.RoutePointIn) (model.RoutePoint, error) {
			var p model.RoutePoint
			applyPoint(&p, in)
			return p, nil
		},
		Apply: func(p *model.RoutePoint, in model.RoutePointIn) error {
			applyPoint(p, in)
			return nil
		},
		SetIndex: setOrderNumber,
	}
	res, err := plan.Reconcile(ctx, r.Points, in.RoutePoints)
	if err != nil {
		return err
	}
	metrics.Reconciled(model.EntityRoute, len(res.Created), len(res.Updated), len(res.Removed))
	s.log.Debug("route points reconciled", "route", r.ID,
		"created", len(res.Created), "updated", len(res.Updated), "removed", len(res.Removed))

	if r.ID == 0 {
		r.CreationTime = s.timestamp()
	}
	r.VehicleID = in.VehicleID
	r.PlannedStartTime = in.PlannedStartTime.UTC()
	r.PlannedEndTime = in.PlannedEndTime.UTC()
	r.MileageInKm = in.MileageInKm
	r.Points = res.Items
	return nil
}

// AverageMileage is the mean route mileage rounded half-up to three
// decimals, or 0 without routes.
func (s *Routes) AverageMileage(ctx context.Context) (float64, error) {
	var avg float64
	err := s.view(ctx, func(tx store.Tx) error {
		var err error
		avg, err = tx.Routes().AverageMileage(ctx)
		return err
	})
	return avg, err
}

// WithinPeriod lists routes planned to start no earlier than start and end
// no later than end, by id.
func (s *Routes) WithinPeriod(ctx context.Context, start, end time.Time) ([]model.RouteView, error) {
	if start.After(end) {
		return nil, apperr.BadRequest("Period start must not be after period end")
	}
	return s.routes(ctx, func(tx store.Tx) ([]model.Route, error) {
		return tx.Routes().WithinPeriod(ctx, start.UTC(), end.UTC())
	})
}

// ByRetailPoint lists the routes that visit the retail point, each once, by id.
func (s *Routes) ByRetailPoint(ctx context.Context, retailPointID int64) ([]model.RouteView, error) {
	return s.routes(ctx, func(tx store.Tx) ([]model.Route, error) {
		return tx.Routes().ByRetailPoint(ctx, retailPointID)
	})
}

func (s *Routes) routes(ctx context.Context, load func(store.Tx) ([]model.Route, error)) ([]model.RouteView, error) {
	var out []model.RouteView
	err := s.view(ctx, func(tx store.Tx) error {
		rs, err := load(tx)
		if err != nil {
			return err
		}
		out, err = routeViews(ctx, tx, rs)
		return err
	})
	return out, err
}

func pointID(p model.RoutePoint) int64 { return p.ID }

func setOrderNumber(p *model.RoutePoint, i int) { p.OrderNumber = i }

// applyPoint copies the scalar fields of in onto p. Order ids are stored
// sorted and without repeats.
func applyPoint(p *model.RoutePoint, in model.RoutePointIn) {
	p.RetailPointID = in.RetailPointID
	p.OperationType = in.OperationType
	ids := slices.Clone(in.OrderIDs)
	slices.Sort(ids)
	p.OrderIDs = slices.Compact(ids)
	if p.OrderIDs == nil {
		p.OrderIDs = []int64{}
	}
	p.PlannedStartTime = in.PlannedStartTime.UTC()
	p.PlannedEndTime = in.PlannedEndTime.UTC()
}

// resolvePointRefs fails with NotFound on the first retail point or order
// that does not exist. Each referenced type is fetched once.
func resolvePointRefs(ctx context.Context, tx store.Tx, in ...model.RoutePointIn) error {
	var retail, orders []int64
	for _, p := range in {
		retail = append(retail, p.RetailPointID)
		orders = append(orders, p.OrderIDs...)
	}
	if _, err := reconcile.Resolve(ctx, "RetailPoint", retail, tx.RetailPoints().ByIDs); err != nil {
		return err
	}
	_, err := reconcile.Resolve(ctx, "Order", orders, tx.Orders().ByIDs)
	return err
}
