package service

import (
	"context"

	"fleetops/internal/events"
	"fleetops/internal/model"
	"fleetops/internal/reconcile"
	"fleetops/internal/store"
)

// fallbackMileageKm is the mileage of a route created for an orphan point.
const fallbackMileageKm = 1

// RoutePoints edits single points of a route. Every write renumbers the
// owning route so order numbers stay 0..n-1.
type RoutePoints struct {
	*CRUD[model.RoutePoint, model.RoutePointIn, model.RoutePointView]
}

func newRoutePoints(c *core) *RoutePoints {
	return &RoutePoints{&CRUD[model.RoutePoint, model.RoutePointIn, model.RoutePointView]{
		core: c, entity: model.EntityRoutePoint, label: "RoutePoint", topic: events.TopicRoutePoints,
		read:  func(tx store.Tx) store.Reader[model.RoutePoint] { return tx.RoutePoints() },
		id:    pointID,
		views: routePointViews,
	}}
}

// Create inserts the point at its orderNumber, clamped to the end of the
// route, or appends it. Without a routeId a fallback route without a vehicle
// is created around the point.
func (s *RoutePoints) Create(ctx context.Context, in model.RoutePointIn) (model.RoutePointView, error) {
	var out model.RoutePointView
	if err := in.Validate(); err != nil {
		return out, err
	}
	err := s.update(ctx, func(tx store.Tx, ob *events.Outbox) error {
		var route model.Route
		fallback := in.RouteID == nil
		if fallback {
			route = model.Route{
				CreationTime:     s.timestamp(),
				PlannedStartTime: in.PlannedStartTime.UTC(),
				PlannedEndTime:   in.PlannedEndTime.UTC(),
				MileageInKm:      fallbackMileageKm,
			}
		} else {
			var err error
			if route, err = tx.Routes().Get(ctx, *in.RouteID); err != nil {
				return missing(err, "Route", *in.RouteID)
			}
		}
		if err := resolvePointRefs(ctx, tx, in); err != nil {
			return err
		}
		var p model.RoutePoint
		applyPoint(&p, in)
		pos := position(in.OrderNumber, len(route.Points), len(route.Points))
		route.Points = reconcile.Insert(route.Points, p, pos, setOrderNumber)
		if err := tx.Routes().Save(ctx, &route); err != nil {
			return err
		}
		if fallback {
			rv, err := routeViews(ctx, tx, []model.Route{route})
			if err != nil {
				return err
			}
			ob.Created(events.TopicRoutes, route.ID, rv[0])
		}
		var err error
		if out, err = s.viewOf(ctx, tx, route.Points[pos]); err != nil {
			return err
		}
		ob.Created(s.topic, out.ID, out)
		return nil
	})
	return out, err
}

// Update rewrites the point in place. A routeId naming another route is not
// ignored: the point moves there and both routes are renumbered. An
// orderNumber repositions it, otherwise it keeps its position (or is
// appended when moved).
func (s *RoutePoints) Update(ctx context.Context, id int64, in model.RoutePointIn) (model.RoutePointView, error) {
	var out model.RoutePointView
	if err := in.Validate(); err != nil {
		return out, err
	}
	err := s.update(ctx, func(tx store.Tx, ob *events.Outbox) error {
		existing, err := tx.RoutePoints().Get(ctx, id)
		if err != nil {
			return missing(err, s.label, id)
		}
		src, err := tx.Routes().Get(ctx, existing.RouteID)
		if err != nil {
			return err
		}
		moving := in.RouteID != nil && *in.RouteID != src.ID
		var dst model.Route
		if moving {
			if dst, err = tx.Routes().Get(ctx, *in.RouteID); err != nil {
				return missing(err, "Route", *in.RouteID)
			}
		}
		if err := resolvePointRefs(ctx, tx, in); err != nil {
			return err
		}

		p := existing
		applyPoint(&p, in)
		src.Points, _ = reconcile.Remove(src.Points, id, pointID, setOrderNumber)
		target := &src
		keep := existing.OrderNumber
		if moving {
			target = &dst
			keep = len(dst.Points)
		}
		pos := position(in.OrderNumber, keep, len(target.Points))
		target.Points = reconcile.Insert(target.Points, p, pos, setOrderNumber)
		if err := tx.Routes().Save(ctx, target); err != nil {
			return err
		}
		if moving {
			if err := tx.Routes().Save(ctx, &src); err != nil {
				return err
			}
		}
		if out, err = s.viewOf(ctx, tx, target.Points[pos]); err != nil {
			return err
		}
		ob.Updated(s.topic, id, out)
		return nil
	})
	return out, err
}

// Delete removes the point and renumbers the rest of its route.
func (s *RoutePoints) Delete(ctx context.Context, id int64) error {
	return s.update(ctx, func(tx store.Tx, ob *events.Outbox) error {
		existing, err := tx.RoutePoints().Get(ctx, id)
		if err != nil {
			return missing(err, s.label, id)
		}
		route, err := tx.Routes().Get(ctx, existing.RouteID)
		if err != nil {
			return err
		}
		route.Points, _ = reconcile.Remove(route.Points, id, pointID, setOrderNumber)
		if err := tx.Routes().Save(ctx, &route); err != nil {
			return err
		}
		ob.Deleted(s.topic, id)
		return nil
	})
}

// TopRetailPoints ranks retail points by how many route points visit them,
// most visited first, ties by ascending id.
func (s *RoutePoints) TopRetailPoints(ctx context.Context, limit int) ([]model.RetailPoint, error) {
	if err := positiveLimit(limit); err != nil {
		return nil, err
	}
	var out []model.RetailPoint
	err := s.view(ctx, func(tx store.Tx) error {
		visits, err := tx.RoutePoints().TopRetailPoints(ctx, limit)
		out = retailPoints(visits)
		return err
	})
	return out, err
}

// position resolves a requested order number against a collection of n
// items: nil keeps def, anything past the end appends.
func position(requested *int, def, n int) int {
	pos := def
	if requested != nil {
		pos = *requested
	}
	if pos < 0 || pos > n {
		pos = n
	}
	return pos
}
