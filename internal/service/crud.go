package service

import (
	"context"

	"fleetops/internal/events"
	"fleetops/internal/model"
	"fleetops/internal/store"
)

type validator interface {
	Validate() error
}

// CRUD is the get/list/create/update/delete flow shared by every resource.
// T is the stored entity, In the write payload and Out the read model.
type CRUD[T any, In validator, Out any] struct {
	*core
	entity string
	label  string
	topic  string
	read   func(store.Tx) store.Reader[T]
	write  func(store.Tx) store.Table[T]
	id     func(T) int64
	// apply copies a validated payload onto v, resolving its references.
	apply func(ctx context.Context, tx store.Tx, in In, v *T) error
	// views builds read models for a batch with one fetch per referenced type.
	views func(ctx context.Context, tx store.Tx, items []T) ([]Out, error)
}

func (c *CRUD[T, In, Out]) viewOf(ctx context.Context, tx store.Tx, v T) (Out, error) {
	outs, err := c.views(ctx, tx, []T{v})
	if err != nil {
		var zero Out
		return zero, err
	}
	return outs[0], nil
}

func (c *CRUD[T, In, Out]) Get(ctx context.Context, id int64) (Out, error) {
	var out Out
	err := c.view(ctx, func(tx store.Tx) error {
		v, err := c.read(tx).Get(ctx, id)
		if err != nil {
			return missing(err, c.label, id)
		}
		out, err = c.viewOf(ctx, tx, v)
		return err
	})
	return out, err
}

func (c *CRUD[T, In, Out]) List(ctx context.Context, p ListParams) (model.Page[Out], error) {
	q, err := c.listQuery(c.entity, p)
	if err != nil {
		return model.Page[Out]{}, err
	}
	var out model.Page[Out]
	err = c.view(ctx, func(tx store.Tx) error {
		page, err := c.read(tx).List(ctx, q)
		if err != nil {
			return err
		}
		items, err := c.views(ctx, tx, page.Items)
		if err != nil {
			return err
		}
		out = model.NewPage(items, page.Page, page.Size, page.TotalItems)
		return nil
	})
	return out, err
}

func (c *CRUD[T, In, Out]) Create(ctx context.Context, in In) (Out, error) {
	var out Out
	if err := in.Validate(); err != nil {
		return out, err
	}
	err := c.update(ctx, func(tx store.Tx, ob *events.Outbox) error {
		var v T
		if err := c.apply(ctx, tx, in, &v); err != nil {
			return err
		}
		if err := c.write(tx).Save(ctx, &v); err != nil {
			return err
		}
		var err error
		if out, err = c.viewOf(ctx, tx, v); err != nil {
			return err
		}
		ob.Created(c.topic, c.id(v), out)
		return nil
	})
	return out, err
}

func (c *CRUD[T, In, Out]) Update(ctx context.Context, id int64, in In) (Out, error) {
	var out Out
	if err := in.Validate(); err != nil {
		return out, err
	}
	err := c.update(ctx, func(tx store.Tx, ob *events.Outbox) error {
		v, err := c.write(tx).Get(ctx, id)
		if err != nil {
			return missing(err, c.label, id)
		}
		if err := c.apply(ctx, tx, in, &v); err != nil {
			return err
		}
		if err := c.write(tx).Save(ctx, &v); err != nil {
			return missing(err, c.label, id)
		}
		if out, err = c.viewOf(ctx, tx, v); err != nil {
			return err
		}
		ob.Updated(c.topic, id, out)
		return nil
	})
	return out, err
}

func (c *CRUD[T, In, Out]) Delete(ctx context.Context, id int64) error {
	return c.update(ctx, func(tx store.Tx, ob *events.Outbox) error {
		if err := c.write(tx).Delete(ctx, id); err != nil {
			return missing(err, c.label, id)
		}
		ob.Deleted(c.topic, id)
		return nil
	})
}

func identity[T any](_ context.Context, _ store.Tx, items []T) ([]T, error) { return items, nil }

func newDrivers(c *core) *CRUD[model.Driver, model.DriverIn, model.Driver] {
	return &CRUD[model.Driver, model.DriverIn, model.Driver]{
		core: c, entity: model.EntityDriver, label: "Driver", topic: events.TopicDrivers,
		read:  func(tx store.Tx) store.Reader[model.Driver] { return tx.Drivers() },
		write: func(tx store.Tx) store.Table[model.Driver] { return tx.Drivers() },
		id:    func(d model.Driver) int64 { return d.ID },
		apply: func(_ context.Context, _ store.Tx, in model.DriverIn, d *model.Driver) error {
			d.FirstName = in.FirstName
			d.MiddleName = in.MiddleName
			d.LastName = in.LastName
			d.Passport = in.Passport
			return nil
		},
		views: identity[model.Driver],
	}
}

func newVehicles(c *core) *CRUD[model.Vehicle, model.VehicleIn, model.VehicleView] {
	return &CRUD[model.Vehicle, model.VehicleIn, model.VehicleView]{
		core: c, entity: model.EntityVehicle, label: "Vehicle", topic: events.TopicVehicles,
		read:  func(tx store.Tx) store.Reader[model.Vehicle] { return tx.Vehicles() },
		write: func(tx store.Tx) store.Table[model.Vehicle] { return tx.Vehicles() },
		id:    func(v model.Vehicle) int64 { return v.ID },
		apply: func(ctx context.Context, tx store.Tx, in model.VehicleIn, v *model.Vehicle) error {
			if _, err := tx.Drivers().Get(ctx, in.DriverID); err != nil {
				return missing(err, "Driver", in.DriverID)
			}
			v.DriverID = in.DriverID
			v.GosNumber = in.GosNumber
			v.TonnageInTons = in.TonnageInTons
			v.BodyHeightInMeters = in.BodyHeightInMeters
			v.BodyWidthInMeters = in.BodyWidthInMeters
			v.BodyLengthInCubicMeters = in.BodyLengthInCubicMeters
			return nil
		},
		views: vehicleViews,
	}
}

func newOrders(c *core) *CRUD[model.Order, model.OrderIn, model.Order] {
	return &CRUD[model.Order, model.OrderIn, model.Order]{
		core: c, entity: model.EntityOrder, label: "Order", topic: events.TopicOrders,
		read:  func(tx store.Tx) store.Reader[model.Order] { return tx.Orders() },
		write: func(tx store.Tx) store.Table[model.Order] { return tx.Orders() },
		id:    func(o model.Order) int64 { return o.ID },
		apply: func(_ context.Context, _ store.Tx, in model.OrderIn, o *model.Order) error {
			o.GoodsType = in.GoodsType
			o.MinTemperature = in.MinTemperature
			o.MaxTemperature = in.MaxTemperature
			o.VolumeInCubicMeters = in.VolumeInCubicMeters
			o.WeightInKg = in.WeightInKg
			return nil
		},
		views: identity[model.Order],
	}
}
