// Package service implements the use cases behind the HTTP API: validation,
// reference resolution, aggregate reconciliation, read model assembly and
// change events. Each mutating call is one store transaction; its events are
// published only after commit.
package service

import (
	"context"
	"errors"
	"time"

	"fleetops/internal/apperr"
	"fleetops/internal/events"
	"fleetops/internal/logging"
	"fleetops/internal/metrics"
	"fleetops/internal/model"
	"fleetops/internal/query"
	"fleetops/internal/store"
)

// DefaultMaxNearestLimit caps nearest retail point lookups.
const DefaultMaxNearestLimit = 1000

// Options tune a Service. Zero values take defaults.
type Options struct {
	Paging          query.PageConfig
	MaxNearestLimit int
	Now             func() time.Time
}

// ListParams are the raw inputs of a collection read.
type ListParams struct {
	Filters query.Params
	Page    *int
	Size    *int
	Sort    []string
}

// Service groups the per-resource use cases.
type Service struct {
	Drivers      *CRUD[model.Driver, model.DriverIn, model.Driver]
	Vehicles     *CRUD[model.Vehicle, model.VehicleIn, model.VehicleView]
	Orders       *CRUD[model.Order, model.OrderIn, model.Order]
	RetailPoints *RetailPoints
	Routes       *Routes
	RoutePoints  *RoutePoints

	core *core
}

type core struct {
	store      store.Store
	pub        *events.Publisher
	log        logging.Logger
	filters    *query.Compiler
	pages      *query.PageBuilder
	maxNearest int
	now        func() time.Time
}

func New(st store.Store, pub *events.Publisher, log logging.Logger, opts Options) *Service {
	if log == nil {
		log = logging.Nop()
	}
	if opts.MaxNearestLimit <= 0 {
		opts.MaxNearestLimit = DefaultMaxNearestLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &core{
		store:      st,
		pub:        pub,
		log:        log,
		filters:    query.NewCompiler(model.Schema),
		pages:      query.NewPageBuilder(opts.Paging),
		maxNearest: opts.MaxNearestLimit,
		now:        opts.Now,
	}
	c.filters.OnDrop = func(entity, key string) {
		metrics.DroppedFilters.WithLabelValues(entity).Inc()
		c.log.Debug("filter parameter ignored", "entity", entity, "key", key)
	}
	return &Service{
		Drivers:      newDrivers(c),
		Vehicles:     newVehicles(c),
		Orders:       newOrders(c),
		RetailPoints: newRetailPoints(c),
		Routes:       newRoutes(c),
		RoutePoints:  newRoutePoints(c),
		core:         c,
	}
}

// Ping reports whether the store is reachable.
func (s *Service) Ping(ctx context.Context) error { return s.core.store.Ping(ctx) }

// PageConfig returns the effective paging bounds.
func (s *Service) PageConfig() query.PageConfig { return s.core.pages.Config() }

// timestamp is the current time at the precision Postgres keeps.
func (c *core) timestamp() time.Time {
	return c.now().UTC().Truncate(time.Microsecond)
}

func (c *core) listQuery(entity string, p ListParams) (query.Query, error) {
	page := c.pages.Build(p.Page, p.Size, p.Sort)
	if err := model.Schema.CheckSort(entity, page.Sort); err != nil {
		return query.Query{}, err
	}
	return query.Query{Filter: c.filters.Compile(entity, p.Filters), Page: page}, nil
}

func (c *core) view(ctx context.Context, fn func(store.Tx) error) error {
	return c.mapErr(c.store.View(ctx, fn))
}

// update runs fn in a write transaction and flushes the events it recorded
// once the transaction has committed.
func (c *core) update(ctx context.Context, fn func(store.Tx, *events.Outbox) error) error {
	var out events.Outbox
	err := c.store.Update(ctx, func(tx store.Tx) error { return fn(tx, &out) })
	if err != nil {
		return c.mapErr(err)
	}
	c.pub.Flush(&out)
	return nil
}

// mapErr turns store failures into apperr kinds. Errors that already carry
// a kind pass through.
func (c *core) mapErr(err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	var ce *store.ConstraintError
	if errors.As(err, &ce) {
		return apperr.BadRequestWrap(err, ce.Error())
	}
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("", nil)
	}
	c.log.Error("store failure", "error", err)
	return apperr.Internal(err)
}

// missing converts ErrNotFound for the addressed entity.
func missing(err error, label string, id int64) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(label, id)
	}
	return err
}

// positiveLimit validates the limit of the ranking endpoints.
func positiveLimit(limit int) error {
	if limit <= 0 {
		return apperr.BadRequest("Limit must be positive")
	}
	return nil
}
