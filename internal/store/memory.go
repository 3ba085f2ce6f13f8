package store

import (
	"context"
	"maps"
	"math"
	"sort"
	"sync"
	"time"

	"fleetops/internal/geo"
	"fleetops/internal/model"
	"fleetops/internal/query"
)

// Memory is an in-memory store used when no DATABASE_URL is set. Update
// works on a copy of the state and swaps it in on success, so a failed unit
// of work leaves nothing behind. It enforces the same unique and foreign key
// constraints as schema.sql.
type Memory struct {
	mu sync.RWMutex
	st *state
}

type state struct {
	seq          map[string]int64
	drivers      map[int64]model.Driver
	vehicles     map[int64]model.Vehicle
	orders       map[int64]model.Order
	retailPoints map[int64]model.RetailPoint
	routes       map[int64]model.Route
	pointRoute   map[int64]int64 // route point id -> route id
}

func NewMemory() *Memory {
	return &Memory{st: &state{
		seq:          map[string]int64{},
		drivers:      map[int64]model.Driver{},
		vehicles:     map[int64]model.Vehicle{},
		orders:       map[int64]model.Order{},
		retailPoints: map[int64]model.RetailPoint{},
		routes:       map[int64]model.Route{},
		pointRoute:   map[int64]int64{},
	}}
}

// clone is shallow: stored values are replaced, never mutated in place.
func (s *state) clone() *state {
	return &state{
		seq:          maps.Clone(s.seq),
		drivers:      maps.Clone(s.drivers),
		vehicles:     maps.Clone(s.vehicles),
		orders:       maps.Clone(s.orders),
		retailPoints: maps.Clone(s.retailPoints),
		routes:       maps.Clone(s.routes),
		pointRoute:   maps.Clone(s.pointRoute),
	}
}

func (s *state) nextID(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

func (m *Memory) View(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&memTx{st: m.st, readOnly: true})
}

func (m *Memory) Update(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.st.clone()
	if err := fn(&memTx{st: next}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.st = next
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }

func (m *Memory) Close() error { return nil }

type memTx struct {
	st       *state
	readOnly bool
}

func (tx *memTx) writable() error {
	if tx.readOnly {
		return ErrReadOnly
	}
	return nil
}

// memTable implements Table over one map of the state.
type memTable[T any] struct {
	tx     *memTx
	entity string
	table  string
	rows   map[int64]T
	id     func(T) int64
	setID  func(*T, int64)
	doc    func(T) query.Doc
	check  func(T) error
	inUse  func(id int64) error
	copy   func(T) T
}

func (t *memTable[T]) clone(v T) T {
	if t.copy == nil {
		return v
	}
	return t.copy(v)
}

func (t *memTable[T]) Get(ctx context.Context, id int64) (T, error) {
	v, ok := t.rows[id]
	if !ok {
		var zero T
		return zero, ErrNotFound
	}
	return t.clone(v), nil
}

func (t *memTable[T]) ByIDs(ctx context.Context, ids []int64) (map[int64]T, error) {
	out := make(map[int64]T, len(ids))
	for _, id := range ids {
		if v, ok := t.rows[id]; ok {
			out[id] = t.clone(v)
		}
	}
	return out, nil
}

func (t *memTable[T]) List(ctx context.Context, q query.Query) (model.Page[T], error) {
	if err := model.Schema.CheckSort(t.entity, q.Page.Sort); err != nil {
		return model.Page[T]{}, err
	}
	type row struct {
		doc query.Doc
		v   T
	}
	var rs []row
	for _, v := range t.rows {
		d := t.doc(v)
		if query.Match(q.Filter, d) {
			rs = append(rs, row{doc: d, v: v})
		}
	}
	sort.Slice(rs, func(i, j int) bool { return query.Less(rs[i].doc, rs[j].doc, q.Page.Sort) })
	lo, hi := query.Window(len(rs), q.Page)
	items := make([]T, 0, hi-lo)
	for _, r := range rs[lo:hi] {
		items = append(items, t.clone(r.v))
	}
	return listPage(items, q.Page, int64(len(rs))), nil
}

func (t *memTable[T]) Save(ctx context.Context, v *T) error {
	if err := t.tx.writable(); err != nil {
		return err
	}
	id := t.id(*v)
	if id != 0 {
		if _, ok := t.rows[id]; !ok {
			return ErrNotFound
		}
	}
	if t.check != nil {
		if err := t.check(*v); err != nil {
			return err
		}
	}
	if id == 0 {
		t.setID(v, t.tx.st.nextID(t.table))
	}
	t.rows[t.id(*v)] = t.clone(*v)
	return nil
}

func (t *memTable[T]) Delete(ctx context.Context, id int64) error {
	if err := t.tx.writable(); err != nil {
		return err
	}
	if _, ok := t.rows[id]; !ok {
		return ErrNotFound
	}
	if t.inUse != nil {
		if err := t.inUse(id); err != nil {
			return err
		}
	}
	delete(t.rows, id)
	return nil
}

func violation(constraint, msg string) error {
	return &ConstraintError{Constraint: constraint, Message: msg}
}

func (tx *memTx) Drivers() Table[model.Driver] {
	return &memTable[model.Driver]{
		tx: tx, entity: model.EntityDriver, table: "drivers", rows: tx.st.drivers,
		id:    func(d model.Driver) int64 { return d.ID },
		setID: func(d *model.Driver, id int64) { d.ID = id },
		doc:   tx.driverDoc,
		copy: func(d model.Driver) model.Driver {
			if d.MiddleName != nil {
				m := *d.MiddleName
				d.MiddleName = &m
			}
			return d
		},
		check: func(d model.Driver) error {
			for _, o := range tx.st.drivers {
				if o.ID != d.ID && o.Passport == d.Passport {
					return violation("uk_drivers_passport", "duplicate key value violates unique constraint")
				}
			}
			return nil
		},
		inUse: func(id int64) error {
			for _, v := range tx.st.vehicles {
				if v.DriverID == id {
					return violation("fk_vehicles_driver", "driver is still referenced by a vehicle")
				}
			}
			return nil
		},
	}
}

func (tx *memTx) Vehicles() Table[model.Vehicle] {
	return &memTable[model.Vehicle]{
		tx: tx, entity: model.EntityVehicle, table: "vehicles", rows: tx.st.vehicles,
		id:    func(v model.Vehicle) int64 { return v.ID },
		setID: func(v *model.Vehicle, id int64) { v.ID = id },
		doc:   tx.vehicleDoc,
		check: func(v model.Vehicle) error {
			if _, ok := tx.st.drivers[v.DriverID]; !ok {
				return violation("fk_vehicles_driver", "insert or update violates foreign key constraint")
			}
			for _, o := range tx.st.vehicles {
				if o.ID != v.ID && o.GosNumber == v.GosNumber {
					return violation("uk_vehicles_gos_number", "duplicate key value violates unique constraint")
				}
			}
			return nil
		},
		inUse: func(id int64) error {
			for _, r := range tx.st.routes {
				if r.VehicleID == id {
					return violation("fk_routes_vehicle", "vehicle is still referenced by a route")
				}
			}
			return nil
		},
	}
}

func (tx *memTx) Orders() Table[model.Order] {
	return &memTable[model.Order]{
		tx: tx, entity: model.EntityOrder, table: "orders", rows: tx.st.orders,
		id:    func(o model.Order) int64 { return o.ID },
		setID: func(o *model.Order, id int64) { o.ID = id },
		doc:   tx.orderDoc,
		copy:  copyOrder,
		inUse: func(id int64) error {
			for _, r := range tx.st.routes {
				for _, p := range r.Points {
					for _, oid := range p.OrderIDs {
						if oid == id {
							return violation("fk_route_point_orders_order", "order is still referenced by a route point")
						}
					}
				}
			}
			return nil
		},
	}
}

type memRetailPoints struct {
	*memTable[model.RetailPoint]
}

func (tx *memTx) RetailPoints() RetailPointTable {
	return memRetailPoints{&memTable[model.RetailPoint]{
		tx: tx, entity: model.EntityRetailPoint, table: "retail_points", rows: tx.st.retailPoints,
		id:    func(r model.RetailPoint) int64 { return r.ID },
		setID: func(r *model.RetailPoint, id int64) { r.ID = id },
		doc:   tx.retailPointDoc,
		check: func(r model.RetailPoint) error {
			for _, o := range tx.st.retailPoints {
				if o.ID == r.ID {
					continue
				}
				if o.Name == r.Name {
					return violation("uk_retail_points_name", "duplicate key value violates unique constraint")
				}
				if o.Address == r.Address {
					return violation("uk_retail_points_address", "duplicate key value violates unique constraint")
				}
			}
			return nil
		},
		inUse: func(id int64) error {
			for _, r := range tx.st.routes {
				for _, p := range r.Points {
					if p.RetailPointID == id {
						return violation("fk_route_points_retail_point", "retail point is still referenced by a route point")
					}
				}
			}
			return nil
		},
	}}
}

func (t memRetailPoints) Nearest(ctx context.Context, origin model.RetailPoint, limit int) ([]model.RetailPoint, error) {
	all := make([]model.RetailPoint, 0, len(t.rows))
	for _, r := range t.rows {
		all = append(all, r)
	}
	return geo.Nearest(origin.Location, origin.ID, all,
		func(r model.RetailPoint) int64 { return r.ID },
		func(r model.RetailPoint) model.GeoPoint { return r.Location },
		limit), nil
}

type memRoutes struct {
	*memTable[model.Route]
}

func (tx *memTx) Routes() RouteTable {
	return memRoutes{&memTable[model.Route]{
		tx: tx, entity: model.EntityRoute, table: "routes", rows: tx.st.routes,
		id:    func(r model.Route) int64 { return r.ID },
		setID: func(r *model.Route, id int64) { r.ID = id },
		doc:   tx.routeDoc,
		copy:  copyRoute,
	}}
}

// Save writes the route and its points. A listed point that currently
// belongs to another route moves to this one.
func (t memRoutes) Save(ctx context.Context, r *model.Route) error {
	if err := t.tx.writable(); err != nil {
		return err
	}
	st := t.tx.st
	var old model.Route
	if r.ID != 0 {
		o, ok := st.routes[r.ID]
		if !ok {
			return ErrNotFound
		}
		old = o
	}
	if err := t.tx.checkRoute(*r); err != nil {
		return err
	}
	for _, p := range r.Points {
		if p.ID == 0 {
			continue
		}
		if _, ok := st.pointRoute[p.ID]; !ok {
			return ErrNotFound
		}
	}

	if r.ID == 0 {
		r.ID = st.nextID("routes")
	}
	listed := make(map[int64]struct{}, len(r.Points))
	for i := range r.Points {
		p := &r.Points[i]
		if p.ID == 0 {
			p.ID = st.nextID("route_points")
		} else if owner := st.pointRoute[p.ID]; owner != r.ID {
			t.tx.detach(owner, p.ID)
		}
		p.RouteID = r.ID
		listed[p.ID] = struct{}{}
	}
	for _, p := range old.Points {
		if _, ok := listed[p.ID]; !ok && st.pointRoute[p.ID] == r.ID {
			delete(st.pointRoute, p.ID)
		}
	}
	for _, p := range r.Points {
		st.pointRoute[p.ID] = r.ID
	}
	stored := copyRoute(*r)
	sort.SliceStable(stored.Points, func(i, j int) bool { return stored.Points[i].OrderNumber < stored.Points[j].OrderNumber })
	st.routes[r.ID] = stored
	return nil
}

func (t memRoutes) Delete(ctx context.Context, id int64) error {
	if err := t.tx.writable(); err != nil {
		return err
	}
	r, ok := t.rows[id]
	if !ok {
		return ErrNotFound
	}
	for _, p := range r.Points {
		delete(t.tx.st.pointRoute, p.ID)
	}
	delete(t.rows, id)
	return nil
}

func (t memRoutes) AverageMileage(ctx context.Context) (float64, error) {
	n := int64(len(t.rows))
	if n == 0 {
		return 0, nil
	}
	var sum int64 // thousandths of a km, the column scale
	for _, r := range t.rows {
		sum += int64(math.Round(r.MileageInKm * 1000))
	}
	return float64((2*sum+n)/(2*n)) / 1000, nil
}

func (t memRoutes) WithinPeriod(ctx context.Context, start, end time.Time) ([]model.Route, error) {
	return t.filter(func(r model.Route) bool {
		return !r.PlannedStartTime.Before(start) && !r.PlannedEndTime.After(end)
	}), nil
}

func (t memRoutes) ByRetailPoint(ctx context.Context, retailPointID int64) ([]model.Route, error) {
	return t.filter(func(r model.Route) bool {
		for _, p := range r.Points {
			if p.RetailPointID == retailPointID {
				return true
			}
		}
		return false
	}), nil
}

func (t memRoutes) filter(keep func(model.Route) bool) []model.Route {
	out := []model.Route{}
	for _, r := range t.rows {
		if keep(r) {
			out = append(out, copyRoute(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (tx *memTx) checkRoute(r model.Route) error {
	if r.VehicleID != 0 {
		if _, ok := tx.st.vehicles[r.VehicleID]; !ok {
			return violation("fk_routes_vehicle", "insert or update violates foreign key constraint")
		}
	}
	numbers := map[int]struct{}{}
	for _, p := range r.Points {
		if _, dup := numbers[p.OrderNumber]; dup {
			return violation("uk_route_points_route_order", "duplicate key value violates unique constraint")
		}
		numbers[p.OrderNumber] = struct{}{}
		if _, ok := tx.st.retailPoints[p.RetailPointID]; !ok {
			return violation("fk_route_points_retail_point", "insert or update violates foreign key constraint")
		}
		for _, oid := range p.OrderIDs {
			if _, ok := tx.st.orders[oid]; !ok {
				return violation("fk_route_point_orders_order", "insert or update violates foreign key constraint")
			}
		}
	}
	return nil
}

// detach removes a point from the stored copy of its current route.
func (tx *memTx) detach(routeID, pointID int64) {
	r, ok := tx.st.routes[routeID]
	if !ok {
		return
	}
	kept := make([]model.RoutePoint, 0, len(r.Points))
	for _, p := range r.Points {
		if p.ID != pointID {
			kept = append(kept, p)
		}
	}
	r.Points = kept
	tx.st.routes[routeID] = r
}

type memRoutePoints struct {
	*memTable[model.RoutePoint]
}

func (tx *memTx) RoutePoints() RoutePointReader {
	rows := make(map[int64]model.RoutePoint, len(tx.st.pointRoute))
	for _, r := range tx.st.routes {
		for _, p := range r.Points {
			rows[p.ID] = p
		}
	}
	return memRoutePoints{&memTable[model.RoutePoint]{
		tx: tx, entity: model.EntityRoutePoint, table: "route_points", rows: rows,
		id:   func(p model.RoutePoint) int64 { return p.ID },
		doc:  tx.routePointDoc,
		copy: copyRoutePoint,
	}}
}

func (t memRoutePoints) TopRetailPoints(ctx context.Context, limit int) ([]model.RetailPointVisits, error) {
	counts := map[int64]int64{}
	for _, p := range t.rows {
		counts[p.RetailPointID]++
	}
	out := make([]model.RetailPointVisits, 0, len(counts))
	for id, n := range counts {
		if rp, ok := t.tx.st.retailPoints[id]; ok {
			out = append(out, model.RetailPointVisits{RetailPoint: rp, Visits: n})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Visits != out[j].Visits {
			return out[i].Visits > out[j].Visits
		}
		return out[i].RetailPoint.ID < out[j].RetailPoint.ID
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyOrder(o model.Order) model.Order {
	if o.MinTemperature != nil {
		v := *o.MinTemperature
		o.MinTemperature = &v
	}
	if o.MaxTemperature != nil {
		v := *o.MaxTemperature
		o.MaxTemperature = &v
	}
	return o
}

func copyRoutePoint(p model.RoutePoint) model.RoutePoint {
	p.OrderIDs = append([]int64{}, p.OrderIDs...)
	return p
}

func copyRoute(r model.Route) model.Route {
	pts := make([]model.RoutePoint, len(r.Points))
	for i, p := range r.Points {
		pts[i] = copyRoutePoint(p)
	}
	r.Points = pts
	return r
}

// Filter documents. Reference and collection fields are lazy so that deep
// or cyclic paths such as routePoints.route.vehicle only build what they visit.

func lazyRef[T any](rows map[int64]T, id int64, doc func(T) query.Doc) query.Lazy {
	return func() any {
		v, ok := rows[id]
		if !ok {
			return nil
		}
		return doc(v)
	}
}

func (tx *memTx) driverDoc(d model.Driver) query.Doc {
	return query.Doc{
		"id":         d.ID,
		"firstName":  d.FirstName,
		"middleName": d.MiddleName,
		"lastName":   d.LastName,
		"passport":   d.Passport,
	}
}

func (tx *memTx) vehicleDoc(v model.Vehicle) query.Doc {
	return query.Doc{
		"id":                      v.ID,
		"driver":                  lazyRef(tx.st.drivers, v.DriverID, tx.driverDoc),
		"gosNumber":               v.GosNumber,
		"tonnageInTons":           v.TonnageInTons,
		"bodyHeightInMeters":      v.BodyHeightInMeters,
		"bodyWidthInMeters":       v.BodyWidthInMeters,
		"bodyLengthInCubicMeters": v.BodyLengthInCubicMeters,
	}
}

func (tx *memTx) orderDoc(o model.Order) query.Doc {
	return query.Doc{
		"id":                  o.ID,
		"goodsType":           o.GoodsType,
		"minTemperature":      o.MinTemperature,
		"maxTemperature":      o.MaxTemperature,
		"volumeInCubicMeters": o.VolumeInCubicMeters,
		"weightInKg":          o.WeightInKg,
	}
}

func (tx *memTx) retailPointDoc(r model.RetailPoint) query.Doc {
	return query.Doc{
		"id":       r.ID,
		"name":     r.Name,
		"address":  r.Address,
		"type":     string(r.Type),
		"timezone": r.Timezone,
	}
}

func (tx *memTx) routeDoc(r model.Route) query.Doc {
	d := query.Doc{
		"id":               r.ID,
		"creationTime":     r.CreationTime,
		"plannedStartTime": r.PlannedStartTime,
		"plannedEndTime":   r.PlannedEndTime,
		"mileageInKm":      r.MileageInKm,
		"vehicle":          nil,
		"routePoints": query.Lazy(func() any {
			docs := make([]query.Doc, len(r.Points))
			for i, p := range r.Points {
				docs[i] = tx.routePointDoc(p)
			}
			return docs
		}),
	}
	if r.VehicleID != 0 {
		d["vehicle"] = lazyRef(tx.st.vehicles, r.VehicleID, tx.vehicleDoc)
	}
	return d
}

func (tx *memTx) routePointDoc(p model.RoutePoint) query.Doc {
	return query.Doc{
		"id":               p.ID,
		"route":            lazyRef(tx.st.routes, p.RouteID, tx.routeDoc),
		"retailPoint":      lazyRef(tx.st.retailPoints, p.RetailPointID, tx.retailPointDoc),
		"operationType":    string(p.OperationType),
		"plannedStartTime": p.PlannedStartTime,
		"plannedEndTime":   p.PlannedEndTime,
		"orderNumber":      p.OrderNumber,
		"orders": query.Lazy(func() any {
			docs := make([]query.Doc, 0, len(p.OrderIDs))
			for _, id := range p.OrderIDs {
				if o, ok := tx.st.orders[id]; ok {
					docs = append(docs, tx.orderDoc(o))
				}
			}
			return docs
		}),
	}
}
