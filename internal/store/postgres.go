package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"fleetops/internal/model"
	"fleetops/internal/query"
)

//go:embed schema.sql
var schemaSQL string

// Postgres stores entities through database/sql with the pgx driver. SQL is
// built with squirrel; filters come from model.Schema.
type Postgres struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewPostgresDB(db), nil
}

// NewPostgresDB wraps an open handle.
func NewPostgresDB(db *sql.DB) *Postgres {
	return &Postgres{db: db, sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

// Migrate applies schema.sql. It is safe to run on every start.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schemaSQL)
	return err
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) View(ctx context.Context, fn func(Tx) error) error {
	return p.run(ctx, &sql.TxOptions{ReadOnly: true}, fn)
}

func (p *Postgres) Update(ctx context.Context, fn func(Tx) error) error {
	return p.run(ctx, nil, fn)
}

func (p *Postgres) run(ctx context.Context, opts *sql.TxOptions, fn func(Tx) error) error {
	tx, err := p.db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(&pgTx{tx: tx, sb: p.sb}); err != nil {
		return err
	}
	// deferred constraints are checked here
	return dbErr(tx.Commit())
}

// dbErr maps driver errors onto the store's error values.
func dbErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pg *pgconn.PgError
	if errors.As(err, &pg) && strings.HasPrefix(pg.Code, "23") {
		return &ConstraintError{Constraint: pg.ConstraintName, Message: pg.Message, Err: err}
	}
	return err
}

type pgTx struct {
	tx *sql.Tx
	sb sq.StatementBuilderType
}

type scanner interface {
	Scan(dest ...any) error
}

func (tx *pgTx) queryRow(ctx context.Context, b sq.Sqlizer) (*sql.Row, error) {
	q, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return tx.tx.QueryRowContext(ctx, q, args...), nil
}

func (tx *pgTx) query(ctx context.Context, b sq.Sqlizer) (*sql.Rows, error) {
	q, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := tx.tx.QueryContext(ctx, q, args...)
	return rows, dbErr(err)
}

func (tx *pgTx) exec(ctx context.Context, b sq.Sqlizer) (int64, error) {
	q, args, err := b.ToSql()
	if err != nil {
		return 0, err
	}
	res, err := tx.tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, dbErr(err)
	}
	return res.RowsAffected()
}

func qualify(cols []string) []string {
	out := make([]string, 0, len(cols)+1)
	out = append(out, query.RootAlias+".id")
	for _, c := range cols {
		out = append(out, query.RootAlias+"."+c)
	}
	return out
}

// pgTable implements Table for one table. Columns exclude id; scan reads id
// followed by the columns.
type pgTable[T any] struct {
	tx     *pgTx
	entity string
	table  string
	cols   []string
	scan   func(scanner) (T, error)
	values func(T) []any
	id     func(T) int64
	setID  func(*T, int64)
	// load fills owned collections after a read
	load func(ctx context.Context, items []T) error
}

func (t *pgTable[T]) selectAll() sq.SelectBuilder {
	return t.tx.sb.Select(qualify(t.cols)...).From(t.table + " " + query.RootAlias)
}

func (t *pgTable[T]) collect(ctx context.Context, b sq.Sqlizer) ([]T, error) {
	rows, err := t.tx.query(ctx, b)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []T{}
	for rows.Next() {
		v, err := t.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr(err)
	}
	if t.load != nil && len(out) > 0 {
		if err := t.load(ctx, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (t *pgTable[T]) Get(ctx context.Context, id int64) (T, error) {
	var zero T
	items, err := t.collect(ctx, t.selectAll().Where(sq.Eq{query.RootAlias + ".id": id}))
	if err != nil {
		return zero, err
	}
	if len(items) == 0 {
		return zero, ErrNotFound
	}
	return items[0], nil
}

func (t *pgTable[T]) ByIDs(ctx context.Context, ids []int64) (map[int64]T, error) {
	out := make(map[int64]T, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	items, err := t.collect(ctx, t.selectAll().Where(sq.Eq{query.RootAlias + ".id": ids}))
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		out[t.id(it)] = it
	}
	return out, nil
}

func (t *pgTable[T]) List(ctx context.Context, q query.Query) (model.Page[T], error) {
	q.Filter.Entity = t.entity
	list, count, err := model.Schema.ListQuery(t.tx.sb, q, qualify(t.cols)...)
	if err != nil {
		return model.Page[T]{}, err
	}
	row, err := t.tx.queryRow(ctx, count)
	if err != nil {
		return model.Page[T]{}, err
	}
	var total int64
	if err := row.Scan(&total); err != nil {
		return model.Page[T]{}, dbErr(err)
	}
	items, err := t.collect(ctx, list)
	if err != nil {
		return model.Page[T]{}, err
	}
	return listPage(items, q.Page, total), nil
}

func (t *pgTable[T]) Save(ctx context.Context, v *T) error {
	vals := t.values(*v)
	if t.id(*v) == 0 {
		row, err := t.tx.queryRow(ctx, t.tx.sb.Insert(t.table).Columns(t.cols...).Values(vals...).Suffix("RETURNING id"))
		if err != nil {
			return err
		}
		var id int64
		if err := row.Scan(&id); err != nil {
			return dbErr(err)
		}
		t.setID(v, id)
		return nil
	}
	u := t.tx.sb.Update(t.table)
	for i, c := range t.cols {
		u = u.Set(c, vals[i])
	}
	n, err := t.tx.exec(ctx, u.Where(sq.Eq{"id": t.id(*v)}))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTable[T]) Delete(ctx context.Context, id int64) error {
	n, err := t.tx.exec(ctx, t.tx.sb.Delete(t.table).Where(sq.Eq{"id": id}))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func (tx *pgTx) Drivers() Table[model.Driver] {
	return &pgTable[model.Driver]{
		tx: tx, entity: model.EntityDriver, table: "drivers",
		cols: []string{"first_name", "middle_name", "last_name", "passport"},
		scan: func(s scanner) (model.Driver, error) {
			var d model.Driver
			err := s.Scan(&d.ID, &d.FirstName, &d.MiddleName, &d.LastName, &d.Passport)
			return d, err
		},
		values: func(d model.Driver) []any { return []any{d.FirstName, d.MiddleName, d.LastName, d.Passport} },
		id:     func(d model.Driver) int64 { return d.ID },
		setID:  func(d *model.Driver, id int64) { d.ID = id },
	}
}

func (tx *pgTx) Vehicles() Table[model.Vehicle] {
	return &pgTable[model.Vehicle]{
		tx: tx, entity: model.EntityVehicle, table: "vehicles",
		cols: []string{"driver_id", "gos_number", "tonnage_in_tons", "body_height_in_meters", "body_width_in_meters", "body_length_in_cubic_meters"},
		scan: func(s scanner) (model.Vehicle, error) {
			var v model.Vehicle
			err := s.Scan(&v.ID, &v.DriverID, &v.GosNumber, &v.TonnageInTons, &v.BodyHeightInMeters, &v.BodyWidthInMeters, &v.BodyLengthInCubicMeters)
			return v, err
		},
		values: func(v model.Vehicle) []any {
			return []any{v.DriverID, v.GosNumber, v.TonnageInTons, v.BodyHeightInMeters, v.BodyWidthInMeters, v.BodyLengthInCubicMeters}
		},
		id:    func(v model.Vehicle) int64 { return v.ID },
		setID: func(v *model.Vehicle, id int64) { v.ID = id },
	}
}

func (tx *pgTx) Orders() Table[model.Order] {
	return &pgTable[model.Order]{
		tx: tx, entity: model.EntityOrder, table: "orders",
		cols: []string{"goods_type", "min_temperature", "max_temperature", "volume_in_cubic_meters", "weight_in_kg"},
		scan: func(s scanner) (model.Order, error) {
			var o model.Order
			err := s.Scan(&o.ID, &o.GoodsType, &o.MinTemperature, &o.MaxTemperature, &o.VolumeInCubicMeters, &o.WeightInKg)
			return o, err
		},
		values: func(o model.Order) []any {
			return []any{o.GoodsType, o.MinTemperature, o.MaxTemperature, o.VolumeInCubicMeters, o.WeightInKg}
		},
		id:    func(o model.Order) int64 { return o.ID },
		setID: func(o *model.Order, id int64) { o.ID = id },
	}
}

var retailPointCols = []string{"name", "address", "latitude", "longitude", "type", "timezone"}

func scanRetailPoint(s scanner) (model.RetailPoint, error) {
	var r model.RetailPoint
	var typ string
	err := s.Scan(&r.ID, &r.Name, &r.Address, &r.Location.Lat, &r.Location.Lng, &typ, &r.Timezone)
	r.Type = model.PointType(typ)
	return r, err
}

type pgRetailPoints struct {
	*pgTable[model.RetailPoint]
}

func (tx *pgTx) RetailPoints() RetailPointTable {
	return pgRetailPoints{&pgTable[model.RetailPoint]{
		tx: tx, entity: model.EntityRetailPoint, table: "retail_points",
		cols: retailPointCols,
		scan: scanRetailPoint,
		values: func(r model.RetailPoint) []any {
			return []any{r.Name, r.Address, r.Location.Lat, r.Location.Lng, string(r.Type), r.Timezone}
		},
		id:    func(r model.RetailPoint) int64 { return r.ID },
		setID: func(r *model.RetailPoint, id int64) { r.ID = id },
	}}
}

func (t pgRetailPoints) Nearest(ctx context.Context, origin model.RetailPoint, limit int) ([]model.RetailPoint, error) {
	q := t.selectAll().
		Where(sq.NotEq{query.RootAlias + ".id": origin.ID}).
		OrderByClause("haversine_m(?, ?, t0.latitude, t0.longitude) ASC, t0.id ASC", origin.Location.Lat, origin.Location.Lng).
		Limit(uint64(limit))
	return t.collect(ctx, q)
}

var routePointCols = []string{"route_id", "retail_point_id", "operation_type", "planned_start_time", "planned_end_time", "order_number"}

func scanRoutePoint(s scanner) (model.RoutePoint, error) {
	var p model.RoutePoint
	var op string
	err := s.Scan(&p.ID, &p.RouteID, &p.RetailPointID, &op, &p.PlannedStartTime, &p.PlannedEndTime, &p.OrderNumber)
	p.OperationType = model.OperationType(op)
	p.PlannedStartTime = p.PlannedStartTime.UTC()
	p.PlannedEndTime = p.PlannedEndTime.UTC()
	p.OrderIDs = []int64{}
	return p, err
}

func (tx *pgTx) pointTable() *pgTable[model.RoutePoint] {
	return &pgTable[model.RoutePoint]{
		tx: tx, entity: model.EntityRoutePoint, table: "route_points",
		cols: routePointCols,
		scan: scanRoutePoint,
		values: func(p model.RoutePoint) []any {
			return []any{p.RouteID, p.RetailPointID, string(p.OperationType), p.PlannedStartTime, p.PlannedEndTime, p.OrderNumber}
		},
		id:    func(p model.RoutePoint) int64 { return p.ID },
		setID: func(p *model.RoutePoint, id int64) { p.ID = id },
		load:  tx.loadOrders,
	}
}

// loadOrders fills OrderIDs, ascending, for every point in one query.
func (tx *pgTx) loadOrders(ctx context.Context, points []model.RoutePoint) error {
	ids := make([]int64, len(points))
	at := make(map[int64]int, len(points))
	for i, p := range points {
		ids[i] = p.ID
		at[p.ID] = i
	}
	rows, err := tx.query(ctx, tx.sb.Select("route_point_id", "order_id").
		From("route_point_orders").
		Where(sq.Eq{"route_point_id": ids}).
		OrderBy("route_point_id", "order_id"))
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var pid, oid int64
		if err := rows.Scan(&pid, &oid); err != nil {
			return err
		}
		if i, ok := at[pid]; ok {
			points[i].OrderIDs = append(points[i].OrderIDs, oid)
		}
	}
	return dbErr(rows.Err())
}

type pgRoutePoints struct {
	*pgTable[model.RoutePoint]
}

func (tx *pgTx) RoutePoints() RoutePointReader {
	return pgRoutePoints{tx.pointTable()}
}

// extraScanner appends trailing destinations to every Scan.
type extraScanner struct {
	scanner
	extra []any
}

func (s extraScanner) Scan(dest ...any) error {
	return s.scanner.Scan(append(dest, s.extra...)...)
}

func (t pgRoutePoints) TopRetailPoints(ctx context.Context, limit int) ([]model.RetailPointVisits, error) {
	rows, err := t.tx.query(ctx, t.tx.sb.Select(append(qualify(retailPointCols), "COUNT(*) AS visits")...).
		From("route_points p").
		Join("retail_points t0 ON t0.id = p.retail_point_id").
		GroupBy("t0.id").
		OrderBy("visits DESC", "t0.id ASC").
		Limit(uint64(limit)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.RetailPointVisits{}
	for rows.Next() {
		var visits int64
		rp, err := scanRetailPoint(extraScanner{rows, []any{&visits}})
		if err != nil {
			return nil, err
		}
		out = append(out, model.RetailPointVisits{RetailPoint: rp, Visits: visits})
	}
	return out, dbErr(rows.Err())
}

type pgRoutes struct {
	*pgTable[model.Route]
}

func (tx *pgTx) Routes() RouteTable {
	return pgRoutes{&pgTable[model.Route]{
		tx: tx, entity: model.EntityRoute, table: "routes",
		cols: []string{"vehicle_id", "creation_time", "planned_start_time", "planned_end_time", "mileage_in_km"},
		scan: func(s scanner) (model.Route, error) {
			var r model.Route
			var vehicle sql.NullInt64
			err := s.Scan(&r.ID, &vehicle, &r.CreationTime, &r.PlannedStartTime, &r.PlannedEndTime, &r.MileageInKm)
			r.VehicleID = vehicle.Int64
			r.CreationTime = r.CreationTime.UTC()
			r.PlannedStartTime = r.PlannedStartTime.UTC()
			r.PlannedEndTime = r.PlannedEndTime.UTC()
			r.Points = []model.RoutePoint{}
			return r, err
		},
		values: func(r model.Route) []any {
			return []any{nullableID(r.VehicleID), r.CreationTime, r.PlannedStartTime, r.PlannedEndTime, r.MileageInKm}
		},
		id:    func(r model.Route) int64 { return r.ID },
		setID: func(r *model.Route, id int64) { r.ID = id },
		load:  tx.loadPoints,
	}}
}

// loadPoints fills Points, by order number, for every route.
func (tx *pgTx) loadPoints(ctx context.Context, routes []model.Route) error {
	ids := make([]int64, len(routes))
	at := make(map[int64]int, len(routes))
	for i, r := range routes {
		ids[i] = r.ID
		at[r.ID] = i
	}
	pt := tx.pointTable()
	points, err := pt.collect(ctx, pt.selectAll().
		Where(sq.Eq{query.RootAlias + ".route_id": ids}).
		OrderBy(query.RootAlias+".route_id", query.RootAlias+".order_number"))
	if err != nil {
		return err
	}
	for _, p := range points {
		if i, ok := at[p.RouteID]; ok {
			routes[i].Points = append(routes[i].Points, p)
		}
	}
	return nil
}

// Save writes the route row, then its points and their order links. Points
// of this route missing from r.Points are deleted; listed points owned by
// another route are moved here.
func (t pgRoutes) Save(ctx context.Context, r *model.Route) error {
	if err := t.pgTable.Save(ctx, r); err != nil {
		return err
	}
	pt := t.tx.pointTable()
	keep := make([]int64, 0, len(r.Points))
	for i := range r.Points {
		p := &r.Points[i]
		p.RouteID = r.ID
		if err := pt.Save(ctx, p); err != nil {
			return err
		}
		keep = append(keep, p.ID)
		if err := t.tx.linkOrders(ctx, p.ID, p.OrderIDs); err != nil {
			return err
		}
	}
	del := t.tx.sb.Delete("route_points").Where(sq.Eq{"route_id": r.ID})
	if len(keep) > 0 {
		del = del.Where(sq.NotEq{"id": keep})
	}
	_, err := t.tx.exec(ctx, del)
	return err
}

func (tx *pgTx) linkOrders(ctx context.Context, pointID int64, orderIDs []int64) error {
	if _, err := tx.exec(ctx, tx.sb.Delete("route_point_orders").Where(sq.Eq{"route_point_id": pointID})); err != nil {
		return err
	}
	if len(orderIDs) == 0 {
		return nil
	}
	ins := tx.sb.Insert("route_point_orders").Columns("route_point_id", "order_id")
	for _, oid := range orderIDs {
		ins = ins.Values(pointID, oid)
	}
	_, err := tx.exec(ctx, ins)
	return err
}

func (t pgRoutes) AverageMileage(ctx context.Context) (float64, error) {
	row, err := t.tx.queryRow(ctx, t.tx.sb.Select("COALESCE(ROUND(AVG(mileage_in_km), 3), 0)::float8").From("routes"))
	if err != nil {
		return 0, err
	}
	var avg float64
	if err := row.Scan(&avg); err != nil {
		return 0, dbErr(err)
	}
	return avg, nil
}

func (t pgRoutes) WithinPeriod(ctx context.Context, start, end time.Time) ([]model.Route, error) {
	return t.collect(ctx, t.selectAll().
		Where(sq.GtOrEq{"t0.planned_start_time": start}).
		Where(sq.LtOrEq{"t0.planned_end_time": end}).
		OrderBy("t0.id ASC"))
}

func (t pgRoutes) ByRetailPoint(ctx context.Context, retailPointID int64) ([]model.Route, error) {
	return t.collect(ctx, t.selectAll().
		Where(sq.Expr("EXISTS (SELECT 1 FROM route_points p WHERE p.route_id = t0.id AND p.retail_point_id = ?)", retailPointID)).
		OrderBy("t0.id ASC"))
}
