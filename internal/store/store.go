// Package store persists the fleet entities. Memory backs tests and local
// runs without DATABASE_URL; Postgres backs everything else.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fleetops/internal/model"
	"fleetops/internal/query"
)

// ErrNotFound is returned when a row addressed by id does not exist.
var ErrNotFound = errors.New("not found")

// ErrReadOnly is returned by writes attempted inside View.
var ErrReadOnly = errors.New("read-only transaction")

// ConstraintError reports a rejected write: unique, foreign key, check or
// not-null violations.
type ConstraintError struct {
	Constraint string
	Message    string
	Err        error
}

func (e *ConstraintError) Error() string {
	if e.Constraint == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Constraint)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

// Store runs units of work. Every call made through the Tx passed to fn sees
// one consistent snapshot; Update commits only when fn returns nil.
type Store interface {
	View(ctx context.Context, fn func(Tx) error) error
	Update(ctx context.Context, fn func(Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the set of repositories available inside a unit of work.
type Tx interface {
	Drivers() Table[model.Driver]
	Vehicles() Table[model.Vehicle]
	Orders() Table[model.Order]
	RetailPoints() RetailPointTable
	Routes() RouteTable
	RoutePoints() RoutePointReader
}

// Reader is the read side of one entity.
type Reader[T any] interface {
	Get(ctx context.Context, id int64) (T, error)
	// ByIDs returns the rows that exist; missing ids are absent.
	ByIDs(ctx context.Context, ids []int64) (map[int64]T, error)
	List(ctx context.Context, q query.Query) (model.Page[T], error)
}

// Table is a Reader that also writes. Save inserts when the id is zero and
// assigns it, otherwise it updates or fails with ErrNotFound.
type Table[T any] interface {
	Reader[T]
	Save(ctx context.Context, v *T) error
	Delete(ctx context.Context, id int64) error
}

type RetailPointTable interface {
	Table[model.RetailPoint]
	// Nearest ranks the other retail points by great-circle distance from
	// origin, ties by id.
	Nearest(ctx context.Context, origin model.RetailPoint, limit int) ([]model.RetailPoint, error)
}

// RouteTable stores routes together with their points. Saving a route writes
// its whole point collection: new points get ids, points of this route that
// are no longer listed are deleted. Deleting a route deletes its points.
type RouteTable interface {
	Table[model.Route]
	AverageMileage(ctx context.Context) (float64, error)
	WithinPeriod(ctx context.Context, start, end time.Time) ([]model.Route, error)
	ByRetailPoint(ctx context.Context, retailPointID int64) ([]model.Route, error)
}

// RoutePointReader exposes route points outside their route. Writes go
// through RouteTable.Save.
type RoutePointReader interface {
	Reader[model.RoutePoint]
	TopRetailPoints(ctx context.Context, limit int) ([]model.RetailPointVisits, error)
}

// listPage assembles a page from a window and the unpaged total.
func listPage[T any](items []T, page query.PageDescriptor, total int64) model.Page[T] {
	return model.NewPage(items, page.Page, page.Size, total)
}
