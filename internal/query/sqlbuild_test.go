package query

import (
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

func TestWhereForeignKeyShorthand(t *testing.T) {
	s := testSchema()
	c := NewCompiler(s)
	where, err := s.Where(c.Compile("route", Params{{Key: "vehicleId", Value: "4"}}))
	require.NoError(t, err)
	sql, args, err := where.ToSql()
	require.NoError(t, err)
	assert.Equal(t, "(t0.vehicle_id = ?)", sql)
	assert.Equal(t, []any{int64(4)}, args)
}

func TestWhereMatchAllIsNil(t *testing.T) {
	s := testSchema()
	where, err := s.Where(Predicate{Entity: "route"})
	require.NoError(t, err)
	assert.Nil(t, where)
}

func TestListQueryCollectionUsesExists(t *testing.T) {
	s := testSchema()
	c := NewCompiler(s)
	q := Query{
		Filter: c.Compile("route", Params{{Key: "routePoints.operationType", Value: "VISIT"}}),
		Page:   NewPageBuilder(DefaultPageConfig()).Build(intp(1), intp(5), []string{"mileageInKm,desc"}),
	}
	list, count, err := s.ListQuery(psql, q, "t0.id", "t0.mileage_in_km")
	require.NoError(t, err)

	sql, args, err := list.ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "SELECT DISTINCT t0.id, t0.mileage_in_km FROM routes t0")
	assert.Contains(t, sql, "EXISTS (SELECT 1 FROM route_points t1 WHERE t1.route_id = t0.id AND t1.operation_type = $1)")
	assert.Contains(t, sql, "ORDER BY t0.mileage_in_km DESC, t0.id ASC LIMIT 5 OFFSET 5")
	assert.Equal(t, []any{"VISIT"}, args)

	sql, _, err = count.ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "SELECT COUNT(DISTINCT t0.id) FROM routes t0 WHERE")
}

func TestWhereNestedCollectionThroughJoinTable(t *testing.T) {
	s := testSchema()
	c := NewCompiler(s)
	where, err := s.Where(c.Compile("route", Params{{Key: "routePoints.orders.id", Value: "9"}}))
	require.NoError(t, err)
	sql, args, err := where.ToSql()
	require.NoError(t, err)
	assert.Equal(t,
		"(EXISTS (SELECT 1 FROM route_points t1 WHERE t1.route_id = t0.id AND "+
			"EXISTS (SELECT 1 FROM route_point_orders j2 JOIN orders t2 ON t2.id = j2.order_id "+
			"WHERE j2.route_point_id = t1.id AND t2.id = ?)))",
		sql)
	assert.Equal(t, []any{int64(9)}, args)
}

func TestWhereReferenceTraversal(t *testing.T) {
	s := testSchema()
	c := NewCompiler(s)
	where, err := s.Where(c.Compile("route", Params{{Key: "vehicle.driver.lastName", Value: "Ivanov"}}))
	require.NoError(t, err)
	sql, _, err := where.ToSql()
	require.NoError(t, err)
	assert.Equal(t,
		"(EXISTS (SELECT 1 FROM vehicles t1 WHERE t1.id = t0.vehicle_id AND "+
			"EXISTS (SELECT 1 FROM drivers t2 WHERE t2.id = t1.driver_id AND t2.last_name = ?)))",
		sql)
}

func TestListQueryRejectsBadSort(t *testing.T) {
	s := testSchema()
	_, _, err := s.ListQuery(psql, Query{
		Filter: Predicate{Entity: "route"},
		Page:   PageDescriptor{Size: 20, Sort: SortSpec{{Field: "routePoints"}}},
	}, "t0.id")
	assert.Error(t, err)
}
