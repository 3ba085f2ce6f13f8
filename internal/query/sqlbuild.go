package query

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"fleetops/internal/apperr"
)

// RootAlias is the table alias of the listed entity in generated SQL.
const RootAlias = "t0"

// Where renders p as a squirrel condition over RootAlias. Reference hops
// ending in "id" compare the foreign key column directly; every other
// reference or collection hop becomes an EXISTS subquery, so a parent
// matched through several children still appears once. Nil means no filter.
func (s *Schema) Where(p Predicate) (sq.Sqlizer, error) {
	if p.MatchAll() {
		return nil, nil
	}
	if _, ok := s.entities[p.Entity]; !ok {
		return nil, fmt.Errorf("query: unknown entity %q", p.Entity)
	}
	n := 0
	and := sq.And{}
	for _, c := range p.Clauses {
		cond, err := s.clauseSQL(RootAlias, c.Path, c.Value, &n)
		if err != nil {
			return nil, err
		}
		and = append(and, cond)
	}
	return and, nil
}

func (s *Schema) clauseSQL(alias string, path Path, value any, n *int) (sq.Sqlizer, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("query: empty path")
	}
	f := path[0].Field
	switch f.Kind {
	case Scalar:
		return sq.Eq{alias + "." + f.Column: value}, nil
	case Reference:
		if len(path) == 2 && path[1].Field.Name == "id" {
			return sq.Eq{alias + "." + f.Column: value}, nil
		}
	}
	target, ok := s.entities[f.Target]
	if !ok {
		return nil, fmt.Errorf("query: unknown entity %q", f.Target)
	}
	*n++
	sub := fmt.Sprintf("t%d", *n)
	inner, err := s.clauseSQL(sub, path[1:], value, n)
	if err != nil {
		return nil, err
	}
	q := sq.Select("1")
	switch {
	case f.Kind == Reference:
		q = q.From(target.Table + " " + sub).
			Where(fmt.Sprintf("%s.id = %s.%s", sub, alias, f.Column))
	case f.Join.Through != "":
		j := fmt.Sprintf("j%d", *n)
		q = q.From(f.Join.Through + " " + j).
			Join(fmt.Sprintf("%s %s ON %s.id = %s.%s", target.Table, sub, sub, j, f.Join.TargetKey)).
			Where(fmt.Sprintf("%s.%s = %s.id", j, f.Join.OwnerKey, alias))
	default:
		q = q.From(target.Table + " " + sub).
			Where(fmt.Sprintf("%s.%s = %s.id", sub, f.Join.ForeignKey, alias))
	}
	subSQL, args, err := q.Where(inner).ToSql()
	if err != nil {
		return nil, err
	}
	return sq.Expr("EXISTS ("+subSQL+")", args...), nil
}

// OrderBy renders spec as ORDER BY terms with an ascending id tie-break.
// An empty spec orders by id.
func (s *Schema) OrderBy(entity string, spec SortSpec) ([]string, error) {
	if err := s.CheckSort(entity, spec); err != nil {
		return nil, err
	}
	e := s.entities[entity]
	out := make([]string, 0, len(spec)+1)
	hasID := false
	for _, o := range spec {
		f, _ := e.Sortable(o.Field)
		dir := "ASC"
		if o.Direction == Desc {
			dir = "DESC"
		}
		out = append(out, fmt.Sprintf("%s.%s %s", RootAlias, f.Column, dir))
		if f.Name == "id" {
			hasID = true
		}
	}
	if !hasID {
		out = append(out, RootAlias+".id ASC")
	}
	return out, nil
}

// ListQuery builds the page select and the matching count over q. Columns are
// qualified with RootAlias by the caller.
func (s *Schema) ListQuery(b sq.StatementBuilderType, q Query, columns ...string) (sq.SelectBuilder, sq.SelectBuilder, error) {
	e, ok := s.entities[q.Filter.Entity]
	if !ok {
		return sq.SelectBuilder{}, sq.SelectBuilder{}, apperr.BadRequest("Unknown resource '%s'", q.Filter.Entity)
	}
	order, err := s.OrderBy(e.Name, q.Page.Sort)
	if err != nil {
		return sq.SelectBuilder{}, sq.SelectBuilder{}, err
	}
	where, err := s.Where(q.Filter)
	if err != nil {
		return sq.SelectBuilder{}, sq.SelectBuilder{}, err
	}
	from := e.Table + " " + RootAlias
	list := b.Select(columns...).From(from)
	countExpr := "COUNT(*)"
	if q.Filter.Distinct {
		list = list.Distinct()
		countExpr = "COUNT(DISTINCT " + RootAlias + ".id)"
	}
	count := b.Select(countExpr).From(from)
	if where != nil {
		list = list.Where(where)
		count = count.Where(where)
	}
	list = list.OrderBy(order...).Limit(q.Page.Limit()).Offset(q.Page.Offset())
	return list, count, nil
}
