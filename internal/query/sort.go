package query

import (
	"strings"

	"fleetops/internal/apperr"
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Order is one (field, direction) pair.
type Order struct {
	Field     string
	Direction Direction
}

// SortSpec is an ordered list of sort keys; empty means storage default.
type SortSpec []Order

// Unsorted reports whether no explicit ordering was requested.
func (s SortSpec) Unsorted() bool { return len(s) == 0 }

func direction(tok string) (Direction, bool) {
	switch {
	case strings.EqualFold(tok, "asc"):
		return Asc, true
	case strings.EqualFold(tok, "desc"):
		return Desc, true
	}
	return "", false
}

// ParseSort reads repeated and comma-joined sort values. Tokens pair greedily
// left to right: a field takes the following token as its direction when that
// token is asc/desc, otherwise it sorts ascending. A direction with no field
// in front of it is dropped.
func ParseSort(values []string) SortSpec {
	var tokens []string
	for _, v := range values {
		for _, p := range strings.Split(v, ",") {
			if t := strings.TrimSpace(p); t != "" {
				tokens = append(tokens, t)
			}
		}
	}
	var spec SortSpec
	for i := 0; i < len(tokens); {
		field := tokens[i]
		if _, isDir := direction(field); isDir {
			i++
			continue
		}
		dir := Asc
		if i+1 < len(tokens) {
			if d, ok := direction(tokens[i+1]); ok {
				dir = d
				i += 2
				spec = append(spec, Order{Field: field, Direction: dir})
				continue
			}
		}
		i++
		spec = append(spec, Order{Field: field, Direction: dir})
	}
	return spec
}

// CheckSort rejects sort fields that are not top-level scalars of entity.
func (s *Schema) CheckSort(entity string, spec SortSpec) error {
	e, ok := s.entities[entity]
	if !ok {
		return apperr.BadRequest("Unknown resource '%s'", entity)
	}
	for _, o := range spec {
		if _, ok := e.Sortable(o.Field); !ok {
			return apperr.BadRequest("Cannot sort by '%s' for resource '%s'", o.Field, e.Label)
		}
	}
	return nil
}
