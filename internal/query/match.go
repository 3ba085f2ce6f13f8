package query

import (
	"sort"
	"strings"
	"time"
)

// Doc is an in-memory view of an entity for predicate evaluation: scalars
// under their field names, references as Doc (or nil), collections as []Doc.
// A reference or collection may also be a Lazy that produces one on demand.
type Doc map[string]any

// Lazy defers building a nested Doc or []Doc until a path visits it.
type Lazy func() any

func (d Doc) get(name string) any {
	v := d[name]
	if l, ok := v.(Lazy); ok {
		return l()
	}
	return v
}

// Match evaluates p against d. Collection hops match when any element does.
func Match(p Predicate, d Doc) bool {
	for _, c := range p.Clauses {
		if !matchPath(c.Path, d, c.Value) {
			return false
		}
	}
	return true
}

func matchPath(path Path, d Doc, want any) bool {
	if len(path) == 0 || d == nil {
		return false
	}
	f := path[0].Field
	switch f.Kind {
	case Scalar:
		return equal(d[f.Name], want)
	case Reference:
		sub, _ := d.get(f.Name).(Doc)
		return matchPath(path[1:], sub, want)
	default:
		items, _ := d.get(f.Name).([]Doc)
		for _, it := range items {
			if matchPath(path[1:], it, want) {
				return true
			}
		}
		return false
	}
}

func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	case *string:
		if x == nil {
			return nil
		}
		return *x
	case *int:
		if x == nil {
			return nil
		}
		return int64(*x)
	case *int64:
		if x == nil {
			return nil
		}
		return *x
	case *float64:
		if x == nil {
			return nil
		}
		return *x
	case *time.Time:
		if x == nil {
			return nil
		}
		return *x
	}
	return v
}

func equal(a, b any) bool {
	a, b = normalize(a), normalize(b)
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	if a == nil || b == nil {
		return false
	}
	return a == b
}

// compare orders two scalar values; nil sorts after everything, as Postgres
// does for ascending order.
func compare(a, b any) int {
	a, b = normalize(a), normalize(b)
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	switch x := a.(type) {
	case int64:
		if y, ok := b.(int64); ok {
			return cmp3(x < y, x > y)
		}
	case float64:
		if y, ok := b.(float64); ok {
			return cmp3(x < y, x > y)
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			return cmp3(!x && y, x && !y)
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	}
	return 0
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}

// Less orders a before b by spec with an ascending id tie-break.
func Less(a, b Doc, spec SortSpec) bool {
	for _, o := range spec {
		c := compare(a[o.Field], b[o.Field])
		if o.Direction == Desc {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
	}
	return compare(a["id"], b["id"]) < 0
}

// SortDocs orders docs with Less.
func SortDocs(docs []Doc, spec SortSpec) {
	sort.SliceStable(docs, func(i, j int) bool { return Less(docs[i], docs[j], spec) })
}

// Window returns the [lo, hi) slice bounds of page within n items.
func Window(n int, page PageDescriptor) (int, int) {
	lo := page.Page * page.Size
	if lo > n {
		lo = n
	}
	hi := lo + page.Size
	if hi > n {
		hi = n
	}
	return lo, hi
}
