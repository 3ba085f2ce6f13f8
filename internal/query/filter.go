package query

import (
	"net/url"
	"sort"
	"strings"
)

// Param is one raw key/value pair from a request.
type Param struct {
	Key   string
	Value string
}

// Params keeps request order so that "first occurrence wins" is well defined.
type Params []Param

// ParamsFromMap orders m by key.
func ParamsFromMap(m map[string]string) Params {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(Params, 0, len(keys))
	for _, k := range keys {
		out = append(out, Param{Key: k, Value: m[k]})
	}
	return out
}

// ParseParams splits a raw query string preserving order. Pairs that fail to
// unescape are skipped.
func ParseParams(rawQuery string) Params {
	var out Params
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			continue
		}
		val, err := url.QueryUnescape(v)
		if err != nil {
			continue
		}
		out = append(out, Param{Key: key, Value: val})
	}
	return out
}

// NormalizeKey rewrites bracket chains to dot notation and strips a leading
// "filter" segment. An empty result means the key is ignored.
func NormalizeKey(key string) string {
	s := strings.TrimSpace(key)
	if s == "" || s == "filter" {
		return ""
	}
	if first := strings.IndexByte(s, '['); first >= 0 {
		if last := strings.LastIndexByte(s, ']'); last > first {
			inner := strings.ReplaceAll(s[first+1:last], "][", ".")
			if head := s[:first]; head != "" {
				s = head + "." + inner
			} else {
				s = inner
			}
		}
	}
	parts := strings.Split(s, ".")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	s = strings.Join(parts, ".")
	return strings.TrimPrefix(s, "filter.")
}

func isReserved(key string) bool {
	return key == "" || key == "page" || key == "size" || strings.HasPrefix(key, "sort")
}

// Sanitize normalizes keys and drops reserved keys, blank values and later
// duplicates.
func Sanitize(params Params) Params {
	seen := map[string]struct{}{}
	out := make(Params, 0, len(params))
	for _, p := range params {
		key := NormalizeKey(p.Key)
		if isReserved(key) || strings.TrimSpace(p.Value) == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, Param{Key: key, Value: p.Value})
	}
	return out
}

// Clause is a single equality test.
type Clause struct {
	Path  Path
	Value any
}

// Predicate is a conjunction of clauses. No clauses means match everything.
type Predicate struct {
	Entity   string
	Clauses  []Clause
	Distinct bool
}

// MatchAll reports whether the predicate filters nothing.
func (p Predicate) MatchAll() bool { return len(p.Clauses) == 0 }

// Compiler turns raw filter parameters into predicates.
type Compiler struct {
	schema *Schema
	// OnDrop, when set, observes each parameter that did not become a clause.
	OnDrop func(entity, key string)
}

func NewCompiler(s *Schema) *Compiler {
	return &Compiler{schema: s}
}

// Schema returns the registry the compiler resolves against.
func (c *Compiler) Schema() *Schema { return c.schema }

// Compile never fails: unknown keys and uncoercible values are dropped.
func (c *Compiler) Compile(entity string, params Params) Predicate {
	pred := Predicate{Entity: entity}
	for _, p := range Sanitize(params) {
		path, ok := c.schema.Resolve(entity, p.Key)
		if !ok {
			c.drop(entity, p.Key)
			continue
		}
		v, ok := Coerce(path.Terminal(), p.Value)
		if !ok {
			c.drop(entity, p.Key)
			continue
		}
		pred.Clauses = append(pred.Clauses, Clause{Path: path, Value: v})
		if path.HasCollection() {
			pred.Distinct = true
		}
	}
	return pred
}

func (c *Compiler) drop(entity, key string) {
	if c.OnDrop != nil {
		c.OnDrop(entity, key)
	}
}
