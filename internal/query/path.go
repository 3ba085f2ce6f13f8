package query

import "strings"

// Segment is one resolved step of a filter path.
type Segment struct {
	Owner string
	Field Field
}

// Path is a resolved filter key; the last segment is always a scalar.
type Path []Segment

func (p Path) String() string {
	names := make([]string, len(p))
	for i, s := range p {
		names[i] = s.Field.Name
	}
	return strings.Join(names, ".")
}

// Terminal is the scalar the path compares against.
func (p Path) Terminal() Field {
	if len(p) == 0 {
		return Field{}
	}
	return p[len(p)-1].Field
}

// HasCollection reports whether any step fans out over a collection.
func (p Path) HasCollection() bool {
	for _, s := range p {
		if s.Field.Kind == Collection {
			return true
		}
	}
	return false
}

// splitKey breaks a normalized key into segments, rewriting "<x>Id" to "x", "id".
func splitKey(key string) []string {
	raw := strings.Split(key, ".")
	parts := make([]string, 0, len(raw)+1)
	for _, p := range raw {
		if p != "id" && strings.HasSuffix(p, "Id") {
			parts = append(parts, strings.TrimSuffix(p, "Id"), "id")
			continue
		}
		parts = append(parts, p)
	}
	return parts
}

// Resolve maps a dotted key onto entity's schema. It fails when any segment is
// blank or unknown, when a scalar has trailing segments, or when the path
// ends on a reference or collection.
func (s *Schema) Resolve(entity, key string) (Path, bool) {
	cur, ok := s.entities[entity]
	if !ok || strings.TrimSpace(key) == "" {
		return nil, false
	}
	parts := splitKey(key)
	path := make(Path, 0, len(parts))
	for i, part := range parts {
		if part == "" {
			return nil, false
		}
		f, ok := cur.Field(part)
		if !ok {
			return nil, false
		}
		path = append(path, Segment{Owner: cur.Name, Field: f})
		last := i == len(parts)-1
		if f.Kind == Scalar {
			if !last {
				return nil, false
			}
			break
		}
		if last {
			return nil, false
		}
		cur = s.entities[f.Target]
	}
	return path, true
}
