// Package query compiles loosely typed list parameters (filters, sort tokens,
// page and size) into predicates and page descriptors over a static entity
// schema, and renders them for the storage backends.
package query

import (
	"fmt"
	"sort"
)

// Kind classifies a field for path navigation.
type Kind int

const (
	Scalar Kind = iota
	Reference
	Collection
)

func (k Kind) String() string {
	switch k {
	case Reference:
		return "reference"
	case Collection:
		return "collection"
	default:
		return "scalar"
	}
}

// ValueType is the semantic type of a scalar field.
type ValueType int

const (
	TypeNone ValueType = iota
	TypeString
	TypeInt
	TypeFloat
	TypeBool
	TypeTime
	TypeEnum
	TypeGeometry
)

// Join describes how a collection field reaches its elements. Either
// ForeignKey (element.fk = owner.id) or Through/OwnerKey/TargetKey for a
// many-to-many association table is set.
type Join struct {
	ForeignKey string
	Through    string
	OwnerKey   string
	TargetKey  string
}

// Field is one declared field of an entity.
type Field struct {
	Name   string
	Kind   Kind
	Type   ValueType
	Enum   []string
	Target string
	Column string
	Join   Join
}

// Attr declares a scalar field.
func Attr(name, column string, t ValueType) Field {
	return Field{Name: name, Kind: Scalar, Type: t, Column: column}
}

// EnumAttr declares an enum field with its exact constant names.
func EnumAttr(name, column string, values ...string) Field {
	return Field{Name: name, Kind: Scalar, Type: TypeEnum, Column: column, Enum: values}
}

// Ref declares a to-one reference stored as a foreign key column.
func Ref(name, column, target string) Field {
	return Field{Name: name, Kind: Reference, Target: target, Column: column}
}

// HasMany declares a collection whose elements point back with foreignKey.
func HasMany(name, target, foreignKey string) Field {
	return Field{Name: name, Kind: Collection, Target: target, Join: Join{ForeignKey: foreignKey}}
}

// ManyToMany declares a collection resolved through an association table.
func ManyToMany(name, target, through, ownerKey, targetKey string) Field {
	return Field{Name: name, Kind: Collection, Target: target, Join: Join{Through: through, OwnerKey: ownerKey, TargetKey: targetKey}}
}

// Entity is the static description of one resource type.
type Entity struct {
	Name   string
	Label  string
	Table  string
	fields map[string]Field
	order  []string
}

// NewEntity declares an entity. Every entity has an integer "id" field.
func NewEntity(name, label, table string, fields ...Field) *Entity {
	e := &Entity{Name: name, Label: label, Table: table, fields: map[string]Field{}}
	e.add(Attr("id", "id", TypeInt))
	for _, f := range fields {
		e.add(f)
	}
	return e
}

func (e *Entity) add(f Field) {
	if _, dup := e.fields[f.Name]; !dup {
		e.order = append(e.order, f.Name)
	}
	e.fields[f.Name] = f
}

// Field looks up a field by its exact name.
func (e *Entity) Field(name string) (Field, bool) {
	f, ok := e.fields[name]
	return f, ok
}

// Fields returns the fields in declaration order.
func (e *Entity) Fields() []Field {
	out := make([]Field, 0, len(e.order))
	for _, n := range e.order {
		out = append(out, e.fields[n])
	}
	return out
}

// Sortable reports whether name is a top-level scalar usable in ORDER BY.
func (e *Entity) Sortable(name string) (Field, bool) {
	f, ok := e.fields[name]
	if !ok || f.Kind != Scalar || f.Type == TypeGeometry {
		return Field{}, false
	}
	return f, true
}

// Schema is the registry of all entities.
type Schema struct {
	entities map[string]*Entity
}

// NewSchema builds a registry and checks that every reference and
// collection targets a declared entity.
func NewSchema(entities ...*Entity) (*Schema, error) {
	s := &Schema{entities: map[string]*Entity{}}
	for _, e := range entities {
		if _, dup := s.entities[e.Name]; dup {
			return nil, fmt.Errorf("duplicate entity %q", e.Name)
		}
		s.entities[e.Name] = e
	}
	for _, e := range entities {
		for _, f := range e.Fields() {
			if f.Kind == Scalar {
				continue
			}
			if _, ok := s.entities[f.Target]; !ok {
				return nil, fmt.Errorf("%s.%s targets unknown entity %q", e.Name, f.Name, f.Target)
			}
		}
	}
	return s, nil
}

// MustSchema is NewSchema for package-level declarations.
func MustSchema(entities ...*Entity) *Schema {
	s, err := NewSchema(entities...)
	if err != nil {
		panic(err)
	}
	return s
}

// Entity returns the entity registered under name.
func (s *Schema) Entity(name string) (*Entity, bool) {
	e, ok := s.entities[name]
	return e, ok
}

// Names lists registered entities, sorted.
func (s *Schema) Names() []string {
	out := make([]string, 0, len(s.entities))
	for n := range s.entities {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
