// Package schema holds the type dictionary: entity, association and scalar
// types arranged in a single-inheritance hierarchy.
package schema

import (
	"errors"
	"fmt"
	"sync"

	"github.com/agentic-research/trellis/api"
)

var (
	ErrInvalidType            = errors.New("invalid type declaration")
	ErrUnknownSuperType       = errors.New("unknown super type")
	ErrInheritanceCycle       = errors.New("inheritance cycle")
	ErrConflictingAssociation = errors.New("conflicting association declaration")
)

// Kind is the scalar kind of values stored under a type.
type Kind int

const (
	KindEntity Kind = iota
	KindString
	KindInteger
	KindFloat
	KindBoolean
	KindDateTime
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "STRING"
	case KindInteger:
		return "INTEGER"
	case KindFloat:
		return "FLOAT"
	case KindBoolean:
		return "BOOLEAN"
	case KindDateTime:
		return "DATETIME"
	default:
		return "ENTITY"
	}
}

// Numeric reports whether values of this kind are parsed as numbers on import.
func (k Kind) Numeric() bool {
	return k == KindInteger || k == KindFloat
}

// ParseKind maps a declared data type onto a Kind. An empty data type
// declares an entity type.
func ParseKind(dt api.DataType) (Kind, error) {
	switch dt {
	case "", api.Entity:
		return KindEntity, nil
	case api.String:
		return KindString, nil
	case api.Integer:
		return KindInteger, nil
	case api.Float:
		return KindFloat, nil
	case api.Boolean:
		return KindBoolean, nil
	case api.DateTime:
		return KindDateTime, nil
	}
	return KindEntity, fmt.Errorf("%w: data type %q", ErrInvalidType, dt)
}

// Type is one entry of the dictionary.
type Type struct {
	URI           string
	Name          string
	Kind          Kind
	IsAssociation bool
	SuperTypeURI  string
	InverseURI    string

	super    *Type
	subTypes []*Type
}

// Unknown is returned by Dictionary.Type for URIs that were never declared.
// Callers compare against it (or call IsUnknown) before relying on the type.
var Unknown = &Type{Name: "unknown", Kind: KindString}

// IsUnknown reports whether t is the Unknown sentinel.
func (t *Type) IsUnknown() bool {
	return t == nil || t == Unknown
}

// SuperType returns the resolved super type, or nil for a root type.
func (t *Type) SuperType() *Type {
	return t.super
}

// SubTypes returns the direct sub types populated by ResolveSuperTypes.
func (t *Type) SubTypes() []*Type {
	return t.subTypes
}

// IsOfType walks the inheritance chain upward and reports whether uri names
// t itself or one of its ancestors.
func (t *Type) IsOfType(uri string) bool {
	if t.IsUnknown() {
		return false
	}
	for cur := t; cur != nil; cur = cur.super {
		if cur.URI == uri {
			return true
		}
	}
	return false
}

// Descendants returns t followed by all of its transitive sub types,
// breadth first in declaration order.
func (t *Type) Descendants() []*Type {
	out := []*Type{t}
	for i := 0; i < len(out); i++ {
		out = append(out, out[i].subTypes...)
	}
	return out
}

// Dictionary is the schema of a graph.
type Dictionary struct {
	mu       sync.RWMutex
	types    map[string]*Type
	order    []string
	resolved bool
}

func NewDictionary() *Dictionary {
	return &Dictionary{types: make(map[string]*Type)}
}

// CreateType registers a type. Re-registering a URI replaces the previous
// declaration, except that a URI declared as an association on either side
// may not change its data type. Super-type links are only resolved by
// ResolveSuperTypes.
func (d *Dictionary) CreateType(decl api.TypeDecl) (*Type, error) {
	if decl.URI == "" {
		return nil, fmt.Errorf("%w: empty uri", ErrInvalidType)
	}
	kind, err := ParseKind(decl.DataType)
	if err != nil {
		return nil, fmt.Errorf("type %s: %w", decl.URI, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	prev, exists := d.types[decl.URI]
	if exists && (prev.IsAssociation || decl.IsAssociation) && prev.Kind != kind {
		return nil, fmt.Errorf("%w: %s declared as %s and %s", ErrConflictingAssociation, decl.URI, prev.Kind, kind)
	}

	name := decl.Name
	if name == "" {
		name = decl.URI
	}
	t := &Type{
		URI:           decl.URI,
		Name:          name,
		Kind:          kind,
		IsAssociation: decl.IsAssociation,
		SuperTypeURI:  decl.SubClassOf,
		InverseURI:    decl.InverseType,
	}
	if !exists {
		d.order = append(d.order, decl.URI)
	}
	d.types[decl.URI] = t
	d.resolved = false
	return t, nil
}

// Type returns the type registered under uri or Unknown.
func (d *Dictionary) Type(uri string) *Type {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if t, ok := d.types[uri]; ok {
		return t
	}
	return Unknown
}

// Lookup is Type with an explicit presence flag.
func (d *Dictionary) Lookup(uri string) (*Type, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.types[uri]
	return t, ok
}

// Types returns all types in declaration order.
func (d *Dictionary) Types() []*Type {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Type, 0, len(d.order))
	for _, uri := range d.order {
		out = append(out, d.types[uri])
	}
	return out
}

// Len returns the number of registered types.
func (d *Dictionary) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.types)
}

// Resolved reports whether ResolveSuperTypes has run since the last CreateType.
func (d *Dictionary) Resolved() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.resolved
}

// ResolveSuperTypes links every type to its declared super type and
// populates the sub type back-links. It runs after all types are created
// and fails if a super type is missing or the links form a cycle.
func (d *Dictionary) ResolveSuperTypes() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.unlink()
	for _, uri := range d.order {
		t := d.types[uri]
		if t.SuperTypeURI == "" {
			continue
		}
		st, ok := d.types[t.SuperTypeURI]
		if !ok {
			d.unlink()
			return fmt.Errorf("%w: %s subClassOf %s", ErrUnknownSuperType, t.URI, t.SuperTypeURI)
		}
		t.super = st
		st.subTypes = append(st.subTypes, t)
	}

	// Walking at most len(types) links upward must reach a root.
	for _, t := range d.types {
		steps := 0
		for cur := t.super; cur != nil; cur = cur.super {
			steps++
			if steps > len(d.types) {
				d.unlink()
				return fmt.Errorf("%w: through %s", ErrInheritanceCycle, t.URI)
			}
		}
	}
	d.resolved = true
	return nil
}

// unlink drops all resolved hierarchy links. Must be called with d.mu held.
func (d *Dictionary) unlink() {
	for _, t := range d.types {
		t.super = nil
		t.subTypes = nil
	}
}
