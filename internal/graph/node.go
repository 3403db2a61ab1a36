package graph

import (
	"sort"

	"github.com/RoaringBitmap/roaring"
	"github.com/agentic-research/trellis/internal/schema"
)

// Reserved attribute names resolvable on every node.
const (
	PropID   = "id"
	PropType = "type"
	PropKey  = "key"
	// PropName is the designated display-name property.
	PropName = "name"
)

// UniqueKey folds a (type, uri) pair into the store-wide identity key.
// Untyped forward references use an empty type.
func UniqueKey(typeURI, uri string) string {
	return typeURI + "|" + uri
}

// Node is a typed graph entity. Canonical nodes are owned by a Store;
// contextual nodes overlay a canonical original and are never indexed.
type Node struct {
	id    uint32
	uri   string
	typ   *schema.Type
	props map[string]Value
	// refs indexes the reference lists this node appends to in place. A
	// property without an entry may share its slice and is copied first.
	refs map[string]*roaring.Bitmap

	// original is set on contextual nodes only.
	original *Node
}

func newNode(id uint32, uri string, typ *schema.Type) *Node {
	return &Node{id: id, uri: uri, typ: typ, props: make(map[string]Value)}
}

// ID is the store-internal numeric identity. Contextual nodes share the ID
// of their original.
func (n *Node) ID() uint32 {
	return n.Original().id
}

// URI is the local identifier within the node's type.
func (n *Node) URI() string {
	return n.Original().uri
}

// Type returns the node's type, or schema.Unknown for forward references.
func (n *Node) Type() *schema.Type {
	if t := n.Original().typ; t != nil {
		return t
	}
	return schema.Unknown
}

// TypeURI is the URI of the node's type, empty while pending.
func (n *Node) TypeURI() string {
	if t := n.Original().typ; t != nil {
		return t.URI
	}
	return ""
}

// Key is the unique key of the (type, uri) pair.
func (n *Node) Key() string {
	return UniqueKey(n.TypeURI(), n.URI())
}

// IsPending reports whether the node was referenced but never typed.
func (n *Node) IsPending() bool {
	return n.Original().typ == nil
}

// IsContextual reports whether n is an overlay of another node.
func (n *Node) IsContextual() bool {
	return n.original != nil
}

// Original returns the canonical node behind a contextual node, or n itself.
func (n *Node) Original() *Node {
	if n.original != nil {
		return n.original
	}
	return n
}

// Get resolves a property. Reserved attributes come first, then the node's
// own values, then (for contextual nodes) the original's.
func (n *Node) Get(prop string) Value {
	switch prop {
	case PropID:
		return ScalarValue(n.URI())
	case PropType:
		if n.IsPending() {
			return Value{}
		}
		return ScalarValue(n.TypeURI())
	case PropKey:
		return ScalarValue(n.Key())
	}
	if v, ok := n.props[prop]; ok {
		return v
	}
	if n.original != nil {
		return n.original.Get(prop)
	}
	return Value{}
}

// Set stores v under prop. An absent v deletes the property.
func (n *Node) Set(prop string, v Value) {
	delete(n.refs, prop)
	if v.IsAbsent() {
		delete(n.props, prop)
		return
	}
	n.props[prop] = v
}

// SetScalar stores a scalar value.
func (n *Node) SetScalar(prop string, x any) {
	n.Set(prop, ScalarValue(x))
}

// SetNodes stores a bulk reference list without adding inverse edges.
func (n *Node) SetNodes(prop string, nodes []*Node) {
	n.Set(prop, ListValue(nodes))
}

// AddRef appends target under prop with multiplicity promotion: absent
// becomes One, a second distinct target promotes to Many, a target already
// present by ID is ignored and a scalar is replaced. It does not add the
// inverse edge; use Store.Associate for that.
func (n *Node) AddRef(prop string, target *Node) {
	if target == nil {
		return
	}
	idx, owned := n.refs[prop]
	var nodes []*Node
	if owned {
		nodes = n.props[prop].nodes
	} else {
		nodes = n.Get(prop).Nodes()
		idx = roaring.New()
		for _, r := range nodes {
			idx.Add(r.ID())
		}
		// Adopt a list this node already holds so repeated duplicates
		// stay cheap. Inherited lists are only copied on a real change.
		if _, own := n.props[prop]; own {
			n.ownRefs(prop, idx, nodes)
		}
	}
	if !idx.CheckedAdd(target.ID()) {
		return
	}
	n.ownRefs(prop, idx, append(nodes, target))
}

func (n *Node) ownRefs(prop string, idx *roaring.Bitmap, nodes []*Node) {
	if n.refs == nil {
		n.refs = make(map[string]*roaring.Bitmap)
	}
	n.refs[prop] = idx
	if len(nodes) > 0 {
		n.props[prop] = refsValue(nodes)
	}
}

// Properties lists the names of all set properties, sorted.
func (n *Node) Properties() []string {
	seen := make(map[string]struct{}, len(n.props))
	for k := range n.props {
		seen[k] = struct{}{}
	}
	if n.original != nil {
		for k := range n.original.props {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Overrides returns a copy of the values set directly on n. For a contextual
// node these are the values layered over the original.
func (n *Node) Overrides() map[string]Value {
	out := make(map[string]Value, len(n.props))
	for k, v := range n.props {
		out[k] = v
	}
	return out
}

// DisplayName is the node's name property, falling back to its URI.
func (n *Node) DisplayName() string {
	if v := n.Get(PropName); v.Kind() == Scalar {
		if s := FormatScalar(v.Scalar()); s != "" {
			return s
		}
	}
	return n.URI()
}

// Contextual returns a new overlay of n's canonical original. Values already
// layered on n (when n is itself contextual) are carried over.
func (n *Node) Contextual() *Node {
	c := &Node{props: make(map[string]Value, len(n.props)), original: n.Original()}
	if n.original != nil {
		for k, v := range n.props {
			c.props[k] = v
		}
	}
	return c
}

func (n *Node) String() string {
	return n.Key()
}
