package graph

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring"
)

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	// Absent is the zero Value: the property is not set.
	Absent ValueKind = iota
	// Scalar holds a float64, string or bool.
	Scalar
	// One holds a single node reference.
	One
	// Many holds an ordered, duplicate-free list of node references.
	Many
)

func (k ValueKind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case One:
		return "one"
	case Many:
		return "many"
	default:
		return "absent"
	}
}

// Value is a property value. Numbers are always stored as float64.
type Value struct {
	kind   ValueKind
	scalar any
	nodes  []*Node
}

// ScalarValue wraps v. Integer kinds are widened to float64; nil yields an
// absent value.
func ScalarValue(v any) Value {
	switch x := v.(type) {
	case nil:
		return Value{}
	case int:
		return Value{kind: Scalar, scalar: float64(x)}
	case int32:
		return Value{kind: Scalar, scalar: float64(x)}
	case int64:
		return Value{kind: Scalar, scalar: float64(x)}
	case uint32:
		return Value{kind: Scalar, scalar: float64(x)}
	case float32:
		return Value{kind: Scalar, scalar: float64(x)}
	case float64, string, bool:
		return Value{kind: Scalar, scalar: x}
	default:
		return Value{kind: Scalar, scalar: fmt.Sprint(x)}
	}
}

// RefValue references a single node.
func RefValue(n *Node) Value {
	if n == nil {
		return Value{}
	}
	return Value{kind: One, nodes: []*Node{n}}
}

// ListValue references nodes in order, dropping duplicates by ID so an
// original and its contextual overlays count once. Zero nodes give an absent
// value and one node gives a One value.
func ListValue(nodes []*Node) Value {
	seen := roaring.New()
	out := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		if n != nil && seen.CheckedAdd(n.ID()) {
			out = append(out, n)
		}
	}
	return refsValue(out)
}

func refsValue(nodes []*Node) Value {
	switch len(nodes) {
	case 0:
		return Value{}
	case 1:
		return Value{kind: One, nodes: nodes}
	}
	return Value{kind: Many, nodes: nodes}
}

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) IsAbsent() bool { return v.kind == Absent }

// Scalar returns the scalar payload, or nil for reference values.
func (v Value) Scalar() any {
	if v.kind != Scalar {
		return nil
	}
	return v.scalar
}

// Node returns the referenced node for a One value and nil otherwise.
func (v Value) Node() *Node {
	if v.kind != One {
		return nil
	}
	return v.nodes[0]
}

// Nodes returns the referenced nodes of a One or Many value.
func (v Value) Nodes() []*Node {
	if v.kind != One && v.kind != Many {
		return nil
	}
	out := make([]*Node, len(v.nodes))
	copy(out, v.nodes)
	return out
}

// First returns the first referenced node, if any.
func (v Value) First() *Node {
	if len(v.nodes) == 0 {
		return nil
	}
	return v.nodes[0]
}

// Len is 0 for absent values, 1 for scalars and single references.
func (v Value) Len() int {
	switch v.kind {
	case Scalar:
		return 1
	case One, Many:
		return len(v.nodes)
	}
	return 0
}

// Float reports the numeric reading of a scalar. Strings are parsed.
func (v Value) Float() (float64, bool) {
	if v.kind != Scalar {
		return 0, false
	}
	return ToFloat(v.scalar)
}

// String renders scalars; references render as their display names.
func (v Value) String() string {
	switch v.kind {
	case Scalar:
		return FormatScalar(v.scalar)
	case One, Many:
		names := make([]string, len(v.nodes))
		for i, n := range v.nodes {
			names[i] = n.DisplayName()
		}
		return strings.Join(names, ", ")
	}
	return ""
}

// ToFloat converts numbers and numeric strings.
func ToFloat(x any) (float64, bool) {
	switch n := x.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// FormatScalar renders a scalar the way derived text and group keys show it.
func FormatScalar(x any) string {
	switch s := x.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	}
	return fmt.Sprint(x)
}
