// Package filter parses and evaluates single-attribute predicates written
// as "<symbol> <operand>", e.g. {"revenue": ">= 20"}.
package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/agentic-research/trellis/api"
	"github.com/agentic-research/trellis/internal/graph"
	"github.com/agentic-research/trellis/internal/query"
	"golang.org/x/text/unicode/norm"
)

var (
	ErrUnparseable        = errors.New("unparseable filter condition")
	ErrTypeOperatorMisuse = errors.New("is/!is only apply to the type attribute")
	ErrUnsupportedSource  = errors.New("filter source must be a node or a node list")
	ErrInvalidDescriptor  = errors.New("filter descriptor must have exactly one attribute")
)

// Operator is a parsed filter operator.
type Operator int

const (
	OpEq Operator = iota
	OpNeq
	OpContains
	OpNotContains
	OpLt
	OpLte
	OpGt
	OpGte
	OpExists
	OpEmpty
	OpHas
	OpNotHas
	OpIs
	OpNotIs
)

// operatorTable is matched in order against the start of a condition; the
// first hit wins, so a symbol must precede any shorter symbol it extends.
var operatorTable = []struct {
	symbol string
	op     Operator
}{
	{"!contains", OpNotContains},
	{"contains", OpContains},
	{"!exists", OpEmpty},
	{"exists", OpExists},
	{"!has", OpNotHas},
	{"has", OpHas},
	{"!is", OpNotIs},
	{"is", OpIs},
	{"==", OpEq},
	{"!=", OpNeq},
	{"<=", OpLte},
	{">=", OpGte},
	{"<", OpLt},
	{">", OpGt},
	{"=", OpEq},
}

func (o Operator) String() string {
	for _, e := range operatorTable {
		if e.op == o {
			return e.symbol
		}
	}
	return "?"
}

var placeholderRe = regexp.MustCompile(`^\{\{\s*(.+?)\s*\}\}$`)

// Filter binds an attribute path to one operator and operand.
type Filter struct {
	Attribute string
	Op        Operator
	Operand   string

	store       *graph.Store
	path        query.Path
	number      float64
	numeric     bool
	placeholder query.Path
	target      *graph.Node
}

// ParseCondition splits "<symbol> <operand>" using the operator table.
func ParseCondition(condition string) (Operator, string, error) {
	c := strings.TrimSpace(condition)
	for _, e := range operatorTable {
		if strings.HasPrefix(c, e.symbol) {
			return e.op, strings.TrimSpace(c[len(e.symbol):]), nil
		}
	}
	return 0, "", fmt.Errorf("%w: %q", ErrUnparseable, condition)
}

// New builds a filter for attribute from a textual condition. The store is
// used to resolve ~ and # segments in the attribute and placeholder paths.
func New(store *graph.Store, attribute, condition string) (*Filter, error) {
	op, operand, err := ParseCondition(condition)
	if err != nil {
		return nil, fmt.Errorf("attribute %s: %w", attribute, err)
	}
	if (op == OpIs || op == OpNotIs) && attribute != graph.PropType {
		return nil, fmt.Errorf("%w: got %q", ErrTypeOperatorMisuse, attribute)
	}
	f := &Filter{
		Attribute: attribute,
		Op:        op,
		Operand:   operand,
		store:     store,
		path:      query.Compile(attribute),
	}
	if m := placeholderRe.FindStringSubmatch(operand); m != nil {
		f.placeholder = query.Compile(m[1])
	} else if n, err := strconv.ParseFloat(operand, 64); err == nil {
		f.number, f.numeric = n, true
	}
	return f, nil
}

// Parse builds a filter from a single-key descriptor.
func Parse(store *graph.Store, desc api.FilterDescriptor) (*Filter, error) {
	if len(desc) != 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDescriptor, len(desc))
	}
	for attr, cond := range desc {
		return New(store, attr, cond)
	}
	return nil, ErrInvalidDescriptor
}

// NewHas builds a has-associated filter against a specific node.
func NewHas(store *graph.Store, attribute string, target *graph.Node) *Filter {
	return &Filter{
		Attribute: attribute,
		Op:        OpHas,
		Operand:   target.URI(),
		store:     store,
		path:      query.Compile(attribute),
		target:    target,
	}
}

func (f *Filter) String() string {
	return fmt.Sprintf("%s %s %s", f.Attribute, f.Op, f.Operand)
}

// Matches evaluates the filter against n.
func (f *Filter) Matches(n *graph.Node) bool {
	if n == nil {
		return false
	}
	rhs := f.operandFor(n)

	switch f.Op {
	case OpIs:
		return n.Type().IsOfType(rhs.str)
	case OpNotIs:
		return !n.Type().IsOfType(rhs.str)
	case OpHas:
		return f.has(n, rhs)
	case OpNotHas:
		return !f.has(n, rhs)
	}

	v := f.path.Resolve(f.store, n)
	switch f.Op {
	case OpEq:
		return equals(v, rhs)
	case OpNeq:
		return !equals(v, rhs)
	case OpContains:
		return contains(v, rhs)
	case OpNotContains:
		return !contains(v, rhs)
	case OpExists:
		return exists(v)
	case OpEmpty:
		return !exists(v)
	case OpLt, OpLte, OpGt, OpGte:
		c, ok := compare(v, rhs)
		if !ok {
			return false
		}
		switch f.Op {
		case OpLt:
			return c < 0
		case OpLte:
			return c <= 0
		case OpGt:
			return c > 0
		default:
			return c >= 0
		}
	}
	return false
}

// Process applies Matches to a single node or a node list.
func (f *Filter) Process(source any) ([]*graph.Node, error) {
	return process(source, f.Matches)
}

// Chain is a conjunction of filters.
type Chain []*Filter

// ParseAll builds a chain from descriptors, each with one attribute.
func ParseAll(store *graph.Store, descs []api.FilterDescriptor) (Chain, error) {
	chain := make(Chain, 0, len(descs))
	for _, d := range descs {
		f, err := Parse(store, d)
		if err != nil {
			return nil, err
		}
		chain = append(chain, f)
	}
	return chain, nil
}

// Matches reports whether every filter matches n.
func (c Chain) Matches(n *graph.Node) bool {
	for _, f := range c {
		if !f.Matches(n) {
			return false
		}
	}
	return true
}

// Process applies the chain to a single node or a node list.
func (c Chain) Process(source any) ([]*graph.Node, error) {
	return process(source, c.Matches)
}

func process(source any, match func(*graph.Node) bool) ([]*graph.Node, error) {
	switch src := source.(type) {
	case *graph.Node:
		if src != nil && match(src) {
			return []*graph.Node{src}, nil
		}
		return nil, nil
	case []*graph.Node:
		out := make([]*graph.Node, 0, len(src))
		for _, n := range src {
			if match(n) {
				out = append(out, n)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedSource, source)
}

// term is a resolved operand.
type term struct {
	str     string
	num     float64
	numeric bool
	nodes   []*graph.Node
}

func (f *Filter) operandFor(n *graph.Node) term {
	if f.target != nil {
		return term{str: f.target.URI(), nodes: []*graph.Node{f.target}}
	}
	if f.placeholder == nil {
		return term{str: f.Operand, num: f.number, numeric: f.numeric}
	}
	v := f.placeholder.Resolve(f.store, n)
	t := term{nodes: v.Nodes()}
	if v.Kind() == graph.Scalar {
		t.str = graph.FormatScalar(v.Scalar())
		t.num, t.numeric = v.Float()
	} else if first := v.First(); first != nil {
		t.str = first.URI()
	}
	return t
}

func (f *Filter) has(n *graph.Node, rhs term) bool {
	set := f.path.Traverse(f.store, n)
	if len(rhs.nodes) > 0 {
		for _, t := range rhs.nodes {
			if set.Contains(t) {
				return true
			}
		}
		return false
	}
	for _, m := range set.Nodes() {
		if m.URI() == rhs.str || m.Key() == rhs.str {
			return true
		}
	}
	if set.ContainsScalar(rhs.str) {
		return true
	}
	return rhs.numeric && set.ContainsScalar(rhs.num)
}

func equals(v graph.Value, rhs term) bool {
	switch v.Kind() {
	case graph.One, graph.Many:
		for _, n := range v.Nodes() {
			for _, t := range rhs.nodes {
				if n.ID() == t.ID() {
					return true
				}
			}
			if n.URI() == rhs.str || n.Key() == rhs.str {
				return true
			}
		}
		return false
	case graph.Scalar:
		if rhs.numeric {
			if x, ok := v.Float(); ok {
				return x == rhs.num
			}
		}
		return normalize(graph.FormatScalar(v.Scalar())) == normalize(rhs.str)
	}
	return false
}

func contains(v graph.Value, rhs term) bool {
	if v.IsAbsent() {
		return false
	}
	return strings.Contains(normalize(v.String()), normalize(rhs.str))
}

func exists(v graph.Value) bool {
	if v.Kind() == graph.Scalar {
		s, isString := v.Scalar().(string)
		return !isString || s != ""
	}
	return !v.IsAbsent()
}

// compare orders a scalar value against the operand, numerically when both
// sides are numbers and lexically otherwise.
func compare(v graph.Value, rhs term) (int, bool) {
	if v.Kind() != graph.Scalar {
		return 0, false
	}
	if rhs.numeric {
		x, ok := v.Float()
		if !ok {
			return 0, false
		}
		switch {
		case x < rhs.num:
			return -1, true
		case x > rhs.num:
			return 1, true
		}
		return 0, true
	}
	return strings.Compare(normalize(graph.FormatScalar(v.Scalar())), normalize(rhs.str)), true
}

func normalize(s string) string {
	return norm.NFC.String(s)
}
