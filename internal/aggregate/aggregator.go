// Package aggregate computes field aggregations over node lists and slices
// node lists into (optionally nested) groups by dimension attributes.
//
// Functions that create nodes write to the store; callers running them
// alongside concurrent readers wrap them in Store.Update.
package aggregate

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/agentic-research/trellis/api"
	"github.com/agentic-research/trellis/internal/graph"
	"github.com/agentic-research/trellis/internal/query"
)

var ErrUnknownMethod = errors.New("unknown aggregation method")

// Reserved properties written by Aggregate.
const (
	NodeCountField = "nodeCount"
	MembersProp    = "members"
)

// Method is an aggregation function.
type Method int

const (
	Sum Method = iota
	Min
	Max
	Avg
	Count
)

var methodNames = map[string]Method{
	"sum":   Sum,
	"min":   Min,
	"max":   Max,
	"avg":   Avg,
	"count": Count,
}

func (m Method) String() string {
	for name, v := range methodNames {
		if v == m {
			return name
		}
	}
	return "unknown"
}

// ParseMethod accepts sum, min, max, avg and count in any case.
func ParseMethod(s string) (Method, error) {
	m, ok := methodNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, s)
	}
	return m, nil
}

// Field computes Target from the values of Attribute.
type Field struct {
	Target    string
	Attribute string
	Method    Method

	path query.Path
}

type text struct {
	key      string
	template string
}

// Aggregator is a compiled AggregatorSpec.
type Aggregator struct {
	store  *graph.Store
	fields []Field
	texts  []text
}

// New compiles spec. Fields and texts are evaluated in sorted key order.
func New(store *graph.Store, spec api.AggregatorSpec) (*Aggregator, error) {
	a := &Aggregator{store: store}
	for target, agg := range spec.Aggregations {
		m, err := ParseMethod(agg.Calculate)
		if err != nil {
			return nil, fmt.Errorf("aggregation %s: %w", target, err)
		}
		a.fields = append(a.fields, Field{
			Target:    target,
			Attribute: agg.Attribute,
			Method:    m,
			path:      query.Compile(agg.Attribute),
		})
	}
	sort.Slice(a.fields, func(i, j int) bool { return a.fields[i].Target < a.fields[j].Target })

	for key, tmpl := range spec.Texts {
		a.texts = append(a.texts, text{key: key, template: tmpl})
	}
	sort.Slice(a.texts, func(i, j int) bool { return a.texts[i].key < a.texts[j].key })
	return a, nil
}

// Fields returns the compiled fields in evaluation order.
func (a *Aggregator) Fields() []Field {
	return append([]Field(nil), a.fields...)
}

// Result is the outcome of one aggregation pass.
type Result struct {
	// Values holds each computed field. Min and max are omitted when no
	// member had a numeric value.
	Values    map[string]float64
	Texts     map[string]string
	NodeCount int
}

// accumulator holds running statistics for one source attribute.
type accumulator struct {
	min, max, sum float64
	numeric       int
	present       int
}

func (acc *accumulator) add(v graph.Value) {
	if v.IsAbsent() {
		return
	}
	acc.present++
	x, ok := v.Float()
	if !ok {
		return
	}
	if acc.numeric == 0 || x < acc.min {
		acc.min = x
	}
	if acc.numeric == 0 || x > acc.max {
		acc.max = x
	}
	acc.sum += x
	acc.numeric++
}

// Compute aggregates nodes without touching the store. Each source
// attribute is resolved once per node no matter how many fields read it.
func (a *Aggregator) Compute(nodes []*graph.Node) Result {
	accs := make(map[string]*accumulator)
	paths := make(map[string]query.Path)
	for _, f := range a.fields {
		if _, ok := accs[f.Attribute]; !ok {
			accs[f.Attribute] = &accumulator{}
			paths[f.Attribute] = f.path
		}
	}
	for _, n := range nodes {
		for attr, acc := range accs {
			acc.add(paths[attr].Resolve(a.store, n))
		}
	}

	res := Result{
		Values:    make(map[string]float64, len(a.fields)+1),
		Texts:     make(map[string]string, len(a.texts)),
		NodeCount: len(nodes),
	}
	for _, f := range a.fields {
		acc := accs[f.Attribute]
		switch f.Method {
		case Sum:
			res.Values[f.Target] = acc.sum
		case Avg:
			res.Values[f.Target] = acc.sum / float64(max(acc.numeric, 1))
		case Count:
			res.Values[f.Target] = float64(acc.present)
		case Min:
			if acc.numeric > 0 {
				res.Values[f.Target] = acc.min
			}
		case Max:
			if acc.numeric > 0 {
				res.Values[f.Target] = acc.max
			}
		}
	}
	res.Values[NodeCountField] = float64(len(nodes))

	for _, t := range a.texts {
		res.Texts[t.key] = expand(t.template, res.Values)
	}
	return res
}

// Apply computes the aggregation over nodes and writes the fields, the node
// count and the derived texts onto target.
func (a *Aggregator) Apply(target *graph.Node, nodes []*graph.Node) Result {
	res := a.Compute(nodes)
	for k, v := range res.Values {
		target.SetScalar(k, v)
	}
	for k, v := range res.Texts {
		target.SetScalar(k, v)
	}
	return res
}

// Aggregate wraps the result in a synthetic aggregate node that also
// references the source nodes under MembersProp.
func (a *Aggregator) Aggregate(nodes []*graph.Node) *graph.Node {
	n := a.store.NewSynthetic(graph.TypeAggregate)
	a.Apply(n, nodes)
	n.SetNodes(MembersProp, nodes)
	return n
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// expand substitutes {{field}} placeholders in one left-to-right pass, so
// substituted text is never expanded again. Unknown placeholders are kept.
func expand(tmpl string, values map[string]float64) string {
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		v, ok := values[name]
		if !ok {
			return m
		}
		return graph.FormatScalar(v)
	})
}
