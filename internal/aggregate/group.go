package aggregate

import (
	"github.com/agentic-research/trellis/internal/graph"
	"github.com/agentic-research/trellis/internal/query"
)

// EmptyKey collects nodes whose dimension value is absent.
const EmptyKey = "EMPTY"

// Properties written on group nodes.
const (
	GroupKeyProp       = "groupKey"
	GroupValueProp     = "groupValue"
	GroupDimensionProp = "dimension"
	SubGroupsProp      = "subGroups"
)

// Group is one partition of a slice.
type Group struct {
	// Key is the scalar text or, for a reference dimension, the unique key
	// of the first referenced node.
	Key string
	// Name is the display label: the scalar text or the node's display name.
	Name    string
	Value   graph.Value
	Members []*graph.Node
	// Node is the synthetic group node carrying the key and the members.
	Node *graph.Node
	// Sub is the next dimension's slice of Members when diced.
	Sub *GroupedSet
}

// GroupedSet is an ordered map from group key to group.
type GroupedSet struct {
	Dimension string
	keys      []string
	groups    map[string]*Group
}

func newGroupedSet(dimension string) *GroupedSet {
	return &GroupedSet{Dimension: dimension, groups: make(map[string]*Group)}
}

// SliceBy partitions nodes by the value of dimension. Keys appear in order
// of first occurrence. A multi-valued dimension groups by its first value.
func SliceBy(store *graph.Store, nodes []*graph.Node, dimension string) *GroupedSet {
	path := query.Compile(dimension)
	gs := newGroupedSet(dimension)
	for _, n := range nodes {
		v := path.Resolve(store, n)
		key, name, value := groupKey(v)
		g, ok := gs.groups[key]
		if !ok {
			g = &Group{Key: key, Name: name, Value: value}
			gs.keys = append(gs.keys, key)
			gs.groups[key] = g
		}
		g.Members = append(g.Members, n)
	}
	for _, key := range gs.keys {
		g := gs.groups[key]
		g.Node = store.NewSynthetic(graph.TypeGroup)
		g.Node.SetScalar(GroupKeyProp, g.Key)
		g.Node.Set(GroupValueProp, g.Value)
		g.Node.SetScalar(GroupDimensionProp, dimension)
		g.Node.SetScalar(graph.PropName, g.Name)
		g.Node.SetNodes(MembersProp, g.Members)
	}
	return gs
}

// Dice slices nodes by dims[0], then every group by dims[1], and so on.
// The leaves are single-dimension slices. No dimensions yields nil.
func Dice(store *graph.Store, nodes []*graph.Node, dims []string) *GroupedSet {
	if len(dims) == 0 {
		return nil
	}
	gs := SliceBy(store, nodes, dims[0])
	if len(dims) == 1 {
		return gs
	}
	for _, g := range gs.Groups() {
		g.Sub = Dice(store, g.Members, dims[1:])
		subNodes := make([]*graph.Node, 0, g.Sub.Len())
		for _, sg := range g.Sub.Groups() {
			subNodes = append(subNodes, sg.Node)
		}
		g.Node.SetNodes(SubGroupsProp, subNodes)
	}
	return gs
}

func groupKey(v graph.Value) (key, name string, value graph.Value) {
	switch v.Kind() {
	case graph.Scalar:
		if s := graph.FormatScalar(v.Scalar()); s != "" {
			return s, s, v
		}
	case graph.One, graph.Many:
		first := v.First()
		return first.Key(), first.DisplayName(), graph.RefValue(first)
	}
	return EmptyKey, EmptyKey, graph.Value{}
}

// Keys returns the group keys in order.
func (gs *GroupedSet) Keys() []string {
	if gs == nil {
		return nil
	}
	return append([]string(nil), gs.keys...)
}

// Len returns the number of groups.
func (gs *GroupedSet) Len() int {
	if gs == nil {
		return 0
	}
	return len(gs.keys)
}

// Group returns the group stored under key.
func (gs *GroupedSet) Group(key string) (*Group, bool) {
	if gs == nil {
		return nil, false
	}
	g, ok := gs.groups[key]
	return g, ok
}

// Groups returns the groups in key order.
func (gs *GroupedSet) Groups() []*Group {
	if gs == nil {
		return nil
	}
	out := make([]*Group, len(gs.keys))
	for i, k := range gs.keys {
		out[i] = gs.groups[k]
	}
	return out
}

// Replace stores g under key, appending key if it is new.
func (gs *GroupedSet) Replace(key string, g *Group) {
	if _, ok := gs.groups[key]; !ok {
		gs.keys = append(gs.keys, key)
	}
	gs.groups[key] = g
}

// Leaves returns the groups without sub slices, depth first.
func (gs *GroupedSet) Leaves() []*Group {
	var out []*Group
	for _, g := range gs.Groups() {
		if g.Sub == nil {
			out = append(out, g)
			continue
		}
		out = append(out, g.Sub.Leaves()...)
	}
	return out
}

// Aggregate runs agg over every group, recursing into diced sub slices, and
// writes the results onto the group nodes.
func (gs *GroupedSet) Aggregate(agg *Aggregator) {
	for _, g := range gs.Groups() {
		agg.Apply(g.Node, g.Members)
		if g.Sub != nil {
			g.Sub.Aggregate(agg)
		}
	}
}
