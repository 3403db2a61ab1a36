package aggregate

import (
	"fmt"
	"testing"

	"github.com/agentic-research/trellis/api"
	"github.com/agentic-research/trellis/internal/graph"
	"github.com/agentic-research/trellis/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store     *graph.Store
	companies []*graph.Node
}

// three companies: acme (tech, EU, 10), globex (tech, US, 20), initech (retail, no region, 30)
func newFixture(t *testing.T) *fixture {
	t.Helper()
	d := schema.NewDictionary()
	for _, decl := range []api.TypeDecl{
		{URI: "Company"},
		{URI: "Region"},
		{URI: "revenue", DataType: api.Float},
		{URI: "sector", DataType: api.String},
		{URI: "locatedIn", IsAssociation: true},
	} {
		_, err := d.CreateType(decl)
		require.NoError(t, err)
	}
	require.NoError(t, d.ResolveSuperTypes())
	s := graph.NewStore(d)

	eu := s.GetNode("Region", "eu")
	us := s.GetNode("Region", "us")
	rows := []struct {
		uri, sector string
		revenue     float64
		region      *graph.Node
	}{
		{"acme", "tech", 10, eu},
		{"globex", "tech", 20, us},
		{"initech", "retail", 30, nil},
	}
	f := &fixture{store: s}
	for _, r := range rows {
		n := s.GetNode("Company", r.uri)
		n.SetScalar("sector", r.sector)
		n.SetScalar("revenue", r.revenue)
		if r.region != nil {
			s.Associate(n, "locatedIn", r.region, "hosts")
		}
		f.companies = append(f.companies, n)
	}
	return f
}

func revenueSpec() api.AggregatorSpec {
	return api.AggregatorSpec{
		Aggregations: map[string]api.Aggregation{
			"total":   {Attribute: "revenue", Calculate: "sum"},
			"average": {Attribute: "revenue", Calculate: "avg"},
			"lowest":  {Attribute: "revenue", Calculate: "min"},
			"highest": {Attribute: "revenue", Calculate: "max"},
			"sectors": {Attribute: "sector", Calculate: "count"},
		},
		Texts: map[string]string{
			"summary": "{{nodeCount}} companies earned {{ total }}",
		},
	}
}

func TestParseMethod(t *testing.T) {
	for name, want := range map[string]Method{"sum": Sum, "MIN": Min, " max ": Max, "Avg": Avg, "count": Count} {
		got, err := ParseMethod(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := ParseMethod("median")
	assert.ErrorIs(t, err, ErrUnknownMethod)
	assert.Equal(t, "avg", Avg.String())
}

func TestNew_RejectsUnknownMethod(t *testing.T) {
	f := newFixture(t)
	_, err := New(f.store, api.AggregatorSpec{
		Aggregations: map[string]api.Aggregation{"x": {Attribute: "revenue", Calculate: "median"}},
	})
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestAggregator_Compute(t *testing.T) {
	f := newFixture(t)
	agg, err := New(f.store, revenueSpec())
	require.NoError(t, err)

	res := agg.Compute(f.companies)
	assert.Equal(t, map[string]float64{
		"total":        60,
		"average":      20,
		"lowest":       10,
		"highest":      30,
		"sectors":      3,
		NodeCountField: 3,
	}, res.Values)
	assert.Equal(t, 3, res.NodeCount)
	assert.Equal(t, "3 companies earned 60", res.Texts["summary"])
}

func TestAggregator_EmptyInput(t *testing.T) {
	f := newFixture(t)
	agg, err := New(f.store, revenueSpec())
	require.NoError(t, err)

	res := agg.Compute(nil)
	assert.Equal(t, 0.0, res.Values["total"])
	assert.Equal(t, 0.0, res.Values["average"])
	assert.NotContains(t, res.Values, "lowest")
	assert.NotContains(t, res.Values, "highest")
	assert.Equal(t, 0.0, res.Values[NodeCountField])
}

func TestAggregator_AggregateCreatesSyntheticNode(t *testing.T) {
	f := newFixture(t)
	agg, err := New(f.store, revenueSpec())
	require.NoError(t, err)

	n := agg.Aggregate(f.companies)
	assert.Equal(t, graph.TypeAggregate, n.TypeURI())
	assert.NotEmpty(t, n.URI())
	assert.Equal(t, 60.0, n.Get("total").Scalar())
	assert.Equal(t, 3.0, n.Get(NodeCountField).Scalar())
	assert.Equal(t, "3 companies earned 60", n.Get("summary").Scalar())
	assert.Equal(t, f.companies, n.Get(MembersProp).Nodes())
}

func TestExpand_SinglePass(t *testing.T) {
	values := map[string]float64{"a": 1.5}
	assert.Equal(t, "1.5 and {{b}}", expand("{{a}} and {{b}}", values))
	// a substituted value is never re-expanded
	assert.Equal(t, "{{1.5}}", expand("{{{{a}}}}", values))
}

func TestSliceBy(t *testing.T) {
	f := newFixture(t)
	gs := SliceBy(f.store, f.companies, "sector")

	assert.Equal(t, []string{"tech", "retail"}, gs.Keys())
	tech, ok := gs.Group("tech")
	require.True(t, ok)
	assert.Equal(t, f.companies[:2], tech.Members)
	assert.Equal(t, graph.TypeGroup, tech.Node.TypeURI())
	assert.Equal(t, "tech", tech.Node.Get(GroupKeyProp).Scalar())
	assert.Equal(t, "sector", tech.Node.Get(GroupDimensionProp).Scalar())
	assert.Equal(t, f.companies[:2], tech.Node.Get(MembersProp).Nodes())
}

func TestSliceBy_AssociationAndEmpty(t *testing.T) {
	f := newFixture(t)
	gs := SliceBy(f.store, f.companies, "locatedIn")

	assert.Equal(t, []string{"Region|eu", "Region|us", EmptyKey}, gs.Keys())
	eu, _ := gs.Group("Region|eu")
	assert.Same(t, f.store.GetNode("Region", "eu"), eu.Value.Node())
	assert.Equal(t, "eu", eu.Name)
	assert.Equal(t, "eu", eu.Node.DisplayName())
	empty, _ := gs.Group(EmptyKey)
	assert.Equal(t, []*graph.Node{f.companies[2]}, empty.Members)
	assert.True(t, empty.Value.IsAbsent())
}

func TestDice(t *testing.T) {
	f := newFixture(t)
	gs := Dice(f.store, f.companies, []string{"sector", "locatedIn"})

	assert.Equal(t, []string{"tech", "retail"}, gs.Keys())
	tech, _ := gs.Group("tech")
	require.NotNil(t, tech.Sub)
	assert.Equal(t, []string{"Region|eu", "Region|us"}, tech.Sub.Keys())
	assert.Equal(t, 2, tech.Node.Get(SubGroupsProp).Len())

	retail, _ := gs.Group("retail")
	assert.Equal(t, []string{EmptyKey}, retail.Sub.Keys())

	var leafKeys []string
	for _, g := range gs.Leaves() {
		leafKeys = append(leafKeys, g.Name)
	}
	assert.Equal(t, []string{"eu", "us", EmptyKey}, leafKeys)

	none := Dice(f.store, f.companies, nil)
	assert.Nil(t, none)
	assert.Empty(t, none.Keys())
	assert.Zero(t, none.Len())
	_, ok := none.Group("tech")
	assert.False(t, ok)
	assert.Empty(t, none.Leaves())
}

func TestGroupedSet_Aggregate(t *testing.T) {
	f := newFixture(t)
	agg, err := New(f.store, revenueSpec())
	require.NoError(t, err)

	gs := Dice(f.store, f.companies, []string{"sector", "locatedIn"})
	gs.Aggregate(agg)

	tech, _ := gs.Group("tech")
	assert.Equal(t, 30.0, tech.Node.Get("total").Scalar())
	assert.Equal(t, 2.0, tech.Node.Get(NodeCountField).Scalar())
	us, _ := tech.Sub.Group("Region|us")
	assert.Equal(t, 20.0, us.Node.Get("total").Scalar())
}

func TestGroupedSet_Replace(t *testing.T) {
	f := newFixture(t)
	gs := SliceBy(f.store, f.companies, "sector")

	merged := &Group{Key: "all", Members: f.companies}
	gs.Replace("tech", merged)
	gs.Replace("all", merged)
	assert.Equal(t, []string{"tech", "retail", "all"}, gs.Keys())
	got, _ := gs.Group("tech")
	assert.Same(t, merged, got)
	assert.Equal(t, 3, gs.Len())
}

func TestSliceBy_SameURIDifferentTypes(t *testing.T) {
	f := newFixture(t)
	region := f.store.GetNode("Region", "1")
	company := f.store.GetNode("Company", "1")
	items := make([]*graph.Node, 3)
	for i, owner := range []*graph.Node{region, company, nil} {
		items[i] = f.store.GetNode("Company", fmt.Sprintf("item%d", i))
		if owner != nil {
			items[i].AddRef("locatedIn", owner)
		} else {
			items[i].SetScalar("locatedIn", "1")
		}
	}

	gs := SliceBy(f.store, items, "locatedIn")

	assert.Equal(t, []string{"Region|1", "Company|1", "1"}, gs.Keys())
	for _, g := range gs.Groups() {
		assert.Len(t, g.Members, 1, g.Key)
		assert.Equal(t, "1", g.Name)
	}
}
