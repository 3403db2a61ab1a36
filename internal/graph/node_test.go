package graph

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNode_ReservedAttributes(t *testing.T) {
	s := newTestStore(t)
	n := s.GetNode("Person", "alice")

	assert.Equal(t, "alice", n.Get(PropID).Scalar())
	assert.Equal(t, "Person", n.Get(PropType).Scalar())
	assert.Equal(t, "Person|alice", n.Get(PropKey).Scalar())

	pending := s.GetNode("", "ghost")
	assert.True(t, pending.Get(PropType).IsAbsent())
}

func TestNode_DisplayNameFallsBackToURI(t *testing.T) {
	s := newTestStore(t)
	n := s.GetNode("Person", "alice")
	assert.Equal(t, "alice", n.DisplayName())

	n.SetScalar(PropName, "Alice Liddell")
	assert.Equal(t, "Alice Liddell", n.DisplayName())
}

func TestNode_ContextualOverlay(t *testing.T) {
	s := newTestStore(t)
	orig := s.GetNode("Person", "alice")
	orig.SetScalar("revenue", 10)
	orig.SetScalar(PropName, "Alice")

	ctx := orig.Contextual()
	ctx.SetScalar("revenue", 99)
	ctx.SetScalar("depth", 2)

	assert.True(t, ctx.IsContextual())
	assert.Same(t, orig, ctx.Original())
	assert.Equal(t, orig.ID(), ctx.ID())
	assert.Equal(t, orig.Key(), ctx.Key())

	assert.Equal(t, 99.0, ctx.Get("revenue").Scalar())
	assert.Equal(t, "Alice", ctx.Get(PropName).Scalar())
	assert.Equal(t, 10.0, orig.Get("revenue").Scalar(), "original untouched")
	assert.True(t, orig.Get("depth").IsAbsent())

	assert.Equal(t, []string{"depth", "name", "revenue"}, ctx.Properties())

	// contextual of contextual keeps the canonical original and overrides
	nested := ctx.Contextual()
	assert.Same(t, orig, nested.Original())
	assert.Equal(t, 99.0, nested.Get("revenue").Scalar())
	assert.Len(t, s.InstancesOf("Person"), 1, "contextual nodes are never indexed")
}

func TestNode_SetAbsentDeletes(t *testing.T) {
	s := newTestStore(t)
	n := s.GetNode("Person", "a")
	n.SetScalar("x", "1")
	n.Set("x", Value{})
	assert.True(t, n.Get("x").IsAbsent())
	assert.Empty(t, n.Properties())
}

func TestValue_Promotion(t *testing.T) {
	s := newTestStore(t)
	b := s.GetNode("Project", "b")
	c := s.GetNode("Project", "c")

	v := ListValue([]*Node{b, c, b})
	require.Equal(t, Many, v.Kind())
	assert.Equal(t, []*Node{b, c}, v.Nodes())
	assert.Equal(t, "b, c", v.String())

	single := ListValue([]*Node{b, b})
	assert.Equal(t, One, single.Kind())
	assert.True(t, ListValue(nil).IsAbsent())
}

func TestValue_Scalars(t *testing.T) {
	f, ok := ScalarValue(20).Float()
	require.True(t, ok)
	assert.Equal(t, 20.0, f)

	f, ok = ScalarValue("12.5").Float()
	require.True(t, ok)
	assert.Equal(t, 12.5, f)

	_, ok = ScalarValue("abc").Float()
	assert.False(t, ok)

	assert.Equal(t, "20", ScalarValue(20.0).String())
	assert.Equal(t, "true", ScalarValue(true).String())
	assert.True(t, ScalarValue(nil).IsAbsent())
	assert.Equal(t, 0, Value{}.Len())
}

func TestValue_ListDedupsByID(t *testing.T) {
	s := newTestStore(t)
	b := s.GetNode("Project", "b")
	overlay := b.Contextual()

	v := ListValue([]*Node{b, overlay, nil})
	require.Equal(t, One, v.Kind())
	assert.Same(t, b, v.Node())

	a := s.GetNode("Person", "a")
	a.AddRef("worksOn", b)
	a.AddRef("worksOn", overlay)
	assert.Equal(t, 1, a.Get("worksOn").Len())
}

func TestNode_AddRefKeepsOverlayAndOriginalApart(t *testing.T) {
	s := newTestStore(t)
	a := s.GetNode("Person", "a")
	b := s.GetNode("Project", "b")
	c := s.GetNode("Project", "c")
	d := s.GetNode("Project", "d")
	a.AddRef("worksOn", b)
	a.AddRef("worksOn", c)

	before := a.Get("worksOn")
	overlay := a.Contextual()
	overlay.AddRef("worksOn", d)
	a.AddRef("worksOn", s.GetNode("Project", "e"))

	assert.Equal(t, []*Node{b, c}, before.Nodes())
	assert.Equal(t, "b, c, d", overlay.Get("worksOn").String())
	assert.Equal(t, "b, c, e", a.Get("worksOn").String())

	// Set drops the in-place index; later appends start from the new list.
	a.SetNodes("worksOn", []*Node{d})
	a.AddRef("worksOn", b)
	assert.Equal(t, []*Node{d, b}, a.Get("worksOn").Nodes())
}

func TestNode_AddRefReplacesScalar(t *testing.T) {
	s := newTestStore(t)
	a := s.GetNode("Person", "a")
	b := s.GetNode("Project", "b")
	a.SetScalar("worksOn", "pending")
	a.AddRef("worksOn", b)
	assert.Same(t, b, a.Get("worksOn").Node())
}

func TestStore_AssociateHubScalesLinearly(t *testing.T) {
	s := newTestStore(t)
	hub := s.GetNode("Project", "hub")
	const size = 50000
	people := make([]*Node, size)
	for i := range people {
		people[i] = s.GetNode("Person", fmt.Sprintf("p%d", i))
	}

	start := time.Now()
	for _, p := range people {
		s.Associate(p, "worksOn", hub, "")
	}
	all := ListValue(append(people, people...))
	elapsed := time.Since(start)

	assert.Equal(t, size, hub.Get("staffedBy").Len())
	assert.Equal(t, size, all.Len())
	assert.Less(t, elapsed, 2*time.Second, "%d references onto one node", size)
}
