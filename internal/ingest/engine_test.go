package ingest

import (
	"testing"

	"github.com/agentic-research/trellis/api"
	"github.com/agentic-research/trellis/internal/graph"
	"github.com/agentic-research/trellis/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTypes = []api.TypeDecl{
	{URI: "Company", Name: "Company", DataType: api.Entity},
	{URI: "Startup", SubClassOf: "Company"},
	{URI: "Person"},
	{URI: "name", DataType: api.String},
	{URI: "revenue", DataType: api.Float},
	{URI: "employees", DataType: api.Integer},
	{URI: "public", DataType: api.Boolean},
	{URI: "founded", DataType: api.DateTime},
	{URI: "employs", IsAssociation: true, InverseType: "worksAt"},
	{URI: "worksAt", IsAssociation: true, InverseType: "employs"},
	{URI: "partner", IsAssociation: true},
}

func newImporter(t *testing.T) (*Importer, *graph.Store) {
	t.Helper()
	s := graph.NewStore(schema.NewDictionary())
	im := NewImporter(s)
	require.NoError(t, im.ImportTypes(testTypes))
	return im, s
}

func find(t *testing.T, s *graph.Store, typeURI, uri string) *graph.Node {
	t.Helper()
	n, ok := s.Find(typeURI, uri)
	require.True(t, ok, "%s %s", typeURI, uri)
	return n
}

func TestImportTypes(t *testing.T) {
	im, s := newImporter(t)
	assert.True(t, s.Dictionary().Type("Startup").IsOfType("Company"))

	err := im.ImportTypes([]api.TypeDecl{{URI: "Orphan", SubClassOf: "Missing"}})
	assert.ErrorIs(t, err, schema.ErrUnknownSuperType)
}

func TestImportNodeTable(t *testing.T) {
	im, s := newImporter(t)
	n, err := im.ImportNodeTable(api.NodeTable{
		Type:      "Company",
		HeaderRow: []string{"id", "name", "revenue", "employees", "public", "employs->Person"},
		ValueRows: [][]string{
			{"acme", "Acme", "10.5", "12", "yes", "alice+bob"},
			{"globex", "Globex", "20", "", "false", ""},
			{"", "ignored"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	acme := find(t, s, "Company", "acme")
	assert.Equal(t, "Acme", acme.Get("name").Scalar())
	assert.Equal(t, 10.5, acme.Get("revenue").Scalar())
	assert.Equal(t, 12.0, acme.Get("employees").Scalar())
	assert.Equal(t, true, acme.Get("public").Scalar())

	emps := acme.Get("employs")
	require.Equal(t, graph.Many, emps.Kind())
	alice := find(t, s, "Person", "alice")
	assert.Equal(t, []*graph.Node{alice, find(t, s, "Person", "bob")}, emps.Nodes())
	assert.Same(t, acme, alice.Get("worksAt").Node())

	globex := find(t, s, "Company", "globex")
	assert.True(t, globex.Get("employees").IsAbsent())
	assert.Equal(t, false, globex.Get("public").Scalar())
	assert.True(t, globex.Get("employs").IsAbsent())
}

func TestImportNodeTable_EmptyCellsDoNotOverwrite(t *testing.T) {
	im, s := newImporter(t)
	_, err := im.ImportNodeTable(api.NodeTable{
		Type: "Company", HeaderRow: []string{"id", "name", "revenue"},
		ValueRows: [][]string{{"acme", "Acme", "10"}},
	})
	require.NoError(t, err)
	_, err = im.ImportNodeTable(api.NodeTable{
		Type: "Company", HeaderRow: []string{"id", "name", "revenue"},
		ValueRows: [][]string{{"acme", "", "15"}},
	})
	require.NoError(t, err)

	acme := find(t, s, "Company", "acme")
	assert.Equal(t, "Acme", acme.Get("name").Scalar())
	assert.Equal(t, 15.0, acme.Get("revenue").Scalar())
	assert.Len(t, s.InstancesOf("Company"), 1)
}

func TestImportNodeTable_Errors(t *testing.T) {
	im, _ := newImporter(t)

	_, err := im.ImportNodeTable(api.NodeTable{
		Type: "Company", HeaderRow: []string{"id", "ghost"},
		ValueRows: [][]string{{"acme", "x"}},
	})
	assert.ErrorIs(t, err, ErrUnknownProperty)

	_, err = im.ImportNodeTable(api.NodeTable{
		Type: "Company", HeaderRow: []string{"id", "revenue"},
		ValueRows: [][]string{{"acme", "lots"}},
	})
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = im.ImportNodeTable(api.NodeTable{Type: "Company"})
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestImportNodeTable_ForwardReference(t *testing.T) {
	im, s := newImporter(t)
	_, err := im.ImportNodeTable(api.NodeTable{
		Type: "Company", HeaderRow: []string{"id", "partner"},
		ValueRows: [][]string{{"acme", "initech"}},
	})
	require.NoError(t, err)
	require.Len(t, s.Pending(), 1)

	_, err = im.ImportNodeTable(api.NodeTable{
		Type: "Startup", HeaderRow: []string{"id", "name"},
		ValueRows: [][]string{{"initech", "Initech"}},
	})
	require.NoError(t, err)
	assert.Empty(t, s.Pending())

	initech := find(t, s, "Startup", "initech")
	acme := find(t, s, "Company", "acme")
	assert.Same(t, initech, acme.Get("partner").Node())
	assert.Equal(t, []*graph.Node{acme, initech}, s.AllNodesOf("Company"))
}

func TestImportNodes(t *testing.T) {
	im, s := newImporter(t)
	n, err := im.ImportNodes([]api.RawNode{
		{"id": "acme", "type": "Company", "revenue": int64(10), "founded": "1999-01-01"},
		{
			"id": "globex", "type": "Company", "revenue": "20", "public": 1.0,
			"employs": []any{
				map[string]any{"id": "carol", "type": "Person", "name": "Carol"},
				"dave",
			},
			"partner": "acme",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	acme := find(t, s, "Company", "acme")
	assert.Equal(t, 10.0, acme.Get("revenue").Scalar())
	assert.Equal(t, "1999-01-01", acme.Get("founded").Scalar())

	globex := find(t, s, "Company", "globex")
	assert.Equal(t, true, globex.Get("public").Scalar())
	assert.Same(t, acme, globex.Get("partner").Node())
	// partner has no declared inverse; the source type names it
	assert.Same(t, globex, acme.Get("Company").Node())

	emps := globex.Get("employs").Nodes()
	require.Len(t, emps, 2)
	carol := find(t, s, "Person", "carol")
	assert.Same(t, carol, emps[0])
	assert.Equal(t, "Carol", carol.Get("name").Scalar())
	assert.True(t, emps[1].IsPending())
	assert.Same(t, globex, carol.Get("worksAt").Node())
}

func TestImportNodes_ReimportIsIdempotent(t *testing.T) {
	im, s := newImporter(t)
	raw := []api.RawNode{{"id": "acme", "type": "Company", "name": "Acme", "employs": []any{"p1"}}}
	_, err := im.ImportNodes(raw)
	require.NoError(t, err)
	_, err = im.ImportNodes(raw)
	require.NoError(t, err)

	assert.Equal(t, 2, s.Len())
	acme := find(t, s, "Company", "acme")
	assert.Equal(t, "Acme", acme.Get("name").Scalar())
	assert.Equal(t, graph.One, acme.Get("employs").Kind())
}

func TestImportNodes_Errors(t *testing.T) {
	im, _ := newImporter(t)

	_, err := im.ImportNodes([]api.RawNode{{"id": "acme", "type": "Company", "ghost": 1}})
	assert.ErrorIs(t, err, ErrUnknownProperty)

	_, err = im.ImportNodes([]api.RawNode{{"type": "Company"}})
	assert.ErrorIs(t, err, ErrMissingID)

	_, err = im.ImportNodes([]api.RawNode{{"id": "acme", "revenue": true}})
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = im.ImportNodes([]api.RawNode{{"id": "acme", "employs": []any{map[string]any{"name": "x"}}}})
	assert.ErrorIs(t, err, ErrMissingID)
}

func TestImportPayload(t *testing.T) {
	s := graph.NewStore(schema.NewDictionary())
	im := NewImporter(s)
	err := im.ImportPayload(&api.Payload{
		Types:  testTypes,
		Tables: []api.NodeTable{{Type: "Person", HeaderRow: []string{"id", "name"}, ValueRows: [][]string{{"alice", "Alice"}}}},
		Nodes:  []api.RawNode{{"id": "acme", "type": "Company", "employs": "alice"}},
	})
	require.NoError(t, err)

	alice := find(t, s, "Person", "alice")
	assert.Equal(t, "acme", alice.Get("worksAt").Node().DisplayName())
}

func TestCoerce(t *testing.T) {
	d := schema.NewDictionary()
	for _, decl := range testTypes {
		_, err := d.CreateType(decl)
		require.NoError(t, err)
	}
	tests := []struct {
		prop string
		raw  any
		want any
	}{
		{"revenue", " 3.25 ", 3.25},
		{"revenue", int64(4), 4.0},
		{"employees", "7", 7.0},
		{"employees", "12.5", 12.0},
		{"employees", -2.75, -2.0},
		{"public", "TRUE", true},
		{"public", "0", false},
		{"public", "off", false},
		{"public", "anything", true},
		{"public", 0.0, false},
		{"name", 42.0, "42"},
		{"name", "x", "x"},
	}
	im := NewImporter(graph.NewStore(d))
	for _, tt := range tests {
		got, err := im.coerce(d.Type(tt.prop), tt.raw)
		require.NoError(t, err, "%s %v", tt.prop, tt.raw)
		assert.Equal(t, tt.want, got, "%s %v", tt.prop, tt.raw)
	}
}

func TestImportNodeTable_TruncatesFractionalInteger(t *testing.T) {
	im, s := newImporter(t)
	_, err := im.ImportNodeTable(api.NodeTable{
		Type: "Company", HeaderRow: []string{"id", "employees"},
		ValueRows: [][]string{{"acme", "1.5"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, find(t, s, "Company", "acme").Get("employees").Scalar())
}
