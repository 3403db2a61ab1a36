package ingest

import (
	"testing"

	"github.com/agentic-research/trellis/api"
	"github.com/ohler55/ojg/oj"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONWalker(t *testing.T) {
	data, err := oj.ParseString(`{
  "users": [
    {"name": "Alice", "role": "admin"},
    {"name": "Bob", "role": "user"}
  ],
  "meta": {"version": "1.0"}
}`)
	require.NoError(t, err)

	w := NewJSONWalker()

	t.Run("select list of objects", func(t *testing.T) {
		matches, err := w.Query(data, "$.users[*]")
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, map[string]any{"name": "Alice", "role": "admin"}, matches[0])
	})

	t.Run("select primitive", func(t *testing.T) {
		matches, err := w.Query(data, "$.meta.version")
		require.NoError(t, err)
		assert.Equal(t, []any{"1.0"}, matches)
	})
}

func TestParseJSON_Payload(t *testing.T) {
	p, err := ParseJSON([]byte(`{
  "types": [
    {"uri": "Company", "name": "Company", "dataType": "ENTITY", "isAssociation": false},
    {"uri": "revenue", "name": "Revenue", "dataType": "FLOAT"},
    {"uri": "owns", "dataType": "ENTITY", "isAssociation": true, "inverseType": "ownedBy"}
  ],
  "tables": [
    {"type": "Company", "headerRow": ["id", "revenue"], "valueRows": [["acme", 10], ["globex", "20"]]}
  ],
  "nodes": [
    {"id": "initech", "type": "Company", "revenue": 30, "owns": ["acme"]}
  ]
}`), DefaultSelectors)
	require.NoError(t, err)

	require.Len(t, p.Types, 3)
	assert.Equal(t, api.TypeDecl{URI: "owns", DataType: api.Entity, IsAssociation: true, InverseType: "ownedBy"}, p.Types[2])
	require.Len(t, p.Tables, 1)
	assert.Equal(t, [][]string{{"acme", "10"}, {"globex", "20"}}, p.Tables[0].ValueRows)
	require.Len(t, p.Nodes, 1)
	assert.Equal(t, "initech", p.Nodes[0]["id"])
}

func TestParseJSON_ArrayRootIsNodes(t *testing.T) {
	p, err := ParseJSON([]byte(`[{"id": "a", "type": "T"}, {"id": "b"}]`), DefaultSelectors)
	require.NoError(t, err)
	assert.Len(t, p.Nodes, 2)
	assert.Empty(t, p.Types)
}

func TestParseJSON_CustomSelectors(t *testing.T) {
	p, err := ParseJSON([]byte(`{"data": {"schema": [{"uri": "T"}], "records": [{"id": "x", "type": "T"}]}}`),
		Selectors{Types: "$.data.schema[*]", Nodes: "$.data.records[*]"})
	require.NoError(t, err)
	assert.Len(t, p.Types, 1)
	assert.Len(t, p.Nodes, 1)
}

func TestParseJSON_Errors(t *testing.T) {
	_, err := ParseJSON([]byte(`{not json`), DefaultSelectors)
	assert.Error(t, err)

	_, err = ParseJSON([]byte(`{"nodes": [1, 2]}`), DefaultSelectors)
	assert.ErrorIs(t, err, ErrInvalidValue)
}
