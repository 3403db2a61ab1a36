package api

// DataType names the scalar kind of a declared type.
type DataType string

const (
	Integer  DataType = "INTEGER"
	Float    DataType = "FLOAT"
	Boolean  DataType = "BOOLEAN"
	String   DataType = "STRING"
	DateTime DataType = "DATETIME"
	Entity   DataType = "ENTITY"
)

// TypeDecl declares one entry of the type dictionary.
type TypeDecl struct {
	// URI identifies the type. Property keys on nodes are type URIs.
	URI  string `json:"uri" yaml:"uri"`
	Name string `json:"name" yaml:"name"`
	// DataType of the values stored under this type when used as a property.
	DataType DataType `json:"dataType" yaml:"dataType"`
	// IsAssociation marks a to-many edge type.
	IsAssociation bool `json:"isAssociation" yaml:"isAssociation"`
	// SubClassOf is the optional single super-type URI.
	SubClassOf string `json:"subClassOf,omitempty" yaml:"subClassOf,omitempty"`
	// InverseType is the association added on the target when this one is added.
	InverseType string `json:"inverseType,omitempty" yaml:"inverseType,omitempty"`
}

// NodeTable is a tabular import batch for one node type.
// HeaderRow[0] is always the identity column. Other columns are property
// URIs, optionally suffixed "->TargetTypeUri" for association columns.
type NodeTable struct {
	Type      string     `json:"type" yaml:"type"`
	HeaderRow []string   `json:"headerRow" yaml:"headerRow"`
	ValueRows [][]string `json:"valueRows" yaml:"valueRows"`
}

// RawNode is a flat {id, type, <propertyUri>: value} object. Association
// values may be a single id, a list of ids, or embedded RawNode objects.
type RawNode map[string]any

// Reserved keys of a RawNode.
const (
	RawID   = "id"
	RawType = "type"
)

// Aggregation computes one target field from a source attribute path.
type Aggregation struct {
	Attribute string `json:"attribute" yaml:"attribute"`
	// Calculate is one of sum, min, max, avg, count.
	Calculate string `json:"calculate" yaml:"calculate"`
}

// AggregatorSpec is the declarative form of an aggregator.
type AggregatorSpec struct {
	Aggregations map[string]Aggregation `json:"aggregations" yaml:"aggregations"`
	// Texts are derived templates with {{field}} placeholders.
	Texts map[string]string `json:"texts,omitempty" yaml:"texts,omitempty"`
}

// FilterDescriptor is a single-key object {attributeUri: "<opSymbol> <operand>"}.
type FilterDescriptor map[string]string

// Payload bundles the three import shapes delivered by the backend.
type Payload struct {
	Types  []TypeDecl  `json:"types,omitempty" yaml:"types,omitempty"`
	Tables []NodeTable `json:"tables,omitempty" yaml:"tables,omitempty"`
	Nodes  []RawNode   `json:"nodes,omitempty" yaml:"nodes,omitempty"`
}

// Merge appends the sections of other onto p.
func (p *Payload) Merge(other *Payload) {
	if other == nil {
		return
	}
	p.Types = append(p.Types, other.Types...)
	p.Tables = append(p.Tables, other.Tables...)
	p.Nodes = append(p.Nodes, other.Nodes...)
}
