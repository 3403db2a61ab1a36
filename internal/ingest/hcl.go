package ingest

import (
	"fmt"

	"github.com/agentic-research/trellis/api"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// hclTypesFile is the decoding shape of a type dictionary written in HCL:
//
//	type "revenue" {
//	  name      = "Revenue"
//	  data_type = "FLOAT"
//	}
type hclTypesFile struct {
	Types []*hclType `hcl:"type,block"`
}

type hclType struct {
	URI           string `hcl:"uri,label"`
	Name          string `hcl:"name,optional"`
	DataType      string `hcl:"data_type,optional"`
	IsAssociation bool   `hcl:"association,optional"`
	SubClassOf    string `hcl:"subclass_of,optional"`
	InverseType   string `hcl:"inverse,optional"`
}

// LoadTypesHCL parses a type dictionary file.
func LoadTypesHCL(path string) ([]api.TypeDecl, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}
	return decodeTypes(path, file)
}

// ParseTypesHCL parses type declarations from src; filename is used in
// diagnostics only.
func ParseTypesHCL(src []byte, filename string) ([]api.TypeDecl, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	return decodeTypes(filename, file)
}

func decodeTypes(filename string, file *hcl.File) ([]api.TypeDecl, error) {
	var parsed hclTypesFile
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}
	decls := make([]api.TypeDecl, 0, len(parsed.Types))
	for _, t := range parsed.Types {
		decls = append(decls, api.TypeDecl{
			URI:           t.URI,
			Name:          t.Name,
			DataType:      api.DataType(t.DataType),
			IsAssociation: t.IsAssociation,
			SubClassOf:    t.SubClassOf,
			InverseType:   t.InverseType,
		})
	}
	return decls, nil
}
