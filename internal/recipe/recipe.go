// Package recipe loads and runs YAML recipes: named steps that select
// nodes by path, filter them, combine earlier steps with set operations,
// derive associations, run path analysis and aggregate or group the result.
package recipe

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentic-research/trellis/api"
	"gopkg.in/yaml.v3"
)

var ErrInvalidRecipe = errors.New("invalid recipe")

// Recipe is a named list of steps plus the input files they run against.
type Recipe struct {
	Name string `yaml:"name"`

	// Inputs are payload files (JSON, CSV, HCL, SQLite). Relative paths are
	// resolved against the recipe file's directory by Load.
	Inputs []string `yaml:"inputs,omitempty"`

	Steps []Step `yaml:"steps"`
}

// Step produces a node list. Exactly one source is used: a query (applied
// to From's nodes when set, else to the store), From alone, or one set
// operation over earlier steps.
type Step struct {
	Name string `yaml:"name"`

	Query string `yaml:"query,omitempty"`
	From  string `yaml:"from,omitempty"`

	Union     []string `yaml:"union,omitempty"`
	Intersect []string `yaml:"intersect,omitempty"`
	Subtract  []string `yaml:"subtract,omitempty"`

	// Filters are ANDed in order.
	Filters []api.FilterDescriptor `yaml:"filters,omitempty"`

	Derive       *Derive       `yaml:"derive,omitempty"`
	PathAnalysis *PathAnalysis `yaml:"pathAnalysis,omitempty"`

	// GroupBy dices the nodes by each dimension in turn.
	GroupBy   []string            `yaml:"groupBy,omitempty"`
	Aggregate *api.AggregatorSpec `yaml:"aggregate,omitempty"`

	// Attributes are the paths printed per node.
	Attributes []string `yaml:"attributes,omitempty"`
}

// Derive configures association derivation over the step's nodes.
type Derive struct {
	Path      string `yaml:"path"`
	As        string `yaml:"as"`
	Recursive bool   `yaml:"recursive,omitempty"`
}

// PathAnalysis configures path analysis from the step's nodes.
type PathAnalysis struct {
	Association string              `yaml:"association"`
	Upstream    *api.AggregatorSpec `yaml:"upstream,omitempty"`
	Downstream  *api.AggregatorSpec `yaml:"downstream,omitempty"`
}

// Load reads a recipe file and resolves its inputs relative to it.
func Load(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipe file: %w", err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	base := filepath.Dir(path)
	for i, in := range r.Inputs {
		if !filepath.IsAbs(in) {
			r.Inputs[i] = filepath.Join(base, in)
		}
	}
	return r, nil
}

// Parse decodes and validates a recipe. Unknown fields are rejected.
func Parse(data []byte) (*Recipe, error) {
	var r Recipe
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate checks step names, sources and references to earlier steps.
func (r *Recipe) Validate() error {
	if len(r.Steps) == 0 {
		return fmt.Errorf("%w: no steps", ErrInvalidRecipe)
	}
	seen := make(map[string]bool, len(r.Steps))
	for i, s := range r.Steps {
		if s.Name == "" {
			return fmt.Errorf("%w: step %d has no name", ErrInvalidRecipe, i)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: duplicate step %q", ErrInvalidRecipe, s.Name)
		}

		sources := 0
		if s.Query != "" || s.From != "" {
			sources++
		}
		for _, refs := range [][]string{s.Union, s.Intersect, s.Subtract} {
			if len(refs) > 0 {
				sources++
			}
		}
		if sources != 1 {
			return fmt.Errorf("%w: step %q needs exactly one of query/from, union, intersect, subtract", ErrInvalidRecipe, s.Name)
		}

		refs := append(append(append([]string{}, s.Union...), s.Intersect...), s.Subtract...)
		if s.From != "" {
			refs = append(refs, s.From)
		}
		for _, ref := range refs {
			if !seen[ref] {
				return fmt.Errorf("%w: step %q refers to unknown or later step %q", ErrInvalidRecipe, s.Name, ref)
			}
		}
		if s.Derive != nil && (s.Derive.Path == "" || s.Derive.As == "") {
			return fmt.Errorf("%w: step %q derive needs path and as", ErrInvalidRecipe, s.Name)
		}
		if s.PathAnalysis != nil && s.PathAnalysis.Association == "" {
			return fmt.Errorf("%w: step %q pathAnalysis needs an association", ErrInvalidRecipe, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}
