package ingest

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/agentic-research/trellis/api"
)

// Loader reads one input file into a payload.
type Loader func(ctx context.Context, path string) (*api.Payload, error)

// loaders maps a lower-case file extension to its loader. CSV and SQLite
// tables are typed by the file or table name.
var loaders = map[string]Loader{
	".json": func(_ context.Context, path string) (*api.Payload, error) {
		return LoadJSON(path)
	},
	".csv": func(_ context.Context, path string) (*api.Payload, error) {
		tbl, err := LoadCSV(path, baseName(path))
		if err != nil {
			return nil, err
		}
		return &api.Payload{Tables: []api.NodeTable{tbl}}, nil
	},
	".hcl": func(_ context.Context, path string) (*api.Payload, error) {
		decls, err := LoadTypesHCL(path)
		if err != nil {
			return nil, err
		}
		return &api.Payload{Types: decls}, nil
	},
	".db":     loadSQLitePayload,
	".sqlite": loadSQLitePayload,
}

func loadSQLitePayload(ctx context.Context, path string) (*api.Payload, error) {
	tables, err := LoadSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	return &api.Payload{Tables: tables}, nil
}

// LoaderFor returns the loader registered for path's extension.
func LoaderFor(path string) (Loader, bool) {
	l, ok := loaders[strings.ToLower(filepath.Ext(path))]
	return l, ok
}

func baseName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
