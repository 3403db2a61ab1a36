package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/agentic-research/trellis/api"
)

// ReadCSV reads a node table of typeURI whose first record is the header.
func ReadCSV(r io.Reader, typeURI string) (api.NodeTable, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return api.NodeTable{}, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return api.NodeTable{}, fmt.Errorf("%w: csv for %s has no header", ErrInvalidValue, typeURI)
	}
	return api.NodeTable{Type: typeURI, HeaderRow: records[0], ValueRows: records[1:]}, nil
}

// LoadCSV reads a CSV file as a node table of typeURI.
func LoadCSV(path, typeURI string) (api.NodeTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return api.NodeTable{}, err
	}
	defer func() { _ = f.Close() }() // safe to ignore
	tbl, err := ReadCSV(f, typeURI)
	if err != nil {
		return tbl, fmt.Errorf("%s: %w", path, err)
	}
	return tbl, nil
}
