package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/agentic-research/trellis/api"
	_ "modernc.org/sqlite"
)

// LoadSQLiteTable reads table from a SQLite database as a node table of
// typeURI. The id column (or the first column) becomes the identity column;
// the remaining column names are used as property URIs. NULLs become empty
// cells and are skipped on import.
func LoadSQLiteTable(ctx context.Context, dbPath, table, typeURI string) (api.NodeTable, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return api.NodeTable{}, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	defer func() { _ = db.Close() }() // safe to ignore
	return readTable(ctx, db, table, typeURI)
}

// LoadSQLite reads every user table of a SQLite database, one node table
// per database table typed by the table name.
func LoadSQLite(ctx context.Context, dbPath string) ([]api.NodeTable, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	defer func() { _ = db.Close() }() // safe to ignore

	rows, err := db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	tables := make([]api.NodeTable, 0, len(names))
	for _, name := range names {
		tbl, err := readTable(ctx, db, name, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, tbl)
	}
	return tables, nil
}

func readTable(ctx context.Context, db *sql.DB, table, typeURI string) (api.NodeTable, error) {
	tbl := api.NodeTable{Type: typeURI}
	quoted := `"` + strings.ReplaceAll(table, `"`, `""`) + `"`
	rows, err := db.QueryContext(ctx, "SELECT * FROM "+quoted)
	if err != nil {
		return tbl, fmt.Errorf("query %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	cols, err := rows.Columns()
	if err != nil {
		return tbl, fmt.Errorf("columns of %s: %w", table, err)
	}
	// Move the id column to the front.
	order := make([]int, 0, len(cols))
	idIdx := 0
	for i, c := range cols {
		if strings.EqualFold(c, IDColumn) {
			idIdx = i
			break
		}
	}
	order = append(order, idIdx)
	for i := range cols {
		if i != idIdx {
			order = append(order, i)
		}
	}
	tbl.HeaderRow = make([]string, len(cols))
	for i, src := range order {
		tbl.HeaderRow[i] = cols[src]
	}
	tbl.HeaderRow[0] = IDColumn

	raw := make([]sql.NullString, len(cols))
	dest := make([]any, len(cols))
	for i := range raw {
		dest[i] = &raw[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return tbl, fmt.Errorf("scan row: %w", err)
		}
		row := make([]string, len(cols))
		for i, src := range order {
			if raw[src].Valid {
				row[i] = raw[src].String
			}
		}
		tbl.ValueRows = append(tbl.ValueRows, row)
	}
	if err := rows.Err(); err != nil {
		return tbl, fmt.Errorf("iterate rows: %w", err)
	}
	return tbl, nil
}
