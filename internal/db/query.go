package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Manjussha/chunkd/internal/chunker"
)

// Column describes one result column. The chunking engine treats this as
// opaque schema; only the API caller interprets it.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ExecuteQuery runs a SQL statement and returns the result as a record-set
// payload: ordered rows, column schema, and source metadata. Row order
// follows the statement's ORDER BY (or SQLite's natural order) and is
// preserved exactly.
func (d *DB) ExecuteQuery(ctx context.Context, query string) (*chunker.Payload, error) {
	start := time.Now()

	// Scoped connection: released on every exit path, success or error.
	conn, err := d.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("db.ExecuteQuery: acquire conn: %w", err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db.ExecuteQuery: %w", err)
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("db.ExecuteQuery: column types: %w", err)
	}
	schema := make([]Column, len(colTypes))
	for i, ct := range colTypes {
		schema[i] = Column{Name: ct.Name(), Type: ct.DatabaseTypeName()}
	}

	var data []chunker.Row
	for rows.Next() {
		vals := make([]any, len(colTypes))
		ptrs := make([]any, len(colTypes))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("db.ExecuteQuery: scan: %w", err)
		}
		row := make(chunker.Row, len(colTypes))
		for i, ct := range colTypes {
			row[ct.Name()] = normalizeValue(vals[i])
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db.ExecuteQuery: rows: %w", err)
	}
	// The connection cannot take the audit insert while the result set is
	// still open on it.
	rows.Close()

	logQuery(ctx, conn, query, len(data), time.Since(start))

	return &chunker.Payload{
		Data:   data,
		Schema: schema,
		Extra: map[string]any{
			"source_query": query,
			"row_count":    len(data),
		},
	}, nil
}

// ListTables returns all user table names, sorted.
func (d *DB) ListTables(ctx context.Context) ([]string, error) {
	rows, err := d.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type='table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("db.ListTables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("db.ListTables: scan: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// DescribeTable returns the column schema of a table. The name is validated
// against the catalog before being interpolated into the PRAGMA.
func (d *DB) DescribeTable(ctx context.Context, table string) ([]Column, error) {
	tables, err := d.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	known := false
	for _, t := range tables {
		if t == table {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("db.DescribeTable: no such table: %s", table)
	}

	rows, err := d.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%q)`, table))
	if err != nil {
		return nil, fmt.Errorf("db.DescribeTable: %w", err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("db.DescribeTable: scan: %w", err)
		}
		cols = append(cols, Column{Name: name, Type: ctype})
	}
	return cols, rows.Err()
}

// ListQueryLog returns the most recent audit entries, newest first.
func (d *DB) ListQueryLog(ctx context.Context, limit int) ([]QueryLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.QueryContext(ctx, `
		SELECT id, query, row_count, duration_ms, created_at
		FROM query_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("db.ListQueryLog: %w", err)
	}
	defer rows.Close()

	var entries []QueryLogEntry
	for rows.Next() {
		var e QueryLogEntry
		if err := rows.Scan(&e.ID, &e.Query, &e.RowCount, &e.DurationMS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("db.ListQueryLog: scan: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// logQuery records an executed statement in the audit table. Best effort —
// a failed audit write never fails the query itself. It runs on the caller's
// scoped connection: going back to the pool here would wait on the single
// connection the caller still holds.
func logQuery(ctx context.Context, conn *sql.Conn, query string, rowCount int, dur time.Duration) {
	_, _ = conn.ExecContext(ctx,
		`INSERT INTO query_log (query, row_count, duration_ms) VALUES (?,?,?)`,
		query, rowCount, dur.Milliseconds(),
	)
}

// normalizeValue converts driver values into JSON-friendly forms. SQLite
// returns TEXT as []byte through the generic scan path.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	default:
		return v
	}
}
