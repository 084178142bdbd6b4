// Package query runs ad-hoc SQL over the Parquet datasets using DuckDB.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/traceperf/traceperf/internal/pool"
	"github.com/traceperf/traceperf/pkg/writer"
)

// Engine executes SQL queries using an in-memory DuckDB instance.
type Engine struct {
	db      *sql.DB
	threads int
}

// NewEngine creates a new query engine.
func NewEngine() (*Engine, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("query: initialize duckdb: %w", err)
	}

	e := &Engine{db: db, threads: runtime.NumCPU()}
	e.db.Exec(fmt.Sprintf("SET threads=%d", e.threads))
	return e, nil
}

// Close closes the engine.
func (e *Engine) Close() error {
	return e.db.Close()
}

// RegisterDataset registers the family datasets under dir as the views
// ufs, block and custom. Missing files are skipped so a dataset written
// from a single-family trace still queries cleanly.
func (e *Engine) RegisterDataset(ctx context.Context, dir string) error {
	views := map[string]string{
		"ufs":    filepath.Join(dir, writer.UfsFile),
		"block":  filepath.Join(dir, writer.BlockFile),
		"custom": filepath.Join(dir, writer.CustomFile),
	}
	for name, path := range views {
		stmt := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet('%s')",
			name, strings.ReplaceAll(path, "'", "''"))
		if _, err := e.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("query: register %s: %w", name, err)
		}
	}
	return nil
}

// Query executes a SQL query and returns results.
func (e *Engine) Query(ctx context.Context, stmt string, args ...interface{}) (*Result, error) {
	start := time.Now()
	rows, err := e.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("query: columns: %w", err)
	}
	return &Result{rows: rows, columns: cols, duration: time.Since(start)}, nil
}

// Result represents query results.
type Result struct {
	rows     *sql.Rows
	columns  []string
	duration time.Duration
}

// Columns returns column names.
func (r *Result) Columns() []string { return r.columns }

// Duration returns query duration.
func (r *Result) Duration() time.Duration { return r.duration }

// Next advances to the next row.
func (r *Result) Next() bool { return r.rows.Next() }

// Scan scans the current row.
func (r *Result) Scan(dest ...interface{}) error { return r.rows.Scan(dest...) }

// Err returns any iteration error.
func (r *Result) Err() error { return r.rows.Err() }

// Close releases the result.
func (r *Result) Close() error { return r.rows.Close() }

// RenderAll drains a result into an aligned text table.
func (r *Result) RenderAll() (string, error) {
	defer r.Close()

	var b strings.Builder
	b.WriteString(strings.Join(r.columns, "\t"))
	b.WriteByte('\n')

	vals := make([]interface{}, len(r.columns))
	ptrs := make([]interface{}, len(r.columns))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	var scratch []byte
	for r.Next() {
		if err := r.Scan(ptrs...); err != nil {
			return "", err
		}
		for i, v := range vals {
			if i > 0 {
				b.WriteByte('\t')
			}
			scratch = formatValue(scratch[:0], v)
			b.Write(scratch)
		}
		b.WriteByte('\n')
	}
	return b.String(), r.Err()
}

// formatValue appends one scanned cell to dst. DuckDB hands numerics
// back as int64/float64, which dominate these result sets.
func formatValue(dst []byte, v interface{}) []byte {
	switch x := v.(type) {
	case nil:
		return append(dst, "NULL"...)
	case int64:
		return pool.AppendInt64(dst, x)
	case float64:
		return pool.AppendFloat64(dst, x)
	case bool:
		return strconv.AppendBool(dst, x)
	case string:
		return append(dst, x...)
	case []byte:
		return append(dst, x...)
	default:
		return fmt.Append(dst, x)
	}
}
