// Package tracedb maintains a local SQLite index of trace metadata so
// correlation scans do not hammer the tracking server with repeated
// search calls.
package tracedb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/tracewise/insights/internal/tracking"
)

// DB is a local trace index backed by SQLite.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the index at path and initializes the schema.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db: db}, nil
}

// OpenMemory opens an in-memory index, used by tests.
func OpenMemory() (*DB, error) {
	db, err := sql.Open("sqlite3", "file::memory:?_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}

// IndexTraces upserts trace metadata and tags in a single transaction.
func (d *DB) IndexTraces(ctx context.Context, traces []*tracking.Trace) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	infoStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trace_info (trace_id, experiment_id, request_time, duration_ms, state, request_preview, response_preview)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trace_id) DO UPDATE SET
			experiment_id = excluded.experiment_id,
			request_time = excluded.request_time,
			duration_ms = excluded.duration_ms,
			state = excluded.state,
			request_preview = excluded.request_preview,
			response_preview = excluded.response_preview
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare trace_info insert: %w", err)
	}
	defer infoStmt.Close()

	tagStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trace_tags (trace_id, key, value)
		VALUES (?, ?, ?)
		ON CONFLICT(trace_id, key) DO UPDATE SET value = excluded.value
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare trace_tags insert: %w", err)
	}
	defer tagStmt.Close()

	for _, tr := range traces {
		info := tr.Info
		_, err := infoStmt.ExecContext(ctx,
			info.TraceID,
			info.ExperimentID,
			info.RequestTime.UnixMilli(),
			info.ExecutionDurationMS,
			string(info.State),
			info.RequestPreview,
			info.ResponsePreview,
		)
		if err != nil {
			return fmt.Errorf("failed to index trace %s: %w", info.TraceID, err)
		}
		for key, value := range info.Tags {
			if _, err := tagStmt.ExecContext(ctx, info.TraceID, key, value); err != nil {
				return fmt.Errorf("failed to index tag %s on trace %s: %w", key, info.TraceID, err)
			}
		}
	}

	return tx.Commit()
}

// CountTraces returns the number of indexed traces for an experiment.
// An empty experimentID counts the whole index.
func (d *DB) CountTraces(ctx context.Context, experimentID string) (int64, error) {
	query := "SELECT COUNT(*) FROM trace_info"
	args := []any{}
	if experimentID != "" {
		query += " WHERE experiment_id = ?"
		args = append(args, experimentID)
	}

	var count int64
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count traces: %w", err)
	}
	return count, nil
}

// CountByState returns the number of indexed traces in a given state.
func (d *DB) CountByState(ctx context.Context, experimentID string, state tracking.TraceState) (int64, error) {
	query := "SELECT COUNT(*) FROM trace_info WHERE state = ?"
	args := []any{string(state)}
	if experimentID != "" {
		query += " AND experiment_id = ?"
		args = append(args, experimentID)
	}

	var count int64
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count traces by state: %w", err)
	}
	return count, nil
}

// TagValueCount is the number of traces carrying one tag value.
type TagValueCount struct {
	Value string
	Count int64
}

// TagValueCounts returns the distinct values of a tag key within an
// experiment, most frequent first.
func (d *DB) TagValueCounts(ctx context.Context, experimentID, key string) ([]TagValueCount, error) {
	query := `
		SELECT t.value, COUNT(*) AS n
		FROM trace_tags t
		JOIN trace_info i ON i.trace_id = t.trace_id
		WHERE t.key = ?`
	args := []any{key}
	if experimentID != "" {
		query += " AND i.experiment_id = ?"
		args = append(args, experimentID)
	}
	query += " GROUP BY t.value ORDER BY n DESC, t.value"

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tag values: %w", err)
	}
	defer rows.Close()

	var out []TagValueCount
	for rows.Next() {
		var tvc TagValueCount
		if err := rows.Scan(&tvc.Value, &tvc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan tag value row: %w", err)
		}
		out = append(out, tvc)
	}
	return out, rows.Err()
}

// countTagValueInState counts traces carrying key=value that are also
// in the given state.
func (d *DB) countTagValueInState(ctx context.Context, experimentID, key, value string, state tracking.TraceState) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM trace_tags t
		JOIN trace_info i ON i.trace_id = t.trace_id
		WHERE t.key = ? AND t.value = ? AND i.state = ?`
	args := []any{key, value, string(state)}
	if experimentID != "" {
		query += " AND i.experiment_id = ?"
		args = append(args, experimentID)
	}

	var count int64
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tag intersection: %w", err)
	}
	return count, nil
}
