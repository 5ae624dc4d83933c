// Package warehouse generates the baseline census by running a fixed
// set of analytical queries against a trace table. The SQL warehouse
// itself stays external; callers supply an Executor.
package warehouse

import "context"

// Row is one result row keyed by column name.
type Row map[string]any

// Executor runs a SQL query against the trace warehouse and returns
// its rows. Implementations wrap the warehouse connector (Databricks
// SQL, a JDBC gateway, a local mirror).
type Executor interface {
	ExecuteQuery(ctx context.Context, query string) ([]Row, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, query string) ([]Row, error)

// ExecuteQuery calls f.
func (f ExecutorFunc) ExecuteQuery(ctx context.Context, query string) ([]Row, error) {
	return f(ctx, query)
}
