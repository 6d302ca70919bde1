package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/qustavo/dotsql"
)

//go:embed queries/*.sql
var queriesFS embed.FS

// Queries runs the named statements of queries/*.sql ("-- name: get-segment").
// Statements are written with ? placeholders and rebound for the driver once,
// at load time.
type Queries struct {
	db         *sqlx.DB
	statements map[string]string
}

// LoadQueries parses the embedded query files for db.
func LoadQueries(db *sqlx.DB) (*Queries, error) {
	paths, err := fs.Glob(queriesFS, "queries/*.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to list query files: %w", err)
	}

	var combined strings.Builder
	for _, path := range paths {
		content, err := queriesFS.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		combined.Write(content)
		combined.WriteByte('\n')
	}

	dot, err := dotsql.LoadFromString(combined.String())
	if err != nil {
		return nil, fmt.Errorf("failed to parse queries: %w", err)
	}

	statements := make(map[string]string)
	for name := range dot.QueryMap() {
		query, err := dot.Raw(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read query %s: %w", name, err)
		}
		statements[name] = db.Rebind(query)
	}
	return &Queries{db: db, statements: statements}, nil
}

// DB returns the underlying connection for dynamically built statements.
func (q *Queries) DB() *sqlx.DB {
	return q.db
}

func (q *Queries) statement(name string) (string, error) {
	query, ok := q.statements[name]
	if !ok {
		return "", fmt.Errorf("query not found: %s", name)
	}
	return query, nil
}

// ExecContext executes a named statement.
func (q *Queries) ExecContext(ctx context.Context, name string, args ...interface{}) (sql.Result, error) {
	query, err := q.statement(name)
	if err != nil {
		return nil, err
	}
	return q.db.ExecContext(ctx, query, args...)
}

// GetContext scans one row of a named query into dest.
func (q *Queries) GetContext(ctx context.Context, name string, dest interface{}, args ...interface{}) error {
	query, err := q.statement(name)
	if err != nil {
		return err
	}
	return q.db.GetContext(ctx, dest, query, args...)
}

// SelectContext scans all rows of a named query into dest.
func (q *Queries) SelectContext(ctx context.Context, name string, dest interface{}, args ...interface{}) error {
	query, err := q.statement(name)
	if err != nil {
		return err
	}
	return q.db.SelectContext(ctx, dest, query, args...)
}
