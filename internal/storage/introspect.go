// Package storage reads table and column names out of a live database so they
// can be written as a schema document.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb" // DuckDB driver
	_ "github.com/microsoft/go-mssqldb" // SQL Server driver
	_ "modernc.org/sqlite"              // SQLite driver

	"github.com/kyleking/current/internal/errors"
	"github.com/kyleking/current/internal/schema"
)

// Driver names accepted in configuration
const (
	DriverDuckDB    = "duckdb"
	DriverSQLite    = "sqlite"
	DriverSQLServer = "sqlserver"
)

// columnQueries return (table, column) rows in table then ordinal order
var columnQueries = map[string]string{
	DriverDuckDB: `
	SELECT table_name, column_name
	FROM information_schema.columns
	WHERE table_schema = current_schema()
	ORDER BY table_name, ordinal_position`,

	DriverSQLite: `
	SELECT m.name, p.name
	FROM sqlite_master AS m
	JOIN pragma_table_info(m.name) AS p
	WHERE m.type IN ('table', 'view') AND m.name NOT LIKE 'sqlite_%'
	ORDER BY m.name, p.cid`,

	DriverSQLServer: `
	SELECT TABLE_NAME, COLUMN_NAME
	FROM INFORMATION_SCHEMA.COLUMNS
	WHERE TABLE_SCHEMA = SCHEMA_NAME()
	ORDER BY TABLE_NAME, ORDINAL_POSITION`,
}

// Introspector reads the table catalog of one database
type Introspector struct {
	db           *sql.DB
	driver       string
	queryTimeout time.Duration
}

// Options controls the connection pool
type Options struct {
	MaxConnections  int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
}

// Open connects to dsn with the given driver and verifies the connection
func Open(ctx context.Context, driver, dsn string, opts Options) (*Introspector, error) {
	driver = strings.ToLower(driver)
	if _, ok := columnQueries[driver]; !ok {
		return nil, errors.Newf(errors.ErrTypeValidation, "unsupported database driver: %s", driver).
			WithSuggestion("Use one of duckdb, sqlite or sqlserver")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to open database")
	}

	if opts.MaxConnections > 0 {
		db.SetMaxOpenConns(opts.MaxConnections)
		db.SetMaxIdleConns(opts.MaxConnections)
	}

	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx := ctx
	if opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, opts.QueryTimeout)
		defer cancel()
	}

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to ping database")
	}

	return &Introspector{db: db, driver: driver, queryTimeout: opts.QueryTimeout}, nil
}

// NewIntrospector wraps an open database handle
func NewIntrospector(db *sql.DB, driver string, queryTimeout time.Duration) (*Introspector, error) {
	driver = strings.ToLower(driver)
	if _, ok := columnQueries[driver]; !ok {
		return nil, errors.Newf(errors.ErrTypeValidation, "unsupported database driver: %s", driver)
	}

	return &Introspector{db: db, driver: driver, queryTimeout: queryTimeout}, nil
}

// Driver returns the driver name
func (i *Introspector) Driver() string {
	return i.driver
}

// DB exposes the underlying handle
func (i *Introspector) DB() *sql.DB {
	return i.db
}

// Describe reads every table and column in the current schema
func (i *Introspector) Describe(ctx context.Context) (*schema.Descriptor, error) {
	if i.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.queryTimeout)
		defer cancel()
	}

	rows, err := i.db.QueryContext(ctx, columnQueries[i.driver])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to query columns")
	}
	defer rows.Close()

	var tables []schema.Table
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to scan column")
		}

		if n := len(tables); n == 0 || tables[n-1].Name != table {
			tables = append(tables, schema.Table{Name: table})
		}

		last := &tables[len(tables)-1]
		last.Columns = append(last.Columns, column)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to read columns")
	}

	d, err := schema.New(tables)
	if err != nil {
		return nil, fmt.Errorf("database returned an invalid catalog: %w", err)
	}

	return d, nil
}

// Close closes the database connection
func (i *Introspector) Close() error {
	if i.db != nil {
		return i.db.Close()
	}

	return nil
}
