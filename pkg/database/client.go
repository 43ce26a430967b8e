// Copyright 2025 Ledgercore Contributors
//
// Database Client for the ledger catalog store.
// Provides connection pooling, health checks, and migration support
// across the closed set of supported dialects.

package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"sort"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver

	"github.com/tamperledger/ledgercore/pkg/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUnsupportedDialect is returned (wrapped) by NewClient for a dialect with no
// registered driver in this build (see DESIGN.md: DialectH2Compat).
var ErrUnsupportedDialect = fmt.Errorf("database: dialect has no registered driver in this build")

// driverName maps a closed Dialect to the database/sql driver name
// registered by that dialect's blank import above.
func driverName(d config.Dialect) (string, error) {
	switch d {
	case config.DialectPostgres:
		return "postgres", nil
	case config.DialectMySQL:
		return "mysql", nil
	case config.DialectSqlite:
		return "sqlite3", nil
	default:
		return "", ErrUnsupportedDialect
	}
}

// Client represents a database client with connection pooling.
type Client struct {
	db      *sql.DB
	dialect config.Dialect
	cfg     *config.DatabaseConfig
	logger  *log.Logger
}

// ClientOption is a functional option for configuring the client.
type ClientOption func(*Client)

// WithLogger sets a custom logger for the client.
func WithLogger(logger *log.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new database client with connection pooling.
func NewClient(cfg *config.DatabaseConfig, opts ...ClientOption) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	driver, err := driverName(cfg.Dialect)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Dialect, err)
	}

	client := &Client{
		dialect: cfg.Dialect,
		cfg:     cfg,
		logger:  log.New(log.Writer(), "[Database] ", log.LstdFlags),
	}

	for _, opt := range opts {
		opt(client)
	}

	db, err := sql.Open(driver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.PoolMaxSize)
	db.SetMaxIdleConns(cfg.PoolMinSize)
	db.SetConnMaxIdleTime(cfg.IdleTimeout)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	client.db = db

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	client.logger.Printf("Connected to %s database (pool=[%d,%d])",
		cfg.Dialect, cfg.PoolMinSize, cfg.PoolMaxSize)

	return client, nil
}

// Dialect reports which back-end this client is bound to.
func (c *Client) Dialect() config.Dialect {
	return c.dialect
}

// Rebind rewrites a query written in Postgres-style `$1, $2, ...`
// placeholders into the target dialect's native placeholder syntax.
// Postgres and Sqlite accept `$N` natively in modern driver versions,
// but MySQL requires positional `?`; queries are always written in `$N`
// form in this codebase and rebound once here rather than duplicated
// per-dialect.
func (c *Client) Rebind(query string) string {
	if c.dialect != config.DialectMySQL {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		if query[i] == '$' {
			j := i + 1
			for j < len(query) && query[j] >= '0' && query[j] <= '9' {
				j++
			}
			if j > i+1 {
				b.WriteByte('?')
				i = j - 1
				continue
			}
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// DB returns the underlying *sql.DB for direct access.
func (c *Client) DB() *sql.DB {
	return c.db
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		c.logger.Println("Closing database connection")
		return c.db.Close()
	}
	return nil
}

// Ping verifies the database connection is alive.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Health returns database health information.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	status := &HealthStatus{
		CheckedAt: time.Now(),
	}

	if err := c.db.PingContext(ctx); err != nil {
		status.Healthy = false
		status.Error = err.Error()
		return status, nil
	}

	stats := c.db.Stats()
	status.Healthy = true
	status.OpenConnections = stats.OpenConnections
	status.InUse = stats.InUse
	status.Idle = stats.Idle
	status.WaitCount = stats.WaitCount
	status.WaitDuration = stats.WaitDuration
	status.MaxOpenConnections = stats.MaxOpenConnections

	if versionQuery, ok := versionQueryFor(c.dialect); ok {
		var version string
		if err := c.db.QueryRowContext(ctx, versionQuery).Scan(&version); err == nil {
			status.Version = version
		}
	}

	return status, nil
}

func versionQueryFor(d config.Dialect) (string, bool) {
	switch d {
	case config.DialectPostgres:
		return "SELECT version()", true
	case config.DialectMySQL:
		return "SELECT version()", true
	case config.DialectSqlite:
		return "SELECT sqlite_version()", true
	default:
		return "", false
	}
}

// HealthStatus represents the health status of the database.
type HealthStatus struct {
	Healthy            bool          `json:"healthy"`
	Error              string        `json:"error,omitempty"`
	Version            string        `json:"version,omitempty"`
	OpenConnections    int           `json:"open_connections"`
	InUse              int           `json:"in_use"`
	Idle               int           `json:"idle"`
	WaitCount          int64         `json:"wait_count"`
	WaitDuration       time.Duration `json:"wait_duration"`
	MaxOpenConnections int           `json:"max_open_connections"`
	CheckedAt          time.Time     `json:"checked_at"`
}

// ============================================================================
// MIGRATION SUPPORT
// ============================================================================

// MigrateUp runs all pending database migrations.
func (c *Client) MigrateUp(ctx context.Context) error {
	if c.cfg.SchemaMode == config.SchemaNone {
		c.logger.Println("Schema mode is none; skipping migrations")
		return nil
	}

	c.logger.Println("Running database migrations...")

	migrations, err := c.getMigrations()
	if err != nil {
		return fmt.Errorf("failed to get migrations: %w", err)
	}

	applied, err := c.getAppliedMigrations(ctx)
	if err != nil {
		if !strings.Contains(err.Error(), "does not exist") && !strings.Contains(err.Error(), "no such table") {
			return fmt.Errorf("failed to get applied migrations: %w", err)
		}
		applied = make(map[string]bool)
	}

	for _, migration := range migrations {
		if applied[migration.Version] {
			c.logger.Printf("  Skipping %s (already applied)", migration.Version)
			continue
		}

		c.logger.Printf("  Applying %s...", migration.Version)
		if err := c.applyMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}
		c.logger.Printf("  Applied %s successfully", migration.Version)
	}

	c.logger.Println("Migrations complete")
	return nil
}

// Migration represents a database migration.
type Migration struct {
	Version  string
	Filename string
	SQL      string
}

// getMigrations reads all migration files from the embedded filesystem.
func (c *Client) getMigrations() ([]Migration, error) {
	var migrations []Migration

	err := fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".sql") {
			return nil
		}

		content, err := migrationsFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		filename := d.Name()
		version := strings.TrimSuffix(filename, ".sql")

		migrations = append(migrations, Migration{
			Version:  version,
			Filename: filename,
			SQL:      string(content),
		})
		return nil
	})

	if err != nil {
		return nil, err
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// getAppliedMigrations returns a map of already applied migration versions.
func (c *Client) getAppliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}

	return applied, rows.Err()
}

// applyMigration applies a single migration in a transaction.
func (c *Client) applyMigration(ctx context.Context, migration Migration) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	// The migration SQL records itself in schema_migrations with a plain
	// INSERT; MigrateUp skips versions already recorded there.

	return tx.Commit()
}

// MigrationStatus returns the status of all migrations.
func (c *Client) MigrationStatus(ctx context.Context) ([]MigrationInfo, error) {
	migrations, err := c.getMigrations()
	if err != nil {
		return nil, fmt.Errorf("failed to get migrations: %w", err)
	}

	applied, err := c.getAppliedMigrations(ctx)
	if err != nil {
		if !strings.Contains(err.Error(), "does not exist") && !strings.Contains(err.Error(), "no such table") {
			return nil, fmt.Errorf("failed to get applied migrations: %w", err)
		}
		applied = make(map[string]bool)
	}

	var status []MigrationInfo
	for _, m := range migrations {
		status = append(status, MigrationInfo{
			Version: m.Version,
			Applied: applied[m.Version],
		})
	}

	return status, nil
}

// MigrationInfo represents the status of a single migration.
type MigrationInfo struct {
	Version string `json:"version"`
	Applied bool   `json:"applied"`
}

// ============================================================================
// TRANSACTION SUPPORT
// ============================================================================

// Tx represents a database transaction, bound to the client that opened it
// so repositories can rebind placeholders consistently inside and outside
// a transaction.
type Tx struct {
	tx     *sql.Tx
	client *Client
}

// BeginTx starts a new READ COMMITTED transaction. That is Postgres's
// default and the only meaningful level for Sqlite's single-writer model;
// MySQL defaults to REPEATABLE READ, so it is asked for READ COMMITTED
// explicitly.
func (c *Client) BeginTx(ctx context.Context) (*Tx, error) {
	var opts *sql.TxOptions
	if c.dialect == config.DialectMySQL {
		opts = &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	}
	tx, err := c.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Tx{tx: tx, client: c}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback rolls back the transaction.
func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

// Tx returns the underlying *sql.Tx for direct access.
func (t *Tx) Tx() *sql.Tx {
	return t.tx
}

// ExecContext executes a rebound query within the transaction.
func (t *Tx) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.client.Rebind(query), args...)
}

// QueryContext executes a rebound query within the transaction.
func (t *Tx) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, t.client.Rebind(query), args...)
}

// QueryRowContext executes a rebound query within the transaction.
func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.client.Rebind(query), args...)
}

// ============================================================================
// QUERY HELPERS (outside a transaction)
// ============================================================================

// ExecContext executes a rebound query that doesn't return rows.
func (c *Client) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return c.db.ExecContext(ctx, c.Rebind(query), args...)
}

// QueryContext executes a rebound query that returns rows.
func (c *Client) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return c.db.QueryContext(ctx, c.Rebind(query), args...)
}

// QueryRowContext executes a rebound query that returns at most one row.
func (c *Client) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return c.db.QueryRowContext(ctx, c.Rebind(query), args...)
}

// LastInsertIDSupported reports whether the dialect reliably provides
// sql.Result.LastInsertId (Postgres requires a RETURNING clause instead).
func (c *Client) LastInsertIDSupported() bool {
	return c.dialect == config.DialectMySQL || c.dialect == config.DialectSqlite
}
