// Copyright 2025 Ledgercore Contributors
//
// Configuration for the ledger engine's catalog store and off-chain
// object store. DatabaseConfig is a closed sum over the supported
// dialects (no reflection, no runtime type lookup per operation) per
// the REDESIGN FLAGS: resolve the dialect once at construction time.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Dialect identifies one of the closed set of supported catalog back-ends.
type Dialect string

const (
	// DialectSqlite is the embedded, single-file back-end (mattn/go-sqlite3).
	DialectSqlite Dialect = "sqlite"
	// DialectPostgres is a client-server back-end (lib/pq).
	DialectPostgres Dialect = "postgres"
	// DialectMySQL is a client-server back-end (go-sql-driver/mysql).
	DialectMySQL Dialect = "mysql"
	// DialectH2Compat names the fourth required back-end shape (embedded,
	// server-capable). No Go driver for H2 or an equivalent exists in this
	// ecosystem; see DESIGN.md. Accepted by Validate, rejected by
	// database.NewClient with ErrUnsupportedDialect.
	DialectH2Compat Dialect = "h2compat"
)

func (d Dialect) valid() bool {
	switch d {
	case DialectSqlite, DialectPostgres, DialectMySQL, DialectH2Compat:
		return true
	default:
		return false
	}
}

// SchemaMode controls how the catalog schema is reconciled at startup,
// mirroring the hbm2ddlAuto knob named in spec.md §6.
type SchemaMode string

const (
	SchemaValidate   SchemaMode = "validate"
	SchemaUpdate     SchemaMode = "update"
	SchemaCreate     SchemaMode = "create"
	SchemaCreateDrop SchemaMode = "create-drop"
	SchemaNone       SchemaMode = "none"
)

func (m SchemaMode) valid() bool {
	switch m {
	case SchemaValidate, SchemaUpdate, SchemaCreate, SchemaCreateDrop, SchemaNone:
		return true
	default:
		return false
	}
}

// DatabaseConfig is the external configuration value-object named in
// spec.md §6. It is intentionally flat and closed: every recognized
// option has a named field, there is no generic map[string]any escape
// hatch, and dialect-specific behavior is resolved once, when
// database.NewClient picks the driver.
type DatabaseConfig struct {
	Dialect     Dialect
	DatabaseURL string // connection URL/DSN; for Sqlite, a file path (or ":memory:")

	Username string
	Password string // never logged; redacted by Summary()

	PoolMinSize int
	PoolMaxSize int

	ConnectionTimeout time.Duration
	IdleTimeout       time.Duration
	MaxLifetime       time.Duration

	SchemaMode SchemaMode

	ShowSQL          bool
	FormatSQL        bool
	HighlightSQL     bool
	EnableStatistics bool

	// OffChainDir is the directory object-store files are written to.
	OffChainDir string
	// OffChainThresholdBytes is the byte length at or above which a
	// block's payload spills off-chain (spec.md §4.2 step 3).
	OffChainThresholdBytes int
	// InlineCharCeiling bounds the inline (on-chain) payload in characters.
	InlineCharCeiling int
}

// Validate rejects invalid combinations at construction time, per spec.md §6.
func (c *DatabaseConfig) Validate() error {
	var problems []string

	if !c.Dialect.valid() {
		problems = append(problems, fmt.Sprintf("unknown databaseType %q", c.Dialect))
	}
	if c.DatabaseURL == "" {
		problems = append(problems, "databaseUrl must not be empty")
	}
	if c.PoolMinSize < 1 {
		problems = append(problems, "poolMinSize must be >= 1")
	}
	if c.PoolMaxSize < c.PoolMinSize {
		problems = append(problems, "poolMaxSize must be >= poolMinSize")
	}
	if c.ConnectionTimeout < time.Second {
		problems = append(problems, "connectionTimeout must be >= 1000ms")
	}
	if !c.SchemaMode.valid() {
		problems = append(problems, fmt.Sprintf("unknown hbm2ddlAuto %q", c.SchemaMode))
	}
	if c.OffChainDir == "" {
		problems = append(problems, "offChainDir must not be empty")
	}
	if c.OffChainThresholdBytes <= 0 {
		problems = append(problems, "offChainThresholdBytes must be > 0")
	}
	if c.InlineCharCeiling <= 0 {
		problems = append(problems, "inlineCharCeiling must be > 0")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid database configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// Summary renders a log-safe description of the configuration, redacting
// the password the way spec.md §6 requires.
func (c *DatabaseConfig) Summary() string {
	return fmt.Sprintf("dialect=%s url=%s pool=[%d,%d] schema=%s",
		c.Dialect, redactURL(c.DatabaseURL), c.PoolMinSize, c.PoolMaxSize, c.SchemaMode)
}

func redactURL(url string) string {
	if idx := strings.Index(url, "@"); idx != -1 {
		return "***@" + url[idx+1:]
	}
	return url
}

// Load reads configuration from the environment variables named in
// spec.md §6: DB_TYPE, DB_HOST, DB_PORT, DB_NAME, DB_USER, DB_PASSWORD.
func Load() (*DatabaseConfig, error) {
	dialect := Dialect(getEnv("DB_TYPE", string(DialectSqlite)))

	cfg := &DatabaseConfig{
		Dialect:                dialect,
		DatabaseURL:            buildDatabaseURL(dialect),
		Username:               getEnv("DB_USER", ""),
		Password:               getEnv("DB_PASSWORD", ""),
		PoolMinSize:            getEnvInt("LEDGER_POOL_MIN", 1),
		PoolMaxSize:            getEnvInt("LEDGER_POOL_MAX", 10),
		ConnectionTimeout:      getEnvDuration("LEDGER_CONN_TIMEOUT", 20*time.Second),
		IdleTimeout:            getEnvDuration("LEDGER_IDLE_TIMEOUT", 5*time.Minute),
		MaxLifetime:            getEnvDuration("LEDGER_MAX_LIFETIME", time.Hour),
		SchemaMode:             SchemaMode(getEnv("LEDGER_SCHEMA_MODE", string(SchemaUpdate))),
		ShowSQL:                getEnvBool("LEDGER_SHOW_SQL", false),
		FormatSQL:              getEnvBool("LEDGER_FORMAT_SQL", false),
		HighlightSQL:           getEnvBool("LEDGER_HIGHLIGHT_SQL", false),
		EnableStatistics:       getEnvBool("LEDGER_ENABLE_STATS", false),
		OffChainDir:            getEnv("LEDGER_OFFCHAIN_DIR", "off-chain-data"),
		OffChainThresholdBytes: getEnvInt("LEDGER_OFFCHAIN_THRESHOLD", 524288),
		InlineCharCeiling:      getEnvInt("LEDGER_INLINE_CHAR_CEILING", 10000),
	}

	return cfg, nil
}

// buildDatabaseURL assembles a DSN/URL from the individual DB_HOST/DB_PORT/
// DB_NAME fields for client-server dialects, or a file path for Sqlite.
func buildDatabaseURL(dialect Dialect) string {
	switch dialect {
	case DialectPostgres:
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			getEnv("DB_USER", "ledgercore"),
			getEnv("DB_PASSWORD", ""),
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_PORT", "5432"),
			getEnv("DB_NAME", "ledgercore"),
			getEnv("DB_SSL_MODE", "require"),
		)
	case DialectMySQL:
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
			getEnv("DB_USER", "ledgercore"),
			getEnv("DB_PASSWORD", ""),
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_PORT", "3306"),
			getEnv("DB_NAME", "ledgercore"),
		)
	default: // Sqlite, H2Compat
		return getEnv("DB_NAME", "ledgercore.db")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
