// Package sqldb implements the ledger, payment, session, conversation and
// simulator stores on top of database/sql via sqlx. SQLite (modernc) and
// PostgreSQL (uptrace pgdriver) are supported through the dialect package.
package sqldb

import (
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/uptrace/bun/driver/pgdriver"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/promptlink-gateway/internal/core/ports"
	"github.com/tjfontaine/promptlink-gateway/internal/storage/dialect"
)

// Store is a SQL implementation of the gateway's durable stores.
type Store struct {
	db      *sqlx.DB
	dialect dialect.Dialect
}

var (
	_ ports.StorageProvider = (*Store)(nil)
	_ ports.SessionStore    = (*Store)(nil)
)

// Config holds database connection configuration
type Config struct {
	Driver string // Driver name: sqlite, postgres
	DSN    string // Data source name / connection string
}

// New creates a new SQL store with the specified configuration.
func New(cfg Config) (*Store, error) {
	d, err := dialect.FromDriverName(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("unsupported database driver: %w", err)
	}

	db, err := open(d, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Run dialect-specific initialization (e.g., PRAGMA for SQLite)
	for _, stmt := range d.PragmaStatements() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute pragma: %w", err)
		}
	}

	store := &Store{db: db, dialect: d}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// NewSQLite creates a new SQLite store.
func NewSQLite(dbPath string) (*Store, error) {
	return New(Config{Driver: "sqlite", DSN: dbPath})
}

// NewPostgres creates a new PostgreSQL store.
func NewPostgres(dsn string) (*Store, error) {
	return New(Config{Driver: "postgres", DSN: dsn})
}

func open(d dialect.Dialect, dsn string) (*sqlx.DB, error) {
	switch d.Name() {
	case "postgres":
		sqlDB := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		return sqlx.NewDb(sqlDB, "postgres"), nil
	default:
		db, err := sqlx.Open(d.DriverName(), dsn)
		if err != nil {
			return nil, err
		}
		// Pragmas are per connection; a single one also serialises writers.
		db.SetMaxOpenConns(1)
		return db, nil
	}
}

// DB returns the underlying sqlx.DB for advanced operations
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Dialect returns the dialect being used
func (s *Store) Dialect() dialect.Dialect {
	return s.dialect
}

func (s *Store) initSchema() error {
	ts := s.dialect.TimestampType()
	bigint := s.dialect.BigIntType()

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS users (
	user_id TEXT PRIMARY KEY,
	credits %[1]s NOT NULL,
	daily_remaining %[1]s NOT NULL,
	last_reset TEXT NOT NULL,
	plan TEXT NOT NULL,
	created_at %[2]s NOT NULL,
	updated_at %[2]s NOT NULL
)`, bigint, ts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS payments (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	plan_id TEXT NOT NULL,
	amount %[1]s NOT NULL,
	currency TEXT NOT NULL,
	provider_session_id TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at %[2]s NOT NULL,
	completed_at %[2]s
)`, bigint, ts),
		`CREATE INDEX IF NOT EXISTS idx_payments_provider_session ON payments(provider_session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_user ON payments(user_id)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS orchestration_sessions (
	id TEXT PRIMARY KEY,
	mode TEXT NOT NULL,
	user_id TEXT NOT NULL,
	prompt TEXT NOT NULL,
	planned_steps INTEGER NOT NULL,
	current_context TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at %[1]s NOT NULL,
	ended_at %[1]s
)`, ts),
		`CREATE INDEX IF NOT EXISTS idx_orchestration_sessions_started ON orchestration_sessions(started_at)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS orchestration_steps (
	session_id TEXT NOT NULL,
	idx INTEGER NOT NULL,
	pair_index INTEGER NOT NULL,
	role TEXT NOT NULL,
	agent TEXT NOT NULL,
	prompt TEXT NOT NULL,
	output TEXT,
	error TEXT NOT NULL,
	prompt_tokens INTEGER NOT NULL,
	latency_ms %[2]s NOT NULL,
	created_at %[1]s NOT NULL,
	PRIMARY KEY (session_id, idx),
	FOREIGN KEY (session_id) REFERENCES orchestration_sessions(id) ON DELETE CASCADE
)`, ts, bigint),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	agent_id TEXT NOT NULL,
	user_message TEXT NOT NULL,
	agent_reply TEXT NOT NULL,
	created_at %[1]s NOT NULL
)`, ts),
		`CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, created_at)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS simulator_sessions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	mode TEXT NOT NULL,
	personality TEXT NOT NULL,
	strategy TEXT NOT NULL,
	instructions TEXT NOT NULL,
	prompt TEXT NOT NULL,
	rounds INTEGER NOT NULL,
	cost %[2]s NOT NULL,
	created_at %[1]s NOT NULL
)`, ts, bigint),
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
