package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB represents the database connection with pooling
type DB struct {
	*sql.DB
	pool     *ConnectionPool
	prepared map[string]*sql.Stmt
	mutex    sync.RWMutex
}

// ConnectionPool manages database connection pooling
type ConnectionPool struct {
	db           *sql.DB
	maxOpenConns int
	maxIdleConns int
	maxLifetime  time.Duration
}

// NewConnectionPool creates a new database connection pool
func NewConnectionPool(db *sql.DB, maxOpen, maxIdle int, maxLifetime time.Duration) *ConnectionPool {
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)

	return &ConnectionPool{
		db:           db,
		maxOpenConns: maxOpen,
		maxIdleConns: maxIdle,
		maxLifetime:  maxLifetime,
	}
}

// GetStats returns connection pool statistics
func (cp *ConnectionPool) GetStats() map[string]interface{} {
	stats := cp.db.Stats()

	return map[string]interface{}{
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"max_open_connections": cp.maxOpenConns,
		"max_idle_connections": cp.maxIdleConns,
		"max_lifetime_seconds": cp.maxLifetime.Seconds(),
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
		"max_idle_closed":      stats.MaxIdleClosed,
		"max_lifetime_closed":  stats.MaxLifetimeClosed,
	}
}

// NewDB creates a new database connection with optimized pooling
func NewDB(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "coredev_finance.db")

	connStr := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pool := NewConnectionPool(db, 25, 5, 5*time.Minute)

	database := &DB{
		DB:       db,
		pool:     pool,
		prepared: make(map[string]*sql.Stmt),
	}

	if err := database.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := database.initPreparedStatements(); err != nil {
		return nil, fmt.Errorf("failed to initialize prepared statements: %w", err)
	}

	slog.Info("Database initialized with connection pooling",
		"max_open_conns", pool.maxOpenConns,
		"max_idle_conns", pool.maxIdleConns,
		"max_lifetime", pool.maxLifetime)

	return database, nil
}

// migrate creates the necessary tables
func (db *DB) migrate() error {
	queries := []string{
		// Platform users (admin surface)
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT,
			role TEXT NOT NULL DEFAULT 'member',
			is_active BOOLEAN DEFAULT TRUE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		// Loan markets: scalar columns for filtering/indexing, full record
		// as JSON payload
		`CREATE TABLE IF NOT EXISTS markets (
			id TEXT PRIMARY KEY,
			borrower TEXT NOT NULL,
			loan_amount REAL NOT NULL,
			interest_rate_bps INTEGER NOT NULL,
			state TEXT NOT NULL,
			trust_score INTEGER NOT NULL,
			risk_score REAL NOT NULL,
			created_at DATETIME NOT NULL,
			funding_deadline DATETIME NOT NULL,
			payload TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		// Borrower reputation snapshots for the admin surface
		`CREATE TABLE IF NOT EXISTS borrower_profiles (
			address TEXT PRIMARY KEY,
			github_handle TEXT,
			trust_score INTEGER NOT NULL,
			risk_category TEXT NOT NULL,
			successful_loans INTEGER NOT NULL DEFAULT 0,
			defaulted_loans INTEGER NOT NULL DEFAULT 0,
			is_verified BOOLEAN DEFAULT FALSE,
			is_active BOOLEAN DEFAULT TRUE,
			updated_at DATETIME NOT NULL
		)`,

		// Indexes for performance
		`CREATE INDEX IF NOT EXISTS idx_markets_state ON markets(state)`,
		`CREATE INDEX IF NOT EXISTS idx_markets_borrower ON markets(borrower)`,
		`CREATE INDEX IF NOT EXISTS idx_markets_created ON markets(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_markets_trust ON markets(trust_score DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_profiles_trust ON borrower_profiles(trust_score DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_users_active ON users(is_active)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}

// initPreparedStatements initializes frequently used prepared statements
func (db *DB) initPreparedStatements() error {
	statements := map[string]string{
		"upsert_market": `INSERT INTO markets (
			id, borrower, loan_amount, interest_rate_bps, state, trust_score,
			risk_score, created_at, funding_deadline, payload, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			borrower = excluded.borrower,
			loan_amount = excluded.loan_amount,
			interest_rate_bps = excluded.interest_rate_bps,
			state = excluded.state,
			trust_score = excluded.trust_score,
			risk_score = excluded.risk_score,
			funding_deadline = excluded.funding_deadline,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,

		"get_market": `SELECT payload FROM markets WHERE id = ?`,

		"list_markets": `SELECT payload FROM markets ORDER BY created_at DESC, id ASC`,

		"upsert_profile": `INSERT INTO borrower_profiles (
			address, github_handle, trust_score, risk_category,
			successful_loans, defaulted_loans, is_verified, is_active, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			github_handle = excluded.github_handle,
			trust_score = excluded.trust_score,
			risk_category = excluded.risk_category,
			successful_loans = excluded.successful_loans,
			defaulted_loans = excluded.defaulted_loans,
			is_verified = excluded.is_verified,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,

		"insert_user": `INSERT INTO users (id, email, role, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,

		"list_users": `SELECT id, email, role, is_active, created_at, updated_at
			FROM users ORDER BY created_at DESC LIMIT ?`,

		"set_user_active": `UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`,
	}

	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, query := range statements {
		stmt, err := db.Prepare(query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement %s: %w", name, err)
		}
		db.prepared[name] = stmt

		slog.Debug("Prepared statement initialized", "name", name)
	}

	return nil
}

// GetPreparedStatement retrieves a prepared statement
func (db *DB) GetPreparedStatement(name string) (*sql.Stmt, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	stmt, exists := db.prepared[name]
	if !exists {
		return nil, fmt.Errorf("prepared statement %s not found", name)
	}

	return stmt, nil
}

// GetPoolStats returns database connection pool statistics
func (db *DB) GetPoolStats() map[string]interface{} {
	return db.pool.GetStats()
}

// Close closes the database connection and prepared statements
func (db *DB) Close() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, stmt := range db.prepared {
		if err := stmt.Close(); err != nil {
			slog.Warn("Failed to close prepared statement", "name", name, "error", err)
		}
	}

	db.prepared = make(map[string]*sql.Stmt)

	return db.DB.Close()
}
