// Package database opens the Postgres connection used by the report store
// and applies the embedded schema migrations.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Config configures the connection pool.
type Config struct {
	// DSN is a postgres:// URL or a key=value connection string.
	DSN string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

func (c *Config) setDefaults() {
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = time.Minute
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
}

// Database wraps the primary connection pool.
type Database struct {
	Primary *sql.DB
	name    string
	dsn     string
}

// Open connects and pings the database.
func Open(ctx context.Context, cfg Config) (*Database, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database DSN is empty")
	}
	cfg.setDefaults()
	name, err := DatabaseName(cfg.DSN)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	conn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Database{Primary: conn, name: name, dsn: cfg.DSN}, nil
}

// Name returns the database name from the DSN.
func (db *Database) Name() string { return db.name }

// Exec runs a write statement.
func (db *Database) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.Primary.ExecContext(ctx, query, args...)
}

// Ping checks connectivity.
func (db *Database) Ping(ctx context.Context) error {
	if err := db.Primary.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// Close closes the pool.
func (db *Database) Close() error { return db.Primary.Close() }

// WithTransaction runs fn inside a transaction, rolling back on error or panic.
func (db *Database) WithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.Primary.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DatabaseName extracts dbname from a URL or key=value DSN.
func DatabaseName(dsn string) (string, error) {
	kv := dsn
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		converted, err := pq.ParseURL(dsn)
		if err != nil {
			return "", fmt.Errorf("invalid database URL: %w", err)
		}
		kv = converted
	}
	for _, field := range strings.Fields(kv) {
		if v, ok := strings.CutPrefix(field, "dbname="); ok {
			return strings.Trim(v, "'"), nil
		}
	}
	return "", errors.New("database DSN does not name a database")
}
