// Package database opens the relational store behind the users API.
//
// MySQL, PostgreSQL and SQLite are supported. Queries are written with '?'
// placeholders and rebound for drivers that number their parameters.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Driver names accepted by Open.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

const (
	defaultMaxIdleConns    = 2
	defaultConnMaxIdleTime = 5 * time.Minute
	pingTimeout            = 5 * time.Second
)

// DB is a connection pool bound to one driver.
type DB struct {
	*sql.DB
	driver string
}

// NormalizeDriver maps common aliases onto a registered driver name.
func NormalizeDriver(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "mysql", "mariadb":
		return DriverMySQL, nil
	case "postgres", "postgresql", "pg":
		return DriverPostgres, nil
	case "sqlite3", "sqlite":
		return DriverSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Open connects to dsn, verifies the connection and creates the schema.
func Open(ctx context.Context, driver, dsn string, maxConns int) (*DB, error) {
	driver, err := NormalizeDriver(driver)
	if err != nil {
		return nil, err
	}
	if dsn == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}

	switch driver {
	case DriverMySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("invalid mysql DSN: %w", err)
		}
		cfg.ParseTime = true
		dsn = cfg.FormatDSN()
	case DriverSQLite:
		if err := ensureSQLiteDir(dsn); err != nil {
			return nil, err
		}
	}

	pool, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	if driver == DriverSQLite {
		// One connection keeps an in-memory database alive and serializes
		// writers.
		pool.SetMaxOpenConns(1)
	} else {
		if maxConns <= 0 {
			maxConns = 10
		}
		pool.SetMaxOpenConns(maxConns)
		pool.SetMaxIdleConns(defaultMaxIdleConns)
		pool.SetConnMaxIdleTime(defaultConnMaxIdleTime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.PingContext(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}

	db := &DB{DB: pool, driver: driver}
	if err := db.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return db, nil
}

func ensureSQLiteDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || strings.Contains(path, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}
	return nil
}

// Driver returns the normalized driver name.
func (db *DB) Driver() string {
	return db.driver
}

// Rebind rewrites '?' placeholders into the driver's syntax.
func (db *DB) Rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Migrate creates the users table when it does not exist.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, usersSchema[db.driver]); err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	return nil
}

// IsUniqueViolation reports whether err is a duplicate key error from any
// supported driver.
func IsUniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

var usersSchema = map[string]string{
	DriverMySQL: `CREATE TABLE IF NOT EXISTS users (
		userId INT AUTO_INCREMENT PRIMARY KEY,
		email VARCHAR(255) NOT NULL UNIQUE,
		password VARCHAR(255) NOT NULL,
		type ENUM('admin', 'user') NOT NULL DEFAULT 'user',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		createdAt TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		updatedAt TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6)
	)`,
	DriverPostgres: `CREATE TABLE IF NOT EXISTS users (
		userId SERIAL PRIMARY KEY,
		email VARCHAR(255) NOT NULL UNIQUE,
		password VARCHAR(255) NOT NULL,
		type VARCHAR(16) NOT NULL DEFAULT 'user' CHECK (type IN ('admin', 'user')),
		active BOOLEAN NOT NULL DEFAULT TRUE,
		createdAt TIMESTAMPTZ NOT NULL DEFAULT now(),
		updatedAt TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	DriverSQLite: `CREATE TABLE IF NOT EXISTS users (
		userId INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT 'user' CHECK (type IN ('admin', 'user')),
		active BOOLEAN NOT NULL DEFAULT 1,
		createdAt TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updatedAt TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}
