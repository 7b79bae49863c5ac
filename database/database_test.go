package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDriver(t *testing.T) {
	tests := map[string]string{
		"mysql":      DriverMySQL,
		"MariaDB":    DriverMySQL,
		"postgresql": DriverPostgres,
		"pg":         DriverPostgres,
		"sqlite":     DriverSQLite,
		" sqlite3 ":  DriverSQLite,
	}
	for in, want := range tests {
		got, err := NormalizeDriver(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := NormalizeDriver("oracle")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	q := "UPDATE users SET active = ? WHERE userId = ?"
	assert.Equal(t, q, (&DB{driver: DriverMySQL}).Rebind(q))
	assert.Equal(t, q, (&DB{driver: DriverSQLite}).Rebind(q))
	assert.Equal(t, "UPDATE users SET active = $1 WHERE userId = $2", (&DB{driver: DriverPostgres}).Rebind(q))
}

func TestOpenSQLiteMemory(t *testing.T) {
	db, err := Open(context.Background(), "sqlite", ":memory:", 5)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, DriverSQLite, db.Driver())
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM users").Scan(&n))
	assert.Zero(t, n)

	require.NoError(t, db.Migrate(context.Background()))
}

func TestOpenSQLiteFileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "clickfit.db")
	db, err := Open(context.Background(), "sqlite3", path, 0)
	require.NoError(t, err)
	require.NoError(t, db.Close())
	assert.FileExists(t, path)
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "x", 1)
	assert.Error(t, err)

	_, err = Open(context.Background(), "sqlite3", "", 1)
	assert.Error(t, err)

	_, err = Open(context.Background(), "mysql", "not a dsn", 1)
	assert.Error(t, err)
}

func TestIsUniqueViolation(t *testing.T) {
	db, err := Open(context.Background(), "sqlite3", ":memory:", 1)
	require.NoError(t, err)
	defer db.Close()

	insert := "INSERT INTO users (email, password) VALUES (?, ?)"
	_, err = db.Exec(insert, "a@b.co", "x")
	require.NoError(t, err)
	_, err = db.Exec(insert, "a@b.co", "y")
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	assert.True(t, IsUniqueViolation(fmt.Errorf("wrapped: %w", &mysql.MySQLError{Number: 1062})))
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
}
