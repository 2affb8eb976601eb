package database

import (
	"errors"
	"fmt"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPostgresConfig(t *testing.T) {
	cfg := DefaultPostgresConfig()

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, int32(25), cfg.MaxConns)
	assert.Equal(t, 3, cfg.MaxRetries)
}

func TestPostgresConfig_DSN(t *testing.T) {
	cfg := &PostgresConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "app",
		Password: "pw",
		Database: "hotel",
		SSLMode:  "require",
	}

	assert.Equal(t, "host=db.internal port=5433 user=app password=pw dbname=hotel sslmode=require", cfg.DSN())
}

func TestPgErrorClassification(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: UniqueViolationCode})
	serialization := &pgconn.PgError{Code: SerializationFailureCode}
	deadlock := &pgconn.PgError{Code: DeadlockDetectedCode}
	plain := errors.New("boom")

	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsUniqueViolation(plain))
	assert.True(t, IsRetryable(serialization))
	assert.True(t, IsRetryable(deadlock))
	assert.False(t, IsRetryable(unique))
	assert.Equal(t, "", PgErrorCode(plain))
}

func TestPoolExhausted(t *testing.T) {
	assert.False(t, poolExhausted(3, 10, 5, 1))
	assert.False(t, poolExhausted(10, 10, 5, 0), "busy but nobody gave up")
	assert.True(t, poolExhausted(10, 10, 5, 2))
	assert.False(t, poolExhausted(0, 0, 0, 0))
}

func TestMigrationFiles_Sorted(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_payments.sql": {Data: []byte("SELECT 2")},
		"0001_init.sql":     {Data: []byte("SELECT 1")},
		"README.md":         {Data: []byte("docs")},
		"nested/0003.sql":   {Data: []byte("SELECT 3")},
	}

	files, err := migrationFiles(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_init.sql", "0002_payments.sql"}, files)
}
