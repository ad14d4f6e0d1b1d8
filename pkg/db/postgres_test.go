package db

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dbEnvVars = []string{
	"DB_HOST", "DB_PORT", "DB_NAME", "DB_USER", "DB_PASSWORD",
	"DB_SSLMODE", "DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS",
	"DB_CONN_MAX_LIFETIME", "DB_CONN_MAX_IDLE_TIME",
}

// clearDBEnv blanks every DB_* variable for the duration of the test.
func clearDBEnv(t *testing.T) {
	t.Helper()
	for _, key := range dbEnvVars {
		t.Setenv(key, "")
	}
}

func TestNewConfigFromEnv(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want Config
	}{
		{
			name: "defaults",
			want: Config{
				Host: "localhost", Port: 5432, Database: "questboard", User: "postgres",
				SSLMode: "disable", MaxOpenConns: 25, MaxIdleConns: 5,
				ConnMaxLifetime: 300 * time.Second, ConnMaxIdleTime: 300 * time.Second,
			},
		},
		{
			name: "overrides",
			env: map[string]string{
				"DB_HOST": "guildhall.internal", "DB_PORT": "6432", "DB_NAME": "board",
				"DB_USER": "clerk", "DB_PASSWORD": "hunter2", "DB_SSLMODE": "require",
				"DB_MAX_OPEN_CONNS": "40", "DB_MAX_IDLE_CONNS": "8",
				"DB_CONN_MAX_LIFETIME": "600", "DB_CONN_MAX_IDLE_TIME": "60",
			},
			want: Config{
				Host: "guildhall.internal", Port: 6432, Database: "board", User: "clerk",
				Password: "hunter2", SSLMode: "require", MaxOpenConns: 40, MaxIdleConns: 8,
				ConnMaxLifetime: 600 * time.Second, ConnMaxIdleTime: 60 * time.Second,
			},
		},
		{
			name: "malformed integers fall back",
			env:  map[string]string{"DB_PORT": "fivefourthreetwo", "DB_MAX_OPEN_CONNS": "lots"},
			want: Config{
				Host: "localhost", Port: 5432, Database: "questboard", User: "postgres",
				SSLMode: "disable", MaxOpenConns: 25, MaxIdleConns: 5,
				ConnMaxLifetime: 300 * time.Second, ConnMaxIdleTime: 300 * time.Second,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearDBEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			assert.Equal(t, tt.want, *NewConfigFromEnv())
		})
	}
}

func TestConfig_DSN(t *testing.T) {
	cfg := &Config{
		Host:     "db.example.com",
		Port:     5433,
		Database: "questboard",
		User:     "guild",
		Password: "secret",
		SSLMode:  "require",
	}

	assert.Equal(t, "host=db.example.com port=5433 dbname=questboard user=guild password=secret sslmode=require", cfg.DSN())
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := &Config{
		Host: "127.0.0.1", Port: 1, Database: "questboard", User: "nobody",
		SSLMode: "disable", MaxOpenConns: 1, MaxIdleConns: 1,
	}

	conn, err := Connect(cfg)

	assert.Nil(t, conn)
	assert.ErrorContains(t, err, "failed to ping database")
}

func TestHealth_NilDB(t *testing.T) {
	assert.ErrorContains(t, Health(nil), "database unhealthy")
}

func TestConnectAndHealth_Integration(t *testing.T) {
	if os.Getenv("DB_HOST") == "" {
		t.Skip("Skipping integration test: DB_HOST not set")
	}

	cfg := NewConfigFromEnv()
	cfg.MaxOpenConns = 3
	conn, err := Connect(cfg)
	require.NoError(t, err)

	assert.NoError(t, Health(conn))
	assert.Equal(t, 3, conn.Stats().MaxOpenConnections)

	require.NoError(t, conn.Close())
	assert.ErrorContains(t, Health(conn), "database unhealthy")
}
