package db

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultStateDir   = ".touchline"
	defaultSQLiteFile = "touchline.sqlite"
)

type SQLiteConfig struct {
	BusyTimeoutMs int
	WAL           bool
	ForeignKeys   bool
}

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Config selects the driver and its connection settings. With the sqlite
// driver an empty DSN means the per-user state directory; any explicit
// DSN (a file path, or ":memory:") is used as given.
type Config struct {
	Driver      string
	DSN         string
	Pool        PoolConfig
	SQLite      SQLiteConfig
	AutoMigrate bool
}

// DefaultConfig is single-writer sqlite. One open connection keeps
// sqlite's writer lock uncontended; WAL lets reads proceed alongside it.
func DefaultConfig() Config {
	return Config{
		Driver: "sqlite",
		Pool: PoolConfig{
			MaxOpenConns: 1,
			MaxIdleConns: 1,
		},
		SQLite: SQLiteConfig{
			BusyTimeoutMs: 5000,
			WAL:           true,
			ForeignKeys:   true,
		},
		AutoMigrate: true,
	}
}

// ResolveSQLiteDSN turns an empty DSN into $HOME/.touchline/touchline.sqlite,
// creating the directory if needed.
func ResolveSQLiteDSN(dsn string) (string, error) {
	if dsn = strings.TrimSpace(dsn); dsn != "" {
		return dsn, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	stateDir := filepath.Join(home, defaultStateDir)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(stateDir, defaultSQLiteFile), nil
}
