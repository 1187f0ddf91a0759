package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode: release
server:
  addr: ":9000"
database:
  driver: postgres
  host: db
  port: 5432
auth:
  jwt_secret: from-file
  access_ttl: 15m
lending:
  loan_period_days: 21
`), 0o600))
	t.Setenv("LIBRARY_DB_HOST", "override")
	t.Setenv("LIBRARY_DB_PORT", "6543")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "postgres", cfg.DB.Driver)
	assert.Equal(t, "override", cfg.DB.Host)
	assert.Equal(t, 6543, cfg.DB.Port)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 24*time.Hour, cfg.Auth.RefreshTTL)
	assert.Equal(t, 21, cfg.Lending.LoanPeriodDays)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("LIBRARY_DB_DRIVER", "sqlite3")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.Mode)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "data/library.db", cfg.DB.Path)
	assert.Equal(t, 14, cfg.Lending.LoanPeriodDays)
	assert.NotEmpty(t, cfg.Auth.JWTSecret)
}

func TestValidate(t *testing.T) {
	t.Setenv("LIBRARY_MODE", "release")
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "jwt_secret")

	t.Setenv("LIBRARY_JWT_SECRET", "s")
	t.Setenv("LIBRARY_DB_DRIVER", "oracle")
	_, err = Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "unsupported database driver")

	t.Setenv("LIBRARY_MODE", "staging")
	t.Setenv("LIBRARY_DB_DRIVER", "mysql")
	_, err = Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "mode must be")
}
