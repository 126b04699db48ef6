package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(cfg))

	assert.True(t, cfg.Lending.AnnualRate.Equal(decimal.RequireFromString("0.10")))
	assert.Equal(t, 45, cfg.Lending.FirstInstallmentDays)
	assert.Equal(t, 36, cfg.Lending.MaxTerm)
	assert.Equal(t, 13, cfg.Group.MemberCount)
	assert.True(t, cfg.Lending.PenaltyPerDay.Equal(decimal.RequireFromString("0.5")))
}

func TestMonthlyRate(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "0.0083333333", cfg.Lending.MonthlyRate().Round(10).String())
}

func TestLoadFromConfigFilePath(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  path: test.db
lending:
  annual_rate: "0.11"
  min_principal: "100"
  max_principal: "4000"
  min_term: 1
  max_term: 24
  precancel_fraction: "0.25"
  penalty_per_day: "0.75"
redis:
  lock_ttl: 5s
group:
  member_count: 10
`)

	cfg, err := LoadFromConfigFilePath(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "test.db", cfg.Database.Path)
	assert.True(t, cfg.Lending.AnnualRate.Equal(decimal.RequireFromString("0.11")))
	assert.Equal(t, 24, cfg.Lending.MaxTerm)
	assert.True(t, cfg.Lending.PenaltyPerDay.Equal(decimal.RequireFromString("0.75")))
	assert.Equal(t, 5*time.Second, cfg.Redis.LockTTL)
	assert.Equal(t, 10, cfg.Group.MemberCount)
	// untouched keys keep their defaults
	assert.Equal(t, 45, cfg.Lending.FirstInstallmentDays)
}

func TestLoadFromConfigFilePath_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("LENDING_PENALTY_CAP", "20")
	t.Setenv("GROUP_MEMBER_COUNT", "not-a-number")

	cfg, err := LoadFromConfigFilePath(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.True(t, cfg.Lending.PenaltyCap.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, 13, cfg.Group.MemberCount)
}

func TestLoadFromConfigFilePath_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bounds inverted", "lending:\n  min_principal: \"500\"\n  max_principal: \"100\"\n"},
		{"term inverted", "lending:\n  min_term: 12\n  max_term: 6\n"},
		{"fraction above one", "lending:\n  precancel_fraction: \"1.5\"\n"},
		{"bad log level", "logging:\n  level: verbose\n"},
		{"no members", "group:\n  member_count: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromConfigFilePath(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadFromConfigFilePath_MissingFile(t *testing.T) {
	_, err := LoadFromConfigFilePath(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadFromConfig_FallsBackToDefaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("CONFIG_PATH", "missing.yaml")
	t.Setenv("DATABASE_PATH", "env.db")

	cfg, err := LoadFromConfig()
	require.NoError(t, err)
	assert.Equal(t, "env.db", cfg.Database.Path)
	assert.Equal(t, 8080, cfg.Server.Port)
}
