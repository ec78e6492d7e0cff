package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeTestConfig(t, "database_url: \"postgres://x\"\njwt_secret: \"s\"\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(100), cfg.TakerFeeBps)
	assert.Equal(t, int64(1), cfg.DefaultTickCents)
	assert.Equal(t, 7777, cfg.Port)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverridesSensitiveFields(t *testing.T) {
	path := writeTestConfig(t, "database_url: \"postgres://file\"\njwt_secret: \"file-secret\"\n")
	t.Setenv("WAGER_DATABASE_URL", "postgres://env")
	t.Setenv("WAGER_JWT_SECRET", "env-secret")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env", cfg.DatabaseURL)
	assert.Equal(t, "env-secret", cfg.JWTSecret)
}

func TestValidate_RejectsOutOfRangeFeeAndMissingFields(t *testing.T) {
	cfg := Config{TakerFeeBps: 501, DefaultTickCents: 1, Port: 7777, DatabaseURL: "x", JWTSecret: "y"}
	assert.Error(t, cfg.Validate())

	cfg = Config{TakerFeeBps: 100, DefaultTickCents: 0, Port: 7777, DatabaseURL: "x", JWTSecret: "y"}
	assert.Error(t, cfg.Validate())

	cfg = Config{TakerFeeBps: 100, DefaultTickCents: 1, Port: 7777, DatabaseURL: "", JWTSecret: "y"}
	assert.Error(t, cfg.Validate())

	cfg = Config{TakerFeeBps: 100, DefaultTickCents: 1, Port: 7777, DatabaseURL: "x", JWTSecret: ""}
	assert.Error(t, cfg.Validate())
}
