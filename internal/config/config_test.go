package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadReadsSectionsAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
server:
  port: "9000"
redis:
  addr: localhost:6379
  ttl: 5m
engine:
  exclusivity: per_host
  reveal_interval: 3s
  results:
    max_retries: 4
gateway:
  allowed_origins: ["https://quiz.example"]
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))
	t.Setenv("PORT", "")
	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "9000", cfg.Server.Port)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.Equal(t, "per_host", cfg.Engine.Exclusivity)
	require.Equal(t, uint64(4), cfg.Engine.Results.MaxRetries)
	require.Equal(t, []string{"https://quiz.example"}, cfg.Gateway.AllowedOrigins)
	require.Equal(t, "from-env", cfg.Auth.JWTSecret)
	require.Equal(t, 3*time.Second, TTLDuration(cfg.Engine.RevealInterval, time.Second))
}

func TestLoadMissingFileUsesEnv(t *testing.T) {
	t.Setenv("PORT", "7070")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, "7070", cfg.Server.Port)
}

func TestTTLDurationFallback(t *testing.T) {
	require.Equal(t, time.Minute, TTLDuration("", time.Minute))
	require.Equal(t, time.Minute, TTLDuration("soon", time.Minute))
	require.Equal(t, 90*time.Second, TTLDuration("90s", time.Minute))
}
