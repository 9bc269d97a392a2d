package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"live-quiz-engine/internal/app"
	"live-quiz-engine/internal/config"
)

func TestEngineConfigDefaults(t *testing.T) {
	got := engineConfig(config.Config{})
	require.Equal(t, app.DefaultEngineConfig().Policy, got.Policy)
	require.Equal(t, app.DefaultEngineConfig().Session.RevealInterval, got.Session.RevealInterval)
	require.Equal(t, app.DefaultEngineConfig().Results, got.Results)
	require.Equal(t, app.ScoringSpeed, got.Session.Scoring.Policy)
}

func TestEngineConfigOverrides(t *testing.T) {
	var cfg config.Config
	cfg.Engine.Exclusivity = "per_host"
	cfg.Engine.PresenceGrace = "20s"
	cfg.Engine.Scoring = "flat"
	cfg.Engine.BasePoints = 100
	cfg.Engine.Results.MaxRetries = 2
	cfg.Engine.Results.InitialInterval = "50ms"

	got := engineConfig(cfg)
	require.Equal(t, app.PolicyPerHost, got.Policy)
	require.Equal(t, 20*time.Second, got.Session.PresenceGrace)
	require.Equal(t, app.ScoringFlat, got.Session.Scoring.Policy)
	require.Equal(t, 100, got.Session.Scoring.BasePoints)
	require.Equal(t, uint64(2), got.Results.MaxRetries)
	require.Equal(t, 50*time.Millisecond, got.Results.InitialInterval)
}

func TestGatewayConfigParsesDurations(t *testing.T) {
	var cfg config.Config
	cfg.Gateway.JoinTimeout = "3s"
	cfg.Gateway.AllowedOrigins = []string{"https://quiz.example"}

	got := gatewayConfig(cfg)
	require.Equal(t, 3*time.Second, got.JoinTimeout)
	require.Equal(t, []string{"https://quiz.example"}, got.AllowedOrigins)
}
