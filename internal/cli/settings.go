package cli

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"live-quiz-engine/internal/app"
	"live-quiz-engine/internal/config"
	transport "live-quiz-engine/internal/transport/http"
)

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Log.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func engineConfig(cfg config.Config) app.EngineConfig {
	d := app.DefaultEngineConfig()
	e := cfg.Engine

	out := app.EngineConfig{
		Policy: d.Policy,
		Session: app.SessionConfig{
			DefaultTimeLimit: config.TTLDuration(e.DefaultTimeLimit, d.Session.DefaultTimeLimit),
			RevealInterval:   config.TTLDuration(e.RevealInterval, d.Session.RevealInterval),
			PresenceGrace:    config.TTLDuration(e.PresenceGrace, d.Session.PresenceGrace),
			Retention:        config.TTLDuration(e.Retention, d.Session.Retention),
			QueueSize:        e.QueueSize,
			MaxSendFailures:  e.MaxSendFailures,
			MaxChatLength:    e.MaxChatLength,
			Scoring:          d.Session.Scoring,
		},
		Results: app.RetryPolicy{
			MaxRetries:      d.Results.MaxRetries,
			InitialInterval: config.TTLDuration(e.Results.InitialInterval, d.Results.InitialInterval),
			MaxInterval:     config.TTLDuration(e.Results.MaxInterval, d.Results.MaxInterval),
			AttemptTimeout:  config.TTLDuration(e.Results.AttemptTimeout, d.Results.AttemptTimeout),
		},
	}
	if e.Exclusivity != "" {
		out.Policy = app.ExclusivityPolicy(e.Exclusivity)
	}
	if e.Results.MaxRetries > 0 {
		out.Results.MaxRetries = e.Results.MaxRetries
	}
	if e.Scoring != "" {
		out.Session.Scoring.Policy = app.ScoringPolicy(e.Scoring)
	}
	if e.BasePoints > 0 {
		out.Session.Scoring.BasePoints = e.BasePoints
	}
	if e.MinSpeedFactor > 0 {
		out.Session.Scoring.MinFactor = e.MinSpeedFactor
	}
	return out
}

func gatewayConfig(cfg config.Config) transport.GatewayConfig {
	d := transport.DefaultGatewayConfig()
	g := cfg.Gateway
	return transport.GatewayConfig{
		JoinTimeout:     config.TTLDuration(g.JoinTimeout, d.JoinTimeout),
		WriteTimeout:    config.TTLDuration(g.WriteTimeout, d.WriteTimeout),
		PongWait:        config.TTLDuration(g.PongWait, d.PongWait),
		RequestTimeout:  d.RequestTimeout,
		OutboxSize:      g.OutboxSize,
		MaxMessageBytes: g.MaxMessageBytes,
		AllowedOrigins:  g.AllowedOrigins,
	}
}

func shutdownTimeout(cfg config.Config) time.Duration {
	return config.TTLDuration(cfg.Server.ShutdownTimeout, 15*time.Second)
}
