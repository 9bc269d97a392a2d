package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port            string `yaml:"port"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // json or text
	} `yaml:"log"`
	Redis struct {
		Addr       string `yaml:"addr"`
		Password   string `yaml:"password"`
		DB         int    `yaml:"db"`
		TTL        string `yaml:"ttl"`
		ResultsTTL string `yaml:"results_ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	RabbitMQ struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"rabbitmq"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		Issuer    string `yaml:"issuer"`
		Leeway    string `yaml:"leeway"`
	} `yaml:"auth"`
	Engine struct {
		Exclusivity      string  `yaml:"exclusivity"` // per_quiz or per_host
		DefaultTimeLimit string  `yaml:"default_time_limit"`
		RevealInterval   string  `yaml:"reveal_interval"`
		PresenceGrace    string  `yaml:"presence_grace"`
		Retention        string  `yaml:"retention"`
		QueueSize        int     `yaml:"queue_size"`
		MaxSendFailures  int     `yaml:"max_send_failures"`
		MaxChatLength    int     `yaml:"max_chat_length"`
		Scoring          string  `yaml:"scoring"` // speed or flat
		BasePoints       int     `yaml:"base_points"`
		MinSpeedFactor   float64 `yaml:"min_speed_factor"`
		Results          struct {
			MaxRetries      uint64 `yaml:"max_retries"`
			InitialInterval string `yaml:"initial_interval"`
			MaxInterval     string `yaml:"max_interval"`
			AttemptTimeout  string `yaml:"attempt_timeout"`
		} `yaml:"results"`
	} `yaml:"engine"`
	Gateway struct {
		JoinTimeout     string   `yaml:"join_timeout"`
		WriteTimeout    string   `yaml:"write_timeout"`
		PongWait        string   `yaml:"pong_wait"`
		OutboxSize      int      `yaml:"outbox_size"`
		MaxMessageBytes int64    `yaml:"max_message_bytes"`
		AllowedOrigins  []string `yaml:"allowed_origins"`
	} `yaml:"gateway"`
}

// Load reads YAML config from path and applies environment overrides. A
// missing file yields an empty config so the engine can run on env alone.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Postgres.URL = v
	}
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		c.RabbitMQ.URL = v
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
