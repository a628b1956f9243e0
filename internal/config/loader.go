package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultConfigFile = "config.yaml"

// Load returns a Config built from defaults, the YAML file at path and
// TRAFFICWATCH_* environment variables, in that order. A missing file is
// not an error. The result has passed Validate.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, path); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadYAML(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// loadEnv overlays environment variables onto cfg. Empty or unparsable
// values leave the current setting alone.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Host, "TRAFFICWATCH_HOST")
	setInt(&cfg.Server.Port, "TRAFFICWATCH_PORT")
	setList(&cfg.Server.AllowedOrigins, "TRAFFICWATCH_ALLOWED_ORIGINS")
	setDuration(&cfg.Server.ShutdownTimeout, "TRAFFICWATCH_SHUTDOWN_TIMEOUT")

	setBool(&cfg.Generator.Enabled, "TRAFFICWATCH_GENERATOR_ENABLED")
	setFloat64(&cfg.Generator.SuspiciousProbability, "TRAFFICWATCH_SUSPICIOUS_PROBABILITY")
	setDuration(&cfg.Generator.MinInterval, "TRAFFICWATCH_MIN_INTERVAL")
	setDuration(&cfg.Generator.MaxInterval, "TRAFFICWATCH_MAX_INTERVAL")
	setInt(&cfg.Generator.MinSize, "TRAFFICWATCH_MIN_SIZE")
	setInt(&cfg.Generator.MaxSize, "TRAFFICWATCH_MAX_SIZE")
	setList(&cfg.Generator.Protocols, "TRAFFICWATCH_PROTOCOLS")

	setInt(&cfg.Stats.MilestoneInterval, "TRAFFICWATCH_MILESTONE_INTERVAL")

	setInt(&cfg.Broadcast.QueueSize, "TRAFFICWATCH_QUEUE_SIZE")
	setInt(&cfg.Broadcast.MaxSessions, "TRAFFICWATCH_MAX_SESSIONS")
	setDuration(&cfg.Broadcast.WriteTimeout, "TRAFFICWATCH_WRITE_TIMEOUT")
	setDuration(&cfg.Broadcast.PingInterval, "TRAFFICWATCH_PING_INTERVAL")

	setInt64(&cfg.Ingest.MaxBodyBytes, "TRAFFICWATCH_MAX_BODY_BYTES")
	setDuration(&cfg.Ingest.IdempotencyTTL, "TRAFFICWATCH_IDEMPOTENCY_TTL")
	setBool(&cfg.Ingest.Redis.Enabled, "TRAFFICWATCH_REDIS_ENABLED")
	setString(&cfg.Ingest.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Ingest.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Ingest.Redis.DB, "TRAFFICWATCH_REDIS_DB")
	setString(&cfg.Ingest.Redis.Channel, "TRAFFICWATCH_REDIS_CHANNEL")

	setBool(&cfg.Relay.NATS.Enabled, "TRAFFICWATCH_NATS_ENABLED")
	setString(&cfg.Relay.NATS.URL, "NATS_URL")
	setString(&cfg.Relay.NATS.Subject, "TRAFFICWATCH_NATS_SUBJECT")

	setString(&cfg.Logging.Level, "TRAFFICWATCH_LOG_LEVEL")
	setString(&cfg.Logging.Format, "TRAFFICWATCH_LOG_FORMAT")

	setString(&cfg.Frontend.Dir, "TRAFFICWATCH_FRONTEND_DIR")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
