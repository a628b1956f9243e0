package config

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig matches every ConfigError via errors.Is.
var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigError reports a setting the process cannot start with.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// Validate returns every violation joined into one error, or nil.
func (c *Config) Validate() error {
	var errs []error
	bad := func(field, format string, args ...any) {
		errs = append(errs, &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		bad("server.port", "%d is out of range", c.Server.Port)
	}

	if err := c.Generator.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.Stats.MilestoneInterval < 1 {
		bad("stats.milestone_interval", "must be >= 1, got %d", c.Stats.MilestoneInterval)
	}
	if c.Broadcast.QueueSize < 1 {
		bad("broadcast.queue_size", "must be >= 1, got %d", c.Broadcast.QueueSize)
	}
	if c.Broadcast.MaxSessions < 0 {
		bad("broadcast.max_sessions", "must be >= 0, got %d", c.Broadcast.MaxSessions)
	}
	if c.Ingest.MaxBodyBytes < 1 {
		bad("ingest.max_body_bytes", "must be >= 1, got %d", c.Ingest.MaxBodyBytes)
	}
	if c.Ingest.Redis.Enabled && c.Ingest.Redis.Channel == "" {
		bad("ingest.redis.channel", "required when redis ingest is enabled")
	}
	if c.Relay.NATS.Enabled && c.Relay.NATS.Subject == "" {
		bad("relay.nats.subject", "required when the nats relay is enabled")
	}

	return errors.Join(errs...)
}

// Validate checks the generator section alone, so a Generator can be built
// from it without a full Config.
func (g GeneratorConfig) Validate() error {
	var errs []error
	bad := func(field, format string, args ...any) {
		errs = append(errs, &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	if len(g.Locations) < 2 {
		bad("generator.locations", "need at least 2 locations, have %d", len(g.Locations))
	}
	if len(g.Protocols) == 0 {
		bad("generator.protocols", "protocol set is empty")
	} else if _, err := g.ParsedProtocols(); err != nil {
		bad("generator.protocols", "%v", err)
	}
	if g.SuspiciousProbability < 0 || g.SuspiciousProbability > 1 {
		bad("generator.suspicious_probability", "%v is outside [0, 1]", g.SuspiciousProbability)
	}
	if g.MinInterval <= 0 {
		bad("generator.min_interval", "must be positive, got %v", g.MinInterval)
	}
	if g.MaxInterval < g.MinInterval {
		bad("generator.max_interval", "%v is below min_interval %v", g.MaxInterval, g.MinInterval)
	}
	if g.MinSize < 1 {
		bad("generator.min_size", "must be >= 1, got %d", g.MinSize)
	}
	if g.MaxSize < g.MinSize {
		bad("generator.max_size", "%d is below min_size %d", g.MaxSize, g.MinSize)
	}

	return errors.Join(errs...)
}
