// Package config loads trafficwatch runtime configuration.
// Precedence: defaults < YAML file < environment variables.
package config

import (
	"time"

	"github.com/trafficwatch/backend/internal/traffic"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Generator GeneratorConfig `yaml:"generator"`
	Stats     StatsConfig     `yaml:"stats"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Relay     RelayConfig     `yaml:"relay"`
	Logging   Logging         `yaml:"logging"`
	Frontend  FrontendConfig  `yaml:"frontend"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type GeneratorConfig struct {
	Enabled               bool               `yaml:"enabled"`
	SuspiciousProbability float64            `yaml:"suspicious_probability"`
	MinInterval           time.Duration      `yaml:"min_interval"`
	MaxInterval           time.Duration      `yaml:"max_interval"`
	MinSize               int                `yaml:"min_size"`
	MaxSize               int                `yaml:"max_size"`
	Protocols             []string           `yaml:"protocols"`
	Locations             []traffic.Location `yaml:"locations"`
	Seed                  uint64             `yaml:"seed"` // 0 = seed from the clock
}

type StatsConfig struct {
	MilestoneInterval int `yaml:"milestone_interval"`
}

type BroadcastConfig struct {
	QueueSize    int           `yaml:"queue_size"`
	MaxSessions  int           `yaml:"max_sessions"` // 0 = unlimited
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PingInterval time.Duration `yaml:"ping_interval"`
}

type IngestConfig struct {
	MaxBodyBytes          int64         `yaml:"max_body_bytes"`
	IdempotencyTTL        time.Duration `yaml:"idempotency_ttl"`
	IdempotencyCacheBytes int64         `yaml:"idempotency_cache_bytes"`
	Redis                 RedisConfig   `yaml:"redis"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

type RelayConfig struct {
	NATS NATSConfig `yaml:"nats"`
}

type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type Logging struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"` // console | json
	Service string `yaml:"service"`
}

type FrontendConfig struct {
	Dir string `yaml:"dir"`
}

// DefaultLocations is the city set the generator draws endpoints from.
var DefaultLocations = []traffic.Location{
	{Name: "New York", Lat: 40.7128, Lon: -74.0060},
	{Name: "London", Lat: 51.5074, Lon: -0.1278},
	{Name: "Tokyo", Lat: 35.6762, Lon: 139.6503},
	{Name: "Beijing", Lat: 39.9042, Lon: 116.4074},
	{Name: "Moscow", Lat: 55.7558, Lon: 37.6173},
	{Name: "Sydney", Lat: -33.8688, Lon: 151.2093},
	{Name: "Rio de Janeiro", Lat: -22.9068, Lon: -43.1729},
	{Name: "Cape Town", Lat: -33.9249, Lon: 18.4241},
	{Name: "Dubai", Lat: 25.2048, Lon: 55.2708},
	{Name: "San Francisco", Lat: 37.7749, Lon: -122.4194},
	{Name: "Seoul", Lat: 37.5665, Lon: 126.9780},
	{Name: "Singapore", Lat: 1.3521, Lon: 103.8198},
	{Name: "Berlin", Lat: 52.5200, Lon: 13.4050},
	{Name: "Paris", Lat: 48.8566, Lon: 2.3522},
	{Name: "Toronto", Lat: 43.6511, Lon: -79.3470},
}

func Defaults() Config {
	protocols := make([]string, len(traffic.Protocols))
	for i, p := range traffic.Protocols {
		protocols[i] = p.String()
	}
	locations := make([]traffic.Location, len(DefaultLocations))
	copy(locations, DefaultLocations)

	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5000,
			ShutdownTimeout: 10 * time.Second,
		},
		Generator: GeneratorConfig{
			Enabled:               true,
			SuspiciousProbability: 0.15,
			MinInterval:           500 * time.Millisecond,
			MaxInterval:           2 * time.Second,
			MinSize:               64,
			MaxSize:               1500,
			Protocols:             protocols,
			Locations:             locations,
		},
		Stats: StatsConfig{
			MilestoneInterval: 10,
		},
		Broadcast: BroadcastConfig{
			QueueSize:    64,
			WriteTimeout: 10 * time.Second,
			PingInterval: 30 * time.Second,
		},
		Ingest: IngestConfig{
			MaxBodyBytes:          64 << 10,
			IdempotencyTTL:        5 * time.Minute,
			IdempotencyCacheBytes: 8 << 20,
			Redis: RedisConfig{
				Addr:    "localhost:6379",
				Channel: "traffic_channel",
			},
		},
		Relay: RelayConfig{
			NATS: NATSConfig{
				URL:     "nats://localhost:4222",
				Subject: "trafficwatch.stream",
			},
		},
		Logging: Logging{
			Level:   "info",
			Format:  "console",
			Service: "trafficwatch",
		},
	}
}

// ParsedProtocols resolves the configured protocol names.
func (g GeneratorConfig) ParsedProtocols() ([]traffic.Protocol, error) {
	out := make([]traffic.Protocol, 0, len(g.Protocols))
	for _, name := range g.Protocols {
		p, err := traffic.ParseProtocol(name)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
