package generator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/trafficwatch/backend/internal/config"
	"github.com/trafficwatch/backend/internal/traffic"
)

type collectSink struct {
	mu     sync.Mutex
	events []traffic.Event
}

func (c *collectSink) Submit(ev traffic.Event) traffic.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return traffic.Stats{TotalEvents: uint64(len(c.events))}
}

func (c *collectSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func testConfig() config.GeneratorConfig {
	cfg := config.Defaults().Generator
	cfg.Seed = 42
	return cfg
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.GeneratorConfig)
	}{
		{"single location", func(c *config.GeneratorConfig) { c.Locations = c.Locations[:1] }},
		{"empty protocols", func(c *config.GeneratorConfig) { c.Protocols = nil }},
		{"probability out of range", func(c *config.GeneratorConfig) { c.SuspiciousProbability = 2 }},
		{"inverted sizes", func(c *config.GeneratorConfig) { c.MinSize, c.MaxSize = 100, 10 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := New(cfg, &collectSink{})
			if !errors.Is(err, config.ErrInvalidConfig) {
				t.Fatalf("New() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestNext_EventInvariants(t *testing.T) {
	cfg := testConfig()
	cfg.MinSize, cfg.MaxSize = 64, 1500
	g, err := New(cfg, &collectSink{})
	if err != nil {
		t.Fatal(err)
	}

	allowed := make(map[traffic.Protocol]bool)
	for _, p := range traffic.Protocols {
		allowed[p] = true
	}

	for i := 0; i < 5000; i++ {
		ev := g.next()
		if ev.Source == nil || ev.Destination == nil {
			t.Fatal("generated event without endpoints")
		}
		if ev.Source.Name == ev.Destination.Name {
			t.Fatalf("source equals destination: %s", ev.Source.Name)
		}
		if ev.Size < 64 || ev.Size > 1500 {
			t.Fatalf("size %d out of range", ev.Size)
		}
		if !allowed[ev.Protocol] {
			t.Fatalf("protocol %v not in configured set", ev.Protocol)
		}
		if ev.DistanceKm <= 0 {
			t.Fatalf("distance %v for distinct cities", ev.DistanceKm)
		}
		if ev.Origin != nil {
			t.Fatal("generated event carries an ingest origin")
		}
		if ev.Timestamp.Location() != time.UTC {
			t.Fatalf("timestamp not UTC: %v", ev.Timestamp)
		}
	}
}

func TestNext_TwoLocationsAlwaysDistinct(t *testing.T) {
	cfg := testConfig()
	cfg.Locations = []traffic.Location{{Name: "A", Lat: 0, Lon: 0}, {Name: "B", Lat: 10, Lon: 10}}
	g, err := New(cfg, &collectSink{})
	if err != nil {
		t.Fatal(err)
	}
	var ab, ba int
	for i := 0; i < 1000; i++ {
		ev := g.next()
		switch {
		case ev.Source.Name == "A" && ev.Destination.Name == "B":
			ab++
		case ev.Source.Name == "B" && ev.Destination.Name == "A":
			ba++
		default:
			t.Fatalf("bad pair %s -> %s", ev.Source.Name, ev.Destination.Name)
		}
	}
	if ab == 0 || ba == 0 {
		t.Errorf("pairs not drawn in both directions: ab=%d ba=%d", ab, ba)
	}
}

func TestNext_SuspiciousProbabilityExtremes(t *testing.T) {
	for _, p := range []float64{0, 1} {
		cfg := testConfig()
		cfg.SuspiciousProbability = p
		g, err := New(cfg, &collectSink{})
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 500; i++ {
			if got := g.next().Suspicious; got != (p == 1) {
				t.Fatalf("p=%v produced suspicious=%v", p, got)
			}
		}
	}
}

func TestNext_SuspiciousRate(t *testing.T) {
	g, err := New(testConfig(), &collectSink{})
	if err != nil {
		t.Fatal(err)
	}
	const n = 20000
	var suspicious int
	for i := 0; i < n; i++ {
		if g.next().Suspicious {
			suspicious++
		}
	}
	rate := float64(suspicious) / n
	if rate < 0.12 || rate > 0.18 {
		t.Errorf("suspicious rate %.3f far from 0.15", rate)
	}
}

func TestNext_DeterministicForSeed(t *testing.T) {
	a, _ := New(testConfig(), &collectSink{})
	b, _ := New(testConfig(), &collectSink{})
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return fixed }
	b.now = a.now

	for i := 0; i < 100; i++ {
		ea, eb := a.next(), b.next()
		if ea.Source.Name != eb.Source.Name || ea.Size != eb.Size || ea.Protocol != eb.Protocol {
			t.Fatalf("streams diverged at %d", i)
		}
	}
}

func TestInterval_WithinBounds(t *testing.T) {
	g, err := New(testConfig(), &collectSink{})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 1000; i++ {
		d := g.interval()
		if d < 500*time.Millisecond || d > 2*time.Second {
			t.Fatalf("interval %v outside [500ms, 2s]", d)
		}
	}
}

func TestRun_StopsOnCancelDuringSleep(t *testing.T) {
	cfg := testConfig()
	cfg.MinInterval, cfg.MaxInterval = time.Hour, time.Hour
	sink := &collectSink{}
	g, err := New(cfg, sink)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if sink.count() != 1 {
		t.Fatalf("events before sleep = %d, want 1", sink.count())
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_EmitsRepeatedly(t *testing.T) {
	cfg := testConfig()
	cfg.MinInterval, cfg.MaxInterval = time.Millisecond, 2*time.Millisecond
	sink := &collectSink{}
	g, err := New(cfg, sink)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() < 5 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
	if sink.count() < 5 {
		t.Fatalf("only %d events emitted", sink.count())
	}
}
