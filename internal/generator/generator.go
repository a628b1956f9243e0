// Package generator produces synthetic traffic between configured locations.
package generator

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/umahmood/haversine"

	"github.com/trafficwatch/backend/internal/config"
	"github.com/trafficwatch/backend/internal/traffic"
)

// Sink receives generated events.
type Sink interface {
	Submit(traffic.Event) traffic.Stats
}

type Generator struct {
	sink        Sink
	rng         *rand.Rand
	locations   []traffic.Location
	protocols   []traffic.Protocol
	probability float64
	minInterval time.Duration
	maxInterval time.Duration
	minSize     int
	maxSize     int
	now         func() time.Time
}

// New validates cfg and returns a Generator feeding sink. The Generator owns
// its random stream; a zero cfg.Seed seeds it from the clock.
func New(cfg config.GeneratorConfig, sink Sink) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	protocols, err := cfg.ParsedProtocols()
	if err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	return &Generator{
		sink:        sink,
		rng:         rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		locations:   append([]traffic.Location(nil), cfg.Locations...),
		protocols:   protocols,
		probability: cfg.SuspiciousProbability,
		minInterval: cfg.MinInterval,
		maxInterval: cfg.MaxInterval,
		minSize:     cfg.MinSize,
		maxSize:     cfg.MaxSize,
		now:         time.Now,
	}, nil
}

// Run emits one event per cycle, sleeping a random interval between cycles.
// It returns ctx.Err() once ctx is cancelled, including mid-sleep.
func (g *Generator) Run(ctx context.Context) error {
	log.Info().
		Int("locations", len(g.locations)).
		Float64("suspicious_probability", g.probability).
		Msg("generator started")

	for {
		if err := ctx.Err(); err != nil {
			log.Info().Msg("generator stopped")
			return err
		}

		g.sink.Submit(g.next())

		timer := time.NewTimer(g.interval())
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info().Msg("generator stopped")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (g *Generator) next() traffic.Event {
	n := len(g.locations)
	si := g.rng.IntN(n)
	di := g.rng.IntN(n - 1)
	if di >= si {
		di++
	}
	src, dst := g.locations[si], g.locations[di]

	_, km := haversine.Distance(
		haversine.Coord{Lat: src.Lat, Lon: src.Lon},
		haversine.Coord{Lat: dst.Lat, Lon: dst.Lon},
	)

	return traffic.Event{
		Source:      &src,
		Destination: &dst,
		Protocol:    g.protocols[g.rng.IntN(len(g.protocols))],
		Size:        g.minSize + g.rng.IntN(g.maxSize-g.minSize+1),
		DistanceKm:  km,
		Timestamp:   g.now().UTC(),
		Suspicious:  g.rng.Float64() < g.probability,
	}
}

func (g *Generator) interval() time.Duration {
	span := g.maxInterval - g.minInterval
	if span <= 0 {
		return g.minInterval
	}
	return g.minInterval + time.Duration(g.rng.Int64N(int64(span)+1))
}
