// Package pipeline routes every event, whatever its producer, through the
// aggregator and out to subscribers.
package pipeline

import (
	"github.com/rs/zerolog/log"

	"github.com/trafficwatch/backend/internal/metrics"
	"github.com/trafficwatch/backend/internal/stats"
	"github.com/trafficwatch/backend/internal/traffic"
)

// Publisher fans messages out to subscribers. Implementations must not block
// on slow consumers.
type Publisher interface {
	PublishEvent(traffic.Event)
	PublishAlert(traffic.Alert)
	PublishStats(traffic.Stats)
}

type Pipeline struct {
	agg     *stats.Aggregator
	pub     Publisher
	metrics *metrics.Metrics
}

func New(agg *stats.Aggregator, pub Publisher, m *metrics.Metrics) *Pipeline {
	return &Pipeline{agg: agg, pub: pub, metrics: m}
}

// Submit records ev and publishes it, followed by an alert when it is
// suspicious and a stats snapshot when the record hit a milestone. It is
// safe for concurrent use and returns the counters as of this record.
func (p *Pipeline) Submit(ev traffic.Event) traffic.Stats {
	st, milestone := p.agg.Record(ev)
	p.metrics.ObserveEvent(ev.Feed(), ev.Suspicious)

	p.pub.PublishEvent(ev)
	if alert, ok := traffic.NewAlert(ev); ok {
		p.pub.PublishAlert(alert)
	}
	if milestone {
		p.metrics.ObserveMilestone()
		p.pub.PublishStats(st)
		log.Debug().
			Uint64("total", st.TotalEvents).
			Uint64("suspicious", st.SuspiciousEvents).
			Msg("stats milestone")
	}
	return st
}

func (p *Pipeline) Snapshot() traffic.Stats {
	return p.agg.Snapshot()
}
