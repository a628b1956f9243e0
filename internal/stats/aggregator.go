// Package stats owns the process-wide traffic counters.
package stats

import (
	"sync"

	"github.com/trafficwatch/backend/internal/traffic"
)

const DefaultMilestoneInterval = 10

// Aggregator holds the running totals. All mutation goes through Record,
// which updates both counters under one lock so no reader ever sees
// suspicious > total.
type Aggregator struct {
	mu         sync.Mutex
	total      uint64
	suspicious uint64
	interval   uint64
}

// NewAggregator returns an Aggregator that reports a milestone every
// interval events. Values below 1 fall back to DefaultMilestoneInterval.
func NewAggregator(interval int) *Aggregator {
	if interval < 1 {
		interval = DefaultMilestoneInterval
	}
	return &Aggregator{interval: uint64(interval)}
}

// Record counts ev and returns the counters as they stand after it, plus
// whether the new total is a multiple of the milestone interval.
func (a *Aggregator) Record(ev traffic.Event) (traffic.Stats, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	if ev.Suspicious {
		a.suspicious++
	}
	return traffic.Stats{
		TotalEvents:      a.total,
		SuspiciousEvents: a.suspicious,
	}, a.total%a.interval == 0
}

func (a *Aggregator) Snapshot() traffic.Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return traffic.Stats{
		TotalEvents:      a.total,
		SuspiciousEvents: a.suspicious,
	}
}
