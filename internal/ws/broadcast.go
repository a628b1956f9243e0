package ws

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/trafficwatch/backend/internal/metrics"
	"github.com/trafficwatch/backend/internal/traffic"
)

var ErrTooManySessions = errors.New("too many sessions")

// StatsSource supplies the snapshot sent to new sessions.
type StatsSource interface {
	Snapshot() traffic.Stats
}

// Broadcaster owns the session registry and fans every published message
// out to each registered session.
type Broadcaster struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	closed      bool
	stats       StatsSource
	queueSize   int
	maxSessions int
	seq         atomic.Uint64
	metrics     *metrics.Metrics
}

// NewBroadcaster returns a Broadcaster whose sessions queue up to queueSize
// messages each. maxSessions of 0 means unlimited.
func NewBroadcaster(stats StatsSource, queueSize, maxSessions int, m *metrics.Metrics) *Broadcaster {
	if queueSize < 1 {
		queueSize = 64
	}
	return &Broadcaster{
		sessions:    make(map[string]*Session),
		stats:       stats,
		queueSize:   queueSize,
		maxSessions: maxSessions,
		metrics:     m,
	}
}

// NewSession builds an unregistered session using the broadcaster's queue
// size.
func (b *Broadcaster) NewSession(t Transport, remote string) *Session {
	return NewSession(t, remote, b.queueSize)
}

// Attach creates a session for t and registers it. The transport is closed
// if registration fails.
func (b *Broadcaster) Attach(t Transport, remote string) (*Session, error) {
	s := b.NewSession(t, remote)
	if err := b.Register(s); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Register opens s and queues the hello stats_update before s becomes
// visible to publishers, so the hello is always its first message.
func (b *Broadcaster) Register(s *Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrSessionClosed
	}
	if b.maxSessions > 0 && len(b.sessions) >= b.maxSessions {
		return ErrTooManySessions
	}

	hello, err := json.Marshal(WSMessage{
		Type:    MsgStatsUpdate,
		Seq:     b.seq.Load(),
		Payload: b.stats.Snapshot(),
	})
	if err != nil {
		return err
	}
	if err := s.open(b.onSendFailure); err != nil {
		return err
	}
	if err := s.enqueue(hello); err != nil {
		s.Close()
		return err
	}

	b.sessions[s.ID()] = s
	b.metrics.SetSessions(len(b.sessions))
	log.Info().Str("session", s.ID()).Str("remote", s.Remote()).Int("sessions", len(b.sessions)).Msg("session registered")
	return nil
}

// Unregister removes and closes the session. Unknown ids are ignored, so
// calling it twice is harmless.
func (b *Broadcaster) Unregister(id string) {
	b.mu.Lock()
	s, ok := b.sessions[id]
	if ok {
		delete(b.sessions, id)
		b.metrics.SetSessions(len(b.sessions))
	}
	b.mu.Unlock()

	if !ok {
		return
	}
	s.Close()
	log.Info().Str("session", id).Uint64("dropped", s.Dropped()).Msg("session unregistered")
}

func (b *Broadcaster) onSendFailure(s *Session, err error) {
	b.metrics.ObserveDeliveryFailure(string(ReasonSendFailed))
	log.Warn().Err(err).Str("session", s.ID()).Msg("send failed, dropping session")
	b.Unregister(s.ID())
}

func (b *Broadcaster) PublishEvent(ev traffic.Event) {
	b.publish(MsgNewTraffic, ev)
}

func (b *Broadcaster) PublishStats(st traffic.Stats) {
	b.publish(MsgStatsUpdate, st)
}

func (b *Broadcaster) PublishAlert(a traffic.Alert) {
	b.publish(MsgSuspiciousAlert, a)
}

// publish marshals once and enqueues the frame to a copy of the registry, so
// no session write ever happens under the registry lock.
func (b *Broadcaster) publish(t MessageType, payload interface{}) {
	data, err := json.Marshal(WSMessage{Type: t, Seq: b.seq.Add(1), Payload: payload})
	if err != nil {
		log.Error().Err(err).Str("type", string(t)).Msg("broadcast marshal error")
		return
	}

	b.mu.RLock()
	sessions := make([]*Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		sessions = append(sessions, s)
	}
	b.mu.RUnlock()

	b.metrics.ObserveBroadcast(string(t))
	for _, s := range sessions {
		if err := s.enqueue(data); err != nil {
			var df *DeliveryFailure
			if errors.As(err, &df) {
				b.metrics.ObserveDeliveryFailure(string(df.Reason))
			}
			log.Debug().Err(err).Str("type", string(t)).Msg("message dropped")
		}
	}
}

// Full reports whether a new registration would be rejected for capacity.
func (b *Broadcaster) Full() bool {
	if b.maxSessions <= 0 {
		return false
	}
	return b.SessionCount() >= b.maxSessions
}

func (b *Broadcaster) SessionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

// Sessions lists registered sessions, oldest first.
func (b *Broadcaster) Sessions() []SessionInfo {
	b.mu.RLock()
	infos := make([]SessionInfo, 0, len(b.sessions))
	for _, s := range b.sessions {
		infos = append(infos, s.Info())
	}
	b.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
	})
	return infos
}

// Close unregisters every session and rejects later registrations.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	b.closed = true
	sessions := make([]*Session, 0, len(b.sessions))
	for id, s := range b.sessions {
		sessions = append(sessions, s)
		delete(b.sessions, id)
	}
	b.metrics.SetSessions(0)
	b.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
