// Package observer is a terminal subscriber for the trafficwatch stream.
package observer

import (
	"context"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/trafficwatch/backend/internal/traffic"
)

const (
	maxRecentEvents = 12
	maxRecentAlerts = 6
)

// Stream is the part of Client the model drives.
type Stream interface {
	Listen(ctx context.Context) tea.Cmd
	ReadLoop(ctx context.Context) tea.Cmd
}

type Model struct {
	stream Stream
	ctx    context.Context
	cancel context.CancelFunc
	keys   KeyMap

	width  int
	height int

	connected  bool
	reconnects int
	paused     bool
	synced     bool
	lastSeq    uint64
	missed     uint64
	stats      traffic.Stats
	events     []traffic.Event
	alerts     []traffic.Alert
	byProtocol map[traffic.Protocol]int
	seenEvents int
}

func New(stream Stream) Model {
	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		stream:     stream,
		ctx:        ctx,
		cancel:     cancel,
		keys:       DefaultKeyMap(),
		byProtocol: make(map[traffic.Protocol]int),
	}
}

func (m Model) Init() tea.Cmd {
	return m.stream.Listen(m.ctx)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.cancel()
			return m, tea.Quit
		case key.Matches(msg, m.keys.Pause):
			m.paused = !m.paused
		case key.Matches(msg, m.keys.Clear):
			m.events = nil
			m.alerts = nil
		}
		return m, nil

	case ConnectedMsg:
		m.connected = true
		m.synced = false
		return m, m.stream.ReadLoop(m.ctx)

	case DisconnectedMsg:
		m.connected = false
		m.reconnects++
		return m, m.stream.Listen(m.ctx)

	case StatsMsg:
		m.track(msg.Seq)
		m.stats = msg.Stats
		return m, m.stream.ReadLoop(m.ctx)

	case TrafficMsg:
		m.track(msg.Seq)
		m.seenEvents++
		m.byProtocol[msg.Event.Protocol]++
		if !m.paused {
			m.events = prepend(m.events, msg.Event, maxRecentEvents)
		}
		return m, m.stream.ReadLoop(m.ctx)

	case AlertMsg:
		m.track(msg.Seq)
		if !m.paused {
			m.alerts = prepend(m.alerts, msg.Alert, maxRecentAlerts)
		}
		return m, m.stream.ReadLoop(m.ctx)
	}

	return m, nil
}

// track counts sequence gaps, which mean the server dropped messages for
// this subscriber. The first frame after a connect only establishes the
// baseline.
func (m *Model) track(seq uint64) {
	if !m.synced {
		m.synced = true
		m.lastSeq = seq
		return
	}
	if seq <= m.lastSeq {
		return
	}
	if seq > m.lastSeq+1 {
		m.missed += seq - m.lastSeq - 1
	}
	m.lastSeq = seq
}

func prepend[T any](list []T, v T, limit int) []T {
	list = append([]T{v}, list...)
	if len(list) > limit {
		list = list[:limit]
	}
	return list
}
