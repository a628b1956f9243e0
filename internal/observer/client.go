package observer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/trafficwatch/backend/internal/traffic"
	"github.com/trafficwatch/backend/internal/ws"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	pongTimeout        = 60 * time.Second
	pingInterval       = 30 * time.Second
)

var errNotConnected = errors.New("not connected")

// Client follows the trafficwatch stream, reconnecting with exponential
// backoff whenever the connection drops.
type Client struct {
	url    string
	dialer *websocket.Dialer

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	pingCtx context.CancelFunc
	backoff *backoff.ExponentialBackOff
}

func NewClient(url string) *Client {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = reconnectBaseDelay
	b.MaxInterval = reconnectMaxDelay
	return &Client{url: url, dialer: websocket.DefaultDialer, backoff: b}
}

type envelope struct {
	Type    ws.MessageType  `json:"type"`
	Seq     uint64          `json:"seq"`
	Payload json.RawMessage `json:"payload"`
}

// --- Bubble Tea messages ---

type ConnectedMsg struct{}

type DisconnectedMsg struct{ Err error }

type TrafficMsg struct {
	Seq   uint64
	Event traffic.Event
}

type StatsMsg struct {
	Seq   uint64
	Stats traffic.Stats
}

type AlertMsg struct {
	Seq   uint64
	Alert traffic.Alert
}

// Listen dials until it succeeds or ctx ends.
func (c *Client) Listen(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		for {
			if ctx.Err() != nil {
				return nil
			}

			conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
			if err != nil {
				c.mu.Lock()
				delay := c.backoff.NextBackOff()
				c.mu.Unlock()
				log.Debug().Err(err).Dur("retry_in", delay).Msg("ws dial error")

				t := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					t.Stop()
					return nil
				case <-t.C:
				}
				continue
			}

			c.mu.Lock()
			if c.pingCtx != nil {
				c.pingCtx()
			}
			pingCtx, cancel := context.WithCancel(ctx)
			c.conn = conn
			c.pingCtx = cancel
			c.backoff.Reset()
			c.mu.Unlock()

			go c.pingLoop(pingCtx, conn)
			return ConnectedMsg{}
		}
	}
}

// ReadLoop returns the next decoded stream message. Start it after
// ConnectedMsg and again after every message it yields.
func (c *Client) ReadLoop(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return DisconnectedMsg{Err: errNotConnected}
		}

		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongTimeout))
		})
		conn.SetReadDeadline(time.Now().Add(pongTimeout))

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				c.mu.Lock()
				if c.conn == conn {
					c.conn = nil
				}
				c.mu.Unlock()
				conn.Close()
				return DisconnectedMsg{Err: err}
			}
			if msg := decode(data); msg != nil {
				return msg
			}
		}
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			current := c.conn
			c.mu.Unlock()
			if current != conn {
				return
			}
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Close drops the current connection, if any.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pingCtx != nil {
		c.pingCtx()
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// decode maps a frame to its tea message. Unknown or malformed frames
// yield nil and are skipped.
func decode(data []byte) tea.Msg {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil
	}
	switch env.Type {
	case ws.MsgNewTraffic:
		var ev traffic.Event
		if json.Unmarshal(env.Payload, &ev) == nil {
			return TrafficMsg{Seq: env.Seq, Event: ev}
		}
	case ws.MsgStatsUpdate:
		var st traffic.Stats
		if json.Unmarshal(env.Payload, &st) == nil {
			return StatsMsg{Seq: env.Seq, Stats: st}
		}
	case ws.MsgSuspiciousAlert:
		var a traffic.Alert
		if json.Unmarshal(env.Payload, &a) == nil {
			return AlertMsg{Seq: env.Seq, Alert: a}
		}
	}
	return nil
}
