package ws

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var ErrSessionClosed = errors.New("session closed")

type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Transport is the outbound half of a subscriber connection. WriteMessage is
// only ever called from the session's writer goroutine. Close must unblock a
// pending WriteMessage.
type Transport interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type FailureReason string

const (
	ReasonQueueFull     FailureReason = "queue_full"
	ReasonSessionClosed FailureReason = "session_closed"
	ReasonSendFailed    FailureReason = "send_failed"
)

// DeliveryFailure reports that one message did not reach one session. It
// never propagates to producers.
type DeliveryFailure struct {
	SessionID string
	Reason    FailureReason
	Err       error
}

func (e *DeliveryFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("delivery to session %s failed (%s): %v", e.SessionID, e.Reason, e.Err)
	}
	return fmt.Sprintf("delivery to session %s failed (%s)", e.SessionID, e.Reason)
}

func (e *DeliveryFailure) Unwrap() error {
	return e.Err
}

// Session is one subscriber. Messages are queued by the Broadcaster and
// written by a dedicated goroutine, so a slow peer only ever blocks itself.
type Session struct {
	id          string
	remote      string
	connectedAt time.Time
	transport   Transport
	queue       chan []byte

	mu      sync.Mutex
	state   State
	started bool
	onFail  func(*Session, error)

	done       chan struct{}
	closed     chan struct{}
	closeOnce  sync.Once
	finishOnce sync.Once

	degraded atomic.Bool
	dropped  atomic.Uint64
}

func NewSession(t Transport, remote string, queueSize int) *Session {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Session{
		id:          uuid.NewString(),
		remote:      remote,
		connectedAt: time.Now().UTC(),
		transport:   t,
		queue:       make(chan []byte, queueSize),
		done:        make(chan struct{}),
		closed:      make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Remote() string { return s.remote }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Degraded reports whether the session has ever dropped a message.
func (s *Session) Degraded() bool { return s.degraded.Load() }

func (s *Session) Dropped() uint64 { return s.dropped.Load() }

// Closed is closed once the writer has exited and the transport is released.
func (s *Session) Closed() <-chan struct{} { return s.closed }

// open moves Connecting to Open and starts the writer. onFail is invoked
// from the writer goroutine when the transport rejects a write.
func (s *Session) open(onFail func(*Session, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnecting {
		return ErrSessionClosed
	}
	s.state = StateOpen
	s.started = true
	s.onFail = onFail
	go s.writePump()
	return nil
}

// enqueue never blocks. A full queue drops data for this session only.
func (s *Session) enqueue(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return &DeliveryFailure{SessionID: s.id, Reason: ReasonSessionClosed, Err: ErrSessionClosed}
	}
	select {
	case s.queue <- data:
		return nil
	default:
		s.dropped.Add(1)
		s.degraded.Store(true)
		return &DeliveryFailure{SessionID: s.id, Reason: ReasonQueueFull}
	}
}

// writePump owns the transport's write side. Whatever ends it, the
// transport is released before the session reports Closed.
func (s *Session) writePump() {
	defer s.finish()
	defer s.Close()
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.queue:
			if err := s.transport.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.mu.Lock()
				onFail, live := s.onFail, s.state == StateOpen
				s.mu.Unlock()
				if live && onFail != nil {
					onFail(s, &DeliveryFailure{SessionID: s.id, Reason: ReasonSendFailed, Err: err})
				}
				return
			}
		}
	}
}

// Close moves the session to Closing, releases the transport and lets the
// writer exit. It is safe to call more than once and from any goroutine,
// including after the writer has already finished.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		started := s.started
		if s.state != StateClosed {
			s.state = StateClosing
		}
		s.mu.Unlock()

		close(s.done)
		err = s.transport.Close()
		if !started {
			s.finish()
		}
	})
	return err
}

func (s *Session) finish() {
	s.finishOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		close(s.closed)
	})
}

// SessionInfo is the externally visible view of a session.
type SessionInfo struct {
	ID          string    `json:"id"`
	Remote      string    `json:"remote"`
	State       string    `json:"state"`
	Degraded    bool      `json:"degraded"`
	Dropped     uint64    `json:"dropped"`
	ConnectedAt time.Time `json:"connectedAt"`
}

func (s *Session) Info() SessionInfo {
	return SessionInfo{
		ID:          s.id,
		Remote:      s.remote,
		State:       s.State().String(),
		Degraded:    s.Degraded(),
		Dropped:     s.Dropped(),
		ConnectedAt: s.connectedAt,
	}
}

// connTransport adapts a gorilla websocket connection, bounding each write
// with a deadline.
type connTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func newConnTransport(conn *websocket.Conn, writeTimeout time.Duration) *connTransport {
	return &connTransport{conn: conn, writeTimeout: writeTimeout}
}

func (t *connTransport) WriteMessage(messageType int, data []byte) error {
	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return err
		}
	}
	return t.conn.WriteMessage(messageType, data)
}

func (t *connTransport) Close() error {
	return t.conn.Close()
}
