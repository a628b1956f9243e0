package relay

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/trafficwatch/backend/internal/traffic"
	"github.com/trafficwatch/backend/internal/ws"
)

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, append([]byte(nil), data...))
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

type fixedStats struct{}

func (fixedStats) Snapshot() traffic.Stats { return traffic.Stats{TotalEvents: 9} }

func TestNATS_RelaysBroadcastFrames(t *testing.T) {
	pub := &fakePublisher{}
	closed := false
	r := newNATS(pub, DefaultSubject, func() { closed = true })

	b := ws.NewBroadcaster(fixedStats{}, 16, 0, nil)
	sess, err := b.Attach(r, "nats://"+DefaultSubject)
	if err != nil {
		t.Fatal(err)
	}
	b.PublishEvent(traffic.Event{Protocol: traffic.FTP})

	deadline := time.Now().Add(2 * time.Second)
	for pub.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if pub.count() != 2 {
		t.Fatalf("published %d frames, want 2", pub.count())
	}

	pub.mu.Lock()
	for _, s := range pub.subjects {
		if s != DefaultSubject {
			t.Errorf("subject = %q", s)
		}
	}
	var first ws.WSMessage
	if err := json.Unmarshal(pub.payloads[0], &first); err != nil {
		t.Fatal(err)
	}
	pub.mu.Unlock()
	if first.Type != ws.MsgStatsUpdate {
		t.Errorf("first relayed type = %s, want stats_update", first.Type)
	}

	b.Close()
	<-sess.Closed()
	if !closed {
		t.Error("nats connection not closed with the session")
	}
}

func TestNATS_PublishErrorDropsSession(t *testing.T) {
	pub := &fakePublisher{err: errors.New("nats: connection closed")}
	r := newNATS(pub, "custom", nil)

	b := ws.NewBroadcaster(fixedStats{}, 16, 0, nil)
	defer b.Close()
	if _, err := b.Attach(r, "nats"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for b.SessionCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if b.SessionCount() != 0 {
		t.Fatal("relay session still registered after publish failure")
	}
	if err := r.WriteMessage(1, []byte("x")); err == nil {
		t.Error("WriteMessage swallowed the publish error")
	}
}
