package replay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type receiver struct {
	mu      sync.Mutex
	got     []Record
	respond int
}

func (r *receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var rec Record
	if err := json.NewDecoder(req.Body).Decode(&rec); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	r.mu.Lock()
	r.got = append(r.got, rec)
	code := r.respond
	r.mu.Unlock()
	if code == 0 {
		code = http.StatusOK
	}
	w.WriteHeader(code)
	w.Write([]byte(`{"status":"ok"}`))
}

func records(n int) []Record {
	out := make([]Record, n)
	for i := range out {
		out[i] = Record{IP: "10.0.0.1", Latitude: 1, Longitude: 2, Timestamp: float64(i)}
	}
	return out
}

func TestRun_SendsInOrderWithLimit(t *testing.T) {
	rcv := &receiver{}
	srv := httptest.NewServer(rcv)
	defer srv.Close()

	s := NewSender(Options{URL: srv.URL, Delay: time.Millisecond, Limit: 5})
	res, err := s.Run(context.Background(), records(8))
	if err != nil {
		t.Fatal(err)
	}
	if res.Sent != 5 || res.Failed != 0 {
		t.Errorf("result = %+v, want 5 sent", res)
	}
	for i, rec := range rcv.got {
		if rec.Timestamp != float64(i) {
			t.Errorf("record %d has timestamp %v", i, rec.Timestamp)
		}
	}
}

func TestRun_RejectionsAreSkippedWithoutTripping(t *testing.T) {
	rcv := &receiver{respond: http.StatusBadRequest}
	srv := httptest.NewServer(rcv)
	defer srv.Close()

	s := NewSender(Options{URL: srv.URL})
	res, err := s.Run(context.Background(), records(10))
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 10 || res.Sent != 0 {
		t.Errorf("result = %+v", res)
	}
	if len(rcv.got) != 10 {
		t.Errorf("server saw %d requests, want 10", len(rcv.got))
	}
	if s.breaker.State() != BreakerClosed {
		t.Errorf("breaker = %s, want closed", s.breaker.State())
	}
}

func TestRun_BreakerStopsHammeringFailingServer(t *testing.T) {
	rcv := &receiver{respond: http.StatusInternalServerError}
	srv := httptest.NewServer(rcv)
	defer srv.Close()

	s := NewSender(Options{URL: srv.URL, Breaker: NewBreaker(3, time.Hour, countsAgainstServer)})
	res, err := s.Run(context.Background(), records(20))
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 20 {
		t.Errorf("failed = %d, want 20", res.Failed)
	}
	if len(rcv.got) != 3 {
		t.Errorf("server saw %d requests, want 3 before the breaker opened", len(rcv.got))
	}
}

func TestSend_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"missing_field"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewSender(Options{URL: srv.URL}).Send(context.Background(), records(1)[0])
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadRequest || !se.Rejected() {
		t.Fatalf("err = %v, want 400 StatusError", err)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	rcv := &receiver{}
	srv := httptest.NewServer(rcv)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	s := NewSender(Options{URL: srv.URL, Delay: time.Hour})

	done := make(chan error, 1)
	go func() {
		_, err := s.Run(ctx, records(5))
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		rcv.mu.Lock()
		n := len(rcv.got)
		rcv.mu.Unlock()
		if n == 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
