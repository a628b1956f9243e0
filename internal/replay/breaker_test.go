package replay

import (
	"errors"
	"testing"
	"time"
)

var errDown = errors.New("connection refused")

func TestBreaker_OpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker(3, time.Second, nil)
	for i := 0; i < 3; i++ {
		_ = b.Execute(func() error { return errDown })
	}
	if b.State() != BreakerOpen {
		t.Fatalf("state = %s, want open", b.State())
	}

	called := false
	err := b.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Fatalf("open breaker let a call through: err=%v called=%v", err, called)
	}
}

func TestBreaker_HalfOpenTrial(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Second, nil)
	b.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		_ = b.Execute(func() error { return errDown })
	}

	now = now.Add(time.Second)
	if err := b.Execute(func() error { return errDown }); !errors.Is(err, errDown) {
		t.Fatalf("trial err = %v", err)
	}
	if b.State() != BreakerOpen {
		t.Fatalf("failed trial left state %s, want open", b.State())
	}

	now = now.Add(time.Second)
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("trial err = %v", err)
	}
	if b.State() != BreakerClosed {
		t.Fatalf("successful trial left state %s, want closed", b.State())
	}
}

func TestBreaker_UncountedErrorsDoNotTrip(t *testing.T) {
	errRejected := errors.New("bad payload")
	b := NewBreaker(1, time.Minute, func(err error) bool { return !errors.Is(err, errRejected) })

	for i := 0; i < 5; i++ {
		if err := b.Execute(func() error { return errRejected }); !errors.Is(err, errRejected) {
			t.Fatalf("err = %v", err)
		}
	}
	if b.State() != BreakerClosed {
		t.Fatalf("state = %s, want closed", b.State())
	}
}
