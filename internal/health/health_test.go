package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/trafficwatch/backend/internal/traffic"
)

type fakeSource struct{}

func (fakeSource) Snapshot() traffic.Stats { return traffic.Stats{TotalEvents: 20, SuspiciousEvents: 3} }

func (fakeSource) SessionCount() int { return 4 }

func TestReport(t *testing.T) {
	r := NewReporter(fakeSource{}, fakeSource{})
	r.now = func() time.Time { return r.started.Add(90 * time.Second) }

	rep := r.Report()
	if rep.Status != "ok" {
		t.Errorf("status = %q", rep.Status)
	}
	if rep.UptimeSeconds != 90 {
		t.Errorf("uptime = %v, want 90", rep.UptimeSeconds)
	}
	if rep.Sessions != 4 || rep.Stats.TotalEvents != 20 {
		t.Errorf("report = %+v", rep)
	}
	if rep.Goroutines < 1 {
		t.Errorf("goroutines = %d", rep.Goroutines)
	}
	if rep.Process != nil && rep.Process.PID != int32(os.Getpid()) {
		t.Errorf("pid = %d, want %d", rep.Process.PID, os.Getpid())
	}
}

func TestServeHTTP(t *testing.T) {
	r := NewReporter(fakeSource{}, fakeSource{})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
	var rep Report
	if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
		t.Fatal(err)
	}
	if rep.Stats.SuspiciousEvents != 3 {
		t.Errorf("stats = %+v", rep.Stats)
	}
}
