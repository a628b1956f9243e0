// Package health reports process and stream health for /api/health.
package health

import (
	"encoding/json"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/trafficwatch/backend/internal/traffic"
)

type StatsSource interface {
	Snapshot() traffic.Stats
}

type SessionCounter interface {
	SessionCount() int
}

type Report struct {
	Status        string         `json:"status"`
	StartedAt     time.Time      `json:"startedAt"`
	UptimeSeconds float64        `json:"uptimeSeconds"`
	Goroutines    int            `json:"goroutines"`
	Sessions      int            `json:"sessions"`
	Stats         traffic.Stats  `json:"stats"`
	Process       *ProcessReport `json:"process,omitempty"`
}

// ProcessReport fields are best effort; a field gopsutil cannot read on
// this platform stays zero.
type ProcessReport struct {
	PID        int32   `json:"pid"`
	RSSBytes   uint64  `json:"rssBytes"`
	CPUPercent float64 `json:"cpuPercent"`
	OpenFDs    int32   `json:"openFds"`
	Threads    int32   `json:"threads"`
}

type Reporter struct {
	started  time.Time
	stats    StatsSource
	sessions SessionCounter
	proc     *process.Process
	now      func() time.Time
}

func NewReporter(stats StatsSource, sessions SessionCounter) *Reporter {
	r := &Reporter{
		started:  time.Now().UTC(),
		stats:    stats,
		sessions: sessions,
		now:      time.Now,
	}
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn().Err(err).Msg("process metrics unavailable")
	} else {
		r.proc = p
	}
	return r
}

func (r *Reporter) Report() Report {
	rep := Report{
		Status:        "ok",
		StartedAt:     r.started,
		UptimeSeconds: r.now().Sub(r.started).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
		Sessions:      r.sessions.SessionCount(),
		Stats:         r.stats.Snapshot(),
	}
	if r.proc != nil {
		rep.Process = r.processReport()
	}
	return rep
}

func (r *Reporter) processReport() *ProcessReport {
	pr := &ProcessReport{PID: r.proc.Pid}
	if mem, err := r.proc.MemoryInfo(); err == nil && mem != nil {
		pr.RSSBytes = mem.RSS
	}
	if cpu, err := r.proc.CPUPercent(); err == nil {
		pr.CPUPercent = cpu
	}
	if fds, err := r.proc.NumFDs(); err == nil {
		pr.OpenFDs = fds
	}
	if threads, err := r.proc.NumThreads(); err == nil {
		pr.Threads = threads
	}
	return pr
}

func (r *Reporter) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(r.Report()); err != nil {
		log.Warn().Err(err).Msg("health encode error")
	}
}
