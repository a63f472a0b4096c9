// Package health reports process diagnostics and per-kind session health
// for the /api/health endpoint.
package health

import (
	"context"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/tausound/server/internal/session"
	"github.com/tausound/server/internal/slot"
)

// Lister is satisfied by every kind's slot registry.
type Lister interface {
	Live() []slot.Info
}

type ProcessStats struct {
	PID        int     `json:"pid"`
	RSSBytes   uint64  `json:"rssBytes"`
	CPUPercent float64 `json:"cpuPercent"`
	Threads    int32   `json:"threads"`
}

type KindReport struct {
	Live          int       `json:"live"`
	Active        int       `json:"active"`
	DegradedSlots int       `json:"degradedSlots"`
	EngineErrors  int       `json:"engineErrors"`
	LastError     string    `json:"lastError,omitempty"`
	LastErrorAt   time.Time `json:"lastErrorAt,omitempty"`
}

type Report struct {
	Status        Status                `json:"status"`
	UptimeSeconds int64                 `json:"uptimeSeconds"`
	Process       ProcessStats          `json:"process"`
	MemoryPercent float64               `json:"systemMemoryUsedPercent"`
	Kinds         map[string]KindReport `json:"kinds"`
}

// Checker assembles reports. Resource probes that fail leave their fields
// zero rather than failing the report.
type Checker struct {
	started time.Time
	tracker *Tracker
	kinds   map[session.Kind]Lister
}

func NewChecker(tracker *Tracker, kinds map[session.Kind]Lister) *Checker {
	if tracker == nil {
		tracker = NewTracker(0)
	}
	return &Checker{started: time.Now(), tracker: tracker, kinds: kinds}
}

func (c *Checker) Report(ctx context.Context) Report {
	r := Report{
		Status:        StatusHealthy,
		UptimeSeconds: int64(time.Since(c.started).Seconds()),
		Process:       processStats(ctx),
		Kinds:         make(map[string]KindReport, len(c.kinds)),
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		r.MemoryPercent = vm.UsedPercent
	}

	for kind, lister := range c.kinds {
		kr := KindReport{}
		for _, info := range lister.Live() {
			kr.Live++
			if info.State == session.Active || info.State == session.Paused {
				kr.Active++
			}
		}
		kr.DegradedSlots, kr.EngineErrors, kr.LastError, kr.LastErrorAt = c.tracker.kind(kind).snapshot(c.tracker.threshold)
		if kr.DegradedSlots > 0 {
			r.Status = StatusDegraded
		}
		r.Kinds[kind.String()] = kr
	}
	return r
}

func processStats(ctx context.Context) ProcessStats {
	stats := ProcessStats{PID: os.Getpid()}
	p, err := process.NewProcessWithContext(ctx, int32(stats.PID))
	if err != nil {
		return stats
	}
	if m, err := p.MemoryInfoWithContext(ctx); err == nil {
		stats.RSSBytes = m.RSS
	}
	if pct, err := p.CPUPercentWithContext(ctx); err == nil {
		stats.CPUPercent = pct
	}
	if n, err := p.NumThreadsWithContext(ctx); err == nil {
		stats.Threads = n
	}
	return stats
}
