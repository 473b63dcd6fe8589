// Package monitor collects host resource snapshots for the system_info tool
// and the /api/system endpoint.
package monitor

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

const snapshotCacheTTL = 2 * time.Second

// Snapshot is a point-in-time view of host resources.
type Snapshot struct {
	Platform        string    `json:"platform"`
	OS              string    `json:"os"`
	Hostname        string    `json:"hostname,omitempty"`
	UptimeSeconds   uint64    `json:"uptime_seconds"`
	CPUUsagePercent float64   `json:"cpu_usage_percent"`
	CPUCores        int       `json:"cpu_cores"`
	LoadAverage     []float64 `json:"load_average,omitempty"`
	MemoryTotal     uint64    `json:"memory_total_bytes"`
	MemoryUsed      uint64    `json:"memory_used_bytes"`
	MemoryPercent   float64   `json:"memory_used_percent"`
	CollectedAtMs   int64     `json:"collected_at_ms"`
}

// Service caches snapshots briefly so that polling endpoints and tool calls
// do not hammer the collectors.
type Service struct {
	log *slog.Logger

	mu      sync.Mutex
	hasSnap bool
	snap    Snapshot
	at      time.Time
}

func NewService(log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{log: log}
}

// Read returns the current snapshot, collecting a fresh one when the cache
// has expired.
func (s *Service) Read(ctx context.Context) Snapshot {
	now := time.Now()

	s.mu.Lock()
	if s.hasSnap && now.Sub(s.at) < snapshotCacheTTL {
		out := s.snap
		s.mu.Unlock()
		return out
	}
	s.mu.Unlock()

	snap := s.collect(ctx)

	s.mu.Lock()
	s.snap = snap
	s.at = now
	s.hasSnap = true
	s.mu.Unlock()
	return snap
}

func (s *Service) collect(ctx context.Context) Snapshot {
	snap := Snapshot{
		Platform:      runtime.GOARCH,
		OS:            runtime.GOOS,
		CPUCores:      runtime.NumCPU(),
		CollectedAtMs: time.Now().UnixMilli(),
	}

	if info, err := host.InfoWithContext(ctx); err == nil && info != nil {
		snap.Hostname = info.Hostname
		snap.UptimeSeconds = info.Uptime
		if info.Platform != "" {
			snap.Platform = info.Platform
		}
	}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		snap.CPUUsagePercent = percents[0]
	} else if err != nil {
		s.log.Debug("cpu usage read failed", "error", err)
	}

	if avg, err := load.AvgWithContext(ctx); err == nil && avg != nil {
		snap.LoadAverage = []float64{avg.Load1, avg.Load5, avg.Load15}
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil && vm != nil {
		snap.MemoryTotal = vm.Total
		snap.MemoryUsed = vm.Used
		snap.MemoryPercent = vm.UsedPercent
	}

	return snap
}
