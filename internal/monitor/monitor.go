// Package monitor tracks completion outcomes and process memory for the local
// server.
package monitor

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/kyleking/current/internal/errors"
	"github.com/kyleking/current/internal/extract"
	"github.com/kyleking/current/internal/pipeline"
)

// MemoryStats represents memory usage statistics
type MemoryStats struct {
	AllocMB        float64   `json:"alloc_mb"`
	TotalAllocMB   float64   `json:"total_alloc_mb"`
	SysMB          float64   `json:"sys_mb"`
	NumGC          uint32    `json:"num_gc"`
	StackInUseMB   float64   `json:"stack_in_use_mb"`
	GoroutineCount int       `json:"goroutine_count"`
	LastUpdated    time.Time `json:"last_updated"`
}

// Stats is a point-in-time view of everything the monitor has observed
type Stats struct {
	Started         int64            `json:"started"`
	Completed       int64            `json:"completed"`
	Empty           int64            `json:"empty"`
	Failed          int64            `json:"failed"`
	InFlight        int64            `json:"in_flight"`
	Continuation    int64            `json:"continuation"`
	NaturalLanguage int64            `json:"natural_language"`
	FailuresByType  map[string]int64 `json:"failures_by_type"`
	AvgLatencyMS    float64          `json:"avg_latency_ms"`
	MaxLatencyMS    float64          `json:"max_latency_ms"`
	Memory          MemoryStats      `json:"memory"`
}

// Monitor aggregates pipeline events. Observe is safe for concurrent use.
type Monitor struct {
	mu             sync.RWMutex
	stats          Stats
	failuresByType map[string]int64
	totalLatency   time.Duration
	maxLatency     time.Duration
	stop           chan struct{}
	started        bool
}

// New creates a monitor with a fresh memory snapshot
func New() *Monitor {
	m := &Monitor{
		failuresByType: make(map[string]int64),
		stop:           make(chan struct{}),
	}
	m.updateMemory()

	return m
}

// Observe records one pipeline event. Its signature matches pipeline.Listener.
func (m *Monitor) Observe(e pipeline.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.Kind == pipeline.EventStarted {
		m.stats.Started++
		m.stats.InFlight++

		switch e.Mode {
		case extract.NaturalLanguage:
			m.stats.NaturalLanguage++
		default:
			m.stats.Continuation++
		}

		return
	}

	m.stats.InFlight--
	m.totalLatency += e.Duration
	if e.Duration > m.maxLatency {
		m.maxLatency = e.Duration
	}

	switch e.Kind {
	case pipeline.EventCompleted:
		m.stats.Completed++
	case pipeline.EventEmpty:
		m.stats.Empty++
	case pipeline.EventFailed:
		m.stats.Failed++
		m.failuresByType[string(errors.GetType(e.Err))]++
	}
}

// Snapshot returns a copy of the current statistics
func (m *Monitor) Snapshot() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := m.stats
	out.FailuresByType = make(map[string]int64, len(m.failuresByType))
	for k, v := range m.failuresByType {
		out.FailuresByType[k] = v
	}

	if finished := out.Completed + out.Empty + out.Failed; finished > 0 {
		out.AvgLatencyMS = durationMS(m.totalLatency) / float64(finished)
	}
	out.MaxLatencyMS = durationMS(m.maxLatency)

	return out
}

// Start refreshes the memory snapshot every interval until ctx ends or Stop
// is called
func (m *Monitor) Start(ctx context.Context, interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return
	}

	m.started = true
	go m.monitorLoop(ctx, interval, m.stop)
}

// Stop stops the refresh loop
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return
	}

	close(m.stop)
	m.stop = make(chan struct{})
	m.started = false
}

// FormattedStats returns a human-readable summary
func (m *Monitor) FormattedStats() string {
	s := m.Snapshot()

	return fmt.Sprintf(`Completion Statistics:
  Requests: %d (continuation %d, natural language %d)
  Completed: %d
  Empty: %d
  Failed: %d
  Average Latency: %.1f ms
  Max Latency: %.1f ms
  Allocated: %.2f MB
  Goroutines: %d`,
		s.Started, s.Continuation, s.NaturalLanguage,
		s.Completed,
		s.Empty,
		s.Failed,
		s.AvgLatencyMS,
		s.MaxLatencyMS,
		s.Memory.AllocMB,
		s.Memory.GoroutineCount,
	)
}

func (m *Monitor) monitorLoop(ctx context.Context, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.mu.Lock()
			m.updateMemory()
			m.mu.Unlock()
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// updateMemory must be called with the lock held or before the monitor is shared
func (m *Monitor) updateMemory() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.stats.Memory = MemoryStats{
		AllocMB:        float64(memStats.Alloc) / 1024 / 1024,
		TotalAllocMB:   float64(memStats.TotalAlloc) / 1024 / 1024,
		SysMB:          float64(memStats.Sys) / 1024 / 1024,
		NumGC:          memStats.NumGC,
		StackInUseMB:   float64(memStats.StackInuse) / 1024 / 1024,
		GoroutineCount: runtime.NumGoroutine(),
		LastUpdated:    time.Now(),
	}
}

func durationMS(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
