// Package sysload samples container/host CPU and memory usage and exposes
// a resource guard that reports whether there is CPU headroom to admit new
// connections; callers decide what to do with that report.
package sysload

import (
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
)

// Sampler tracks smoothed CPU usage and live memory stats.
type Sampler struct {
	mu         sync.RWMutex
	cpuPercent float64
	mem        runtime.MemStats
	sampledAt  time.Time
}

func NewSampler() *Sampler {
	s := &Sampler{sampledAt: time.Now()}
	s.Sample()
	return s
}

// Sample refreshes CPU (via gopsutil, EWMA-smoothed) and heap stats.
// It blocks for up to 1s measuring the CPU sample; call it from a
// background ticker, not the hot path.
func (s *Sampler) Sample() {
	percents, err := cpu.Percent(time.Second, false)

	s.mu.Lock()
	defer s.mu.Unlock()

	runtime.ReadMemStats(&s.mem)
	s.sampledAt = time.Now()

	if err != nil || len(percents) == 0 {
		return
	}
	const alpha = 0.3
	if s.cpuPercent == 0 {
		s.cpuPercent = percents[0]
	} else {
		s.cpuPercent = alpha*percents[0] + (1-alpha)*s.cpuPercent
	}
}

func (s *Sampler) CPUPercent() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cpuPercent
}

func (s *Sampler) HeapMB() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return float64(s.mem.HeapAlloc) / (1024 * 1024)
}

func (s *Sampler) Goroutines() int {
	return runtime.NumGoroutine()
}

// Guard rejects new work above a CPU threshold and signals a softer
// "pause intake" state above a lower threshold, mirroring the
// container-aware admission control used by the teacher's resource guard.
type Guard struct {
	sampler        *Sampler
	rejectAbovePct float64
	pauseAbovePct  float64
}

func NewGuard(sampler *Sampler, rejectAbovePct, pauseAbovePct float64) *Guard {
	return &Guard{sampler: sampler, rejectAbovePct: rejectAbovePct, pauseAbovePct: pauseAbovePct}
}

// AllowNewConnection reports whether the system has headroom to accept
// another connection.
func (g *Guard) AllowNewConnection() bool {
	return g.sampler.CPUPercent() < g.rejectAbovePct
}

// ShouldPauseIntake reports whether background consumption (cache
// hydration, batch writers, stream producers) should be throttled.
func (g *Guard) ShouldPauseIntake() bool {
	return g.sampler.CPUPercent() >= g.pauseAbovePct
}
