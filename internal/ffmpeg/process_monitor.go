package ffmpeg

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessStats contains resource usage statistics for a child process.
type ProcessStats struct {
	PID     int    `json:"pid"`
	Command string `json:"command"`

	CPUPercent     float64 `json:"cpu_percent"` // Percentage of one core since the previous sample
	MemoryRSSBytes uint64  `json:"memory_rss_bytes"`
	MemoryRSSMB    float64 `json:"memory_rss_mb"`
	MemoryPercent  float32 `json:"memory_percent"`

	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	LastUpdated time.Time     `json:"last_updated,omitempty"`
}

// ProcessMonitor periodically samples the resource usage of one process.
type ProcessMonitor struct {
	pid       int
	command   string
	startedAt time.Time
	interval  time.Duration

	mu    sync.RWMutex
	stats ProcessStats
	proc  *process.Process

	startOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewProcessMonitor creates a monitor for pid. Call Start to begin sampling.
func NewProcessMonitor(pid int, command string) *ProcessMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	return &ProcessMonitor{
		pid:       pid,
		command:   command,
		startedAt: now,
		interval:  time.Second,
		stats: ProcessStats{
			PID:       pid,
			Command:   command,
			StartedAt: now,
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetInterval sets the sampling interval. It only takes effect before Start.
func (pm *ProcessMonitor) SetInterval(d time.Duration) {
	pm.mu.Lock()
	pm.interval = d
	pm.mu.Unlock()
}

// Start begins sampling in the background. Calling Start again is a no-op.
func (pm *ProcessMonitor) Start() {
	pm.startOnce.Do(func() {
		pm.wg.Add(1)
		go pm.monitorLoop()
	})
}

// Stop stops sampling and waits for the sampler to exit.
func (pm *ProcessMonitor) Stop() {
	pm.cancel()
	pm.wg.Wait()
}

// Stats returns the latest sample.
func (pm *ProcessMonitor) Stats() ProcessStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	stats := pm.stats
	stats.Duration = time.Since(pm.startedAt)
	return stats
}

func (pm *ProcessMonitor) monitorLoop() {
	defer pm.wg.Done()

	pm.mu.RLock()
	interval := pm.interval
	pm.mu.RUnlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pm.sample()
	for {
		select {
		case <-pm.ctx.Done():
			return
		case <-ticker.C:
			pm.sample()
		}
	}
}

func (pm *ProcessMonitor) sample() {
	if pm.proc == nil {
		proc, err := process.NewProcessWithContext(pm.ctx, int32(pm.pid))
		if err != nil {
			return // Process may have exited
		}
		pm.proc = proc
	}

	cpu, cpuErr := pm.proc.PercentWithContext(pm.ctx, 0)
	mem, memErr := pm.proc.MemoryInfoWithContext(pm.ctx)
	memPercent, memPercentErr := pm.proc.MemoryPercentWithContext(pm.ctx)

	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.stats.LastUpdated = time.Now()
	if cpuErr == nil {
		pm.stats.CPUPercent = cpu
	}
	if memErr == nil && mem != nil {
		pm.stats.MemoryRSSBytes = mem.RSS
		pm.stats.MemoryRSSMB = float64(mem.RSS) / (1024 * 1024)
	}
	if memPercentErr == nil {
		pm.stats.MemoryPercent = memPercent
	}
}
