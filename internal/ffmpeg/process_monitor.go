package ffmpeg

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessStats contains resource usage statistics for an FFmpeg process.
type ProcessStats struct {
	PID int `json:"pid"`

	// CPUPercent is usage since process start, 0-100 per core.
	CPUPercent float64 `json:"cpu_percent"`

	MemoryRSSBytes uint64  `json:"memory_rss_bytes"`
	MemoryRSSMB    float64 `json:"memory_rss_mb"`
	MemoryPercent  float32 `json:"memory_percent"`

	NumThreads int32 `json:"num_threads,omitempty"`

	SampledAt time.Time `json:"sampled_at"`
}

// SampleProcess reads CPU and memory usage for pid.
func SampleProcess(ctx context.Context, pid int) (*ProcessStats, error) {
	if pid <= 0 {
		return nil, fmt.Errorf("invalid pid %d", pid)
	}

	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil, fmt.Errorf("opening process %d: %w", pid, err)
	}

	stats := &ProcessStats{
		PID:       pid,
		SampledAt: time.Now(),
	}

	if cpu, err := proc.CPUPercentWithContext(ctx); err == nil {
		stats.CPUPercent = cpu
	}

	if mem, err := proc.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		stats.MemoryRSSBytes = mem.RSS
		stats.MemoryRSSMB = float64(mem.RSS) / 1024 / 1024
	}

	if pct, err := proc.MemoryPercentWithContext(ctx); err == nil {
		stats.MemoryPercent = pct
	}

	if n, err := proc.NumThreadsWithContext(ctx); err == nil {
		stats.NumThreads = n
	}

	return stats, nil
}
