package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/jmylchreest/restreamer/internal/ffmpeg"
	"github.com/jmylchreest/restreamer/pkg/format"
)

// Pinger checks a dependency's connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

const pingTimeout = 2 * time.Second

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	version     string
	startTime   time.Time
	db          Pinger
	events      Pinger
	ffmpeg      *ffmpeg.BinaryInfo
	activeCount func() int
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
	}
}

// WithDB sets the database used for health checks.
func (h *HealthHandler) WithDB(db Pinger) *HealthHandler {
	h.db = db
	return h
}

// WithEventBus sets the optional event bus used for health checks.
func (h *HealthHandler) WithEventBus(bus Pinger) *HealthHandler {
	h.events = bus
	return h
}

// WithFFmpeg sets the detected ffmpeg binary.
func (h *HealthHandler) WithFFmpeg(info *ffmpeg.BinaryInfo) *HealthHandler {
	h.ffmpeg = info
	return h
}

// WithActiveCount sets the function reporting the number of running relays.
func (h *HealthHandler) WithActiveCount(fn func() int) *HealthHandler {
	h.activeCount = fn
	return h
}

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status        string            `json:"status" enum:"healthy,degraded"`
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	Uptime        string            `json:"uptime"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	ActiveStreams int               `json:"active_streams"`
	FFmpeg        *FFmpegHealth     `json:"ffmpeg,omitempty"`
	CPUInfo       CPUInfo           `json:"cpu_info"`
	Memory        MemoryInfo        `json:"memory"`
	Checks        map[string]string `json:"checks"`
}

// FFmpegHealth describes the ffmpeg binary in use.
type FFmpegHealth struct {
	Path    string `json:"path"`
	Version string `json:"version"`
}

// CPUInfo contains host load averages.
type CPUInfo struct {
	Cores              int     `json:"cores"`
	Load1Min           float64 `json:"load_1min"`
	Load5Min           float64 `json:"load_5min"`
	Load15Min          float64 `json:"load_15min"`
	LoadPercentage1Min float64 `json:"load_percentage_1min"`
}

// MemoryInfo contains host memory and the service's process tree usage.
type MemoryInfo struct {
	TotalMemoryMB      float64 `json:"total_memory_mb"`
	UsedMemoryMB       float64 `json:"used_memory_mb"`
	AvailableMemoryMB  float64 `json:"available_memory_mb"`
	ProcessMB          float64 `json:"process_mb"`
	RelayProcessesMB   float64 `json:"relay_processes_mb"`
	RelayProcessCount  int     `json:"relay_process_count"`
	PercentageOfSystem float64 `json:"percentage_of_system"`
}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// Register registers the health routes with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns service health with database, event bus and host metrics",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth returns the health status of the service.
func (h *HealthHandler) GetHealth(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	resp := HealthResponse{
		Status:        "healthy",
		Timestamp:     now.UTC().Format(time.RFC3339),
		Version:       h.version,
		Uptime:        format.Uptime(uptime),
		UptimeSeconds: uptime.Seconds(),
		CPUInfo:       h.getCPUInfo(ctx),
		Memory:        h.getMemoryInfo(ctx),
		Checks:        map[string]string{},
	}

	if h.activeCount != nil {
		resp.ActiveStreams = h.activeCount()
	}
	if h.ffmpeg != nil {
		resp.FFmpeg = &FFmpegHealth{Path: h.ffmpeg.FFmpegPath, Version: h.ffmpeg.Version}
		resp.Checks["ffmpeg"] = "ok"
	} else {
		resp.Checks["ffmpeg"] = "unavailable"
		resp.Status = "degraded"
	}

	for name, p := range map[string]Pinger{"database": h.db, "event_bus": h.events} {
		if p == nil {
			continue
		}
		status := ping(ctx, p)
		if status != "ok" {
			resp.Status = "degraded"
		}
		resp.Checks[name] = status
	}

	return &HealthOutput{Body: resp}, nil
}

func ping(ctx context.Context, p Pinger) string {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return "error: " + err.Error()
	}
	return "ok"
}

// getCPUInfo returns CPU load information.
func (h *HealthHandler) getCPUInfo(ctx context.Context) CPUInfo {
	cores := runtime.NumCPU()
	info := CPUInfo{Cores: cores}

	loadAvg, err := load.AvgWithContext(ctx)
	if err == nil && loadAvg != nil {
		info.Load1Min = loadAvg.Load1
		info.Load5Min = loadAvg.Load5
		info.Load15Min = loadAvg.Load15
		if cores > 0 {
			info.LoadPercentage1Min = (loadAvg.Load1 / float64(cores)) * 100
		}
	}
	return info
}

// getMemoryInfo returns host memory and the service's process tree usage.
// Child processes are the ffmpeg relays.
func (h *HealthHandler) getMemoryInfo(ctx context.Context) MemoryInfo {
	info := MemoryInfo{}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil && vm != nil {
		info.TotalMemoryMB = float64(vm.Total) / 1024 / 1024
		info.UsedMemoryMB = float64(vm.Used) / 1024 / 1024
		info.AvailableMemoryMB = float64(vm.Available) / 1024 / 1024
	}

	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid())) //nolint:gosec // pid fits in int32
	if err != nil {
		return info
	}
	if m, err := proc.MemoryInfoWithContext(ctx); err == nil && m != nil {
		info.ProcessMB = float64(m.RSS) / 1024 / 1024
	}
	if children, err := proc.ChildrenWithContext(ctx); err == nil {
		info.RelayProcessCount = len(children)
		for _, child := range children {
			if m, err := child.MemoryInfoWithContext(ctx); err == nil && m != nil {
				info.RelayProcessesMB += float64(m.RSS) / 1024 / 1024
			}
		}
	}
	if info.TotalMemoryMB > 0 {
		info.PercentageOfSystem = (info.ProcessMB + info.RelayProcessesMB) / info.TotalMemoryMB * 100
	}
	return info
}
