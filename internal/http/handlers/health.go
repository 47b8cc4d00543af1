package handlers

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/dashingest/internal/ffmpeg"
	"github.com/jmylchreest/dashingest/internal/scheduler"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"gorm.io/gorm"
)

// ProcessLister reports the encoder processes currently running.
type ProcessLister interface {
	Active() []ffmpeg.ProcessStats
}

// RunnerStatusProvider reports the job runner state.
type RunnerStatusProvider interface {
	RunnerStatus() *scheduler.RunnerStatus
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	version   string
	startTime time.Time
	db        *gorm.DB
	processes ProcessLister
	runner    RunnerStatusProvider
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
	}
}

// WithDB sets the database connection for health checks.
func (h *HealthHandler) WithDB(db *gorm.DB) *HealthHandler {
	h.db = db
	return h
}

// WithProcesses sets the source of encoder process samples.
func (h *HealthHandler) WithProcesses(processes ProcessLister) *HealthHandler {
	h.processes = processes
	return h
}

// WithRunner sets the job runner status source.
func (h *HealthHandler) WithRunner(runner RunnerStatusProvider) *HealthHandler {
	h.runner = runner
	return h
}

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status        string                  `json:"status"`
	Timestamp     string                  `json:"timestamp"`
	Version       string                  `json:"version"`
	Uptime        string                  `json:"uptime"`
	UptimeSeconds float64                 `json:"uptime_seconds"`
	CPUInfo       CPUInfo                 `json:"cpu_info"`
	Memory        MemoryInfo              `json:"memory"`
	Database      DatabaseHealth          `json:"database"`
	Runner        *scheduler.RunnerStatus `json:"runner,omitempty"`
	Encoders      []ffmpeg.ProcessStats   `json:"encoders"`
	Checks        map[string]string       `json:"checks"`
}

// CPUInfo holds load averages.
type CPUInfo struct {
	Cores              int     `json:"cores"`
	Load1Min           float64 `json:"load_1min"`
	Load5Min           float64 `json:"load_5min"`
	Load15Min          float64 `json:"load_15min"`
	LoadPercentage1Min float64 `json:"load_percentage_1min"`
}

// MemoryInfo holds system and process memory usage.
type MemoryInfo struct {
	TotalMemoryMB     float64           `json:"total_memory_mb"`
	UsedMemoryMB      float64           `json:"used_memory_mb"`
	FreeMemoryMB      float64           `json:"free_memory_mb"`
	AvailableMemoryMB float64           `json:"available_memory_mb"`
	ProcessMemory     ProcessMemoryInfo `json:"process_memory"`
}

// ProcessMemoryInfo holds the memory of the server process and its children.
type ProcessMemoryInfo struct {
	MainProcessMB      float64 `json:"main_process_mb"`
	ChildProcessesMB   float64 `json:"child_processes_mb"`
	TotalProcessTreeMB float64 `json:"total_process_tree_mb"`
	ChildProcessCount  int     `json:"child_process_count"`
	PercentageOfSystem float64 `json:"percentage_of_system"`
}

// DatabaseHealth holds connection pool stats and ping latency.
type DatabaseHealth struct {
	Status            string  `json:"status"`
	ResponseTimeMS    float64 `json:"response_time_ms"`
	OpenConnections   int     `json:"open_connections"`
	ActiveConnections int     `json:"active_connections"`
	IdleConnections   int     `json:"idle_connections"`
}

// HealthInput is the input for the health check endpoints.
type HealthInput struct{}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// ProbeOutput is the output for the liveness and readiness probes.
type ProbeOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// Register registers the health routes with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health of the service with system metrics and running encoders",
		Tags:        []string{"System"},
	}, h.GetHealth)

	huma.Register(api, huma.Operation{
		OperationID: "getLiveness",
		Method:      "GET",
		Path:        "/livez",
		Summary:     "Liveness probe",
		Tags:        []string{"System"},
	}, h.GetLiveness)

	huma.Register(api, huma.Operation{
		OperationID: "getReadiness",
		Method:      "GET",
		Path:        "/readyz",
		Summary:     "Readiness probe",
		Description: "Fails with 503 while the database is unreachable",
		Tags:        []string{"System"},
	}, h.GetReadiness)
}

// GetHealth returns the health status of the service.
func (h *HealthHandler) GetHealth(ctx context.Context, input *HealthInput) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	memInfo := h.getMemoryInfo()
	dbHealth := h.getDatabaseHealth(ctx)

	status := "healthy"
	if dbHealth.Status == "error" {
		status = "degraded"
	}

	encoders := []ffmpeg.ProcessStats{}
	if h.processes != nil {
		encoders = append(encoders, h.processes.Active()...)
	}

	resp := HealthResponse{
		Status:        status,
		Timestamp:     now.UTC().Format(time.RFC3339),
		Version:       h.version,
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: uptime.Seconds(),
		CPUInfo:       h.getCPUInfo(),
		Memory:        memInfo,
		Database:      dbHealth,
		Encoders:      encoders,
		Checks: map[string]string{
			"database": dbHealth.Status,
		},
	}
	if h.runner != nil {
		resp.Runner = h.runner.RunnerStatus()
		if resp.Runner != nil && resp.Runner.Running {
			resp.Checks["runner"] = "ok"
		} else {
			resp.Checks["runner"] = "stopped"
		}
	}

	return &HealthOutput{Body: resp}, nil
}

// GetLiveness reports that the process is serving requests.
func (h *HealthHandler) GetLiveness(ctx context.Context, input *HealthInput) (*ProbeOutput, error) {
	resp := &ProbeOutput{}
	resp.Body.Status = "ok"
	return resp, nil
}

// GetReadiness reports whether the database answers.
func (h *HealthHandler) GetReadiness(ctx context.Context, input *HealthInput) (*ProbeOutput, error) {
	if db := h.getDatabaseHealth(ctx); db.Status == "error" {
		return nil, huma.Error503ServiceUnavailable("database unavailable")
	}
	resp := &ProbeOutput{}
	resp.Body.Status = "ready"
	return resp, nil
}

func (h *HealthHandler) getCPUInfo() CPUInfo {
	cores := runtime.NumCPU()
	info := CPUInfo{Cores: cores}

	loadAvg, err := load.Avg()
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

func (h *HealthHandler) getMemoryInfo() MemoryInfo {
	info := MemoryInfo{}

	vmStat, err := mem.VirtualMemory()
	if err == nil && vmStat != nil {
		info.TotalMemoryMB = float64(vmStat.Total) / 1024 / 1024
		info.UsedMemoryMB = float64(vmStat.Used) / 1024 / 1024
		info.FreeMemoryMB = float64(vmStat.Free) / 1024 / 1024
		info.AvailableMemoryMB = float64(vmStat.Available) / 1024 / 1024
	}

	info.ProcessMemory = h.getProcessMemoryInfo(info.TotalMemoryMB)
	return info
}

// getProcessMemoryInfo sums the RSS of this process and its children, which
// includes any running encoder or packager.
func (h *HealthHandler) getProcessMemoryInfo(totalSystemMB float64) ProcessMemoryInfo {
	info := ProcessMemoryInfo{}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return info
	}

	memInfo, err := proc.MemoryInfo()
	if err == nil && memInfo != nil {
		info.MainProcessMB = float64(memInfo.RSS) / 1024 / 1024
		info.TotalProcessTreeMB = info.MainProcessMB
	}

	children, err := proc.Children()
	if err == nil {
		info.ChildProcessCount = len(children)
		for _, child := range children {
			childMem, err := child.MemoryInfo()
			if err == nil && childMem != nil {
				childMB := float64(childMem.RSS) / 1024 / 1024
				info.ChildProcessesMB += childMB
				info.TotalProcessTreeMB += childMB
			}
		}
	}

	if totalSystemMB > 0 {
		info.PercentageOfSystem = (info.TotalProcessTreeMB / totalSystemMB) * 100
	}
	return info
}

func (h *HealthHandler) getDatabaseHealth(ctx context.Context) DatabaseHealth {
	health := DatabaseHealth{Status: "ok"}

	if h.db == nil {
		health.Status = "unknown"
		return health
	}

	sqlDB, err := h.db.DB()
	if err != nil {
		health.Status = "error"
		return health
	}

	stats := sqlDB.Stats()
	health.OpenConnections = stats.OpenConnections
	health.ActiveConnections = stats.InUse
	health.IdleConnections = stats.Idle

	start := time.Now()
	err = sqlDB.PingContext(ctx)
	health.ResponseTimeMS = float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		health.Status = "error"
	}
	return health
}
