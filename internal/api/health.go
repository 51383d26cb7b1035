package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

const healthCheckTimeout = 2 * time.Second

type systemInfo struct {
	Hostname   string      `json:"hostname,omitempty"`
	Platform   string      `json:"platform"`
	GoVersion  string      `json:"go_version"`
	CPUCount   int         `json:"cpu_count"`
	Goroutines int         `json:"goroutines"`
	UptimeSec  uint64      `json:"uptime_seconds,omitempty"`
	Memory     *usageStats `json:"memory,omitempty"`
	Disk       *usageStats `json:"disk,omitempty"`
}

type usageStats struct {
	Total       uint64  `json:"total"`
	Available   uint64  `json:"available"`
	UsedPercent float64 `json:"used_percent"`
}

type dependencyStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type healthResponse struct {
	Status      string                      `json:"status"`
	Timestamp   time.Time                   `json:"timestamp"`
	System      systemInfo                  `json:"system"`
	Database    dependencyStatus            `json:"database"`
	Application AppInfo                     `json:"application"`
	Components  map[string]dependencyStatus `json:"components,omitempty"`
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{
		Status:      "healthy",
		Timestamp:   h.now().UTC(),
		System:      collectSystemInfo(ctx),
		Database:    checkDependency(ctx, h.db),
		Application: h.app,
	}
	if h.redis != nil {
		resp.Components = map[string]dependencyStatus{"redis": checkDependency(ctx, h.redis)}
		if resp.Components["redis"].Status != "healthy" {
			resp.Status = "degraded"
		}
	}
	if resp.Database.Status != "healthy" {
		resp.Status = "unhealthy"
	}

	respondJSON(w, http.StatusOK, resp)
}

// Ping handles GET /health/ping
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"ping": "pong"})
}

// Ready handles GET /health/ready. Returns 503 while the database is unreachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	db := checkDependency(ctx, h.db)
	if db.Status != "healthy" {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database unavailable",
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func checkDependency(ctx context.Context, p Pinger) dependencyStatus {
	if p == nil {
		return dependencyStatus{Status: "unknown"}
	}
	if err := p.Ping(ctx); err != nil {
		return dependencyStatus{Status: "unhealthy", Error: err.Error()}
	}
	return dependencyStatus{Status: "healthy"}
}

// collectSystemInfo reports host metrics on a best-effort basis; fields that
// cannot be read are left empty
func collectSystemInfo(ctx context.Context) systemInfo {
	info := systemInfo{
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
		GoVersion:  runtime.Version(),
		CPUCount:   runtime.NumCPU(),
		Goroutines: runtime.NumGoroutine(),
	}

	if hi, err := host.InfoWithContext(ctx); err == nil {
		info.Hostname = hi.Hostname
		info.Platform = hi.Platform + " " + hi.PlatformVersion + " (" + hi.KernelArch + ")"
		info.UptimeSec = hi.Uptime
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil && n > 0 {
		info.CPUCount = n
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.Memory = &usageStats{Total: vm.Total, Available: vm.Available, UsedPercent: vm.UsedPercent}
	}
	if du, err := disk.UsageWithContext(ctx, "/"); err == nil {
		info.Disk = &usageStats{Total: du.Total, Available: du.Free, UsedPercent: du.UsedPercent}
	}
	return info
}
