package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// HealthChecker is implemented by the database, Redis and CCXT clients.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler reports dependency status and process resource usage.
type HealthHandler struct {
	db        HealthChecker
	redis     HealthChecker
	ccxt      HealthChecker
	version   string
	startedAt time.Time
}

type HealthResponse struct {
	// Status is "healthy", "degraded" or "unhealthy".
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
	System    *SystemStats      `json:"system,omitempty"`
}

type SystemStats struct {
	Goroutines        int     `json:"goroutines"`
	ProcessRSSBytes   uint64  `json:"process_rss_bytes"`
	ProcessCPUPercent float64 `json:"process_cpu_percent"`
	HostMemoryUsed    float64 `json:"host_memory_used_percent"`
	HostMemoryTotal   uint64  `json:"host_memory_total_bytes"`
}

// NewHealthHandler accepts nil checkers for dependencies that are not configured.
func NewHealthHandler(db, redis, ccxt HealthChecker) *HealthHandler {
	return &HealthHandler{
		db:        db,
		redis:     redis,
		ccxt:      ccxt,
		version:   os.Getenv("APP_VERSION"),
		startedAt: time.Now(),
	}
}

// HealthCheck returns 503 only when the trade history database is down;
// Redis and the CCXT service degrade the engine without stopping it.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	span := sentry.StartSpan(ctx, "health_check")
	defer span.Finish()
	ctx = span.Context()

	services := map[string]string{
		"database": checkStatus(ctx, span, "database", h.db),
		"redis":    checkStatus(ctx, span, "redis", h.redis),
		"ccxt":     checkStatus(ctx, span, "ccxt", h.ccxt),
	}

	status := "healthy"
	for _, s := range services {
		if s != "healthy" && s != "not configured" {
			status = "degraded"
		}
	}
	code := http.StatusOK
	if services["database"] != "healthy" {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
		span.Status = sentry.SpanStatusUnavailable
	} else {
		span.Status = sentry.SpanStatusOK
	}
	span.SetTag("overall.status", status)

	c.JSON(code, HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Services:  services,
		Version:   h.version,
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		System:    systemStats(ctx),
	})
}

// LivenessCheck confirms the process is serving requests.
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func checkStatus(ctx context.Context, span *sentry.Span, name string, checker HealthChecker) string {
	if checker == nil {
		span.SetTag(name+".status", "not_configured")
		return "not configured"
	}
	if err := checker.HealthCheck(ctx); err != nil {
		span.SetTag(name+".status", "unhealthy")
		sentry.CaptureException(err)
		return "unhealthy: " + err.Error()
	}
	span.SetTag(name+".status", "healthy")
	return "healthy"
}

// systemStats is best effort; fields that cannot be read stay zero.
func systemStats(ctx context.Context) *SystemStats {
	stats := &SystemStats{Goroutines: runtime.NumGoroutine()}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.HostMemoryUsed = vm.UsedPercent
		stats.HostMemoryTotal = vm.Total
	}
	if proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if info, err := proc.MemoryInfoWithContext(ctx); err == nil {
			stats.ProcessRSSBytes = info.RSS
		}
		if pct, err := proc.CPUPercentWithContext(ctx); err == nil {
			stats.ProcessCPUPercent = pct
		}
	}
	return stats
}
