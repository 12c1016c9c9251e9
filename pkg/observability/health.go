package observability

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// HealthChecker provides health check functionality
type HealthChecker struct {
	fileRoot       string
	storePath      string
	officeEndpoint string
	engines        []string
	redis          *redis.Client
}

// NewHealthChecker creates a new health checker. storePath, officeEndpoint,
// engines and redisClient are optional; empty values skip the probe.
func NewHealthChecker(fileRoot, storePath, officeEndpoint string, engines []string, redisClient *redis.Client) *HealthChecker {
	return &HealthChecker{
		fileRoot:       fileRoot,
		storePath:      storePath,
		officeEndpoint: officeEndpoint,
		engines:        engines,
		redis:          redisClient,
	}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status    string        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ms,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Liveness returns a simple liveness probe (always returns 200 if server is running)
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
	})
}

// Readiness returns a readiness probe (checks all dependencies)
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")

	// Return 503 if unhealthy, 200 if healthy or degraded
	if status.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(status)
}

// Check performs a comprehensive health check
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Version:      "1.0.0", // TODO: Get from build info
		Dependencies: make(map[string]DependencyStatus),
	}

	// Check the file root. The service cannot serve anything without it.
	fileRootStatus := h.checkFileRoot()
	status.Dependencies["file_root"] = fileRootStatus
	if fileRootStatus.Status == StatusUnhealthy {
		status.Status = StatusUnhealthy
	}

	// Check the preview store. The store is optional - previews are still
	// generated without it, just not cached.
	if h.storePath != "" {
		storeStatus := h.checkStore()
		status.Dependencies["store"] = storeStatus
		if storeStatus.Status == StatusUnhealthy && status.Status != StatusUnhealthy {
			status.Status = StatusDegraded
		}
	}

	// Check the office document converter. Office previews fail without it,
	// but every other format keeps working.
	if h.officeEndpoint != "" {
		officeStatus := h.checkOffice(ctx)
		status.Dependencies["office_converter"] = officeStatus
		if officeStatus.Status == StatusUnhealthy && status.Status != StatusUnhealthy {
			status.Status = StatusDegraded
		}
	}

	// Check conversion engine binaries
	if len(h.engines) > 0 {
		engineStatus := h.checkEngines()
		status.Dependencies["engines"] = engineStatus
		if engineStatus.Status == StatusUnhealthy && status.Status != StatusUnhealthy {
			status.Status = StatusDegraded
		}
	}

	// Check Redis
	if h.redis != nil {
		redisStatus := h.checkRedis(ctx)
		status.Dependencies["redis"] = redisStatus
		if redisStatus.Status == StatusUnhealthy {
			// Redis is optional - degraded if Redis is down
			if status.Status != StatusUnhealthy {
				status.Status = StatusDegraded
			}
		}
	}

	return status
}

// checkFileRoot checks that the shared file root exists and is a directory
func (h *HealthChecker) checkFileRoot() DependencyStatus {
	start := time.Now()
	status := DependencyStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
	}

	info, err := os.Stat(h.fileRoot)
	status.Latency = time.Since(start)

	if err != nil {
		status.Status = StatusUnhealthy
		status.Message = err.Error()
		return status
	}

	if !info.IsDir() {
		status.Status = StatusUnhealthy
		status.Message = h.fileRoot + " is not a directory"
	}

	return status
}

// checkStore checks that the preview store directory is writable
func (h *HealthChecker) checkStore() DependencyStatus {
	start := time.Now()
	status := DependencyStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
	}

	probe := filepath.Join(h.storePath, ".pvs-health")
	err := os.WriteFile(probe, []byte("ok"), 0o644)
	status.Latency = time.Since(start)

	if err != nil {
		status.Status = StatusUnhealthy
		status.Message = err.Error()
		return status
	}

	if err := os.Remove(probe); err != nil {
		status.Status = StatusDegraded
		status.Message = "probe cleanup failed: " + err.Error()
	}

	return status
}

// checkOffice checks that the office document converter accepts connections
func (h *HealthChecker) checkOffice(ctx context.Context) DependencyStatus {
	start := time.Now()
	status := DependencyStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", h.officeEndpoint)
	status.Latency = time.Since(start)

	if err != nil {
		status.Status = StatusUnhealthy
		status.Message = err.Error()
		return status
	}
	conn.Close()

	return status
}

// checkEngines checks that the conversion engine binaries are on PATH
func (h *HealthChecker) checkEngines() DependencyStatus {
	start := time.Now()
	status := DependencyStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
	}

	var missing []string
	for _, engine := range h.engines {
		if _, err := exec.LookPath(engine); err != nil {
			missing = append(missing, engine)
		}
	}
	status.Latency = time.Since(start)

	if len(missing) > 0 {
		status.Status = StatusUnhealthy
		status.Message = "missing: " + strings.Join(missing, ", ")
	}

	return status
}

// checkRedis checks Redis health
func (h *HealthChecker) checkRedis(ctx context.Context) DependencyStatus {
	start := time.Now()
	status := DependencyStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
	}

	// Ping Redis
	err := h.redis.Ping(ctx).Err()
	status.Latency = time.Since(start)

	if err != nil {
		status.Status = StatusUnhealthy
		status.Message = err.Error()
		return status
	}

	return status
}
