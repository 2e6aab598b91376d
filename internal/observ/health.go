package observ

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthStatus represents overall system health status
type HealthStatus struct {
	Status    string         `json:"status"`    // "healthy", "degraded"
	Timestamp string         `json:"timestamp"` // ISO 8601
	Uptime    string         `json:"uptime"`
	Version   string         `json:"version"`
	Details   map[string]any `json:"details,omitempty"`
}

// HealthCheck contributes details and may mark the process degraded
type HealthCheck func() (details map[string]any, degraded bool)

var (
	startTime = time.Now()
	version   = "dev" // Set via build flags
)

// SetVersion sets the version string for health reports
func SetVersion(v string) {
	version = v
}

// Version returns the build version
func Version() string {
	return version
}

// CheckHealth runs the checks and assembles a report
func CheckHealth(checks map[string]HealthCheck) HealthStatus {
	health := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(startTime).Round(time.Second).String(),
		Version:   version,
		Details:   make(map[string]any, len(checks)),
	}
	for name, check := range checks {
		details, degraded := check()
		health.Details[name] = details
		if degraded {
			health.Status = "degraded"
		}
	}
	return health
}

// HealthHandler serves CheckHealth as JSON; degraded maps to 206
func HealthHandler(checks map[string]HealthCheck) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := CheckHealth(checks)
		statusCode := http.StatusOK
		if health.Status == "degraded" {
			statusCode = http.StatusPartialContent
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(health)
	})
}
