package domain

import "time"

const (
	// HealthStatusOK indicates all dependencies responded.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates a dependency failed but the process can still serve some traffic.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates a dependency timed out or was cancelled.
	HealthStatusError = "error"
)

// SystemHealthCheck is the outcome of one dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency probes for readiness endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
