package models

import "time"

// HealthSample captures the outcome of a single liveness probe.
type HealthSample struct {
	ServiceID  string      `json:"service_id"`
	Name       string      `json:"name"`
	State      HealthState `json:"state"`
	StatusCode *int        `json:"status_code,omitempty"`
	LatencyMs  int64       `json:"latency_ms"`
	Error      string      `json:"error,omitempty"`
	CheckedAt  time.Time   `json:"checked_at"`
}

// HealthCycle stores the results of one full probing cycle.
type HealthCycle struct {
	StartedAt time.Time      `json:"started_at"`
	Samples   []HealthSample `json:"samples"`
}
