package models

import "time"

// BucketState summarizes the probe outcomes that fell into one timeline
// bucket. Unlike HealthState it has a mixed value: a bucket can hold both
// passing and failing probes.
type BucketState string

const (
	BucketOK      BucketState = "ok"
	BucketIssue   BucketState = "issue"
	BucketPartial BucketState = "partial"
	BucketMissing BucketState = "missing"
)

// TimelinePoint is one bucket of a service's probe history.
type TimelinePoint struct {
	State   BucketState      `json:"state"`
	Label   string           `json:"label"`
	Start   time.Time        `json:"start"`
	End     time.Time        `json:"end"`
	Details []TimelineDetail `json:"details,omitempty"`
}

// TimelineDetail records one failing probe inside a bucket.
type TimelineDetail struct {
	Timestamp time.Time   `json:"timestamp"`
	Health    HealthState `json:"health,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// ServiceTimeline aggregates timeline points for a single service.
type ServiceTimeline struct {
	ServiceID   string          `json:"service_id"`
	ServiceName string          `json:"service_name"`
	Timeline    []TimelinePoint `json:"timeline"`
}
