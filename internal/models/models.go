package models

import (
	"time"
)

// HealthState describes the last known liveness of a service endpoint.
type HealthState string

const (
	HealthUnknown   HealthState = "unknown"
	HealthHealthy   HealthState = "healthy"
	HealthUnhealthy HealthState = "unhealthy"
)

// Service is a catalog entry mirrored from a dashboard, or added by hand.
//
// Ownership: entries with IsManuallyAdded set are only ever touched by
// direct user action; entries with a non-empty OriginKey belong to the
// reconciler. The health engine writes only Health and LastCheckedAt.
type Service struct {
	ID              string      `json:"id"`
	ConnectionID    string      `json:"connection_id,omitempty"`
	OriginKey       string      `json:"origin_key,omitempty"`
	Name            string      `json:"name"`
	URL             string      `json:"url,omitempty"`
	Icon            string      `json:"icon,omitempty"`
	Description     string      `json:"description,omitempty"`
	Category        string      `json:"category,omitempty"`
	SortOrder       int         `json:"sort_order"`
	IsManuallyAdded bool        `json:"is_manually_added"`
	TrustTLS        bool        `json:"trust_tls"`
	Health          HealthState `json:"health"`
	LastCheckedAt   *time.Time  `json:"last_checked_at,omitempty"`
}

// Bookmark is a link-only catalog entry; it carries no health state.
type Bookmark struct {
	ID              string `json:"id"`
	ConnectionID    string `json:"connection_id,omitempty"`
	OriginKey       string `json:"origin_key,omitempty"`
	Name            string `json:"name"`
	Href            string `json:"href"`
	Icon            string `json:"icon,omitempty"`
	Abbr            string `json:"abbr,omitempty"`
	Category        string `json:"category,omitempty"`
	SortOrder       int    `json:"sort_order"`
	IsManuallyAdded bool   `json:"is_manually_added"`
}

// Connection describes one remote dashboard source.
type Connection struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	BaseURL       string     `json:"base_url"`
	SyncEnabled   bool       `json:"sync_enabled"`
	TrustTLS      bool       `json:"trust_tls"`
	HasCredential bool       `json:"has_credential"`
	LastSyncAt    *time.Time `json:"last_sync_at,omitempty"`
}

// CategoryIcon maps a lowercased category name to a chosen icon token.
// An empty Icon with Cleared set means the user explicitly chose no icon.
type CategoryIcon struct {
	Category string `json:"category"`
	Icon     string `json:"icon,omitempty"`
	Cleared  bool   `json:"cleared"`
}

// DefaultCategory groups entries whose source declared no category.
const DefaultCategory = "Other"
