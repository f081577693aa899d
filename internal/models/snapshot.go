package models

import "time"

// SnapshotEvent announces that a new hazard snapshot is serving queries.
type SnapshotEvent struct {
	Version     uint64    `json:"version"`
	HazardCount int       `json:"hazardCount"`
	BuiltAt     time.Time `json:"builtAt"`
	Degraded    bool      `json:"degraded,omitempty"`
}
