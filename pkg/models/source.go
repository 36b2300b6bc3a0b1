package models

import "time"

// JobStatus is the preparation state of a reveal job. It only ever moves
// from building to ready or failed.
type JobStatus string

const (
	JobBuilding JobStatus = "building"
	JobReady    JobStatus = "ready"
	JobFailed   JobStatus = "failed"
)

// JobHandle identifies a reveal job on a data source.
type JobHandle struct {
	ID       string    `json:"id"`
	EntityID string    `json:"entityId,omitempty"`
	Status   JobStatus `json:"status"`
}

// JobResult is the outcome of a single job poll. Cursor and Snapshot are
// only meaningful when Status is ready.
type JobResult struct {
	Status   JobStatus `json:"status"`
	Cursor   string    `json:"cursor,omitempty"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
}

// IncrementalResult is one page of the incremental update stream.
type IncrementalResult struct {
	Cursor string `json:"cursor"`
	Delta  Delta  `json:"delta"`
}

// Subscription records a successful subscribe call.
type Subscription struct {
	ID       string    `yaml:"id" json:"id"`
	EntityID string    `yaml:"entity_id" json:"entityId"`
	Entity   string    `yaml:"entity" json:"entity"`
	Contact  string    `yaml:"contact" json:"contact"`
	Source   string    `yaml:"source" json:"source"`
	Created  time.Time `yaml:"created" json:"created"`
}
