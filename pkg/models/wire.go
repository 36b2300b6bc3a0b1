package models

// Wire envelopes for the radar HTTP contract. Every response carries ok and,
// when ok is false, a reason from the failure enum.

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	OK             bool   `json:"ok"`
	Source         string `json:"source,omitempty"`
	CursorOrdering string `json:"cursorOrdering,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// ResolveRequest is the body of POST /api/resolve.
type ResolveRequest struct {
	URL string `json:"url" binding:"required"`
}

// ResolveResponse is the reply to POST /api/resolve.
type ResolveResponse struct {
	OK       bool      `json:"ok"`
	Identity *Identity `json:"identity,omitempty"`
	Reason   string    `json:"reason,omitempty"`
}

// CreateJobRequest is the body of POST /api/jobs.
type CreateJobRequest struct {
	EntityID string `json:"entityId" binding:"required"`
}

// CreateJobResponse is the reply to POST /api/jobs.
type CreateJobResponse struct {
	OK        bool       `json:"ok"`
	JobHandle *JobHandle `json:"jobHandle,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// JobStatusResponse is the reply to GET /api/jobs/:id.
type JobStatusResponse struct {
	OK       bool      `json:"ok"`
	Status   JobStatus `json:"status,omitempty"`
	Cursor   string    `json:"cursor,omitempty"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
	Reason   string    `json:"reason,omitempty"`
}

// UpdatesResponse is the reply to GET /api/entities/:id/updates.
type UpdatesResponse struct {
	OK     bool   `json:"ok"`
	Cursor string `json:"cursor,omitempty"`
	Delta  *Delta `json:"delta,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// SubscribeRequest is the body of POST /api/subscriptions.
type SubscribeRequest struct {
	EntityID string `json:"entityId" binding:"required"`
	Contact  string `json:"contact" binding:"required"`
}

// SubscribeResponse is the reply to POST /api/subscriptions.
type SubscribeResponse struct {
	OK             bool   `json:"ok"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
	Reason         string `json:"reason,omitempty"`
}
