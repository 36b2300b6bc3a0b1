package core

// EventLogger is the subset of the observability event log that the session
// needs. Defining it here avoids importing the observability package.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any) error
}

// Event types written by the session.
const (
	EventModeChanged        = "session.mode_changed"
	EventSessionReset       = "session.reset"
	EventInputRejected      = "session.input_rejected"
	EventPollSucceeded      = "poll.succeeded"
	EventPollFailed         = "poll.failed"
	EventPollSuperseded     = "poll.superseded"
	EventProtocolViolation  = "protocol.violation"
	EventResolveFailed      = "resolve.failed"
	EventJobFailed          = "job.failed"
	EventTrackingDegraded   = "tracking.degraded"
	EventTrackingResumed    = "tracking.resumed"
	EventTrackingPersistent = "tracking.persistent"
	EventSubscriptionMade   = "subscription.created"
	EventSubscriptionFailed = "subscription.failed"
)

// EventLevel maps an event type onto the log level it is written at.
func EventLevel(eventType string) string {
	switch eventType {
	case EventPollFailed, EventProtocolViolation, EventTrackingDegraded,
		EventInputRejected, EventSubscriptionFailed:
		return "WARN"
	case EventResolveFailed, EventJobFailed, EventTrackingPersistent:
		return "ERROR"
	default:
		return "INFO"
	}
}
