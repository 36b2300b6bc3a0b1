package observability

import (
	"fmt"
	"time"
)

// Event types the calculator and alert engine read. They mirror the types
// the session writes.
const (
	typeModeChanged        = "session.mode_changed"
	typeSessionReset       = "session.reset"
	typePollSucceeded      = "poll.succeeded"
	typePollFailed         = "poll.failed"
	typePollSuperseded     = "poll.superseded"
	typeProtocolViolation  = "protocol.violation"
	typeResolveFailed      = "resolve.failed"
	typeJobFailed          = "job.failed"
	typeTrackingDegraded   = "tracking.degraded"
	typeTrackingResumed    = "tracking.resumed"
	typeTrackingPersistent = "tracking.persistent"
	typeSubscriptionMade   = "subscription.created"
)

// Metrics holds sync metrics derived from the event log.
type Metrics struct {
	Sessions               int            `json:"sessions"`
	Resets                 int            `json:"resets"`
	ModeEntries            map[string]int `json:"mode_entries"`
	PollsSucceeded         int            `json:"polls_succeeded"`
	PollsFailed            int            `json:"polls_failed"`
	FailuresByStage        map[string]int `json:"failures_by_stage"`
	FailuresByReason       map[string]int `json:"failures_by_reason"`
	PollsSuperseded        int            `json:"polls_superseded"`
	ProtocolViolations     int            `json:"protocol_violations"`
	ResolveFailures        int            `json:"resolve_failures"`
	JobFailures            int            `json:"job_failures"`
	DegradedEpisodes       int            `json:"degraded_episodes"`
	ResumedEpisodes        int            `json:"resumed_episodes"`
	PersistentEpisodes     int            `json:"persistent_episodes"`
	SubscriptionsMade      int            `json:"subscriptions_made"`
	IncrementalSuccessRate float64        `json:"incremental_success_rate"`
	EventCount             int            `json:"event_count"`
	OldestEvent            *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent            *time.Time     `json:"newest_event,omitempty"`
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

// metricsCalculator implements MetricsCalculator by reading from an EventLog.
type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a new MetricsCalculator that reads from the given EventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

// Calculate reads all events since the given time and aggregates them into metrics.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{
		ModeEntries:      make(map[string]int),
		FailuresByStage:  make(map[string]int),
		FailuresByReason: make(map[string]int),
	}
	m.EventCount = len(events)

	sessions := make(map[string]struct{})
	incrementalFailed := 0

	for i, event := range events {
		if i == 0 {
			t := event.Time
			m.OldestEvent = &t
		}
		t := event.Time
		m.NewestEvent = &t

		if id := dataString(event, "session"); id != "" {
			sessions[id] = struct{}{}
		}

		switch event.Type {
		case typeModeChanged:
			if to := dataString(event, "to"); to != "" {
				m.ModeEntries[to]++
			}
		case typeSessionReset:
			m.Resets++
		case typePollSucceeded:
			m.PollsSucceeded++
		case typePollFailed:
			m.PollsFailed++
			stage := dataString(event, "stage")
			if stage != "" {
				m.FailuresByStage[stage]++
			}
			if stage == "incremental" {
				incrementalFailed++
			}
			if reason := dataString(event, "reason"); reason != "" {
				m.FailuresByReason[reason]++
			}
		case typePollSuperseded:
			m.PollsSuperseded++
		case typeProtocolViolation:
			m.ProtocolViolations++
		case typeResolveFailed:
			m.ResolveFailures++
		case typeJobFailed:
			m.JobFailures++
		case typeTrackingDegraded:
			m.DegradedEpisodes++
		case typeTrackingResumed:
			m.ResumedEpisodes++
		case typeTrackingPersistent:
			m.PersistentEpisodes++
		case typeSubscriptionMade:
			m.SubscriptionsMade++
		}
	}

	m.Sessions = len(sessions)
	if total := m.PollsSucceeded + incrementalFailed; total > 0 {
		m.IncrementalSuccessRate = float64(m.PollsSucceeded) / float64(total)
	}
	return m, nil
}
