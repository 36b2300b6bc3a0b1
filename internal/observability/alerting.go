package observability

import (
	"fmt"
	"sort"
	"time"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

// Alert represents a triggered alert condition.
type Alert struct {
	ID          string        `json:"id"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// AlertThresholds configures when alerts should fire.
type AlertThresholds struct {
	// ViolationBurst is the number of protocol violations inside
	// ViolationWindowMinutes that raises an alert.
	ViolationBurst         int `yaml:"violation_burst" json:"violation_burst"`
	ViolationWindowMinutes int `yaml:"violation_window_minutes" json:"violation_window_minutes"`
	JobFailures            int `yaml:"job_failures" json:"job_failures"`
	JobFailureWindowHours  int `yaml:"job_failure_window_hours" json:"job_failure_window_hours"`
	// MaxPollFailurePercent applies once MinPollSample incremental polls
	// have been recorded.
	MaxPollFailurePercent int `yaml:"max_poll_failure_percent" json:"max_poll_failure_percent"`
	MinPollSample         int `yaml:"min_poll_sample" json:"min_poll_sample"`
}

// DefaultAlertThresholds returns sensible defaults for alert thresholds.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		ViolationBurst:         5,
		ViolationWindowMinutes: 10,
		JobFailures:            3,
		JobFailureWindowHours:  1,
		MaxPollFailurePercent:  50,
		MinPollSample:          10,
	}
}

// AlertEngine evaluates alert conditions against the event log.
type AlertEngine interface {
	Evaluate() ([]Alert, error)
}

// alertEngine implements AlertEngine by reading events and checking thresholds.
type alertEngine struct {
	eventLog   EventLog
	thresholds AlertThresholds
}

// NewAlertEngine creates a new AlertEngine with the given EventLog and thresholds.
func NewAlertEngine(eventLog EventLog, thresholds AlertThresholds) AlertEngine {
	return &alertEngine{
		eventLog:   eventLog,
		thresholds: thresholds,
	}
}

// Evaluate reads events and checks all alert conditions, returning any triggered alerts.
func (ae *alertEngine) Evaluate() ([]Alert, error) {
	now := time.Now().UTC()
	var alerts []Alert

	persistent, err := ae.checkPersistentDegradation(now)
	if err != nil {
		return nil, fmt.Errorf("checking persistent degradation: %w", err)
	}
	alerts = append(alerts, persistent...)

	burst, err := ae.checkViolationBurst(now)
	if err != nil {
		return nil, fmt.Errorf("checking protocol violations: %w", err)
	}
	alerts = append(alerts, burst...)

	jobs, err := ae.checkJobFailures(now)
	if err != nil {
		return nil, fmt.Errorf("checking job failures: %w", err)
	}
	alerts = append(alerts, jobs...)

	rate, err := ae.checkPollFailureRate(now)
	if err != nil {
		return nil, fmt.Errorf("checking poll failure rate: %w", err)
	}
	alerts = append(alerts, rate...)

	return alerts, nil
}

// checkPersistentDegradation raises one alert per session whose most recent
// tracking episode escalated and was never resumed or reset.
func (ae *alertEngine) checkPersistentDegradation(now time.Time) ([]Alert, error) {
	events, err := ae.eventLog.Read(EventFilter{})
	if err != nil {
		return nil, err
	}

	type episode struct {
		entity string
		since  time.Time
		open   bool
	}
	sessions := make(map[string]*episode)

	for _, event := range events {
		session := dataString(event, "session")
		if session == "" {
			continue
		}
		switch event.Type {
		case typeTrackingPersistent:
			sessions[session] = &episode{entity: dataString(event, "entity_id"), since: event.Time, open: true}
		case typeTrackingResumed, typeSessionReset:
			if ep, ok := sessions[session]; ok {
				ep.open = false
			}
		}
	}

	ids := make([]string, 0, len(sessions))
	for id := range sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var alerts []Alert
	for _, id := range ids {
		ep := sessions[id]
		if !ep.open {
			continue
		}
		alerts = append(alerts, Alert{
			ID:          fmt.Sprintf("persistent-%s", id),
			Condition:   "tracking_persistently_degraded",
			Severity:    SeverityHigh,
			Message:     fmt.Sprintf("live updates for entity %s have been failing since %s", ep.entity, ep.since.Format(time.RFC3339)),
			TriggeredAt: now,
		})
	}
	return alerts, nil
}

// checkViolationBurst counts protocol violations inside the window.
func (ae *alertEngine) checkViolationBurst(now time.Time) ([]Alert, error) {
	window := time.Duration(ae.thresholds.ViolationWindowMinutes) * time.Minute
	since := now.Add(-window)
	events, err := ae.eventLog.Read(EventFilter{Since: &since, Type: typeProtocolViolation})
	if err != nil {
		return nil, err
	}
	if len(events) < ae.thresholds.ViolationBurst || ae.thresholds.ViolationBurst <= 0 {
		return nil, nil
	}
	return []Alert{{
		ID:          "protocol-violations",
		Condition:   "protocol_violation_burst",
		Severity:    SeverityMedium,
		Message:     fmt.Sprintf("%d protocol violations in the last %d minutes", len(events), ae.thresholds.ViolationWindowMinutes),
		TriggeredAt: now,
	}}, nil
}

// checkJobFailures counts reveal jobs that failed inside the window.
func (ae *alertEngine) checkJobFailures(now time.Time) ([]Alert, error) {
	window := time.Duration(ae.thresholds.JobFailureWindowHours) * time.Hour
	since := now.Add(-window)
	events, err := ae.eventLog.Read(EventFilter{Since: &since, Type: typeJobFailed})
	if err != nil {
		return nil, err
	}
	if len(events) < ae.thresholds.JobFailures || ae.thresholds.JobFailures <= 0 {
		return nil, nil
	}
	return []Alert{{
		ID:          "job-failures",
		Condition:   "job_failures",
		Severity:    SeverityMedium,
		Message:     fmt.Sprintf("%d reveal jobs failed in the last %d hours", len(events), ae.thresholds.JobFailureWindowHours),
		TriggeredAt: now,
	}}, nil
}

// checkPollFailureRate compares failed incremental polls against all
// incremental polls in the log.
func (ae *alertEngine) checkPollFailureRate(now time.Time) ([]Alert, error) {
	succeeded, err := ae.eventLog.Read(EventFilter{Type: typePollSucceeded})
	if err != nil {
		return nil, err
	}
	failedAll, err := ae.eventLog.Read(EventFilter{Type: typePollFailed})
	if err != nil {
		return nil, err
	}

	failed := 0
	for _, event := range failedAll {
		if dataString(event, "stage") == "incremental" {
			failed++
		}
	}
	total := len(succeeded) + failed
	if total == 0 || total < ae.thresholds.MinPollSample {
		return nil, nil
	}

	percent := failed * 100 / total
	if percent <= ae.thresholds.MaxPollFailurePercent {
		return nil, nil
	}
	return []Alert{{
		ID:          "poll-failure-rate",
		Condition:   "poll_failure_rate",
		Severity:    SeverityLow,
		Message:     fmt.Sprintf("%d%% of %d incremental polls failed, exceeding %d%%", percent, total, ae.thresholds.MaxPollFailurePercent),
		TriggeredAt: now,
	}}, nil
}
