package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/valter-silva-au/signal-radar/pkg/models"
)

// Category classifies a failure by the recovery it needs.
type Category string

const (
	CategoryInputRejected     Category = "input_rejected"
	CategoryResolveFailed     Category = "resolve_failed"
	CategoryJobFailed         Category = "job_failed"
	CategoryTrackingDegraded  Category = "tracking_degraded"
	CategoryProtocolViolation Category = "protocol_violation"
)

// IsProtocolViolation reports whether err is a contract breach by the data
// source rather than a transport or server failure.
func IsProtocolViolation(err error) bool {
	for _, target := range []error{
		ErrCursorRegression, ErrMalformedCursor, ErrEntityRedefined,
		ErrMissingSnapshot, ErrStatusRegression, ErrMalformedPayload,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Recovery is what the session applies for a classified failure.
type Recovery struct {
	Category Category
	// Trigger is the mode transition to take, or empty to stay put.
	Trigger Trigger
	// Delta carries the diagnostic feed item and notice changes.
	Delta models.Delta
	// Retry reports whether a manual retry is available afterwards.
	Retry bool
	// Escalate is set once per episode, when tracking turns persistent.
	Escalate bool
}

// Degrader turns failures into user-visible, non-destructive recoveries.
// It never clears channel or feed data.
type Degrader struct {
	maxAttempts int
	now         func() time.Time
}

// NewDegrader creates a Degrader that escalates after maxAttempts
// consecutive tracking failures.
func NewDegrader(maxAttempts int, now func() time.Time) *Degrader {
	if now == nil {
		now = time.Now
	}
	return &Degrader{maxAttempts: maxAttempts, now: now}
}

// InputRejected explains why a submission was refused. The mode is unchanged.
func (d *Degrader) InputRejected(err error) Recovery {
	return Recovery{
		Category: CategoryInputRejected,
		Delta:    d.feed(models.FeedDiagnostic, fmt.Sprintf("Input rejected: %v", err)),
	}
}

// ResolveFailed handles a failed entity resolution. Definitive failures
// return to idle; anything that might succeed later lands in failed with a
// retry available.
func (d *Degrader) ResolveFailed(identifier string, err error) Recovery {
	if Definitive(err) {
		return Recovery{
			Category: CategoryResolveFailed,
			Trigger:  TriggerResolveFailed,
			Delta:    d.feed(models.FeedDiagnostic, fmt.Sprintf("Could not resolve %s: %s", identifier, describe(err))),
		}
	}
	return Recovery{
		Category: CategoryResolveFailed,
		Trigger:  TriggerJobFailed,
		Delta:    d.feed(models.FeedDiagnostic, fmt.Sprintf("Resolving %s failed: %s. Retry is available.", identifier, describe(err))),
		Retry:    true,
	}
}

// JobFailed handles a reveal job that failed, timed out or kept violating
// the protocol.
func (d *Degrader) JobFailed(entity string, err error) Recovery {
	return Recovery{
		Category: CategoryJobFailed,
		Trigger:  TriggerJobFailed,
		Delta:    d.feed(models.FeedDiagnostic, fmt.Sprintf("Preparing %s failed: %s. Retry is available.", entity, describe(err))),
		Retry:    true,
	}
}

// TrackingFailed handles the attempts-th consecutive incremental failure.
// The mode stays tracking; the notice announces the pause once and turns
// persistent once attempts reaches the configured maximum.
func (d *Degrader) TrackingFailed(attempts int, next time.Duration, current *models.Notice, err error) Recovery {
	now := d.now()
	r := Recovery{Category: CategoryTrackingDegraded}
	if IsProtocolViolation(err) {
		r.Category = CategoryProtocolViolation
	}

	switch {
	case current == nil:
		r.Delta = d.feed(models.FeedDiagnostic, fmt.Sprintf("Live updates paused (%s), retrying in %s.", describe(err), next))
		r.Delta.Notice = &models.Notice{
			Level:    models.NoticePaused,
			Text:     "Live updates paused, retrying.",
			Attempts: attempts,
			Since:    now,
		}
		if attempts >= d.maxAttempts {
			r.Delta.Notice.Level = models.NoticePersistent
			r.Escalate = true
		}
	case attempts >= d.maxAttempts && current.Level != models.NoticePersistent:
		r.Delta = d.feed(models.FeedDiagnostic, fmt.Sprintf("Still unable to refresh after %d attempts, retrying every %s.", attempts, next))
		r.Delta.Notice = &models.Notice{
			Level:    models.NoticePersistent,
			Text:     "Live updates unavailable. Showing the last known state.",
			Attempts: attempts,
			Since:    current.Since,
		}
		r.Escalate = true
	default:
		n := *current
		n.Attempts = attempts
		r.Delta.Notice = &n
	}
	return r
}

// TrackingResumed clears an active notice after a successful poll. It
// returns an empty Delta when tracking was healthy.
func (d *Degrader) TrackingResumed(current *models.Notice) models.Delta {
	if current == nil {
		return models.Delta{}
	}
	delta := d.feed(models.FeedSystem, fmt.Sprintf("Live updates resumed after %d failed attempt(s).", current.Attempts))
	delta.ClearNotice = true
	return delta
}

// Info builds a system feed entry.
func (d *Degrader) Info(text string) models.Delta {
	return d.feed(models.FeedSystem, text)
}

func (d *Degrader) feed(kind models.FeedKind, text string) models.Delta {
	return models.Delta{Feed: []models.FeedItem{{
		ID:         uuid.NewString(),
		Kind:       kind,
		Text:       text,
		Timestamp:  d.now(),
		Confidence: 1,
	}}}
}

func describe(err error) string {
	if IsProtocolViolation(err) {
		return "unexpected response from source"
	}
	switch ReasonOf(err) {
	case ReasonNotFound:
		return "not found"
	case ReasonInvalidInput:
		return "not a valid company"
	case ReasonRateLimited:
		return "source is rate limiting"
	case ReasonServerError:
		return "source error"
	}
	switch {
	case errors.Is(err, ErrJobTimeout):
		return "took too long"
	case errors.Is(err, ErrJobFailed):
		return "source could not build it"
	case errors.Is(err, ErrNoEntity), errors.Is(err, ErrInvalidContact):
		return err.Error()
	}
	return "source unreachable"
}
