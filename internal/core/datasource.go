package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/valter-silva-au/signal-radar/pkg/models"
)

// Reason is the failure enum shared by every data source operation.
type Reason string

const (
	ReasonNotFound     Reason = "not_found"
	ReasonInvalidInput Reason = "invalid_input"
	ReasonRateLimited  Reason = "rate_limited"
	ReasonServerError  Reason = "server_error"
	ReasonUnknown      Reason = "unknown"
)

// ParseReason maps a wire string onto the Reason enum. Anything it does not
// recognize becomes ReasonUnknown.
func ParseReason(s string) Reason {
	switch Reason(s) {
	case ReasonNotFound, ReasonInvalidInput, ReasonRateLimited, ReasonServerError:
		return Reason(s)
	default:
		return ReasonUnknown
	}
}

// SourceError is the Go form of the { ok: false, reason } result.
type SourceError struct {
	Op     string
	Reason Reason
	Err    error
}

func (e *SourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *SourceError) Unwrap() error { return e.Err }

// NewSourceError builds a SourceError for op.
func NewSourceError(op string, reason Reason, err error) *SourceError {
	return &SourceError{Op: op, Reason: reason, Err: err}
}

// ReasonOf extracts the Reason from err. Timeouts, cancellations and plain
// transport errors report ReasonUnknown.
func ReasonOf(err error) Reason {
	if err == nil {
		return ""
	}
	var se *SourceError
	if errors.As(err, &se) {
		return se.Reason
	}
	return ReasonUnknown
}

// Definitive reports whether err means retrying the same input cannot help.
func Definitive(err error) bool {
	switch ReasonOf(err) {
	case ReasonNotFound, ReasonInvalidInput:
		return true
	default:
		return false
	}
}

// CursorOrdering is the ordering a data source declares for its cursors.
type CursorOrdering string

const (
	// OrderNumeric compares cursors as unsigned integers.
	OrderNumeric CursorOrdering = "numeric"
	// OrderLexical compares cursors byte-wise, which is chronological for
	// fixed-width ISO-8601 timestamps.
	OrderLexical CursorOrdering = "lexical"
)

// DataSource is the capability the session synchronizes against. The
// simulated generator and the HTTP client both implement it; the session
// never depends on which one it was given.
type DataSource interface {
	Name() string
	CursorOrdering() CursorOrdering
	ResolveEntity(ctx context.Context, identifier string) (models.Identity, error)
	CreateJob(ctx context.Context, entityID string) (models.JobHandle, error)
	PollJob(ctx context.Context, handle models.JobHandle) (models.JobResult, error)
	PollIncremental(ctx context.Context, entityID, cursor string) (models.IncrementalResult, error)
	Subscribe(ctx context.Context, entityID, contact string) (string, error)
	Health(ctx context.Context) error
}
