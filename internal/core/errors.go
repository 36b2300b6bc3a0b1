package core

import "errors"

// Input rejection.
var (
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrInvalidContact    = errors.New("invalid contact address")
)

// Lifecycle misuse.
var (
	ErrIllegalTransition = errors.New("illegal mode transition")
	ErrInvariant         = errors.New("structural invariant violated")
	ErrNoRetry           = errors.New("nothing to retry")
	ErrNoEntity          = errors.New("no resolved entity")
)

// Protocol violations. These are recorded and absorbed, never surfaced as a
// crash.
var (
	ErrCursorRegression = errors.New("cursor did not advance")
	ErrMalformedCursor  = errors.New("malformed cursor")
	ErrEntityRedefined  = errors.New("entity redefinition")
	ErrMissingSnapshot  = errors.New("ready job without snapshot or cursor")
	ErrStatusRegression = errors.New("job status regressed")
	ErrFrozen           = errors.New("view model frozen while resolving")
)

// ErrMalformedPayload marks a data source response that could not be decoded
// under the wire contract.
var ErrMalformedPayload = errors.New("malformed payload")

// Reveal job outcomes.
var (
	ErrJobFailed  = errors.New("reveal job failed")
	ErrJobTimeout = errors.New("reveal job did not become ready")
)
