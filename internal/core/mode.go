package core

import (
	"fmt"

	"github.com/valter-silva-au/signal-radar/pkg/models"
)

// Trigger names the cause of a mode transition.
type Trigger string

const (
	TriggerSubmit        Trigger = "submit"
	TriggerRetry         Trigger = "retry"
	TriggerJobReady      Trigger = "job_ready"
	TriggerJobFailed     Trigger = "job_failed"
	TriggerResolveFailed Trigger = "resolve_failed"
	TriggerCursorReady   Trigger = "cursor_ready"
	TriggerReset         Trigger = "reset"
)

type edge struct {
	from    models.Mode
	trigger Trigger
}

// transitions is the closed transition table. Reset is handled separately
// because it is legal from every mode.
var transitions = map[edge]models.Mode{
	{models.ModeIdle, TriggerSubmit}:             models.ModeResolving,
	{models.ModeFailed, TriggerRetry}:            models.ModeResolving,
	{models.ModeResolving, TriggerJobReady}:      models.ModeRevealed,
	{models.ModeResolving, TriggerJobFailed}:     models.ModeFailed,
	{models.ModeResolving, TriggerResolveFailed}: models.ModeIdle,
	{models.ModeRevealed, TriggerCursorReady}:    models.ModeTracking,
}

// NextMode returns the mode reached from `from` on trigger, or
// ErrIllegalTransition when the table has no such edge.
func NextMode(from models.Mode, trigger Trigger) (models.Mode, error) {
	if trigger == TriggerReset {
		return models.ModeIdle, nil
	}
	to, ok := transitions[edge{from, trigger}]
	if !ok {
		return from, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, from, trigger)
	}
	return to, nil
}

// CanTransition reports whether the table allows trigger from `from`.
func CanTransition(from models.Mode, trigger Trigger) bool {
	_, err := NextMode(from, trigger)
	return err == nil
}

// CheckInvariants verifies the structural rules that must hold in vm.Mode.
// pollingActive reports whether an incremental polling loop is live.
func CheckInvariants(vm models.ViewModel, pollingActive bool) error {
	switch vm.Mode {
	case models.ModeIdle:
		if vm.Entity != nil {
			return fmt.Errorf("%w: idle with entity %s", ErrInvariant, vm.Entity.ID)
		}
		if len(vm.Channels) != 0 {
			return fmt.Errorf("%w: idle with %d channel(s)", ErrInvariant, len(vm.Channels))
		}
	case models.ModeRevealed, models.ModeTracking:
		if vm.Entity == nil {
			return fmt.Errorf("%w: %s without entity", ErrInvariant, vm.Mode)
		}
	case models.ModeResolving, models.ModeFailed:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvariant, vm.Mode)
	}
	if pollingActive && vm.Mode != models.ModeTracking {
		return fmt.Errorf("%w: polling active in %s", ErrInvariant, vm.Mode)
	}
	return nil
}

// AcceptsIncremental reports whether an incremental merge may write in mode.
// Resolving freezes channels and feed so a trailing poll from an earlier
// session cannot leak into the new one.
func AcceptsIncremental(mode models.Mode) bool {
	return mode == models.ModeTracking
}
