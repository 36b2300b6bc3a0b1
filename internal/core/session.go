package core

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/valter-silva-au/signal-radar/pkg/models"
)

// Msg is an input to Session.Update: a user command or the result of a
// Cmd the session scheduled earlier.
type Msg interface{}

// Cmd is work the session hands back to its driver. The driver runs it off
// the event loop and feeds the returned Msg, if any, back into Update.
type Cmd func() Msg

// SubmitMsg asks the session to resolve and track a company identifier.
type SubmitMsg struct{ Identifier string }

// RetryMsg re-enters resolving from failed with the same identity.
type RetryMsg struct{}

// ResetMsg discards everything and returns to idle.
type ResetMsg struct{}

// SubscribeMsg registers a contact for updates about the current entity.
// Ref, when set, is copied onto the feed entry that reports the outcome.
type SubscribeMsg struct {
	Contact string
	Ref     string
}

type resolvedMsg struct {
	seq        uint64
	identifier string
	identity   models.Identity
	err        error
}

type createJobDueMsg struct{ seq uint64 }

type jobCreatedMsg struct {
	seq    uint64
	handle models.JobHandle
	err    error
}

type jobPollDueMsg struct{ seq uint64 }

type jobPolledMsg struct {
	seq    uint64
	result models.JobResult
	err    error
}

type pollDueMsg struct{ seq uint64 }

type polledMsg struct {
	seq    uint64
	cursor string
	result models.IncrementalResult
	err    error
}

type subscribedMsg struct {
	generation uint64
	entity     models.Identity
	contact    string
	ref        string
	id         string
	err        error
}

// Hooks are optional callbacks invoked on the event loop. They must not
// block.
type Hooks struct {
	// OnPersistent fires once per degradation episode when tracking has
	// failed MaxAttempts times in a row.
	OnPersistent func(entity models.Identity, attempts int, err error)
	// OnSubscribed fires after a successful subscribe call.
	OnSubscribed func(sub models.Subscription)
}

// SessionOptions are the knobs a Session runs with.
type SessionOptions struct {
	Backoff     Backoff
	MaxAttempts int
	JobInterval time.Duration
	MaxJobPolls int
	CallTimeout time.Duration
	Merge       MergeOptions

	EventLogger EventLogger
	Hooks       Hooks

	// Now and After replace the wall clock in tests.
	Now   func() time.Time
	After func(time.Duration) <-chan time.Time
}

// DefaultSessionOptions mirrors DefaultConfig.
func DefaultSessionOptions() SessionOptions {
	return SessionOptionsFromConfig(DefaultConfig())
}

func (o SessionOptions) withDefaults() SessionOptions {
	def := DefaultSessionOptions()
	if o.Backoff.Base <= 0 {
		o.Backoff.Base = def.Backoff.Base
	}
	if o.Backoff.Cap < o.Backoff.Base {
		o.Backoff.Cap = max(def.Backoff.Cap, o.Backoff.Base)
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = def.MaxAttempts
	}
	if o.JobInterval <= 0 {
		o.JobInterval = def.JobInterval
	}
	if o.MaxJobPolls <= 0 {
		o.MaxJobPolls = def.MaxJobPolls
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = def.CallTimeout
	}
	if o.Merge == (MergeOptions{}) {
		o.Merge = def.Merge
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.After == nil {
		o.After = time.After
	}
	return o
}

// Session is one radar sync session: the view model, the lifecycle mode,
// and the polling that keeps them fresh.
//
// A Session is a state machine driven by Update. It is not safe for
// concurrent use; a single driver (Runner, or the dashboard program) owns
// it and runs the returned Cmds.
type Session struct {
	id       string
	source   DataSource
	opts     SessionOptions
	vm       models.ViewModel
	poller   *Poller
	degrader *Degrader
	parent   context.Context

	identifier string
	job        *models.JobHandle
	jobStatus  models.JobStatus
	jobPolls   int
	generation uint64
}

// NewSession creates an idle session bound to source. Every call the session
// makes derives its context from ctx.
func NewSession(ctx context.Context, source DataSource, opts SessionOptions) *Session {
	opts = opts.withDefaults()
	return &Session{
		id:       uuid.NewString(),
		source:   source,
		opts:     opts,
		vm:       models.NewViewModel(),
		poller:   NewPoller(opts.Backoff, source.CursorOrdering()),
		degrader: NewDegrader(opts.MaxAttempts, opts.Now),
		parent:   ctx,
	}
}

// ID identifies the session in the event log.
func (s *Session) ID() string { return s.id }

// Source is the data source the session was bound to.
func (s *Session) Source() DataSource { return s.source }

// View returns a copy of the current view model.
func (s *Session) View() models.ViewModel { return cloneViewModel(s.vm) }

// Mode is the current lifecycle mode.
func (s *Session) Mode() models.Mode { return s.vm.Mode }

// PollState returns the polling bookkeeping.
func (s *Session) PollState() PollState { return s.poller.State() }

// Close cancels in-flight calls and pending timers.
func (s *Session) Close() { s.poller.Clear() }

// Update applies msg and returns the work to run next.
func (s *Session) Update(msg Msg) []Cmd {
	switch m := msg.(type) {
	case SubmitMsg:
		return s.submit(m.Identifier)
	case RetryMsg:
		return s.retry()
	case ResetMsg:
		s.reset("requested")
		return nil
	case SubscribeMsg:
		return s.subscribe(m)
	case resolvedMsg:
		return s.onResolved(m)
	case createJobDueMsg:
		if !s.poller.Current(m.seq) || s.vm.Entity == nil {
			return nil
		}
		return []Cmd{s.createJobCmd(m.seq, s.vm.Entity.ID)}
	case jobCreatedMsg:
		return s.onJobCreated(m)
	case jobPollDueMsg:
		if !s.poller.Current(m.seq) || s.job == nil {
			return nil
		}
		return []Cmd{s.pollJobCmd(m.seq, *s.job)}
	case jobPolledMsg:
		return s.onJobPolled(m)
	case pollDueMsg:
		if !s.poller.Current(m.seq) || !AcceptsIncremental(s.vm.Mode) {
			return nil
		}
		return []Cmd{s.pollIncrementalCmd(m.seq, s.vm.Entity.ID, s.poller.State().Cursor)}
	case polledMsg:
		return s.onPolled(m)
	case subscribedMsg:
		s.onSubscribed(m)
	}
	return nil
}

func (s *Session) submit(raw string) []Cmd {
	identifier, err := NormalizeIdentifier(raw)
	if err != nil {
		s.reject(err)
		return nil
	}
	if s.vm.Mode == models.ModeFailed {
		s.reset("resubmitted")
	}
	if !CanTransition(s.vm.Mode, TriggerSubmit) {
		s.reject(fmt.Errorf("%w: submit while %s, reset first", ErrIllegalTransition, s.vm.Mode))
		return nil
	}
	s.identifier = identifier
	if err := s.transition(TriggerSubmit, models.Delta{}); err != nil {
		return nil
	}
	seq := s.poller.Begin(s.parent)
	return []Cmd{s.resolveCmd(seq, identifier)}
}

func (s *Session) retry() []Cmd {
	if s.vm.Mode != models.ModeFailed || (s.vm.Entity == nil && s.identifier == "") {
		s.reject(fmt.Errorf("%w in %s", ErrNoRetry, s.vm.Mode))
		return nil
	}
	if err := s.transition(TriggerRetry, models.Delta{}); err != nil {
		return nil
	}
	s.jobPolls = 0
	s.jobStatus = ""
	seq := s.poller.Begin(s.parent)
	if s.vm.Entity != nil {
		return []Cmd{s.createJobCmd(seq, s.vm.Entity.ID)}
	}
	return []Cmd{s.resolveCmd(seq, s.identifier)}
}

func (s *Session) reset(reason string) {
	s.poller.Clear()
	s.job = nil
	s.jobStatus = ""
	s.jobPolls = 0
	s.identifier = ""
	s.generation++
	if err := s.transition(TriggerReset, models.Delta{}); err != nil {
		return
	}
	s.logEvent(EventSessionReset, map[string]any{"reason": reason})
}

func (s *Session) subscribe(m SubscribeMsg) []Cmd {
	if s.vm.Entity == nil || s.vm.Mode == models.ModeResolving {
		s.rejectRef(fmt.Errorf("%w: subscribe needs a revealed company", ErrNoEntity), m.Ref)
		return nil
	}
	addr, err := mail.ParseAddress(m.Contact)
	if err != nil {
		s.rejectRef(fmt.Errorf("%w: %q", ErrInvalidContact, m.Contact), m.Ref)
		return nil
	}
	ref := m.Ref
	entity := *s.vm.Entity
	gen := s.generation
	parent, timeout, source := s.parent, s.opts.CallTimeout, s.source
	return []Cmd{func() Msg {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		id, err := source.Subscribe(ctx, entity.ID, addr.Address)
		return subscribedMsg{generation: gen, entity: entity, contact: addr.Address, ref: ref, id: id, err: err}
	}}
}

func (s *Session) onResolved(m resolvedMsg) []Cmd {
	if !s.poller.Current(m.seq) {
		s.superseded("resolve", m.seq)
		return nil
	}
	err := m.err
	if err == nil && m.identity.ID == "" {
		err = fmt.Errorf("%w: identity without id", ErrMalformedPayload)
	}
	if err != nil {
		s.poller.Stop()
		s.logEvent(EventResolveFailed, map[string]any{
			"identifier": m.identifier,
			"reason":     string(ReasonOf(err)),
			"error":      err.Error(),
		})
		s.recover(s.degrader.ResolveFailed(m.identifier, err))
		return nil
	}
	identity := m.identity
	s.apply(models.Delta{Entity: &identity})
	return []Cmd{s.createJobCmd(m.seq, identity.ID)}
}

func (s *Session) onJobCreated(m jobCreatedMsg) []Cmd {
	if !s.poller.Current(m.seq) {
		s.superseded("create_job", m.seq)
		return nil
	}
	if m.err != nil {
		return s.jobAttemptFailed(m.seq, "create_job", m.err, createJobDueMsg{seq: m.seq})
	}
	handle := m.handle
	s.job = &handle
	s.jobStatus = models.JobBuilding
	s.jobPolls = 0
	s.poller.Succeed()
	return []Cmd{s.after(s.opts.JobInterval, jobPollDueMsg{seq: m.seq})}
}

func (s *Session) onJobPolled(m jobPolledMsg) []Cmd {
	if !s.poller.Current(m.seq) {
		s.superseded("poll_job", m.seq)
		return nil
	}
	s.jobPolls++
	if m.err != nil {
		return s.jobAttemptFailed(m.seq, "poll_job", m.err, jobPollDueMsg{seq: m.seq})
	}

	switch m.result.Status {
	case models.JobFailed:
		s.jobFailed(ErrJobFailed)
		return nil
	case models.JobReady:
		s.jobStatus = models.JobReady
		if m.result.Snapshot == nil || m.result.Cursor == "" {
			return s.jobAttemptFailed(m.seq, "poll_job", ErrMissingSnapshot, jobPollDueMsg{seq: m.seq})
		}
		if err := Advances(s.source.CursorOrdering(), "", m.result.Cursor); err != nil {
			return s.jobAttemptFailed(m.seq, "poll_job", err, jobPollDueMsg{seq: m.seq})
		}
		return s.reveal(m.result)
	case models.JobBuilding:
		// Status only moves forward; building after ready is a contract breach.
		if s.jobStatus == models.JobReady {
			return s.jobAttemptFailed(m.seq, "poll_job", ErrStatusRegression, jobPollDueMsg{seq: m.seq})
		}
		s.poller.Succeed()
		if s.jobPolls >= s.opts.MaxJobPolls {
			s.jobFailed(fmt.Errorf("%w after %d polls", ErrJobTimeout, s.jobPolls))
			return nil
		}
		return []Cmd{s.after(s.opts.JobInterval, jobPollDueMsg{seq: m.seq})}
	default:
		err := fmt.Errorf("%w: job status %q", ErrMalformedPayload, m.result.Status)
		return s.jobAttemptFailed(m.seq, "poll_job", err, jobPollDueMsg{seq: m.seq})
	}
}

// jobAttemptFailed counts a failed call during resolving and schedules retry
// with backoff, or gives up once attempts are exhausted.
func (s *Session) jobAttemptFailed(seq uint64, stage string, err error, retry Msg) []Cmd {
	delay := s.poller.Fail()
	attempts := s.poller.State().Attempts
	s.logEvent(EventPollFailed, map[string]any{
		"stage":    stage,
		"attempts": attempts,
		"reason":   string(ReasonOf(err)),
		"error":    err.Error(),
	})
	if IsProtocolViolation(err) {
		s.logEvent(EventProtocolViolation, map[string]any{"stage": stage, "error": err.Error()})
	}
	if Definitive(err) || attempts >= s.opts.MaxAttempts || s.jobPolls >= s.opts.MaxJobPolls {
		s.jobFailed(err)
		return nil
	}
	return []Cmd{s.after(delay, retry)}
}

func (s *Session) jobFailed(err error) {
	s.poller.Stop()
	s.job = nil
	name := s.identifier
	if s.vm.Entity != nil {
		name = s.vm.Entity.Name
	}
	s.logEvent(EventJobFailed, map[string]any{"entity": name, "error": err.Error()})
	s.recover(s.degrader.JobFailed(name, err))
}

func (s *Session) reveal(result models.JobResult) []Cmd {
	snap := *result.Snapshot
	err := s.transitionWith(TriggerJobReady, func(vm models.ViewModel) MergeResult {
		return MergeSnapshot(vm, snap, s.opts.Merge, s.opts.Now())
	})
	if err != nil {
		return nil
	}
	s.job = nil
	if err := s.transition(TriggerCursorReady, s.degrader.Info(fmt.Sprintf("Tracking live updates for %s.", s.vm.Entity.Name))); err != nil {
		return nil
	}
	seq := s.poller.StartTracking(s.parent, result.Cursor)
	return []Cmd{s.after(s.opts.Backoff.Base, pollDueMsg{seq: seq})}
}

func (s *Session) onPolled(m polledMsg) []Cmd {
	if !s.poller.Current(m.seq) {
		s.superseded("incremental", m.seq)
		return nil
	}
	if !AcceptsIncremental(s.vm.Mode) {
		s.logEvent(EventProtocolViolation, map[string]any{"stage": "incremental", "error": ErrFrozen.Error()})
		return nil
	}
	if m.err != nil {
		return s.trackingFailed(m.seq, m.err)
	}
	if err := s.poller.Accept(m.result.Cursor); err != nil {
		return s.trackingFailed(m.seq, err)
	}

	delay := s.poller.Succeed()
	delta := m.result.Delta
	delta.Notice, delta.ClearNotice = nil, false
	if resumed := s.degrader.TrackingResumed(s.vm.Notice); resumed.ClearNotice {
		s.logEvent(EventTrackingResumed, map[string]any{"attempts": s.vm.Notice.Attempts})
		delta.Feed = append(resumed.Feed, delta.Feed...)
		delta.ClearNotice = true
	}
	s.apply(delta)
	s.logEvent(EventPollSucceeded, map[string]any{
		"from":     m.cursor,
		"cursor":   m.result.Cursor,
		"channels": len(m.result.Delta.Channels),
		"feed":     len(m.result.Delta.Feed),
	})
	return []Cmd{s.after(delay, pollDueMsg{seq: m.seq})}
}

func (s *Session) trackingFailed(seq uint64, err error) []Cmd {
	delay := s.poller.Fail()
	attempts := s.poller.State().Attempts
	s.logEvent(EventPollFailed, map[string]any{
		"stage":    "incremental",
		"attempts": attempts,
		"next":     delay.String(),
		"reason":   string(ReasonOf(err)),
		"error":    err.Error(),
	})
	if IsProtocolViolation(err) {
		s.logEvent(EventProtocolViolation, map[string]any{"stage": "incremental", "error": err.Error()})
	}
	if s.vm.Notice == nil {
		s.logEvent(EventTrackingDegraded, map[string]any{"error": err.Error()})
	}

	r := s.degrader.TrackingFailed(attempts, delay, s.vm.Notice, err)
	s.apply(r.Delta)
	if r.Escalate {
		s.logEvent(EventTrackingPersistent, map[string]any{"attempts": attempts, "error": err.Error()})
		if s.opts.Hooks.OnPersistent != nil && s.vm.Entity != nil {
			s.opts.Hooks.OnPersistent(*s.vm.Entity, attempts, err)
		}
	}
	return []Cmd{s.after(delay, pollDueMsg{seq: seq})}
}

func (s *Session) onSubscribed(m subscribedMsg) {
	if m.generation != s.generation {
		return
	}
	if m.err != nil {
		s.logEvent(EventSubscriptionFailed, map[string]any{
			"entity": m.entity.ID,
			"reason": string(ReasonOf(m.err)),
			"error":  m.err.Error(),
		})
		if s.vm.Mode != models.ModeResolving {
			s.apply(withRef(s.degrader.feed(models.FeedDiagnostic, fmt.Sprintf("Subscribing %s failed: %s.", m.contact, describe(m.err))), m.ref))
		}
		return
	}
	s.logEvent(EventSubscriptionMade, map[string]any{"entity": m.entity.ID, "subscription": m.id})
	if s.vm.Mode != models.ModeResolving {
		s.apply(withRef(s.degrader.Info(fmt.Sprintf("Subscribed %s to updates for %s.", m.contact, m.entity.Name)), m.ref))
	}
	if s.opts.Hooks.OnSubscribed != nil {
		s.opts.Hooks.OnSubscribed(models.Subscription{
			ID:       m.id,
			EntityID: m.entity.ID,
			Entity:   m.entity.Name,
			Contact:  m.contact,
			Source:   s.source.Name(),
			Created:  s.opts.Now().UTC(),
		})
	}
}

// transition is the only writer of the view model's mode.
func (s *Session) transition(trigger Trigger, delta models.Delta) error {
	return s.transitionWith(trigger, func(vm models.ViewModel) MergeResult {
		return Merge(vm, delta, s.opts.Merge, s.opts.Now())
	})
}

func (s *Session) transitionWith(trigger Trigger, write func(models.ViewModel) MergeResult) error {
	from := s.vm.Mode
	to, err := NextMode(from, trigger)
	if err != nil {
		s.logEvent(EventInputRejected, map[string]any{"error": err.Error()})
		return err
	}

	candidate := cloneViewModel(s.vm)
	if trigger == TriggerReset {
		candidate = models.NewViewModel()
		candidate.Revision = s.vm.Revision
	}
	candidate.Mode = to
	res := write(candidate)
	if err := CheckInvariants(res.Model, s.poller.Active()); err != nil {
		s.logEvent(EventProtocolViolation, map[string]any{"trigger": string(trigger), "error": err.Error()})
		return err
	}
	s.vm = res.Model
	s.logViolations(res.Violations)
	if from != to {
		s.logEvent(EventModeChanged, map[string]any{"from": string(from), "to": string(to), "trigger": string(trigger)})
	}
	return nil
}

// apply merges a delta without changing the mode. Channel and feed writes
// are refused while resolving.
func (s *Session) apply(delta models.Delta) {
	if s.vm.Mode == models.ModeResolving && (len(delta.Channels) > 0 || len(delta.Feed) > 0) {
		s.logEvent(EventProtocolViolation, map[string]any{"error": ErrFrozen.Error()})
		return
	}
	res := Merge(s.vm, delta, s.opts.Merge, s.opts.Now())
	s.vm = res.Model
	s.logViolations(res.Violations)
}

func (s *Session) recover(r Recovery) {
	if r.Trigger == "" {
		s.apply(r.Delta)
		return
	}
	_ = s.transition(r.Trigger, r.Delta)
}

func (s *Session) reject(err error) { s.rejectRef(err, "") }

func (s *Session) rejectRef(err error, ref string) {
	s.logEvent(EventInputRejected, map[string]any{"mode": string(s.vm.Mode), "error": err.Error()})
	if s.vm.Mode != models.ModeResolving {
		s.apply(withRef(s.degrader.InputRejected(err).Delta, ref))
	}
}

// withRef tags the feed entries of d with ref.
func withRef(d models.Delta, ref string) models.Delta {
	if ref == "" {
		return d
	}
	for i := range d.Feed {
		d.Feed[i].Ref = ref
	}
	return d
}

func (s *Session) superseded(stage string, seq uint64) {
	s.logEvent(EventPollSuperseded, map[string]any{
		"stage":   stage,
		"seq":     seq,
		"current": s.poller.State().Sequence,
	})
}

func (s *Session) logViolations(violations []Violation) {
	for _, v := range violations {
		s.logEvent(EventProtocolViolation, map[string]any{"field": v.Field, "error": v.Err.Error()})
	}
}

func (s *Session) logEvent(eventType string, data map[string]any) {
	if s.opts.EventLogger == nil {
		return
	}
	data["session"] = s.id
	if s.vm.Entity != nil {
		data["entity_id"] = s.vm.Entity.ID
	}
	_ = s.opts.EventLogger.LogEvent(eventType, data)
}

func (s *Session) resolveCmd(seq uint64, identifier string) Cmd {
	source := s.source
	return s.call(func(ctx context.Context) Msg {
		identity, err := source.ResolveEntity(ctx, identifier)
		return resolvedMsg{seq: seq, identifier: identifier, identity: identity, err: err}
	})
}

func (s *Session) createJobCmd(seq uint64, entityID string) Cmd {
	source := s.source
	return s.call(func(ctx context.Context) Msg {
		handle, err := source.CreateJob(ctx, entityID)
		return jobCreatedMsg{seq: seq, handle: handle, err: err}
	})
}

func (s *Session) pollJobCmd(seq uint64, handle models.JobHandle) Cmd {
	source := s.source
	return s.call(func(ctx context.Context) Msg {
		result, err := source.PollJob(ctx, handle)
		return jobPolledMsg{seq: seq, result: result, err: err}
	})
}

func (s *Session) pollIncrementalCmd(seq uint64, entityID, cursor string) Cmd {
	source := s.source
	return s.call(func(ctx context.Context) Msg {
		result, err := source.PollIncremental(ctx, entityID, cursor)
		return polledMsg{seq: seq, cursor: cursor, result: result, err: err}
	})
}

// call wraps a data source call in the phase context plus the per-call
// timeout.
func (s *Session) call(fn func(ctx context.Context) Msg) Cmd {
	ctx, timeout := s.poller.Context(), s.opts.CallTimeout
	return func() Msg {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return fn(cctx)
	}
}

// after delivers msg once d has elapsed, unless the phase ends first.
func (s *Session) after(d time.Duration, msg Msg) Cmd {
	ctx, after := s.poller.Context(), s.opts.After
	return func() Msg {
		select {
		case <-ctx.Done():
			return nil
		case <-after(d):
			return msg
		}
	}
}
