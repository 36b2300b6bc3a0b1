package core

import (
	"context"
	"sync"
	"time"

	"github.com/valter-silva-au/signal-radar/pkg/models"
)

type jobReply struct {
	result models.JobResult
	err    error
}

type incrementalReply struct {
	result models.IncrementalResult
	err    error
}

// mockSource is a scripted DataSource. Job and incremental replies are
// consumed in order; once the script runs out, PollJob keeps returning the
// last reply and PollIncremental returns a server error.
type mockSource struct {
	mu sync.Mutex

	ordering     CursorOrdering
	identity     models.Identity
	resolveErr   error
	createErr    []error
	jobs         []jobReply
	incremental  []incrementalReply
	subscribeErr error

	calls   map[string]int
	cursors []string
}

func newMockSource() *mockSource {
	return &mockSource{
		ordering: OrderLexical,
		identity: models.Identity{ID: "ent-acme", Name: "Acme", Domain: "acme.io"},
		calls:    make(map[string]int),
	}
}

func (m *mockSource) record(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[op]++
}

func (m *mockSource) count(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *mockSource) Name() string                   { return "mock" }
func (m *mockSource) CursorOrdering() CursorOrdering { return m.ordering }

func (m *mockSource) ResolveEntity(_ context.Context, identifier string) (models.Identity, error) {
	m.record("resolve")
	if m.resolveErr != nil {
		return models.Identity{}, m.resolveErr
	}
	id := m.identity
	id.Domain = identifier
	return id, nil
}

func (m *mockSource) CreateJob(_ context.Context, entityID string) (models.JobHandle, error) {
	m.record("create_job")
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.createErr) > 0 {
		err := m.createErr[0]
		m.createErr = m.createErr[1:]
		if err != nil {
			return models.JobHandle{}, err
		}
	}
	return models.JobHandle{ID: "job-1", EntityID: entityID, Status: models.JobBuilding}, nil
}

func (m *mockSource) PollJob(_ context.Context, _ models.JobHandle) (models.JobResult, error) {
	m.record("poll_job")
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.jobs) == 0 {
		return models.JobResult{Status: models.JobBuilding}, nil
	}
	r := m.jobs[0]
	if len(m.jobs) > 1 {
		m.jobs = m.jobs[1:]
	}
	return r.result, r.err
}

func (m *mockSource) PollIncremental(_ context.Context, _ string, cursor string) (models.IncrementalResult, error) {
	m.record("poll_incremental")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors = append(m.cursors, cursor)
	if len(m.incremental) == 0 {
		return models.IncrementalResult{}, NewSourceError("poll_incremental", ReasonServerError, nil)
	}
	r := m.incremental[0]
	m.incremental = m.incremental[1:]
	return r.result, r.err
}

func (m *mockSource) Subscribe(_ context.Context, entityID, _ string) (string, error) {
	m.record("subscribe")
	if m.subscribeErr != nil {
		return "", m.subscribeErr
	}
	return "sub-" + entityID, nil
}

func (m *mockSource) Health(context.Context) error { return nil }

// readyWith is a ready job reply carrying a single-channel snapshot.
func readyWith(cursor, channel string, value float64) jobReply {
	return jobReply{result: models.JobResult{
		Status: models.JobReady,
		Cursor: cursor,
		Snapshot: &models.Snapshot{
			Channels: map[string]models.ChannelState{
				channel: {ID: channel, Value: value},
			},
		},
	}}
}

func deltaReply(cursor string, delta models.Delta) incrementalReply {
	return incrementalReply{result: models.IncrementalResult{Cursor: cursor, Delta: delta}}
}

func errReply(err error) incrementalReply {
	return incrementalReply{err: err}
}

func ptr[T any](v T) *T { return &v }

// fakeEventLogger records logged events.
type fakeEventLogger struct {
	mu     sync.Mutex
	events []fakeEvent
}

type fakeEvent struct {
	eventType string
	data      map[string]any
}

func (l *fakeEventLogger) LogEvent(eventType string, data map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fakeEvent{eventType: eventType, data: data})
	return nil
}

func (l *fakeEventLogger) count(eventType string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.eventType == eventType {
			n++
		}
	}
	return n
}

// harness drives a Session synchronously. Timers fire immediately and the
// delay each one asked for is recorded.
type harness struct {
	s       *Session
	src     *mockSource
	log     *fakeEventLogger
	pending []Cmd
	delays  []time.Duration
	now     time.Time
}

func newHarness(src *mockSource, mutate func(*SessionOptions)) *harness {
	h := &harness{
		src: src,
		log: &fakeEventLogger{},
		now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	opts := SessionOptions{
		Backoff:     Backoff{Base: 2 * time.Second, Cap: 30 * time.Second},
		MaxAttempts: 5,
		JobInterval: 500 * time.Millisecond,
		MaxJobPolls: 10,
		CallTimeout: time.Second,
		Merge:       DefaultMergeOptions(),
		EventLogger: h.log,
		Now: func() time.Time {
			h.now = h.now.Add(time.Second)
			return h.now
		},
		After: func(d time.Duration) <-chan time.Time {
			h.delays = append(h.delays, d)
			ch := make(chan time.Time, 1)
			ch <- h.now
			return ch
		},
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.s = NewSession(context.Background(), src, opts)
	return h
}

func (h *harness) send(msg Msg) {
	h.pending = append(h.pending, h.s.Update(msg)...)
}

// step runs the oldest pending Cmd and feeds its result back. It reports
// false when nothing was pending.
func (h *harness) step() bool {
	if len(h.pending) == 0 {
		return false
	}
	cmd := h.pending[0]
	h.pending = h.pending[1:]
	if msg := cmd(); msg != nil {
		h.send(msg)
	}
	return true
}

// runUntil steps until cond holds or limit steps have run.
func (h *harness) runUntil(cond func() bool, limit int) bool {
	for i := 0; i < limit; i++ {
		if cond() {
			return true
		}
		if !h.step() {
			return cond()
		}
	}
	return cond()
}

func (h *harness) inMode(mode models.Mode) func() bool {
	return func() bool { return h.s.Mode() == mode }
}

// pollRound runs one incremental round: the timer, then the call.
func (h *harness) pollRound() {
	h.step()
	h.step()
}
