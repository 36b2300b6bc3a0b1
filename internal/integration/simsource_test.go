package integration

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/valter-silva-au/signal-radar/internal/core"
	"github.com/valter-silva-au/signal-radar/pkg/models"
)

var simEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testSimConfig() models.SimulatorConfig {
	return models.SimulatorConfig{
		Seed:          42,
		BuildPolls:    2,
		SubscribeRate: 1,
		Channels:      []string{"hiring", "funding", "product"},
	}
}

func newTestSim(cfg models.SimulatorConfig) *SimulatedSource {
	return NewSimulatedSource(cfg, WithClock(func() time.Time { return simEpoch }))
}

// readySim resolves acme.com and drives its job to ready.
func readySim(t *testing.T, s *SimulatedSource) (models.Identity, models.JobResult) {
	t.Helper()
	ctx := context.Background()
	identity, err := s.ResolveEntity(ctx, "acme.com")
	if err != nil {
		t.Fatalf("ResolveEntity: %v", err)
	}
	handle, err := s.CreateJob(ctx, identity.ID)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	for i := 0; i < 10; i++ {
		res, err := s.PollJob(ctx, handle)
		if err != nil {
			t.Fatalf("PollJob: %v", err)
		}
		if res.Status == models.JobReady {
			return identity, res
		}
	}
	t.Fatal("job never became ready")
	return models.Identity{}, models.JobResult{}
}

func TestSimulatedSource_ResolveIsStable(t *testing.T) {
	s := newTestSim(testSimConfig())
	ctx := context.Background()

	a, err := s.ResolveEntity(ctx, "https://www.Acme.com/about")
	if err != nil {
		t.Fatalf("ResolveEntity: %v", err)
	}
	b, err := s.ResolveEntity(ctx, "acme.com")
	if err != nil {
		t.Fatalf("ResolveEntity: %v", err)
	}
	if a.ID != b.ID {
		t.Errorf("ids differ: %s vs %s", a.ID, b.ID)
	}
	if a.Name != "Acme" || a.Domain != "acme.com" {
		t.Errorf("identity = %+v", a)
	}

	other := newTestSim(testSimConfig())
	c, _ := other.ResolveEntity(ctx, "acme.com")
	if c.ID != a.ID {
		t.Errorf("entity id should not depend on the instance: %s vs %s", c.ID, a.ID)
	}
}

func TestSimulatedSource_ResolveFailures(t *testing.T) {
	s := newTestSim(testSimConfig())
	ctx := context.Background()

	tests := []struct {
		input string
		want  core.Reason
	}{
		{"nobody.invalid", core.ReasonNotFound},
		{"example.test", core.ReasonNotFound},
		{"not a domain", core.ReasonInvalidInput},
		{"", core.ReasonInvalidInput},
	}
	for _, tt := range tests {
		_, err := s.ResolveEntity(ctx, tt.input)
		if got := core.ReasonOf(err); got != tt.want {
			t.Errorf("ResolveEntity(%q) reason = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSimulatedSource_JobBuildsThenReady(t *testing.T) {
	s := newTestSim(testSimConfig())
	ctx := context.Background()
	identity, _ := s.ResolveEntity(ctx, "acme.com")
	handle, err := s.CreateJob(ctx, identity.ID)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if handle.Status != models.JobBuilding || handle.EntityID != identity.ID {
		t.Errorf("handle = %+v", handle)
	}

	for i := 0; i < 2; i++ {
		res, err := s.PollJob(ctx, handle)
		if err != nil {
			t.Fatalf("PollJob: %v", err)
		}
		if res.Status != models.JobBuilding {
			t.Fatalf("poll %d status = %s, want building", i+1, res.Status)
		}
	}
	res, err := s.PollJob(ctx, handle)
	if err != nil {
		t.Fatalf("PollJob: %v", err)
	}
	if res.Status != models.JobReady {
		t.Fatalf("status = %s, want ready", res.Status)
	}
	if res.Cursor != "1" {
		t.Errorf("cursor = %q, want 1", res.Cursor)
	}
	if res.Snapshot == nil || len(res.Snapshot.Channels) != 3 {
		t.Fatalf("snapshot = %+v", res.Snapshot)
	}
	if len(res.Snapshot.Feed) != 3 || res.Snapshot.Panels == nil {
		t.Errorf("snapshot missing feed or panels")
	}
}

func TestSimulatedSource_UnknownIDs(t *testing.T) {
	s := newTestSim(testSimConfig())
	ctx := context.Background()

	if _, err := s.CreateJob(ctx, "missing"); core.ReasonOf(err) != core.ReasonNotFound {
		t.Errorf("CreateJob reason = %q", core.ReasonOf(err))
	}
	if _, err := s.PollJob(ctx, models.JobHandle{ID: "missing"}); core.ReasonOf(err) != core.ReasonNotFound {
		t.Errorf("PollJob reason = %q", core.ReasonOf(err))
	}
	if _, err := s.PollIncremental(ctx, "missing", "1"); core.ReasonOf(err) != core.ReasonNotFound {
		t.Errorf("PollIncremental reason = %q", core.ReasonOf(err))
	}
}

func TestSimulatedSource_IncrementalAdvancesCursor(t *testing.T) {
	s := newTestSim(testSimConfig())
	identity, ready := readySim(t, s)
	ctx := context.Background()

	cursor := ready.Cursor
	for i := 0; i < 5; i++ {
		res, err := s.PollIncremental(ctx, identity.ID, cursor)
		if err != nil {
			t.Fatalf("PollIncremental: %v", err)
		}
		if err := core.Advances(core.OrderNumeric, cursor, res.Cursor); err != nil {
			t.Fatalf("cursor %s -> %s: %v", cursor, res.Cursor, err)
		}
		if len(res.Delta.Channels) == 0 {
			t.Errorf("step %d moved no channel", i)
		}
		for id, patch := range res.Delta.Channels {
			if patch.Value == nil || *patch.Value < 0 || *patch.Value > 100 {
				t.Errorf("channel %s value out of range: %+v", id, patch.Value)
			}
		}
		cursor = res.Cursor
	}
}

func TestSimulatedSource_InvalidCursor(t *testing.T) {
	s := newTestSim(testSimConfig())
	identity, _ := readySim(t, s)
	ctx := context.Background()

	for _, c := range []string{"abc", "99", "-1"} {
		_, err := s.PollIncremental(ctx, identity.ID, c)
		if core.ReasonOf(err) != core.ReasonInvalidInput {
			t.Errorf("cursor %q: reason = %q, want invalid_input", c, core.ReasonOf(err))
		}
	}
}

func TestSimulatedSource_SameSeedSameStream(t *testing.T) {
	run := func() []float64 {
		s := newTestSim(testSimConfig())
		identity, ready := readySim(t, s)
		var values []float64
		cursor := ready.Cursor
		for i := 0; i < 10; i++ {
			res, err := s.PollIncremental(context.Background(), identity.ID, cursor)
			if err != nil {
				t.Fatalf("PollIncremental: %v", err)
			}
			for _, ch := range []string{"hiring", "funding", "product"} {
				if p, ok := res.Delta.Channels[ch]; ok {
					values = append(values, *p.Value)
				}
			}
			cursor = res.Cursor
		}
		return values
	}
	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("value %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestSimulatedSource_FailureInjection(t *testing.T) {
	cfg := testSimConfig()
	cfg.FailureRate = 1
	s := newTestSim(cfg)
	ctx := context.Background()
	identity, _ := s.ResolveEntity(ctx, "acme.com")
	handle, _ := s.CreateJob(ctx, identity.ID)

	_, err := s.PollJob(ctx, handle)
	if core.ReasonOf(err) != core.ReasonServerError {
		t.Errorf("reason = %q, want server_error", core.ReasonOf(err))
	}
	if core.Definitive(err) {
		t.Error("server_error should be retriable")
	}
}

func TestSimulatedSource_SubscribeRateLimited(t *testing.T) {
	s := newTestSim(testSimConfig())
	identity, _ := readySim(t, s)
	ctx := context.Background()

	var limited bool
	for i := 0; i < 5; i++ {
		id, err := s.Subscribe(ctx, identity.ID, "ops@acme.com")
		if err != nil {
			if core.ReasonOf(err) != core.ReasonRateLimited {
				t.Fatalf("unexpected error: %v", err)
			}
			limited = true
			break
		}
		if id == "" {
			t.Fatal("empty subscription id")
		}
	}
	if !limited {
		t.Error("expected rate limiting within 5 rapid calls")
	}
}

func TestSimulatedSource_SubscribeValidation(t *testing.T) {
	s := newTestSim(testSimConfig())
	identity, _ := readySim(t, s)
	ctx := context.Background()

	if _, err := s.Subscribe(ctx, identity.ID, "not-an-email"); core.ReasonOf(err) != core.ReasonInvalidInput {
		t.Errorf("reason = %q, want invalid_input", core.ReasonOf(err))
	}
	if _, err := s.Subscribe(ctx, "missing", "ops@acme.com"); core.ReasonOf(err) != core.ReasonNotFound {
		t.Errorf("reason = %q, want not_found", core.ReasonOf(err))
	}
}

func TestSimulatedSource_LatencyHonoursContext(t *testing.T) {
	cfg := testSimConfig()
	cfg.Latency = time.Hour
	s := newTestSim(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.ResolveEntity(ctx, "acme.com")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	if core.ReasonOf(err) != core.ReasonUnknown {
		t.Errorf("timeouts should carry no source reason, got %q", core.ReasonOf(err))
	}
}

// Feature: signal-radar, Property 7: Simulated cursors strictly increase
func TestProperty7_SimulatedCursorsIncrease(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := testSimConfig()
		cfg.Seed = rapid.Uint64Range(1, 1<<32).Draw(t, "seed")
		cfg.BuildPolls = rapid.IntRange(0, 3).Draw(t, "buildPolls")
		steps := rapid.IntRange(1, 30).Draw(t, "steps")

		s := newTestSim(cfg)
		ctx := context.Background()
		identity, err := s.ResolveEntity(ctx, "acme.com")
		if err != nil {
			t.Fatalf("ResolveEntity: %v", err)
		}
		handle, _ := s.CreateJob(ctx, identity.ID)
		var res models.JobResult
		for res.Status != models.JobReady {
			if res, err = s.PollJob(ctx, handle); err != nil {
				t.Fatalf("PollJob: %v", err)
			}
		}

		prev, _ := strconv.ParseUint(res.Cursor, 10, 64)
		cursor := res.Cursor
		for i := 0; i < steps; i++ {
			inc, err := s.PollIncremental(ctx, identity.ID, cursor)
			if err != nil {
				t.Fatalf("PollIncremental: %v", err)
			}
			next, err := strconv.ParseUint(inc.Cursor, 10, 64)
			if err != nil {
				t.Fatalf("cursor %q is not numeric", inc.Cursor)
			}
			if next <= prev {
				t.Fatalf("cursor went from %d to %d", prev, next)
			}
			prev, cursor = next, inc.Cursor
		}
	})
}
