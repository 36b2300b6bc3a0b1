package integration

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/mail"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/valter-silva-au/signal-radar/internal/core"
	"github.com/valter-silva-au/signal-radar/pkg/models"
)

// SimulatedSourceName is reported by SimulatedSource.Name.
const SimulatedSourceName = "simulated"

// simEntity is the generator's world state for one resolved company.
type simEntity struct {
	identity models.Identity
	cursor   uint64
	values   map[string]float64
}

type simJob struct {
	entityID string
	polls    int
}

// SimulatedSource is a local, seeded DataSource. It keeps its own world
// state per entity and never sees a view model. Cursors are decimal
// sequence numbers.
type SimulatedSource struct {
	mu       sync.Mutex
	cfg      models.SimulatorConfig
	rng      *rand.Rand
	now      func() time.Time
	limiter  *rate.Limiter
	entities map[string]*simEntity
	jobs     map[string]*simJob
	subs     map[string]string
}

// SimOption customizes a SimulatedSource.
type SimOption func(*SimulatedSource)

// WithClock replaces the wall clock used for timestamps.
func WithClock(now func() time.Time) SimOption {
	return func(s *SimulatedSource) { s.now = now }
}

// NewSimulatedSource creates a generator from cfg. A zero seed picks a
// random one.
func NewSimulatedSource(cfg models.SimulatorConfig, opts ...SimOption) *SimulatedSource {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	if len(cfg.Channels) == 0 {
		cfg.Channels = []string{"signal"}
	}
	ratePerSec := cfg.SubscribeRate
	if ratePerSec <= 0 {
		ratePerSec = 1
	}
	s := &SimulatedSource{
		cfg:      cfg,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now:      time.Now,
		limiter:  rate.NewLimiter(rate.Limit(ratePerSec), 2),
		entities: make(map[string]*simEntity),
		jobs:     make(map[string]*simJob),
		subs:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SimulatedSource) Name() string { return SimulatedSourceName }

func (s *SimulatedSource) CursorOrdering() core.CursorOrdering { return core.OrderNumeric }

// ResolveEntity maps a domain to a stable identity. Domains under the
// reserved .invalid and .test TLDs resolve to not_found.
func (s *SimulatedSource) ResolveEntity(ctx context.Context, identifier string) (models.Identity, error) {
	if err := s.wait(ctx); err != nil {
		return models.Identity{}, err
	}
	domain, err := core.NormalizeIdentifier(identifier)
	if err != nil {
		return models.Identity{}, core.NewSourceError("resolve_entity", core.ReasonInvalidInput, err)
	}
	if strings.HasSuffix(domain, ".invalid") || strings.HasSuffix(domain, ".test") {
		return models.Identity{}, core.NewSourceError("resolve_entity", core.ReasonNotFound, fmt.Errorf("no company at %s", domain))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewSHA1(uuid.NameSpaceDNS, []byte(domain)).String()
	if e, ok := s.entities[id]; ok {
		return e.identity, nil
	}
	name := companyName(domain)
	e := &simEntity{
		identity: models.Identity{
			ID:          id,
			Name:        name,
			Domain:      domain,
			Description: fmt.Sprintf("%s, tracked from public signals at %s.", name, domain),
		},
		values: make(map[string]float64, len(s.cfg.Channels)),
	}
	for _, ch := range s.cfg.Channels {
		e.values[ch] = 20 + s.rng.Float64()*60
	}
	s.entities[id] = e
	return e.identity, nil
}

func (s *SimulatedSource) CreateJob(ctx context.Context, entityID string) (models.JobHandle, error) {
	if err := s.wait(ctx); err != nil {
		return models.JobHandle{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[entityID]; !ok {
		return models.JobHandle{}, core.NewSourceError("create_job", core.ReasonNotFound, fmt.Errorf("entity %s", entityID))
	}
	id := uuid.NewString()
	s.jobs[id] = &simJob{entityID: entityID}
	return models.JobHandle{ID: id, EntityID: entityID, Status: models.JobBuilding}, nil
}

// PollJob reports building for the configured number of polls, then ready
// with a full snapshot.
func (s *SimulatedSource) PollJob(ctx context.Context, handle models.JobHandle) (models.JobResult, error) {
	if err := s.wait(ctx); err != nil {
		return models.JobResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[handle.ID]
	if !ok {
		return models.JobResult{}, core.NewSourceError("poll_job", core.ReasonNotFound, fmt.Errorf("job %s", handle.ID))
	}
	if s.injectFailure() {
		return models.JobResult{}, core.NewSourceError("poll_job", core.ReasonServerError, fmt.Errorf("simulated outage"))
	}
	job.polls++
	if job.polls <= s.cfg.BuildPolls {
		return models.JobResult{Status: models.JobBuilding}, nil
	}
	e := s.entities[job.entityID]
	if e.cursor == 0 {
		e.cursor = 1
	}
	snap := s.snapshot(e)
	return models.JobResult{
		Status:   models.JobReady,
		Cursor:   strconv.FormatUint(e.cursor, 10),
		Snapshot: &snap,
	}, nil
}

// PollIncremental advances the entity by one step and returns the delta.
func (s *SimulatedSource) PollIncremental(ctx context.Context, entityID, cursor string) (models.IncrementalResult, error) {
	if err := s.wait(ctx); err != nil {
		return models.IncrementalResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[entityID]
	if !ok {
		return models.IncrementalResult{}, core.NewSourceError("poll_incremental", core.ReasonNotFound, fmt.Errorf("entity %s", entityID))
	}
	since, err := strconv.ParseUint(cursor, 10, 64)
	if err != nil || since > e.cursor {
		return models.IncrementalResult{}, core.NewSourceError("poll_incremental", core.ReasonInvalidInput, fmt.Errorf("cursor %q", cursor))
	}
	if s.injectFailure() {
		return models.IncrementalResult{}, core.NewSourceError("poll_incremental", core.ReasonServerError, fmt.Errorf("simulated outage"))
	}

	e.cursor++
	return models.IncrementalResult{
		Cursor: strconv.FormatUint(e.cursor, 10),
		Delta:  s.step(e),
	}, nil
}

// Subscribe records contact for entityID. Calls beyond the configured rate
// are refused with rate_limited.
func (s *SimulatedSource) Subscribe(ctx context.Context, entityID, contact string) (string, error) {
	if err := s.wait(ctx); err != nil {
		return "", err
	}
	addr, err := mail.ParseAddress(contact)
	if err != nil {
		return "", core.NewSourceError("subscribe", core.ReasonInvalidInput, err)
	}
	if !s.limiter.Allow() {
		return "", core.NewSourceError("subscribe", core.ReasonRateLimited, nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[entityID]; !ok {
		return "", core.NewSourceError("subscribe", core.ReasonNotFound, fmt.Errorf("entity %s", entityID))
	}
	id := uuid.NewString()
	s.subs[id] = addr.Address
	return id, nil
}

func (s *SimulatedSource) Health(ctx context.Context) error {
	return ctx.Err()
}

// wait applies the configured latency, aborting early when ctx ends.
func (s *SimulatedSource) wait(ctx context.Context) error {
	if s.cfg.Latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.cfg.Latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *SimulatedSource) injectFailure() bool {
	return s.cfg.FailureRate > 0 && s.rng.Float64() < s.cfg.FailureRate
}

func (s *SimulatedSource) snapshot(e *simEntity) models.Snapshot {
	now := s.now()
	snap := models.Snapshot{Channels: make(map[string]models.ChannelState, len(e.values))}
	for _, ch := range s.cfg.Channels {
		snap.Channels[ch] = models.ChannelState{
			ID:            ch,
			Value:         round1(e.values[ch]),
			Direction:     models.DirectionFlat,
			Confidence:    round2(0.6 + s.rng.Float64()*0.35),
			LastUpdatedAt: now,
		}
	}
	for i := 0; i < 3; i++ {
		ch := s.pick()
		snap.Feed = append(snap.Feed, models.FeedItem{
			ID:         uuid.NewString(),
			Kind:       models.FeedSignal,
			Text:       fmt.Sprintf("%s: %s activity observed", e.identity.Name, ch),
			Timestamp:  now.Add(-time.Duration(i+1) * time.Hour),
			Confidence: round2(0.5 + s.rng.Float64()*0.5),
		})
	}
	snap.RadarEvents = []models.RadarEvent{s.radarEvent(now)}
	snap.Panels = s.panels(e, now)
	return snap
}

func (s *SimulatedSource) step(e *simEntity) models.Delta {
	now := s.now()
	delta := models.Delta{Channels: make(map[string]models.ChannelPatch)}

	moved := 1 + s.rng.IntN(2)
	var impacts []models.Impact
	for i := 0; i < moved; i++ {
		ch := s.pick()
		d := round1(s.rng.Float64()*12 - 6)
		e.values[ch] = min(max(e.values[ch]+d, 0), 100)
		value, conf := round1(e.values[ch]), round2(0.6+s.rng.Float64()*0.35)
		delta.Channels[ch] = models.ChannelPatch{Value: &value, Delta: &d, Confidence: &conf}
		impacts = append(impacts, models.Impact{ChannelID: ch, Delta: d})
	}

	if s.rng.Float64() < 0.5 {
		delta.Feed = []models.FeedItem{{
			ID:         uuid.NewString(),
			Kind:       models.FeedSignal,
			Text:       headline(e.identity.Name, impacts[0]),
			Timestamp:  now,
			Confidence: round2(0.5 + s.rng.Float64()*0.5),
			Impacts:    impacts,
		}}
	}
	if s.rng.Float64() < 0.3 {
		delta.RadarEvents = []models.RadarEvent{s.radarEvent(now)}
	}
	if len(s.cfg.Channels) > 1 && s.rng.Float64() < 0.15 {
		from := s.pick()
		to := s.pick()
		for to == from {
			to = s.pick()
		}
		delta.Arcs = []models.Arc{{ID: uuid.NewString(), From: from, To: to, Strength: round2(s.rng.Float64()), Timestamp: now}}
	}
	if e.cursor%5 == 0 {
		delta.Panels = s.panels(e, now)
	}
	return delta
}

func (s *SimulatedSource) radarEvent(now time.Time) models.RadarEvent {
	ch := s.pick()
	return models.RadarEvent{
		ID:        uuid.NewString(),
		ChannelID: ch,
		Label:     ch + " spike",
		Intensity: round2(s.rng.Float64()),
		Timestamp: now,
	}
}

func (s *SimulatedSource) panels(e *simEntity, now time.Time) *models.Panels {
	var sum float64
	for _, v := range e.values {
		sum += v
	}
	avg := sum / float64(len(e.values))
	return &models.Panels{
		Metrics: map[string]float64{
			"signal_score": round1(avg),
			"fit_score":    round1(40 + s.rng.Float64()*60),
			"momentum":     round2(s.rng.Float64()*2 - 1),
		},
		Summary:   fmt.Sprintf("%s averages %.0f across %d channels.", e.identity.Name, avg, len(e.values)),
		UpdatedAt: now,
	}
}

func (s *SimulatedSource) pick() string {
	return s.cfg.Channels[s.rng.IntN(len(s.cfg.Channels))]
}

func headline(name string, imp models.Impact) string {
	verb := "rose"
	if imp.Delta < 0 {
		verb = "fell"
	}
	return fmt.Sprintf("%s %s signal %s by %.1f", name, imp.ChannelID, verb, abs(imp.Delta))
}

func companyName(domain string) string {
	label, _, _ := strings.Cut(domain, ".")
	if label == "" {
		return domain
	}
	return strings.ToUpper(label[:1]) + label[1:]
}

func round1(v float64) float64 { return float64(int64(v*10+sign(v)*0.5)) / 10 }
func round2(v float64) float64 { return float64(int64(v*100+sign(v)*0.5)) / 100 }

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
