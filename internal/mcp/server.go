// Package mcp provides an MCP (Model Context Protocol) server that exposes a
// radar session as MCP tools for AI assistants.
package mcp

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/valter-silva-au/signal-radar/internal/core"
	"github.com/valter-silva-au/signal-radar/internal/observability"
	"github.com/valter-silva-au/signal-radar/pkg/models"
)

// Radar is the part of core.Runner the tools drive.
type Radar interface {
	Send(msg core.Msg) error
	View() models.ViewModel
	PollState() core.PollState
	WaitFor(ctx context.Context, pred func(models.ViewModel) bool) (models.ViewModel, error)
}

// Server wraps a radar session and exposes it as MCP tools.
type Server struct {
	server      *gomcp.Server
	radar       Radar
	metricsCalc observability.MetricsCalculator
	alertEngine observability.AlertEngine
	defaultWait time.Duration
}

// NewServer creates a new MCP server around radar. metricsCalc and
// alertEngine may be nil if observability is disabled.
func NewServer(radar Radar, metricsCalc observability.MetricsCalculator, alertEngine observability.AlertEngine, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		radar:       radar,
		metricsCalc: metricsCalc,
		alertEngine: alertEngine,
		defaultWait: 15 * time.Second,
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "radar", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run starts the MCP server on stdio, blocking until the client disconnects
// or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type trackInput struct {
	Identifier  string `json:"identifier" jsonschema:"required,company URL or domain to track (e.g. acme.com)"`
	WaitSeconds int    `json:"wait_seconds,omitempty" jsonschema:"how long to wait for the reveal before returning the current snapshot. Defaults to 15."`
}

type snapshotInput struct {
	FeedLimit int `json:"feed_limit,omitempty" jsonschema:"maximum number of feed items to return. Defaults to 10."`
}

type emptyInput struct{}

type subscribeInput struct {
	Contact string `json:"contact" jsonschema:"required,email address that should receive updates for the current entity"`
}

type identityOutput struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

type channelOutput struct {
	ID         string  `json:"id"`
	Value      float64 `json:"value"`
	Delta      float64 `json:"delta"`
	Direction  string  `json:"direction"`
	Confidence float64 `json:"confidence"`
}

type feedOutput struct {
	ID        string `json:"id"`
	Kind      string `json:"kind,omitempty"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

type snapshotOutput struct {
	Mode        string             `json:"mode"`
	Entity      *identityOutput    `json:"entity,omitempty"`
	Channels    []channelOutput    `json:"channels"`
	Feed        []feedOutput       `json:"feed"`
	RadarEvents int                `json:"radar_events"`
	Arcs        int                `json:"arcs"`
	Panels      map[string]float64 `json:"panels,omitempty"`
	Notice      string             `json:"notice,omitempty"`
	Revision    uint64             `json:"revision"`
	Cursor      string             `json:"cursor,omitempty"`
	Polling     bool               `json:"polling"`
	Attempts    int                `json:"attempts"`
}

type messageOutput struct {
	Message string `json:"message"`
}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 30d, 24h). Defaults to 24h."`
}

type metricsOutput struct {
	Sessions               int            `json:"sessions"`
	Resets                 int            `json:"resets"`
	ModeEntries            map[string]int `json:"mode_entries"`
	PollsSucceeded         int            `json:"polls_succeeded"`
	PollsFailed            int            `json:"polls_failed"`
	FailuresByStage        map[string]int `json:"failures_by_stage"`
	PollsSuperseded        int            `json:"polls_superseded"`
	ProtocolViolations     int            `json:"protocol_violations"`
	DegradedEpisodes       int            `json:"degraded_episodes"`
	PersistentEpisodes     int            `json:"persistent_episodes"`
	IncrementalSuccessRate float64        `json:"incremental_success_rate"`
	EventCount             int            `json:"event_count"`
	OldestEvent            string         `json:"oldest_event,omitempty"`
	NewestEvent            string         `json:"newest_event,omitempty"`
}

type getAlertsInput struct{}

type alertOutput struct {
	ID          string `json:"id"`
	Condition   string `json:"condition"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	TriggeredAt string `json:"triggered_at"`
}

type getAlertsOutput struct {
	Alerts []alertOutput `json:"alerts"`
	Count  int           `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "radar_track",
		Description: "Resolve a company from its URL and start tracking live signals. Replaces whatever is currently tracked. Returns the snapshot once revealed, failed, or after wait_seconds.",
	}, s.handleTrack)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "radar_snapshot",
		Description: "Return the current radar state: mode, entity, channels, newest feed items, and polling status.",
	}, s.handleSnapshot)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "radar_reset",
		Description: "Stop tracking and return the radar to idle.",
	}, s.handleReset)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "radar_retry",
		Description: "Retry a failed reveal. Only valid while the radar is in the failed mode.",
	}, s.handleRetry)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "radar_subscribe",
		Description: "Subscribe an email contact to updates for the currently tracked entity.",
	}, s.handleSubscribe)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Get sync metrics from the event log: polls, failures, superseded responses, protocol violations, and degradation episodes.",
	}, s.handleGetMetrics)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_alerts",
		Description: "Evaluate and return active alerts (persistent degradation, protocol violation bursts, job failures, poll failure rate).",
	}, s.handleGetAlerts)
}

// --- Tool handlers ---

func (s *Server) handleTrack(ctx context.Context, _ *gomcp.CallToolRequest, input trackInput) (*gomcp.CallToolResult, snapshotOutput, error) {
	if input.Identifier == "" {
		return errorResult("identifier is required"), snapshotOutput{}, nil
	}

	wait := s.defaultWait
	if input.WaitSeconds > 0 {
		wait = time.Duration(input.WaitSeconds) * time.Second
	}
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	if s.radar.View().Mode != models.ModeIdle {
		if err := s.reset(waitCtx); err != nil {
			return errorResult(fmt.Sprintf("resetting radar: %s", err)), snapshotOutput{}, nil
		}
	}
	before := s.radar.View()
	if err := s.radar.Send(core.SubmitMsg{Identifier: input.Identifier}); err != nil {
		return errorResult(fmt.Sprintf("submitting %s: %s", input.Identifier, err)), snapshotOutput{}, nil
	}

	vm, err := s.radar.WaitFor(waitCtx, func(vm models.ViewModel) bool {
		return vm.Revision > before.Revision && settled(vm)
	})
	if err != nil && ctx.Err() != nil {
		return errorResult(fmt.Sprintf("waiting for %s: %s", input.Identifier, ctx.Err())), snapshotOutput{}, nil
	}
	// A wait timeout still returns whatever has been revealed so far.
	return nil, s.snapshot(vm, 10), nil
}

func (s *Server) handleSnapshot(_ context.Context, _ *gomcp.CallToolRequest, input snapshotInput) (*gomcp.CallToolResult, snapshotOutput, error) {
	limit := input.FeedLimit
	if limit <= 0 {
		limit = 10
	}
	return nil, s.snapshot(s.radar.View(), limit), nil
}

func (s *Server) handleReset(ctx context.Context, _ *gomcp.CallToolRequest, _ emptyInput) (*gomcp.CallToolResult, messageOutput, error) {
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.reset(waitCtx); err != nil {
		return errorResult(fmt.Sprintf("resetting radar: %s", err)), messageOutput{}, nil
	}
	return nil, messageOutput{Message: "radar reset to idle"}, nil
}

// reset sends a ResetMsg and waits until the session has applied it.
func (s *Server) reset(ctx context.Context) error {
	before := s.radar.View()
	if err := s.radar.Send(core.ResetMsg{}); err != nil {
		return err
	}
	_, err := s.radar.WaitFor(ctx, func(vm models.ViewModel) bool {
		return vm.Revision > before.Revision && vm.Mode == models.ModeIdle
	})
	return err
}

func (s *Server) handleRetry(ctx context.Context, _ *gomcp.CallToolRequest, _ emptyInput) (*gomcp.CallToolResult, snapshotOutput, error) {
	before := s.radar.View()
	if before.Mode != models.ModeFailed {
		return errorResult(fmt.Sprintf("nothing to retry: radar is %s", before.Mode)), snapshotOutput{}, nil
	}
	if err := s.radar.Send(core.RetryMsg{}); err != nil {
		return errorResult(fmt.Sprintf("retrying: %s", err)), snapshotOutput{}, nil
	}
	waitCtx, cancel := context.WithTimeout(ctx, s.defaultWait)
	defer cancel()
	vm, _ := s.radar.WaitFor(waitCtx, func(vm models.ViewModel) bool {
		return vm.Revision > before.Revision && settled(vm)
	})
	return nil, s.snapshot(vm, 10), nil
}

func (s *Server) handleSubscribe(ctx context.Context, _ *gomcp.CallToolRequest, input subscribeInput) (*gomcp.CallToolResult, messageOutput, error) {
	if input.Contact == "" {
		return errorResult("contact is required"), messageOutput{}, nil
	}
	before := s.radar.View()
	if before.Entity == nil {
		return errorResult("no entity is being tracked"), messageOutput{}, nil
	}
	ref := uuid.NewString()
	if err := s.radar.Send(core.SubscribeMsg{Contact: input.Contact, Ref: ref}); err != nil {
		return errorResult(fmt.Sprintf("subscribing: %s", err)), messageOutput{}, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.defaultWait)
	defer cancel()
	var outcome *models.FeedItem
	_, err := s.radar.WaitFor(waitCtx, func(vm models.ViewModel) bool {
		outcome = feedOutcome(vm, ref)
		return outcome != nil
	})
	if err != nil || outcome == nil {
		return errorResult(fmt.Sprintf("no answer for subscription of %s", input.Contact)), messageOutput{}, nil
	}
	if outcome.Kind == models.FeedDiagnostic {
		return errorResult(outcome.Text), messageOutput{}, nil
	}
	return nil, messageOutput{Message: outcome.Text}, nil
}

// feedOutcome returns the feed entry tagged with ref, if it has landed.
// Other entries, including degradation notes written meanwhile, are ignored.
func feedOutcome(vm models.ViewModel, ref string) *models.FeedItem {
	for i := range vm.Feed {
		if vm.Feed[i].Ref == ref {
			f := vm.Feed[i]
			return &f
		}
	}
	return nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	if s.metricsCalc == nil {
		return errorResult("metrics calculator not available (observability may be disabled)"), emptyMetricsOutput(), nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "24h"
	}

	sinceTime, err := parseSince(sinceStr)
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyMetricsOutput(), nil
	}

	metrics, err := s.metricsCalc.Calculate(sinceTime)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetricsOutput(), nil
	}

	out := metricsOutput{
		Sessions:               metrics.Sessions,
		Resets:                 metrics.Resets,
		ModeEntries:            metrics.ModeEntries,
		PollsSucceeded:         metrics.PollsSucceeded,
		PollsFailed:            metrics.PollsFailed,
		FailuresByStage:        metrics.FailuresByStage,
		PollsSuperseded:        metrics.PollsSuperseded,
		ProtocolViolations:     metrics.ProtocolViolations,
		DegradedEpisodes:       metrics.DegradedEpisodes,
		PersistentEpisodes:     metrics.PersistentEpisodes,
		IncrementalSuccessRate: metrics.IncrementalSuccessRate,
		EventCount:             metrics.EventCount,
	}
	if metrics.OldestEvent != nil {
		out.OldestEvent = metrics.OldestEvent.Format(time.RFC3339)
	}
	if metrics.NewestEvent != nil {
		out.NewestEvent = metrics.NewestEvent.Format(time.RFC3339)
	}

	return nil, out, nil
}

func (s *Server) handleGetAlerts(_ context.Context, _ *gomcp.CallToolRequest, _ getAlertsInput) (*gomcp.CallToolResult, getAlertsOutput, error) {
	if s.alertEngine == nil {
		return errorResult("alert engine not available (observability may be disabled)"), getAlertsOutput{}, nil
	}

	alerts, err := s.alertEngine.Evaluate()
	if err != nil {
		return errorResult(fmt.Sprintf("evaluating alerts: %s", err)), getAlertsOutput{}, nil
	}

	out := getAlertsOutput{
		Alerts: make([]alertOutput, len(alerts)),
		Count:  len(alerts),
	}
	for i, a := range alerts {
		out.Alerts[i] = alertOutput{
			ID:          a.ID,
			Condition:   a.Condition,
			Severity:    string(a.Severity),
			Message:     a.Message,
			TriggeredAt: a.TriggeredAt.Format(time.RFC3339),
		}
	}

	return nil, out, nil
}

// --- Helpers ---

// settled reports whether vm has left the resolving mode.
func settled(vm models.ViewModel) bool {
	return vm.Mode != models.ModeResolving
}

func (s *Server) snapshot(vm models.ViewModel, feedLimit int) snapshotOutput {
	poll := s.radar.PollState()
	out := snapshotOutput{
		Mode:        string(vm.Mode),
		Channels:    make([]channelOutput, 0, len(vm.Channels)),
		Feed:        make([]feedOutput, 0, min(feedLimit, len(vm.Feed))),
		RadarEvents: len(vm.RadarEvents),
		Arcs:        len(vm.Arcs),
		Revision:    vm.Revision,
		Cursor:      poll.Cursor,
		Polling:     poll.Active,
		Attempts:    poll.Attempts,
	}
	if vm.Entity != nil {
		out.Entity = &identityOutput{ID: vm.Entity.ID, Name: vm.Entity.Name, Domain: vm.Entity.Domain}
	}
	for _, ch := range vm.Channels {
		out.Channels = append(out.Channels, channelOutput{
			ID:         ch.ID,
			Value:      ch.Value,
			Delta:      ch.Delta,
			Direction:  string(ch.Direction),
			Confidence: ch.Confidence,
		})
	}
	sort.Slice(out.Channels, func(i, j int) bool { return out.Channels[i].ID < out.Channels[j].ID })
	for i, f := range vm.Feed {
		if i >= feedLimit {
			break
		}
		out.Feed = append(out.Feed, feedOutput{
			ID:        f.ID,
			Kind:      string(f.Kind),
			Text:      f.Text,
			Timestamp: f.Timestamp.Format(time.RFC3339),
		})
	}
	if vm.Panels != nil {
		out.Panels = vm.Panels.Metrics
	}
	if vm.Notice != nil {
		out.Notice = vm.Notice.Text
	}
	return out
}

func emptyMetricsOutput() metricsOutput {
	return metricsOutput{
		ModeEntries:     make(map[string]int),
		FailuresByStage: make(map[string]int),
	}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// parseSince parses a human-friendly duration string like "7d", "30d", or "24h"
// into the corresponding time in the past.
func parseSince(s string) (time.Time, error) {
	now := time.Now().UTC()

	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]
	var num int
	if _, err := fmt.Sscanf(numStr, "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	case 'm':
		return now.Add(-time.Duration(num) * time.Minute), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d, h or m)", string(suffix))
	}
}
