package cli

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/signal-radar/internal/core"
	"github.com/valter-silva-au/signal-radar/internal/observability"
	"github.com/valter-silva-au/signal-radar/internal/storage"
	"github.com/valter-silva-au/signal-radar/pkg/models"
)

// testConfig is a fast, deterministic configuration on the simulated source.
func testConfig() *models.RadarConfig {
	cfg := core.DefaultConfig()
	cfg.Poll.BaseInterval = 5 * time.Millisecond
	cfg.Poll.MaxInterval = 20 * time.Millisecond
	cfg.Poll.JobInterval = time.Millisecond
	cfg.Simulator.Seed = 7
	cfg.Simulator.BuildPolls = 1
	cfg.Simulator.FailureRate = 0
	cfg.Simulator.Latency = 0
	cfg.Simulator.SubscribeRate = 100
	cfg.Simulator.Channels = []string{"hiring", "funding"}
	return cfg
}

// useTestConfig installs testConfig and a temp subscription store for the
// duration of the test.
func useTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	origConfig, origMgr, origBase := Config, ConfigMgr, BasePath
	origLog, origStore, origNotifier := SessionLog, SubStore, Notifier
	t.Cleanup(func() {
		Config, ConfigMgr, BasePath = origConfig, origMgr, origBase
		SessionLog, SubStore, Notifier = origLog, origStore, origNotifier
	})

	Config = testConfig()
	ConfigMgr = core.NewConfigurationManager(dir)
	BasePath = dir
	SessionLog = nil
	SubStore = storage.NewSubscriptionStore(dir)
	Notifier = observability.NopNotifier{}
	return dir
}

func startRunner(t *testing.T) *core.Runner {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	session, _, err := openSession(ctx)
	if err != nil {
		t.Fatalf("opening session: %v", err)
	}
	runner := core.NewRunner(session)
	runner.Start(ctx)
	t.Cleanup(runner.Stop)
	return runner
}

func TestRunTracker_RevealsAndTracks(t *testing.T) {
	useTestConfig(t)
	runner := startRunner(t)

	var out strings.Builder
	vm, err := runTracker(context.Background(), runner, "https://www.acme.com/about", 300*time.Millisecond, trackPrinterFor(&out, false))
	if err != nil {
		t.Fatalf("runTracker: %v", err)
	}
	if vm.Mode != models.ModeTracking {
		t.Errorf("mode = %s, want tracking", vm.Mode)
	}
	if vm.Entity == nil || vm.Entity.Domain != "acme.com" {
		t.Errorf("entity = %+v", vm.Entity)
	}
	if !strings.Contains(out.String(), "[tracking]") {
		t.Errorf("output should show the tracking mode:\n%s", out.String())
	}
}

func TestRunTracker_UnresolvableIdentifier(t *testing.T) {
	useTestConfig(t)
	runner := startRunner(t)

	var out strings.Builder
	vm, err := runTracker(context.Background(), runner, "nothing.invalid", time.Second, trackPrinterFor(&out, false))
	if err == nil || !strings.Contains(err.Error(), "could not resolve") {
		t.Fatalf("expected resolve error, got %v", err)
	}
	if vm.Mode != models.ModeIdle {
		t.Errorf("mode = %s, want idle", vm.Mode)
	}
	if !strings.Contains(out.String(), "diagnostic") {
		t.Errorf("output should include the diagnostic entry:\n%s", out.String())
	}
}

func TestRunTracker_RejectedInput(t *testing.T) {
	useTestConfig(t)
	runner := startRunner(t)

	_, err := runTracker(context.Background(), runner, "not a domain", time.Second, trackPrinterFor(&strings.Builder{}, true))
	if err == nil {
		t.Fatal("expected error for malformed identifier")
	}
}

func TestTrackCmd_JSON(t *testing.T) {
	useTestConfig(t)
	origJSON, origDuration := trackJSON, trackDuration
	defer func() { trackJSON, trackDuration = origJSON, origDuration }()
	trackJSON = true
	trackDuration = 200 * time.Millisecond

	out := captureOutput(t, trackCmd)
	if err := trackCmd.RunE(trackCmd, []string{"acme.com"}); err != nil {
		t.Fatalf("track: %v", err)
	}
	if !strings.Contains(out.String(), `"mode": "tracking"`) {
		t.Errorf("JSON output should hold the tracking view:\n%s", out.String())
	}
	if strings.Contains(out.String(), "[tracking]") {
		t.Error("--json should suppress the change log")
	}
}

func TestTrackCmd_InvalidConfig(t *testing.T) {
	useTestConfig(t)
	Config.Poll.MaxAttempts = 0

	err := trackCmd.RunE(trackCmd, []string{"acme.com"})
	if err == nil || !strings.Contains(err.Error(), "poll.max_attempts") {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestTrackPrinter_PrintsOnlyChanges(t *testing.T) {
	var out strings.Builder
	p := trackPrinterFor(&out, false)
	now := time.Now()

	vm := models.NewViewModel()
	vm.Mode = models.ModeTracking
	vm.Entity = &models.Identity{ID: "e-1", Name: "Acme", Domain: "acme.com"}
	vm.Feed = []models.FeedItem{
		{ID: "f-2", Text: "second", Timestamp: now},
		{ID: "f-1", Text: "first", Timestamp: now},
	}
	p.print(vm)
	p.print(vm)

	if n := strings.Count(out.String(), "[tracking]"); n != 1 {
		t.Errorf("mode printed %d times, want 1", n)
	}
	if strings.Index(out.String(), "first") > strings.Index(out.String(), "second") {
		t.Error("feed entries should print oldest first")
	}

	vm.Notice = &models.Notice{Level: models.NoticePaused, Text: "Live updates paused."}
	p.print(vm)
	vm.Notice = nil
	p.print(vm)
	if !strings.Contains(out.String(), "! Live updates paused.") || !strings.Contains(out.String(), "live updates resumed") {
		t.Errorf("notice changes missing:\n%s", out.String())
	}
}
