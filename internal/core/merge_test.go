package core

import (
	"errors"
	"testing"
	"time"

	"github.com/valter-silva-au/signal-radar/pkg/models"
)

var mergeNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func feedItem(id string, minutes int) models.FeedItem {
	return models.FeedItem{ID: id, Text: id, Timestamp: mergeNow.Add(time.Duration(minutes) * time.Minute)}
}

func feedIDs(items []models.FeedItem) []string {
	ids := make([]string, len(items))
	for i, f := range items {
		ids[i] = f.ID
	}
	return ids
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestMerge_ChannelPartialUpdate(t *testing.T) {
	vm := models.NewViewModel()
	vm.Channels["a"] = models.ChannelState{ID: "a", Value: 10, Confidence: 0.5, Direction: models.DirectionFlat}
	vm.Channels["b"] = models.ChannelState{ID: "b", Value: 20}

	res := Merge(vm, models.Delta{Channels: map[string]models.ChannelPatch{
		"a": {Delta: ptr(-3.0)},
	}}, DefaultMergeOptions(), mergeNow)

	a := res.Model.Channels["a"]
	if a.Value != 10 || a.Confidence != 0.5 {
		t.Errorf("omitted fields changed: %+v", a)
	}
	if a.Delta != -3 || a.Direction != models.DirectionDown {
		t.Errorf("a = %+v, want delta -3 direction down", a)
	}
	if !a.LastUpdatedAt.Equal(mergeNow) {
		t.Errorf("lastUpdatedAt = %v, want %v", a.LastUpdatedAt, mergeNow)
	}
	if res.Model.Channels["b"] != vm.Channels["b"] {
		t.Errorf("untouched channel b changed: %+v", res.Model.Channels["b"])
	}
	if len(res.Violations) != 0 {
		t.Errorf("violations = %v", res.Violations)
	}
}

func TestMerge_NewChannelAndClamping(t *testing.T) {
	vm := models.NewViewModel()
	res := Merge(vm, models.Delta{Channels: map[string]models.ChannelPatch{
		"hot":  {Value: ptr(250.0), Confidence: ptr(1.7)},
		"cold": {Value: ptr(-4.0)},
	}}, DefaultMergeOptions(), mergeNow)

	if got := res.Model.Channels["hot"]; got.Value != 100 || got.Confidence != 1 || got.ID != "hot" {
		t.Errorf("hot = %+v, want value 100 confidence 1", got)
	}
	if got := res.Model.Channels["cold"]; got.Value != 0 {
		t.Errorf("cold.value = %v, want 0", got.Value)
	}

	opts := DefaultMergeOptions()
	opts.ChannelMin, opts.ChannelMax = 10, 100
	res = Merge(vm, models.Delta{Channels: map[string]models.ChannelPatch{
		"a": {Delta: ptr(5.0)},
	}}, opts, mergeNow)
	if got := res.Model.Channels["a"]; got.Value != 10 || got.Delta != 5 {
		t.Errorf("a = %+v, want value clamped to 10 with delta 5", got)
	}
}

func TestMerge_DoesNotMutateInput(t *testing.T) {
	vm := models.NewViewModel()
	vm.Channels["a"] = models.ChannelState{ID: "a", Value: 1}
	vm.Feed = []models.FeedItem{feedItem("f1", 0)}

	_ = Merge(vm, models.Delta{
		Channels: map[string]models.ChannelPatch{"a": {Value: ptr(9.0)}},
		Feed:     []models.FeedItem{feedItem("f2", 1)},
	}, DefaultMergeOptions(), mergeNow)

	if vm.Channels["a"].Value != 1 || len(vm.Feed) != 1 || vm.Revision != 0 {
		t.Errorf("input mutated: %+v", vm)
	}
}

func TestMerge_FeedPrependDedupeCap(t *testing.T) {
	vm := models.NewViewModel()
	vm.Feed = []models.FeedItem{feedItem("f3", 3), feedItem("f2", 2), feedItem("f1", 1)}
	opts := DefaultMergeOptions()
	opts.FeedLimit = 4

	res := Merge(vm, models.Delta{Feed: []models.FeedItem{
		feedItem("f5", 5), feedItem("f2", 2), feedItem("f4", 4), feedItem("f5", 5),
	}}, opts, mergeNow)

	want := []string{"f5", "f4", "f3", "f2"}
	if got := feedIDs(res.Model.Feed); !equalIDs(got, want) {
		t.Errorf("feed = %v, want %v", got, want)
	}
}

func TestMerge_FeedWithoutIDIsViolation(t *testing.T) {
	res := Merge(models.NewViewModel(), models.Delta{Feed: []models.FeedItem{
		{Text: "anonymous", Timestamp: mergeNow}, feedItem("ok", 0),
	}}, DefaultMergeOptions(), mergeNow)

	if got := feedIDs(res.Model.Feed); !equalIDs(got, []string{"ok"}) {
		t.Errorf("feed = %v, want [ok]", got)
	}
	if len(res.Violations) != 1 || res.Violations[0].Field != "feed" {
		t.Errorf("violations = %v, want one feed violation", res.Violations)
	}
}

func TestMerge_EntitySetOnce(t *testing.T) {
	acme := models.Identity{ID: "e1", Name: "Acme", Domain: "acme.io"}
	other := models.Identity{ID: "e2", Name: "Globex", Domain: "globex.com"}

	first := Merge(models.NewViewModel(), models.Delta{Entity: &acme}, DefaultMergeOptions(), mergeNow)
	if first.Model.Entity == nil || *first.Model.Entity != acme {
		t.Fatalf("entity = %+v, want %+v", first.Model.Entity, acme)
	}

	same := Merge(first.Model, models.Delta{Entity: &acme}, DefaultMergeOptions(), mergeNow)
	if len(same.Violations) != 0 {
		t.Errorf("identical entity flagged: %v", same.Violations)
	}

	redefined := Merge(first.Model, models.Delta{
		Entity:   &other,
		Channels: map[string]models.ChannelPatch{"a": {Value: ptr(5.0)}},
	}, DefaultMergeOptions(), mergeNow)
	if *redefined.Model.Entity != acme {
		t.Errorf("entity changed to %+v", redefined.Model.Entity)
	}
	if len(redefined.Violations) != 1 || !errors.Is(redefined.Violations[0].Err, ErrEntityRedefined) {
		t.Errorf("violations = %v, want entity redefinition", redefined.Violations)
	}
	if redefined.Model.Channels["a"].Value != 5 {
		t.Error("rest of the delta was not applied")
	}
}

func TestMerge_PanelsReplacedAtomically(t *testing.T) {
	vm := models.NewViewModel()
	vm.Panels = &models.Panels{Metrics: map[string]float64{"x": 1, "y": 2}}

	res := Merge(vm, models.Delta{Panels: &models.Panels{Metrics: map[string]float64{"z": 3}}}, DefaultMergeOptions(), mergeNow)

	if len(res.Model.Panels.Metrics) != 1 || res.Model.Panels.Metrics["z"] != 3 {
		t.Errorf("panels = %+v, want only z", res.Model.Panels)
	}
	res.Model.Panels.Metrics["z"] = 99
	if vm.Panels.Metrics["x"] != 1 {
		t.Error("input panels mutated")
	}
}

func TestMerge_NoticeClearThenSet(t *testing.T) {
	vm := models.NewViewModel()
	vm.Notice = &models.Notice{Level: models.NoticePaused}

	cleared := Merge(vm, models.Delta{ClearNotice: true}, DefaultMergeOptions(), mergeNow)
	if cleared.Model.Notice != nil {
		t.Errorf("notice = %+v, want nil", cleared.Model.Notice)
	}

	replaced := Merge(vm, models.Delta{ClearNotice: true, Notice: &models.Notice{Level: models.NoticePersistent}}, DefaultMergeOptions(), mergeNow)
	if replaced.Model.Notice == nil || replaced.Model.Notice.Level != models.NoticePersistent {
		t.Errorf("notice = %+v, want persistent", replaced.Model.Notice)
	}
}

func TestMergeSnapshot_ReplacesChannelsKeepsDiagnostics(t *testing.T) {
	vm := models.NewViewModel()
	vm.Channels["stale"] = models.ChannelState{ID: "stale", Value: 4}
	vm.Feed = []models.FeedItem{feedItem("diag", 0)}

	res := MergeSnapshot(vm, models.Snapshot{
		Channels: map[string]models.ChannelState{"a": {Value: 120, Delta: 2}},
		Feed:     []models.FeedItem{feedItem("sig", 1)},
		Arcs:     []models.Arc{{ID: "arc", From: "a", To: "b", Timestamp: mergeNow}},
	}, DefaultMergeOptions(), mergeNow)

	if _, ok := res.Model.Channels["stale"]; ok {
		t.Error("snapshot did not replace channels")
	}
	a := res.Model.Channels["a"]
	if a.ID != "a" || a.Value != 100 || a.Direction != models.DirectionUp {
		t.Errorf("a = %+v", a)
	}
	if got := feedIDs(res.Model.Feed); !equalIDs(got, []string{"sig", "diag"}) {
		t.Errorf("feed = %v, want [sig diag]", got)
	}
	if len(res.Model.Arcs) != 1 || res.Model.Revision != vm.Revision+1 {
		t.Errorf("arcs = %v revision = %d", res.Model.Arcs, res.Model.Revision)
	}
}
