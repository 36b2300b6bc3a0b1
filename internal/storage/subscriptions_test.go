package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/valter-silva-au/signal-radar/pkg/models"
)

func newTestSubscriptionStore(t *testing.T) *fileSubscriptionStore {
	t.Helper()
	return NewSubscriptionStore(t.TempDir()).(*fileSubscriptionStore)
}

func sampleSubscription(id string, created time.Time) models.Subscription {
	return models.Subscription{
		ID:       id,
		EntityID: "ent-acme",
		Entity:   "Acme",
		Contact:  "ops@acme.io",
		Source:   "simulated",
		Created:  created,
	}
}

var t0 = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func TestAddSubscription(t *testing.T) {
	store := newTestSubscriptionStore(t)
	sub := sampleSubscription("sub-1", t0)

	if err := store.Add(sub); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := store.Get("sub-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Contact != sub.Contact {
		t.Fatalf("expected contact %q, got %q", sub.Contact, got.Contact)
	}
}

func TestAddSubscription_Validation(t *testing.T) {
	store := newTestSubscriptionStore(t)

	if err := store.Add(models.Subscription{EntityID: "e", Contact: "c"}); err == nil {
		t.Error("expected error for empty ID")
	}
	if err := store.Add(models.Subscription{ID: "sub-1"}); err == nil {
		t.Error("expected error for missing entity and contact")
	}
	if err := store.Add(sampleSubscription("sub-1", t0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Add(sampleSubscription("sub-1", t0)); err == nil {
		t.Error("expected error for duplicate ID")
	}
}

func TestRemoveSubscription(t *testing.T) {
	store := newTestSubscriptionStore(t)
	_ = store.Add(sampleSubscription("sub-1", t0))

	if err := store.Remove("sub-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.Get("sub-1"); err == nil {
		t.Error("expected error after removal")
	}
	if err := store.Remove("sub-1"); err == nil {
		t.Error("expected error removing a missing subscription")
	}
}

func TestListAndForEntity(t *testing.T) {
	store := newTestSubscriptionStore(t)
	_ = store.Add(sampleSubscription("sub-b", t0.Add(time.Hour)))
	_ = store.Add(sampleSubscription("sub-a", t0))
	other := sampleSubscription("sub-c", t0)
	other.EntityID = "ent-globex"
	_ = store.Add(other)

	all, _ := store.List()
	if len(all) != 3 || all[0].ID != "sub-a" || all[1].ID != "sub-c" || all[2].ID != "sub-b" {
		t.Errorf("List order = %v", all)
	}

	acme, _ := store.ForEntity("ent-acme")
	if len(acme) != 2 {
		t.Errorf("ForEntity(ent-acme) = %d, want 2", len(acme))
	}
}

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewSubscriptionStore(dir)
	_ = store.Add(sampleSubscription("sub-1", t0))
	if err := store.Save(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reloaded := NewSubscriptionStore(dir)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := reloaded.Get("sub-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Created.Equal(t0) || got.Entity != "Acme" {
		t.Errorf("reloaded = %+v", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	store := newTestSubscriptionStore(t)
	if err := store.Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	all, _ := store.List()
	if len(all) != 0 {
		t.Errorf("expected empty store, got %d", len(all))
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "subscriptions.yaml"), []byte("subscriptions: [\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := NewSubscriptionStore(dir).Load(); err == nil {
		t.Error("expected parse error")
	}
}

func TestRecord_ConcurrentWriters(t *testing.T) {
	dir := t.TempDir()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Each writer has its own store, as separate processes would.
			store := NewSubscriptionStore(dir)
			if err := store.Record(sampleSubscription(fmt.Sprintf("sub-%d", i), t0)); err != nil {
				t.Errorf("Record(%d): %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	store := NewSubscriptionStore(dir)
	if err := store.Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	all, _ := store.List()
	if len(all) != 8 {
		t.Errorf("recorded %d subscriptions, want 8", len(all))
	}
}

func TestRecord_Idempotent(t *testing.T) {
	dir := t.TempDir()
	store := NewSubscriptionStore(dir)
	sub := sampleSubscription("sub-1", t0)
	if err := store.Record(sub); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Record(sub); err != nil {
		t.Fatalf("second Record: %v", err)
	}
	all, _ := store.List()
	if len(all) != 1 {
		t.Errorf("got %d subscriptions, want 1", len(all))
	}
}
