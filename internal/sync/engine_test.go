package sync

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestEngine(t *testing.T, remote *mockRemote) *Engine {
	t.Helper()
	store := openTestStore(t)
	qc := NewQuoteCache(remote, store, testLogger)
	cs := NewCollectionSync(remote, store, testLogger)
	return NewEngine(qc, cs, time.Hour, testLogger)
}

func TestRunOnce_SignedOutIsNotAnError(t *testing.T) {
	e := newTestEngine(t, newMockRemote(nil, catalog()...))

	stats, err := e.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !stats.SignedOut {
		t.Error("SignedOut = false, want true")
	}
	if stats.Quotes != 3 || stats.Errors != 0 {
		t.Errorf("stats = %+v, want 3 quotes and no errors", stats)
	}
}

func TestRunOnce_SignedIn(t *testing.T) {
	remote := newMockRemote(signedIn, catalog()...)
	remote.collections["c1"] = modelCollection("c1", "user-1")
	remote.memberships[membershipKey{"c1", "q1"}] = modelMembership("c1", "q1")
	e := newTestEngine(t, remote)

	stats, err := e.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	want := Stats{Quotes: 3, Collections: 1, Memberships: 1}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
}

func TestRunOnce_QuoteFailureCounted(t *testing.T) {
	remote := newMockRemote(signedIn, catalog()...)
	remote.failFetchQuotes = true
	e := newTestEngine(t, remote)

	stats, err := e.RunOnce(context.Background())
	if !errors.Is(err, errRemote) {
		t.Fatalf("error = %v, want wrapped %v", err, errRemote)
	}
	if stats.Errors != 1 {
		t.Errorf("Errors = %d, want 1", stats.Errors)
	}
	if stats.SignedOut {
		t.Error("SignedOut = true for a signed-in user")
	}
}

func TestRunOnce_BothStepsFail(t *testing.T) {
	remote := newMockRemote(signedIn, catalog()...)
	remote.failFetchQuotes = true
	remote.failFetchCollections = true
	e := newTestEngine(t, remote)

	stats, err := e.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if stats.Errors != 2 {
		t.Errorf("Errors = %d, want 2", stats.Errors)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	remote := newMockRemote(nil, catalog()...)
	e := newTestEngine(t, remote)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	// Wait for the initial pass before cancelling.
	deadline := time.Now().Add(2 * time.Second)
	for !remote.called("FetchQuotes") {
		if time.Now().After(deadline) {
			t.Fatal("initial refresh never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
