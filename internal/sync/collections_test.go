package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/njoerd114/quoteshelf/internal/model"
	"github.com/njoerd114/quoteshelf/internal/state"
)

func newTestCollectionSync(t *testing.T, remote *mockRemote) (*CollectionSync, *state.Store) {
	t.Helper()
	store := openTestStore(t)
	cs := NewCollectionSync(remote, store, testLogger)
	cs.now = fixedClock("2024-06-01T08:00:00Z")
	return cs, store
}

// seedCollection creates a collection through the manager and returns it.
func seedCollection(t *testing.T, cs *CollectionSync, name string) *model.Collection {
	t.Helper()
	c, err := cs.CreateCollection(context.Background(), name, "")
	if err != nil {
		t.Fatalf("CreateCollection(%q): %v", name, err)
	}
	return c
}

// ---------------------------------------------------------------------------
// CreateCollection
// ---------------------------------------------------------------------------

func TestCreateCollection_SignedOut(t *testing.T) {
	remote := newMockRemote(nil)
	cs, store := newTestCollectionSync(t, remote)

	_, err := cs.CreateCollection(context.Background(), "Travel", "")
	if !errors.Is(err, ErrSignInForCollections) {
		t.Fatalf("error = %v, want %v", err, ErrSignInForCollections)
	}
	if remote.called("InsertCollection") {
		t.Error("remote written while signed out")
	}
	if got, _ := store.ListCollectionsByUser(context.Background(), "user-1"); len(got) != 0 {
		t.Errorf("local collections = %+v, want none", got)
	}
}

func TestCreateCollection_EmptyName(t *testing.T) {
	remote := newMockRemote(signedIn)
	cs, _ := newTestCollectionSync(t, remote)

	if _, err := cs.CreateCollection(context.Background(), "   ", "x"); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("error = %v, want %v", err, ErrEmptyName)
	}
	if remote.called("InsertCollection") {
		t.Error("remote written for an empty name")
	}
}

func TestCreateCollection_SignedOutWinsOverEmptyName(t *testing.T) {
	remote := newMockRemote(nil)
	cs, _ := newTestCollectionSync(t, remote)

	if _, err := cs.CreateCollection(context.Background(), "", ""); !errors.Is(err, ErrSignInForCollections) {
		t.Fatalf("error = %v, want %v", err, ErrSignInForCollections)
	}
}

func TestCreateCollection_RemoteFailureWritesNothingLocally(t *testing.T) {
	remote := newMockRemote(signedIn)
	remote.failInsertCollection = true
	cs, store := newTestCollectionSync(t, remote)
	ctx := context.Background()

	if _, err := cs.CreateCollection(ctx, "Travel", ""); !errors.Is(err, errRemote) {
		t.Fatalf("error = %v, want wrapped %v", err, errRemote)
	}
	if got, _ := store.ListCollectionsByUser(ctx, "user-1"); len(got) != 0 {
		t.Errorf("local collections = %+v, want none", got)
	}
}

func TestCreateCollection_MirrorsRemoteRecord(t *testing.T) {
	remote := newMockRemote(signedIn)
	cs, _ := newTestCollectionSync(t, remote)
	ctx := context.Background()

	created, err := cs.CreateCollection(ctx, "Travel", "Places to go")
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	got, err := cs.CollectionByID(ctx, created.ID)
	if err != nil || got == nil {
		t.Fatalf("CollectionByID: %+v, %v", got, err)
	}
	if diff := cmp.Diff(created, got); diff != "" {
		t.Errorf("local copy differs from remote record (-remote +local):\n%s", diff)
	}
}

func TestUserCollections_SameNameBothKeptNewestFirst(t *testing.T) {
	remote := newMockRemote(signedIn)
	cs, _ := newTestCollectionSync(t, remote)
	ctx := context.Background()

	first := seedCollection(t, cs, "Travel")
	second := seedCollection(t, cs, "Travel")
	if err := cs.AddQuoteToCollection(ctx, first.ID, "q1"); err != nil {
		t.Fatalf("AddQuoteToCollection: %v", err)
	}

	sub := cs.UserCollections(ctx, "user-1")
	defer sub.Cancel()
	got := waitFor(t, sub, func(c []model.Collection) bool { return len(c) == 2 })

	if got[0].ID != second.ID || got[1].ID != first.ID {
		t.Errorf("order = [%s %s], want [%s %s]", got[0].ID, got[1].ID, second.ID, first.ID)
	}
	if diff := cmp.Diff([]string{"q1"}, got[1].QuoteIDs); diff != "" {
		t.Errorf("member ids (-want +got):\n%s", diff)
	}
	if len(got[0].QuoteIDs) != 0 {
		t.Errorf("second collection members = %v, want none", got[0].QuoteIDs)
	}
}

// ---------------------------------------------------------------------------
// UpdateCollection
// ---------------------------------------------------------------------------

func TestUpdateCollection_Success(t *testing.T) {
	remote := newMockRemote(signedIn)
	cs, _ := newTestCollectionSync(t, remote)
	ctx := context.Background()
	c := seedCollection(t, cs, "Travel")

	if err := cs.UpdateCollection(ctx, c.ID, "Trips", "Abroad"); err != nil {
		t.Fatalf("UpdateCollection: %v", err)
	}
	got, _ := cs.CollectionByID(ctx, c.ID)
	if got.Name != "Trips" || got.Description != "Abroad" || got.UpdatedAt != "2024-06-01T08:00:00.000Z" {
		t.Errorf("local after update = %+v", got)
	}
}

func TestUpdateCollection_RemoteFailureSkipsLocal(t *testing.T) {
	remote := newMockRemote(signedIn)
	cs, _ := newTestCollectionSync(t, remote)
	ctx := context.Background()
	c := seedCollection(t, cs, "Travel")

	remote.mu.Lock()
	remote.failUpdateCollection = true
	remote.mu.Unlock()

	if err := cs.UpdateCollection(ctx, c.ID, "Trips", ""); !errors.Is(err, errRemote) {
		t.Fatalf("error = %v, want wrapped %v", err, errRemote)
	}
	got, _ := cs.CollectionByID(ctx, c.ID)
	if got.Name != "Travel" {
		t.Errorf("local name = %q, want unchanged", got.Name)
	}
}

// ---------------------------------------------------------------------------
// DeleteCollection
// ---------------------------------------------------------------------------

func TestDeleteCollection_Success(t *testing.T) {
	remote := newMockRemote(signedIn)
	cs, store := newTestCollectionSync(t, remote)
	ctx := context.Background()
	c := seedCollection(t, cs, "Travel")
	_ = cs.AddQuoteToCollection(ctx, c.ID, "q1")

	if err := cs.DeleteCollection(ctx, c.ID); err != nil {
		t.Fatalf("DeleteCollection: %v", err)
	}
	if remote.hasCollection(c.ID) || remote.membershipCount(c.ID) != 0 {
		t.Error("remote collection or memberships survived")
	}
	if got, _ := cs.CollectionByID(ctx, c.ID); got != nil {
		t.Errorf("local collection survived: %+v", got)
	}
	if ids, _ := store.QuoteIDsInCollection(ctx, c.ID); len(ids) != 0 {
		t.Errorf("local memberships survived: %v", ids)
	}
}

func TestDeleteCollection_PartialRemoteFailure(t *testing.T) {
	remote := newMockRemote(signedIn)
	cs, store := newTestCollectionSync(t, remote)
	ctx := context.Background()
	c := seedCollection(t, cs, "Travel")
	_ = cs.AddQuoteToCollection(ctx, c.ID, "q1")

	remote.mu.Lock()
	remote.failDeleteCollection = true
	remote.mu.Unlock()

	if err := cs.DeleteCollection(ctx, c.ID); !errors.Is(err, errRemote) {
		t.Fatalf("error = %v, want wrapped %v", err, errRemote)
	}
	// Remote memberships are gone, the remote collection stays, local is untouched.
	if remote.membershipCount(c.ID) != 0 {
		t.Error("remote memberships should already be deleted")
	}
	if !remote.hasCollection(c.ID) {
		t.Error("remote collection should still exist")
	}
	if got, _ := cs.CollectionByID(ctx, c.ID); got == nil {
		t.Error("local collection deleted despite remote failure")
	}
	if ids, _ := store.QuoteIDsInCollection(ctx, c.ID); len(ids) != 1 {
		t.Errorf("local memberships = %v, want [q1]", ids)
	}
}

func TestDeleteCollection_MembershipDeleteFailureStopsEarly(t *testing.T) {
	remote := newMockRemote(signedIn)
	cs, _ := newTestCollectionSync(t, remote)
	ctx := context.Background()
	c := seedCollection(t, cs, "Travel")

	remote.mu.Lock()
	remote.failDeleteMemberships = true
	remote.mu.Unlock()

	if err := cs.DeleteCollection(ctx, c.ID); err == nil {
		t.Fatal("expected error")
	}
	if remote.called("DeleteCollection") {
		t.Error("collection delete attempted after membership delete failed")
	}
}

// ---------------------------------------------------------------------------
// Membership
// ---------------------------------------------------------------------------

func TestAddQuoteToCollection_RemoteDenialTolerated(t *testing.T) {
	remote := newMockRemote(signedIn, catalog()...)
	remote.failInsertMembership = true
	store := openTestStore(t)
	qc := NewQuoteCache(remote, store, testLogger)
	cs := NewCollectionSync(remote, store, testLogger)
	ctx := context.Background()

	_, _ = qc.RefreshQuotes(ctx)
	c := seedCollection(t, cs, "Travel")

	if err := cs.AddQuoteToCollection(ctx, c.ID, "q2"); err != nil {
		t.Fatalf("AddQuoteToCollection reported %v despite local success", err)
	}
	if remote.membershipCount(c.ID) != 0 {
		t.Error("remote membership recorded although the insert failed")
	}

	sub := cs.QuotesInCollection(ctx, c.ID)
	defer sub.Cancel()
	got := waitFor(t, sub, func(qs []model.Quote) bool { return len(qs) > 0 })
	if diff := cmp.Diff([]string{"q2"}, quoteIDs(got)); diff != "" {
		t.Errorf("quotes in collection (-want +got):\n%s", diff)
	}
}

func TestAddQuoteToCollection_Idempotent(t *testing.T) {
	remote := newMockRemote(signedIn)
	cs, store := newTestCollectionSync(t, remote)
	ctx := context.Background()
	c := seedCollection(t, cs, "Travel")

	for range 2 {
		if err := cs.AddQuoteToCollection(ctx, c.ID, "q1"); err != nil {
			t.Fatalf("AddQuoteToCollection: %v", err)
		}
	}
	ids, _ := store.QuoteIDsInCollection(ctx, c.ID)
	if diff := cmp.Diff([]string{"q1"}, ids); diff != "" {
		t.Errorf("members (-want +got):\n%s", diff)
	}
}

func TestQuotesInCollection_DropsUncachedQuotes(t *testing.T) {
	remote := newMockRemote(signedIn, catalog()...)
	store := openTestStore(t)
	qc := NewQuoteCache(remote, store, testLogger)
	cs := NewCollectionSync(remote, store, testLogger)
	ctx := context.Background()

	_, _ = qc.RefreshQuotes(ctx)
	c := seedCollection(t, cs, "Travel")
	_ = cs.AddQuoteToCollection(ctx, c.ID, "q1")
	_ = cs.AddQuoteToCollection(ctx, c.ID, "not-cached")

	sub := cs.QuotesInCollection(ctx, c.ID)
	defer sub.Cancel()
	got := waitFor(t, sub, func([]model.Quote) bool { return true })
	if diff := cmp.Diff([]string{"q1"}, quoteIDs(got)); diff != "" {
		t.Errorf("quotes in collection (-want +got):\n%s", diff)
	}
}

func TestRemoveQuoteFromCollection_RemoteFailureKeepsLocal(t *testing.T) {
	remote := newMockRemote(signedIn)
	cs, store := newTestCollectionSync(t, remote)
	ctx := context.Background()
	c := seedCollection(t, cs, "Travel")
	_ = cs.AddQuoteToCollection(ctx, c.ID, "q1")

	remote.mu.Lock()
	remote.failDeleteMembership = true
	remote.mu.Unlock()

	if err := cs.RemoveQuoteFromCollection(ctx, c.ID, "q1"); !errors.Is(err, errRemote) {
		t.Fatalf("error = %v, want wrapped %v", err, errRemote)
	}
	m, err := store.Membership(ctx, c.ID, "q1")
	if err != nil {
		t.Fatalf("Membership: %v", err)
	}
	if m == nil {
		t.Error("local membership removed although the remote delete failed")
	}
}

func TestRemoveQuoteFromCollection_Success(t *testing.T) {
	remote := newMockRemote(signedIn)
	cs, store := newTestCollectionSync(t, remote)
	ctx := context.Background()
	c := seedCollection(t, cs, "Travel")
	_ = cs.AddQuoteToCollection(ctx, c.ID, "q1")

	if err := cs.RemoveQuoteFromCollection(ctx, c.ID, "q1"); err != nil {
		t.Fatalf("RemoveQuoteFromCollection: %v", err)
	}
	if m, _ := store.Membership(ctx, c.ID, "q1"); m != nil {
		t.Errorf("membership still present: %+v", m)
	}
}

// ---------------------------------------------------------------------------
// SyncCollections
// ---------------------------------------------------------------------------

func TestSyncCollections_SignedOut(t *testing.T) {
	cs, _ := newTestCollectionSync(t, newMockRemote(nil))
	if _, err := cs.SyncCollections(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("error = %v, want %v", err, ErrNotAuthenticated)
	}
}

func TestSyncCollections_PullsUserCollectionsAndAllMemberships(t *testing.T) {
	remote := newMockRemote(signedIn)
	remote.collections["mine"] = model.Collection{ID: "mine", Name: "Mine", UserID: "user-1", UpdatedAt: "2024-01-01T00:00:00.000Z"}
	remote.collections["theirs"] = model.Collection{ID: "theirs", Name: "Theirs", UserID: "user-2"}
	remote.memberships[membershipKey{"mine", "q1"}] = model.Membership{CollectionID: "mine", QuoteID: "q1"}
	remote.memberships[membershipKey{"theirs", "q2"}] = model.Membership{CollectionID: "theirs", QuoteID: "q2"}
	cs, store := newTestCollectionSync(t, remote)
	ctx := context.Background()

	stats, err := cs.SyncCollections(ctx)
	if err != nil {
		t.Fatalf("SyncCollections: %v", err)
	}
	if diff := cmp.Diff(SyncStats{Collections: 1, Memberships: 2}, stats); diff != "" {
		t.Errorf("stats (-want +got):\n%s", diff)
	}

	if got, _ := store.GetCollection(ctx, "theirs"); got != nil {
		t.Error("another user's collection was cached")
	}
	// Membership rows are pulled unscoped, so another user's rows land locally.
	if ids, _ := store.QuoteIDsInCollection(ctx, "theirs"); len(ids) != 1 {
		t.Errorf("unscoped membership rows = %v, want [q2]", ids)
	}

	got, _ := cs.CollectionByID(ctx, "mine")
	if got == nil {
		t.Fatal("own collection not cached")
	}
	if diff := cmp.Diff([]string{"q1"}, got.QuoteIDs); diff != "" {
		t.Errorf("own members (-want +got):\n%s", diff)
	}
}

func TestSyncCollections_FetchFailureWritesNothing(t *testing.T) {
	remote := newMockRemote(signedIn)
	remote.collections["mine"] = model.Collection{ID: "mine", Name: "Mine", UserID: "user-1"}
	remote.failFetchMemberships = true
	cs, store := newTestCollectionSync(t, remote)
	ctx := context.Background()

	if _, err := cs.SyncCollections(ctx); !errors.Is(err, errRemote) {
		t.Fatalf("error = %v, want wrapped %v", err, errRemote)
	}
	if got, _ := store.GetCollection(ctx, "mine"); got != nil {
		t.Error("collection cached although the membership fetch failed")
	}
}
