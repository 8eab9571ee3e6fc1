package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/njoerd114/quoteshelf/internal/live"
	"github.com/njoerd114/quoteshelf/internal/model"
	"github.com/njoerd114/quoteshelf/internal/state"
)

var (
	testLogger = slog.Default()
	errRemote  = errors.New("remote unavailable")
)

// --- Mock Remote ---------------------------------------------------------------

type membershipKey struct{ collectionID, quoteID string }

// mockRemote is an in-memory backend. Each fail* flag makes the matching
// operation return errRemote.
type mockRemote struct {
	mu sync.Mutex

	user    *model.User
	userErr error

	quotes      []model.Quote
	favorites   map[string]map[string]bool // userID → quoteID set
	collections map[string]model.Collection
	memberships map[membershipKey]model.Membership
	tick        int
	calls       []string

	failFetchQuotes       bool
	failFetchFavorites    bool
	failInsertFavorite    bool
	failDeleteFavorite    bool
	failInsertCollection  bool
	failUpdateCollection  bool
	failDeleteMemberships bool
	failDeleteCollection  bool
	failInsertMembership  bool
	failDeleteMembership  bool
	failFetchCollections  bool
	failFetchMemberships  bool
}

func newMockRemote(user *model.User, quotes ...model.Quote) *mockRemote {
	return &mockRemote{
		user:        user,
		quotes:      quotes,
		favorites:   make(map[string]map[string]bool),
		collections: make(map[string]model.Collection),
		memberships: make(map[membershipKey]model.Membership),
	}
}

func (m *mockRemote) record(name string, fail bool) error {
	m.calls = append(m.calls, name)
	if fail {
		return errRemote
	}
	return nil
}

// called reports whether name was invoked.
func (m *mockRemote) called(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.calls {
		if c == name {
			return true
		}
	}
	return false
}

// timestamp returns a strictly increasing server timestamp.
func (m *mockRemote) timestamp() string {
	m.tick++
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return model.FormatTimestamp(base.Add(time.Duration(m.tick) * time.Minute))
}

func (m *mockRemote) CurrentUser(context.Context) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.userErr != nil {
		return nil, m.userErr
	}
	if m.user == nil {
		return nil, nil
	}
	u := *m.user
	return &u, nil
}

func (m *mockRemote) FetchQuotes(context.Context) ([]model.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("FetchQuotes", m.failFetchQuotes); err != nil {
		return nil, err
	}
	return append([]model.Quote(nil), m.quotes...), nil
}

func (m *mockRemote) FetchFavoriteQuoteIDs(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("FetchFavoriteQuoteIDs", m.failFetchFavorites); err != nil {
		return nil, err
	}
	var ids []string
	for id := range m.favorites[userID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *mockRemote) InsertFavorite(_ context.Context, userID, quoteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("InsertFavorite", m.failInsertFavorite); err != nil {
		return err
	}
	if m.favorites[userID] == nil {
		m.favorites[userID] = make(map[string]bool)
	}
	m.favorites[userID][quoteID] = true
	return nil
}

func (m *mockRemote) DeleteFavorite(_ context.Context, userID, quoteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("DeleteFavorite", m.failDeleteFavorite); err != nil {
		return err
	}
	delete(m.favorites[userID], quoteID)
	return nil
}

func (m *mockRemote) InsertCollection(_ context.Context, userID, name, description string) (*model.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("InsertCollection", m.failInsertCollection); err != nil {
		return nil, err
	}
	ts := m.timestamp()
	c := model.Collection{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		UserID:      userID,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	m.collections[c.ID] = c
	return &c, nil
}

func (m *mockRemote) UpdateCollection(_ context.Context, id, name, description, updatedAt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("UpdateCollection", m.failUpdateCollection); err != nil {
		return err
	}
	c, ok := m.collections[id]
	if !ok {
		return nil
	}
	c.Name, c.Description, c.UpdatedAt = name, description, updatedAt
	m.collections[id] = c
	return nil
}

func (m *mockRemote) DeleteCollectionMemberships(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("DeleteCollectionMemberships", m.failDeleteMemberships); err != nil {
		return err
	}
	for k := range m.memberships {
		if k.collectionID == id {
			delete(m.memberships, k)
		}
	}
	return nil
}

func (m *mockRemote) DeleteCollection(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("DeleteCollection", m.failDeleteCollection); err != nil {
		return err
	}
	delete(m.collections, id)
	return nil
}

func (m *mockRemote) InsertMembership(_ context.Context, collectionID, quoteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("InsertMembership", m.failInsertMembership); err != nil {
		return err
	}
	m.memberships[membershipKey{collectionID, quoteID}] = model.Membership{CollectionID: collectionID, QuoteID: quoteID}
	return nil
}

func (m *mockRemote) DeleteMembership(_ context.Context, collectionID, quoteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("DeleteMembership", m.failDeleteMembership); err != nil {
		return err
	}
	delete(m.memberships, membershipKey{collectionID, quoteID})
	return nil
}

func (m *mockRemote) FetchCollections(_ context.Context, userID string) ([]model.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("FetchCollections", m.failFetchCollections); err != nil {
		return nil, err
	}
	var cs []model.Collection
	for _, c := range m.collections {
		if c.UserID == userID {
			cs = append(cs, c)
		}
	}
	return cs, nil
}

func (m *mockRemote) FetchAllMemberships(context.Context) ([]model.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("FetchAllMemberships", m.failFetchMemberships); err != nil {
		return nil, err
	}
	ms := make([]model.Membership, 0, len(m.memberships))
	for _, v := range m.memberships {
		ms = append(ms, v)
	}
	return ms, nil
}

func (m *mockRemote) hasCollection(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.collections[id]
	return ok
}

func (m *mockRemote) membershipCount(collectionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.memberships {
		if k.collectionID == collectionID {
			n++
		}
	}
	return n
}

// --- helpers ---------------------------------------------------------------------

func openTestStore(t *testing.T) *state.Store {
	t.Helper()
	s, err := state.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("state.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var signedIn = &model.User{ID: "user-1", Email: "ada@example.com"}

func quote(id, text, author string, createdAt string) model.Quote {
	return model.Quote{ID: id, Text: text, Author: author, Category: model.CategoryWisdom, CreatedAt: createdAt}
}

// waitFor reads from sub until pred holds or the timeout expires.
func waitFor[T any](t *testing.T, sub *live.Subscription[T], pred func(T) bool) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case v, ok := <-sub.C():
			if !ok {
				t.Fatalf("subscription closed: %v", sub.Err())
			}
			if pred(v) {
				return v
			}
		case <-deadline:
			t.Fatal("timed out waiting for live value")
			var zero T
			return zero
		}
	}
}

func quoteIDs(qs []model.Quote) []string {
	ids := make([]string, len(qs))
	for i, q := range qs {
		ids[i] = q.ID
	}
	return ids
}

func containsID(qs []model.Quote, id string) bool {
	for _, q := range qs {
		if q.ID == id {
			return true
		}
	}
	return false
}

func fixedClock(ts string) func() time.Time {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		panic(fmt.Sprintf("bad clock %q: %v", ts, err))
	}
	return func() time.Time { return t }
}

func modelCollection(id, userID string) model.Collection {
	return model.Collection{ID: id, Name: "Collection " + id, UserID: userID, UpdatedAt: "2024-01-01T00:00:00.000Z"}
}

func modelMembership(collectionID, quoteID string) model.Membership {
	return model.Membership{CollectionID: collectionID, QuoteID: quoteID}
}
