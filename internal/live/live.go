// Package live provides push-based live queries over the local store.
//
// A [Hub] fans out "table changed" signals from writers to subscribers. [Watch]
// turns a query function into a [Subscription] that re-runs the query and
// delivers its result every time one of the watched tables changes. Each
// subscription owns one goroutine; [Subscription.Cancel] stops it and waits
// for it to exit. Cancelling never rolls back writes.
package live

import (
	"context"
	"sync"
)

// Table names a local table whose changes can be observed.
type Table string

// Source reports changes to tables. Implemented by [Hub] and by the SQLite
// store.
type Source interface {
	Changes(tables ...Table) (<-chan struct{}, func())
}

// Hub broadcasts change notifications to subscribers. The zero value is not
// usable; create one with [NewHub].
type Hub struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	tables map[Table]bool
	ch     chan struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*subscriber]struct{})}
}

// Changes registers interest in tables. The returned channel receives a value
// after each Notify touching any of them; bursts coalesce into one pending
// signal. The returned func unregisters and is safe to call more than once.
func (h *Hub) Changes(tables ...Table) (<-chan struct{}, func()) {
	sub := &subscriber{
		tables: make(map[Table]bool, len(tables)),
		ch:     make(chan struct{}, 1),
	}
	for _, t := range tables {
		sub.tables[t] = true
	}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, sub)
			h.mu.Unlock()
		})
	}
}

// Notify signals every subscriber watching at least one of tables. It never
// blocks.
func (h *Hub) Notify(tables ...Table) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		if !sub.watches(tables) {
			continue
		}
		select {
		case sub.ch <- struct{}{}:
		default: // a signal is already pending
		}
	}
}

func (s *subscriber) watches(tables []Table) bool {
	for _, t := range tables {
		if s.tables[t] {
			return true
		}
	}
	return false
}

// Subscription delivers successive query results. Read them from [C]; the
// channel is closed when the subscription stops, after which [Err] reports
// why (nil for a cancellation).
type Subscription[T any] struct {
	c       chan T
	done    chan struct{}
	stopped chan struct{}
	cancel  context.CancelFunc
	once    sync.Once

	mu  sync.Mutex
	err error
}

// Watch starts a live query. The query runs once immediately and again after
// every change to any of tables. The subscription also stops when ctx ends.
func Watch[T any](ctx context.Context, src Source, query func(context.Context) (T, error), tables ...Table) *Subscription[T] {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription[T]{
		c:       make(chan T),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		cancel:  cancel,
	}

	// Subscribe before the first query so no change can slip in between.
	changes, unsubscribe := src.Changes(tables...)

	go func() {
		defer close(s.stopped)
		defer close(s.c)
		defer unsubscribe()
		defer cancel()
		s.loop(ctx, query, changes)
	}()

	return s
}

func (s *Subscription[T]) loop(ctx context.Context, query func(context.Context) (T, error), changes <-chan struct{}) {
	for {
		v, err := query(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.setErr(err)
			}
			return
		}

		select {
		case s.c <- v:
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}

		select {
		case <-changes:
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// C returns the channel of query results.
func (s *Subscription[T]) C() <-chan T {
	return s.c
}

// Cancel stops the subscription and waits for its goroutine to exit. It is
// safe to call more than once.
func (s *Subscription[T]) Cancel() {
	s.once.Do(func() {
		close(s.done)
		s.cancel()
	})
	<-s.stopped
}

// Err returns the query error that stopped the subscription, if any.
func (s *Subscription[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription[T]) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}
