// Package live keeps a local mirror of a store collection up to date.
//
// A Collection holds at most one subscription. Every snapshot the store
// pushes replaces the mirror wholesale; there is no delta merging and no
// local mutation. Errors end the subscription and surface through the
// collection state, leaving the last known records in place.
package live

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/evcraddock/front-desk/internal/docstore"
	"github.com/evcraddock/front-desk/internal/metrics"
)

// ErrNotActive is returned by Refresh when the collection has no collection
// name to re-activate.
var ErrNotActive = errors.New("collection not active")

// Decoder converts a stored document into a T.
type Decoder[T any] func(docstore.Document) (T, error)

// State is an immutable view of the mirror.
type State[T any] struct {
	Records []T
	Loading bool
	Err     error
}

// SubscriptionError is the terminal error of a live subscription.
type SubscriptionError struct {
	Collection string
	Err        error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("live subscription to %s: %v", e.Collection, e.Err)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}

// Collection mirrors one store collection ordered newest first.
type Collection[T any] struct {
	store   docstore.Subscriber
	decode  Decoder[T]
	metrics *metrics.Metrics

	mu          sync.Mutex
	name        string
	state       State[T]
	gen         uint64
	unsubscribe docstore.Unsubscribe

	listenerMu sync.Mutex
	nextID     int
	listeners  map[int]func(State[T])
}

// Option configures a Collection.
type Option[T any] func(*Collection[T])

// WithMetrics records snapshots and subscription errors.
func WithMetrics[T any](m *metrics.Metrics) Option[T] {
	return func(c *Collection[T]) { c.metrics = m }
}

// New creates an inactive collection. State reports an empty, idle mirror
// until Activate is called.
func New[T any](store docstore.Subscriber, decode Decoder[T], opts ...Option[T]) *Collection[T] {
	c := &Collection[T]{
		store:     store,
		decode:    decode,
		listeners: make(map[int]func(State[T])),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Activate subscribes to collection ordered by creation time, newest first.
// Any previous subscription is released before the new one is made, so a
// Collection never holds more than one. The state is Loading with no
// records until the first snapshot arrives.
//
// An error establishing the subscription is returned and also recorded in
// the state.
func (c *Collection[T]) Activate(collection string) error {
	c.mu.Lock()
	c.releaseLocked()
	c.gen++
	gen := c.gen
	c.name = collection
	c.state = State[T]{Records: []T{}, Loading: true}
	loading := c.state
	c.mu.Unlock()

	c.notify(loading)

	unsub, err := c.store.Subscribe(docstore.NewestFirst(collection),
		func(docs []docstore.Document) { c.applySnapshot(gen, docs) },
		func(err error) { c.applyError(gen, err) },
	)
	if err != nil {
		subErr := &SubscriptionError{Collection: collection, Err: err}
		c.fail(gen, subErr)
		return subErr
	}

	c.mu.Lock()
	if c.gen != gen {
		// Deactivated or re-activated while subscribing.
		c.mu.Unlock()
		unsub()
		return nil
	}
	if c.state.Err != nil {
		// Failed during Subscribe; the store already ended it.
		c.mu.Unlock()
		unsub()
		return nil
	}
	c.unsubscribe = unsub
	c.mu.Unlock()

	c.metrics.SubscriptionOpened()
	slog.Debug("live subscription opened", "collection", collection)
	return nil
}

// Refresh re-activates the last activated collection. It is the recovery
// path after a subscription error.
func (c *Collection[T]) Refresh() error {
	c.mu.Lock()
	name := c.name
	c.mu.Unlock()
	if name == "" {
		return ErrNotActive
	}
	return c.Activate(name)
}

// Deactivate releases the subscription. When it returns, no snapshot or
// error from that subscription will change the state. The last state is
// kept.
func (c *Collection[T]) Deactivate() {
	c.mu.Lock()
	c.gen++
	released := c.releaseLocked()
	c.state.Loading = false
	name := c.name
	c.mu.Unlock()

	if released {
		slog.Debug("live subscription released", "collection", name)
	}
}

// State returns the current mirror. The Records slice is a copy.
func (c *Collection[T]) State() State[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Active reports whether a subscription is held.
func (c *Collection[T]) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unsubscribe != nil
}

// OnChange registers fn to be called with the new state after every
// change. Calls happen on the goroutine that delivered the change, in
// delivery order. The returned func removes the listener.
func (c *Collection[T]) OnChange(fn func(State[T])) (remove func()) {
	c.listenerMu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.listenerMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.listenerMu.Lock()
			delete(c.listeners, id)
			c.listenerMu.Unlock()
		})
	}
}

func (c *Collection[T]) applySnapshot(gen uint64, docs []docstore.Document) {
	records := make([]T, 0, len(docs))
	for _, doc := range docs {
		r, err := c.decode(doc)
		if err != nil {
			c.fail(gen, &SubscriptionError{Collection: c.collectionName(), Err: err})
			return
		}
		records = append(records, r)
	}

	c.mu.Lock()
	if c.gen != gen || c.state.Err != nil {
		c.mu.Unlock()
		return
	}
	c.state = State[T]{Records: records}
	next := c.snapshotLocked()
	name := c.name
	c.mu.Unlock()

	c.metrics.SnapshotApplied(name)
	c.notify(next)
}

func (c *Collection[T]) applyError(gen uint64, err error) {
	c.fail(gen, &SubscriptionError{Collection: c.collectionName(), Err: err})
}

// fail records a terminal error for generation gen and releases the
// subscription. Stale generations are ignored.
func (c *Collection[T]) fail(gen uint64, err *SubscriptionError) {
	c.mu.Lock()
	if c.gen != gen || c.state.Err != nil {
		c.mu.Unlock()
		return
	}
	c.state.Err = err
	c.state.Loading = false
	c.releaseLocked()
	next := c.snapshotLocked()
	c.mu.Unlock()

	c.metrics.SubscriptionFailed(err.Collection)
	slog.Error("live subscription failed", "collection", err.Collection, "err", err.Err)
	c.notify(next)
}

// releaseLocked drops the held subscription. The store's Unsubscribe is safe
// to call while holding c.mu because it never calls back synchronously.
func (c *Collection[T]) releaseLocked() bool {
	if c.unsubscribe == nil {
		return false
	}
	unsub := c.unsubscribe
	c.unsubscribe = nil
	unsub()
	c.metrics.SubscriptionClosed()
	return true
}

func (c *Collection[T]) snapshotLocked() State[T] {
	s := c.state
	if c.state.Records != nil {
		s.Records = append([]T(nil), c.state.Records...)
	}
	return s
}

func (c *Collection[T]) collectionName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

func (c *Collection[T]) notify(s State[T]) {
	c.listenerMu.Lock()
	fns := make([]func(State[T]), 0, len(c.listeners))
	ids := make([]int, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, c.listeners[id])
	}
	c.listenerMu.Unlock()

	for _, fn := range fns {
		safeCall(fn, s)
	}
}

func safeCall[T any](fn func(State[T]), s State[T]) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("live listener panicked", "panic", r)
		}
	}()
	fn(s)
}
