// Package docstoretest provides an in-memory docstore.Store for tests.
//
// Unlike the SQLite store, the fake delivers snapshots synchronously on the
// goroutine that caused them, and every subscription handle can still be
// driven after it has been released, which lets tests prove that consumers
// ignore a store that keeps pushing.
package docstoretest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/evcraddock/front-desk/internal/docstore"
)

// Store is an in-memory docstore.Store.
type Store struct {
	mu      sync.Mutex
	now     time.Time
	seq     int
	docs    map[string][]docstore.Document
	subs    []*Subscription
	updates []Write

	// SubscribeErr, when set, is returned by the next Subscribe call.
	SubscribeErr error
	// WriteErr, when set, is returned by every Create and Update call.
	WriteErr error
}

// Write records one Update call.
type Write struct {
	Collection string
	ID         string
	Fields     map[string]any
}

// New creates an empty store whose clock starts at start and advances one
// second per write.
func New(start time.Time) *Store {
	return &Store{
		now:  start,
		docs: make(map[string][]docstore.Document),
	}
}

// Subscription is a handle on one Subscribe call.
type Subscription struct {
	store      *Store
	Query      docstore.Query
	onSnapshot docstore.SnapshotFunc
	onError    docstore.ErrorFunc

	mu       sync.Mutex
	released bool
}

// Released reports whether the subscriber has let go of the handle.
func (s *Subscription) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Emit pushes docs to the subscriber, released or not.
func (s *Subscription) Emit(docs []docstore.Document) {
	s.onSnapshot(docs)
}

// Fail pushes err to the subscriber, released or not.
func (s *Subscription) Fail(err error) {
	s.onError(err)
}

// Subscribe records the subscription and immediately delivers the current
// state of the collection.
func (st *Store) Subscribe(q docstore.Query, onSnapshot docstore.SnapshotFunc, onError docstore.ErrorFunc) (docstore.Unsubscribe, error) {
	st.mu.Lock()
	if err := st.SubscribeErr; err != nil {
		st.SubscribeErr = nil
		st.mu.Unlock()
		return nil, err
	}
	sub := &Subscription{store: st, Query: q, onSnapshot: onSnapshot, onError: onError}
	st.subs = append(st.subs, sub)
	docs := st.snapshotLocked(q)
	st.mu.Unlock()

	onSnapshot(docs)

	return func() {
		sub.mu.Lock()
		sub.released = true
		sub.mu.Unlock()
	}, nil
}

// Create appends a document with a generated id ("r1", "r2", ...).
func (st *Store) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	st.mu.Lock()
	if st.WriteErr != nil {
		err := st.WriteErr
		st.mu.Unlock()
		return "", err
	}
	st.seq++
	id := fmt.Sprintf("r%d", st.seq)
	at := st.tickLocked()
	doc := docstore.Document{ID: id, CreatedAt: at, Fields: resolve(fields, at)}
	st.docs[collection] = append(st.docs[collection], doc)
	st.mu.Unlock()

	st.publish(collection)
	return id, nil
}

// Update merges fields into an existing document.
func (st *Store) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	st.mu.Lock()
	if st.WriteErr != nil {
		err := st.WriteErr
		st.mu.Unlock()
		return err
	}
	st.updates = append(st.updates, Write{Collection: collection, ID: id, Fields: fields})

	found := false
	at := st.tickLocked()
	for i, d := range st.docs[collection] {
		if d.ID != id {
			continue
		}
		merged := make(map[string]any, len(d.Fields)+len(fields))
		for k, v := range d.Fields {
			merged[k] = v
		}
		for k, v := range resolve(fields, at) {
			merged[k] = v
		}
		st.docs[collection][i].Fields = merged
		found = true
	}
	st.mu.Unlock()

	if !found {
		return fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	st.publish(collection)
	return nil
}

// Subscriptions returns every subscription made so far, released or not.
func (st *Store) Subscriptions() []*Subscription {
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]*Subscription(nil), st.subs...)
}

// Active returns the subscriptions that have not been released.
func (st *Store) Active() []*Subscription {
	var active []*Subscription
	for _, s := range st.Subscriptions() {
		if !s.Released() {
			active = append(active, s)
		}
	}
	return active
}

// Updates returns every Update call in order.
func (st *Store) Updates() []Write {
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]Write(nil), st.updates...)
}

// Document returns the stored document with id.
func (st *Store) Document(collection, id string) (docstore.Document, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, d := range st.docs[collection] {
		if d.ID == id {
			return d, true
		}
	}
	return docstore.Document{}, false
}

// publish sends the new state to every active subscription on collection.
func (st *Store) publish(collection string) {
	for _, sub := range st.Active() {
		if sub.Query.Collection != collection {
			continue
		}
		st.mu.Lock()
		docs := st.snapshotLocked(sub.Query)
		st.mu.Unlock()
		sub.Emit(docs)
	}
}

func (st *Store) snapshotLocked(q docstore.Query) []docstore.Document {
	src := st.docs[q.Collection]
	docs := make([]docstore.Document, len(src))
	copy(docs, src)
	sort.SliceStable(docs, func(i, j int) bool {
		if q.Direction == docstore.Desc {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}
		return docs[i].CreatedAt.Before(docs[j].CreatedAt)
	})
	return docs
}

func (st *Store) tickLocked() time.Time {
	st.now = st.now.Add(time.Second)
	return st.now
}

func resolve(fields map[string]any, at time.Time) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if v == docstore.ServerTimestamp {
			out[k] = at.UTC().Format(time.RFC3339Nano)
			continue
		}
		out[k] = v
	}
	return out
}

var _ docstore.Store = (*Store)(nil)
