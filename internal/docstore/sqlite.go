package docstore

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// SQLiteStore keeps collections as JSON documents in the documents table
// and pushes query results to live subscribers after every committed write.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy

	mu       sync.Mutex
	closed   bool
	nextID   uint64
	watchers map[string]map[uint64]*watcher
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithClock overrides the commit clock.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) { s.now = now }
}

// NewSQLiteStore creates a store on an already migrated database.
func NewSQLiteStore(db *sql.DB, opts ...Option) *SQLiteStore {
	s := &SQLiteStore{
		db:       db,
		now:      time.Now,
		entropy:  ulid.Monotonic(rand.Reader, 0),
		watchers: make(map[string]map[uint64]*watcher),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create inserts a document and returns its new id.
func (s *SQLiteStore) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	if collection == "" {
		return "", fmt.Errorf("collection name is required")
	}
	if s.isClosed() {
		return "", ErrClosed
	}

	now := s.now()
	id, err := s.newID(now)
	if err != nil {
		return "", fmt.Errorf("generating document id: %w", err)
	}

	data, err := json.Marshal(resolveTimestamps(fields, now))
	if err != nil {
		return "", fmt.Errorf("encoding fields: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO documents (collection, id, fields_json, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		collection, id, string(data), now.UnixNano(), now.UnixNano(),
	); err != nil {
		return "", fmt.Errorf("inserting document: %w", err)
	}

	s.notify(collection)
	return id, nil
}

// Update merges fields into an existing document. Fields not named keep
// their stored values.
func (s *SQLiteStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if id == "" {
		return fmt.Errorf("document id is required")
	}
	if s.isClosed() {
		return ErrClosed
	}

	now := s.now()
	patch, err := json.Marshal(resolveTimestamps(fields, now))
	if err != nil {
		return fmt.Errorf("encoding fields: %w", err)
	}

	// json_patch merges in a single statement, so concurrent writers to
	// different fields never overwrite each other.
	result, err := s.db.ExecContext(ctx,
		"UPDATE documents SET fields_json = json_patch(fields_json, ?), updated_at = ? WHERE collection = ? AND id = ?",
		string(patch), now.UnixNano(), collection, id,
	)
	if err != nil {
		return fmt.Errorf("updating document: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}

	s.notify(collection)
	return nil
}

// Get returns a single document.
func (s *SQLiteStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var raw string
	var created int64
	err := s.db.QueryRowContext(ctx,
		"SELECT fields_json, created_at FROM documents WHERE collection = ? AND id = ?",
		collection, id,
	).Scan(&raw, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("querying document: %w", err)
	}

	return decodeDocument(id, raw, created)
}

// Documents runs q once and returns the ordered result.
func (s *SQLiteStore) Documents(ctx context.Context, q Query) ([]Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	order := "created_at"
	if q.OrderBy != "" && q.OrderBy != CreatedAtField {
		order = fmt.Sprintf("json_extract(fields_json, '$.%s')", q.OrderBy)
	}
	dir := "ASC"
	if q.Direction == Desc {
		dir = "DESC"
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT id, fields_json, created_at FROM documents WHERE collection = ? ORDER BY %s %s, id %s", order, dir, dir),
		q.Collection,
	)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			slog.Warn("closing rows", "err", cerr)
		}
	}()

	docs := make([]Document, 0)
	for rows.Next() {
		var id, raw string
		var created int64
		if err := rows.Scan(&id, &raw, &created); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		doc, err := decodeDocument(id, raw, created)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}

	return docs, nil
}

// Subscribe starts a live query. The first snapshot is delivered as soon as
// the initial query completes.
func (s *SQLiteStore) Subscribe(q Query, onSnapshot SnapshotFunc, onError ErrorFunc) (Unsubscribe, error) {
	if q.OrderBy == "" {
		q.OrderBy = CreatedAtField
	}
	if q.Direction == "" {
		q.Direction = Asc
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if onSnapshot == nil || onError == nil {
		return nil, fmt.Errorf("snapshot and error callbacks are required")
	}

	w := &watcher{
		query:      q,
		onSnapshot: onSnapshot,
		onError:    onError,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.nextID++
	w.id = s.nextID
	if s.watchers[q.Collection] == nil {
		s.watchers[q.Collection] = make(map[uint64]*watcher)
	}
	s.watchers[q.Collection][w.id] = w
	s.mu.Unlock()

	w.wake <- struct{}{}
	go s.watch(w)

	return func() { s.cancel(w, nil) }, nil
}

// ActiveSubscriptions reports how many live queries are registered.
func (s *SQLiteStore) ActiveSubscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, ws := range s.watchers {
		n += len(ws)
	}
	return n
}

// Close ends every subscription with ErrClosed and rejects further use.
// The underlying database is left open.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var all []*watcher
	for _, ws := range s.watchers {
		for _, w := range ws {
			all = append(all, w)
		}
	}
	s.mu.Unlock()

	for _, w := range all {
		s.cancel(w, ErrClosed)
	}
	return nil
}

// watcher is one live query.
type watcher struct {
	id         uint64
	query      Query
	onSnapshot SnapshotFunc
	onError    ErrorFunc

	wake chan struct{}
	done chan struct{}
	stop sync.Once
	err  error
	// released is set when the subscriber, not the store, ended the query.
	released atomic.Bool
}

func (w *watcher) finished() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// watch delivers snapshots for w until it is cancelled. All callbacks for
// one subscription run on this goroutine.
func (s *SQLiteStore) watch(w *watcher) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-w.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		if w.finished() {
			if w.err != nil && !w.released.Load() {
				w.onError(w.err)
			}
			return
		}

		select {
		case <-w.done:
			continue
		case <-w.wake:
		}

		docs, err := s.Documents(ctx, w.query)
		if w.finished() {
			continue
		}
		if err != nil {
			s.cancel(w, fmt.Errorf("live query on %s: %w", w.query.Collection, err))
			continue
		}
		w.onSnapshot(docs)
	}
}

// cancel ends w. A nil err means the subscriber released it.
func (s *SQLiteStore) cancel(w *watcher, err error) {
	w.stop.Do(func() {
		w.err = err
		w.released.Store(err == nil)
		close(w.done)

		s.mu.Lock()
		delete(s.watchers[w.query.Collection], w.id)
		if len(s.watchers[w.query.Collection]) == 0 {
			delete(s.watchers, w.query.Collection)
		}
		s.mu.Unlock()
	})
}

// notify wakes every watcher of collection. Pending wakes coalesce: the
// watcher always reads the latest committed state.
func (s *SQLiteStore) notify(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range s.watchers[collection] {
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
}

func (s *SQLiteStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *SQLiteStore) newID(at time.Time) (string, error) {
	s.idMu.Lock()
	defer s.idMu.Unlock()

	id, err := ulid.New(ulid.Timestamp(at), s.entropy)
	if err != nil {
		return "", err
	}
	return strings.ToLower(id.String()), nil
}

func decodeDocument(id, raw string, created int64) (Document, error) {
	fields := make(map[string]any)
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return Document{}, fmt.Errorf("decoding document %s: %w", id, err)
	}
	return Document{
		ID:        id,
		CreatedAt: time.Unix(0, created).UTC(),
		Fields:    fields,
	}, nil
}
