package docstore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evcraddock/front-desk/internal/db"
)

func TestCreateAndGet(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, "visits", map[string]any{
		"visitorName": "Ada",
		"createdAt":   ServerTimestamp,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	doc, err := s.Get(ctx, "visits", id)
	require.NoError(t, err)
	assert.Equal(t, id, doc.ID)
	assert.Equal(t, "Ada", doc.Fields["visitorName"])

	stamp, ok := doc.Fields["createdAt"].(string)
	require.True(t, ok, "server timestamp should be stored as a string")
	parsed, err := time.Parse(time.RFC3339Nano, stamp)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(doc.CreatedAt))
}

func TestCreateRequiresCollection(t *testing.T) {
	s, _ := testStore(t)

	_, err := s.Create(context.Background(), "", map[string]any{"a": 1})
	assert.Error(t, err)
}

func TestUpdateMergesFields(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, "visits", map[string]any{"visitorName": "Ada", "arrived": false})
	require.NoError(t, err)

	require.NoError(t, s.Update(ctx, "visits", id, map[string]any{"arrived": true, "didNotArrive": false}))

	doc, err := s.Get(ctx, "visits", id)
	require.NoError(t, err)
	assert.Equal(t, "Ada", doc.Fields["visitorName"])
	assert.Equal(t, true, doc.Fields["arrived"])
	assert.Equal(t, false, doc.Fields["didNotArrive"])
}

func TestUpdateUnknownID(t *testing.T) {
	s, _ := testStore(t)

	err := s.Update(context.Background(), "visits", "missing", map[string]any{"arrived": true})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetUnknownID(t *testing.T) {
	s, _ := testStore(t)

	_, err := s.Get(context.Background(), "visits", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDocumentsNewestFirst(t *testing.T) {
	s, clock := testStore(t)
	ctx := context.Background()

	var ids []string
	for _, name := range []string{"first", "second", "third"} {
		id, err := s.Create(ctx, "visits", map[string]any{"visitorName": name})
		require.NoError(t, err)
		ids = append(ids, id)
		clock.advance(time.Second)
	}
	_, err := s.Create(ctx, "other", map[string]any{"visitorName": "elsewhere"})
	require.NoError(t, err)

	docs, err := s.Documents(ctx, NewestFirst("visits"))
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, docIDs(docs))

	asc, err := s.Documents(ctx, Query{Collection: "visits", OrderBy: CreatedAtField, Direction: Asc})
	require.NoError(t, err)
	assert.Equal(t, ids, docIDs(asc))
}

func TestDocumentsOrderByField(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()

	for _, d := range []string{"2024-01-02", "2024-01-03", "2024-01-01"} {
		_, err := s.Create(ctx, "visits", map[string]any{"date": d})
		require.NoError(t, err)
	}

	docs, err := s.Documents(ctx, Query{Collection: "visits", OrderBy: "date", Direction: Asc})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "2024-01-01", docs[0].Fields["date"])
	assert.Equal(t, "2024-01-03", docs[2].Fields["date"])
}

func TestQueryValidate(t *testing.T) {
	tests := []struct {
		name    string
		q       Query
		wantErr bool
	}{
		{"newest first", NewestFirst("visits"), false},
		{"missing collection", Query{OrderBy: "date"}, true},
		{"injection in order field", Query{Collection: "visits", OrderBy: "date'); DROP TABLE documents; --"}, true},
		{"bad direction", Query{Collection: "visits", Direction: "sideways"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.q.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSubscribeDeliversSnapshots(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()
	rec := newRecorder()

	unsub, err := s.Subscribe(NewestFirst("visits"), rec.snapshot, rec.fail)
	require.NoError(t, err)
	defer unsub()

	initial := rec.next(t)
	assert.Empty(t, initial)

	id, err := s.Create(ctx, "visits", map[string]any{"visitorName": "Ada"})
	require.NoError(t, err)
	afterCreate := rec.waitFor(t, func(docs []Document) bool { return len(docs) == 1 })
	assert.Equal(t, id, afterCreate[0].ID)

	require.NoError(t, s.Update(ctx, "visits", id, map[string]any{"arrived": true}))
	rec.waitFor(t, func(docs []Document) bool {
		return len(docs) == 1 && docs[0].Fields["arrived"] == true
	})
}

func TestSubscribeIgnoresOtherCollections(t *testing.T) {
	s, _ := testStore(t)
	rec := newRecorder()

	unsub, err := s.Subscribe(NewestFirst("visits"), rec.snapshot, rec.fail)
	require.NoError(t, err)
	defer unsub()
	rec.next(t)

	_, err = s.Create(context.Background(), "archive", map[string]any{"visitorName": "Ada"})
	require.NoError(t, err)

	select {
	case docs := <-rec.snapshots:
		t.Fatalf("unexpected snapshot with %d docs", len(docs))
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	s, _ := testStore(t)
	rec := newRecorder()

	unsub, err := s.Subscribe(NewestFirst("visits"), rec.snapshot, rec.fail)
	require.NoError(t, err)
	rec.next(t)
	assert.Equal(t, 1, s.ActiveSubscriptions())

	unsub()
	unsub()
	assert.Equal(t, 0, s.ActiveSubscriptions())

	_, err = s.Create(context.Background(), "visits", map[string]any{"visitorName": "Ada"})
	require.NoError(t, err)

	select {
	case docs := <-rec.snapshots:
		t.Fatalf("snapshot after unsubscribe: %d docs", len(docs))
	case err := <-rec.errs:
		t.Fatalf("error after unsubscribe: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCloseEndsSubscriptions(t *testing.T) {
	s, _ := testStore(t)
	rec := newRecorder()

	_, err := s.Subscribe(NewestFirst("visits"), rec.snapshot, rec.fail)
	require.NoError(t, err)
	rec.next(t)

	require.NoError(t, s.Close())

	select {
	case err := <-rec.errs:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ErrClosed")
	}

	_, err = s.Create(context.Background(), "visits", map[string]any{})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Subscribe(NewestFirst("visits"), rec.snapshot, rec.fail)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConflictPolicyString(t *testing.T) {
	assert.Equal(t, "last-write-wins", LastWriteWins.String())
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	snapshots chan []Document
	errs      chan error
}

func newRecorder() *recorder {
	return &recorder{
		snapshots: make(chan []Document, 16),
		errs:      make(chan error, 4),
	}
}

func (r *recorder) snapshot(docs []Document) { r.snapshots <- docs }
func (r *recorder) fail(err error)           { r.errs <- err }

func (r *recorder) next(t *testing.T) []Document {
	t.Helper()
	select {
	case docs := <-r.snapshots:
		return docs
	case err := <-r.errs:
		t.Fatalf("subscription error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return nil
}

// waitFor reads snapshots until one satisfies ok. Wakes coalesce, so an
// intermediate state may be skipped but the final one always arrives.
func (r *recorder) waitFor(t *testing.T, ok func([]Document) bool) []Document {
	t.Helper()
	for {
		docs := r.next(t)
		if ok(docs) {
			return docs
		}
	}
}

func docIDs(docs []Document) []string {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids
}

func testStore(t *testing.T) (*SQLiteStore, *testClock) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	d, err := db.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := d.Close(); err != nil {
			t.Errorf("close db: %v", err)
		}
	})

	clock := &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	s := NewSQLiteStore(d, WithClock(clock.Now))
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return s, clock
}
