// Package docstore is a small document database with live, push-based queries.
//
// Documents belong to named collections and carry a store-assigned id and a
// creation timestamp. Subscribers receive the complete ordered result of their
// query every time a write to the collection commits.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
)

var (
	// ErrNotFound is returned when updating a document id that does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrClosed is returned by a store that has been shut down. Active
	// subscriptions receive it through their error callback.
	ErrClosed = errors.New("store closed")
)

// Direction is the sort direction of a query.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// CreatedAtField is the pseudo-field that orders documents by creation time.
const CreatedAtField = "createdAt"

// ConflictPolicy names how concurrent writes to the same document resolve.
type ConflictPolicy int

const (
	// LastWriteWins applies each field update as it commits. Two racing
	// writers both succeed and the later commit is what subscribers see.
	LastWriteWins ConflictPolicy = iota
)

func (p ConflictPolicy) String() string {
	switch p {
	case LastWriteWins:
		return "last-write-wins"
	default:
		return fmt.Sprintf("ConflictPolicy(%d)", int(p))
	}
}

type serverTimestamp struct{}

// ServerTimestamp is a field value placeholder that the store replaces with
// its own commit time on Create and Update.
var ServerTimestamp = serverTimestamp{}

// Document is one stored record as seen by readers.
type Document struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	Fields    map[string]any `json:"fields"`
}

// Query selects every document of a collection in a fixed order.
type Query struct {
	Collection string
	OrderBy    string
	Direction  Direction
}

// NewestFirst orders a collection by creation time, newest first.
func NewestFirst(collection string) Query {
	return Query{Collection: collection, OrderBy: CreatedAtField, Direction: Desc}
}

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks the query can be executed.
func (q Query) Validate() error {
	if q.Collection == "" {
		return fmt.Errorf("collection name is required")
	}
	if q.OrderBy != "" && !fieldNamePattern.MatchString(q.OrderBy) {
		return fmt.Errorf("invalid order field %q", q.OrderBy)
	}
	switch q.Direction {
	case Asc, Desc, "":
	default:
		return fmt.Errorf("invalid direction %q", q.Direction)
	}
	return nil
}

// SnapshotFunc receives the full ordered result of a query.
type SnapshotFunc func(docs []Document)

// ErrorFunc receives the error that terminated a subscription.
type ErrorFunc func(err error)

// Unsubscribe releases a subscription. It is safe to call more than once and
// from inside a callback.
type Unsubscribe func()

// Subscriber establishes live queries.
//
// Snapshots for one subscription are delivered in commit order from a single
// goroutine. An error ends the subscription; no further callbacks follow it.
type Subscriber interface {
	Subscribe(q Query, onSnapshot SnapshotFunc, onError ErrorFunc) (Unsubscribe, error)
}

// Writer creates and updates documents.
type Writer interface {
	Create(ctx context.Context, collection string, fields map[string]any) (string, error)
	Update(ctx context.Context, collection, id string, fields map[string]any) error
}

// Store is the full client capability: live reads and writes.
type Store interface {
	Subscriber
	Writer
}

// resolveTimestamps returns a copy of fields with every ServerTimestamp
// placeholder replaced by at.
func resolveTimestamps(fields map[string]any, at time.Time) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if _, ok := v.(serverTimestamp); ok {
			out[k] = at.UTC().Format(time.RFC3339Nano)
			continue
		}
		out[k] = v
	}
	return out
}
