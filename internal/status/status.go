// Package status applies front-desk triage transitions to visit records.
//
// Each transition is one partial update that writes both status flags
// together. Nothing is mirrored locally: the new status becomes visible when
// the next live snapshot arrives.
package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/evcraddock/front-desk/internal/docstore"
	"github.com/evcraddock/front-desk/internal/metrics"
	"github.com/evcraddock/front-desk/internal/visit"
)

// ErrMissingID is returned when a transition is requested without a record id.
var ErrMissingID = errors.New("record id is required")

// Kind names a transition.
type Kind string

const (
	ConfirmArrival Kind = "arrived"
	MarkNoShow     Kind = "no_show"
	Reset          Kind = "reset"
)

// ParseKind accepts the kind names and their URL forms.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "arrived", "arrive", "confirm":
		return ConfirmArrival, nil
	case "no_show", "no-show", "noshow":
		return MarkNoShow, nil
	case "reset":
		return Reset, nil
	default:
		return "", fmt.Errorf("unknown transition %q", s)
	}
}

// Target is the status a transition leaves the record in.
func (k Kind) Target() visit.Status {
	switch k {
	case ConfirmArrival:
		return visit.Arrived
	case MarkNoShow:
		return visit.NoShow
	default:
		return visit.Pending
	}
}

// Fields returns the partial update for k. Both flags are always present.
func (k Kind) Fields() map[string]any {
	arrived, didNotArrive := k.Target().Flags()
	return map[string]any{
		visit.FieldArrived:      arrived,
		visit.FieldDidNotArrive: didNotArrive,
	}
}

// Tone colors a notice.
type Tone string

const (
	Green  Tone = "green"
	Orange Tone = "orange"
	Blue   Tone = "blue"
	Red    Tone = "red"
)

// Notice is the user-facing outcome of a transition.
type Notice struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Tone    Tone   `json:"tone"`
}

// SuccessNotice returns the notice shown after k succeeds.
func (k Kind) SuccessNotice() Notice {
	switch k {
	case ConfirmArrival:
		return Notice{Title: "Success", Message: "Visitor arrival confirmed", Tone: Green}
	case MarkNoShow:
		return Notice{Title: "Updated", Message: "Visitor marked as did not arrive", Tone: Orange}
	default:
		return Notice{Title: "Reset", Message: "Visitor status reset", Tone: Blue}
	}
}

// FailureNotice returns the notice shown after k fails.
func (k Kind) FailureNotice() Notice {
	msg := "Failed to reset visitor status"
	switch k {
	case ConfirmArrival:
		msg = "Failed to confirm visitor arrival"
	case MarkNoShow:
		msg = "Failed to update visitor status"
	}
	return Notice{Title: "Error", Message: msg, Tone: Red}
}

// WriteError reports a transition the store did not accept.
type WriteError struct {
	Kind Kind
	ID   string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("applying %s to %s: %v", e.Kind, e.ID, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Notice is the failure notice for the transition.
func (e *WriteError) Notice() Notice {
	return e.Kind.FailureNotice()
}

// Engine writes status transitions through the store.
type Engine struct {
	store      docstore.Writer
	collection string
	metrics    *metrics.Metrics
}

// NewEngine creates an Engine for the visits in collection. m may be nil.
func NewEngine(store docstore.Writer, collection string, m *metrics.Metrics) *Engine {
	return &Engine{store: store, collection: collection, metrics: m}
}

// Policy is how racing transitions on the same record resolve: the write
// the store commits last wins.
func (e *Engine) Policy() docstore.ConflictPolicy {
	return docstore.LastWriteWins
}

// ConfirmArrival marks the visitor as arrived.
func (e *Engine) ConfirmArrival(ctx context.Context, id string) (Notice, error) {
	return e.Apply(ctx, ConfirmArrival, id)
}

// MarkNoShow marks the visitor as not arrived.
func (e *Engine) MarkNoShow(ctx context.Context, id string) (Notice, error) {
	return e.Apply(ctx, MarkNoShow, id)
}

// ResetStatus returns the visit to pending.
func (e *Engine) ResetStatus(ctx context.Context, id string) (Notice, error) {
	return e.Apply(ctx, Reset, id)
}

// Apply performs transition k on record id and blocks until the store
// accepts or rejects it. It is not retried. On failure the returned notice
// is the failure notice and the error is a *WriteError.
func (e *Engine) Apply(ctx context.Context, k Kind, id string) (Notice, error) {
	if id == "" {
		e.metrics.TransitionRecorded(string(k), metrics.OutcomeInvalid)
		return k.FailureNotice(), &WriteError{Kind: k, ID: id, Err: ErrMissingID}
	}

	if err := e.store.Update(ctx, e.collection, id, k.Fields()); err != nil {
		e.metrics.TransitionRecorded(string(k), metrics.OutcomeFailure)
		slog.Error("status transition failed", "kind", k, "id", id, "err", err)
		return k.FailureNotice(), &WriteError{Kind: k, ID: id, Err: err}
	}

	e.metrics.TransitionRecorded(string(k), metrics.OutcomeSuccess)
	slog.Info("status transition applied", "kind", k, "id", id)
	return k.SuccessNotice(), nil
}
