// Package view derives the dashboard's visible subset of visit records.
package view

import (
	"fmt"
	"sync"
	"time"

	"github.com/evcraddock/front-desk/internal/live"
	"github.com/evcraddock/front-desk/internal/visit"
)

// Mode selects which records are shown.
type Mode string

const (
	Today Mode = "today"
	All   Mode = "all"
)

// ParseMode parses a mode name. The empty string is Today.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "today":
		return Today, nil
	case "all":
		return All, nil
	default:
		return "", fmt.Errorf("unknown view %q (use today or all)", s)
	}
}

// Filter is a mode plus an optional explicit date. The date only applies in
// All mode.
type Filter struct {
	Mode Mode
	Date *visit.Day
}

// Day returns the calendar day the filter restricts to at now, if any.
func (f Filter) Day(now time.Time) (visit.Day, bool) {
	switch {
	case f.Mode == Today:
		return visit.DayOf(now), true
	case f.Date != nil:
		return *f.Date, true
	default:
		return visit.Day{}, false
	}
}

// Derive returns the records selected by f at now, in input order. The
// input slice is not modified. Records whose date does not parse only
// appear when no date restriction applies.
func Derive(records []visit.Record, f Filter, now time.Time) []visit.Record {
	day, restricted := f.Day(now)
	out := make([]visit.Record, 0, len(records))
	for _, r := range records {
		if restricted {
			d, ok := r.Day()
			if !ok || d != day {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

// Projection keeps a derived view current as records, filter and the local
// date change.
type Projection struct {
	now func() time.Time

	mu      sync.Mutex
	records []visit.Record
	filter  Filter
	day     visit.Day
	derived []visit.Record
	dirty   bool
}

// NewProjection creates a Today projection with no records. now defaults
// to time.Now.
func NewProjection(now func() time.Time) *Projection {
	if now == nil {
		now = time.Now
	}
	return &Projection{now: now, filter: Filter{Mode: Today}, dirty: true}
}

// SetRecords replaces the source records.
func (p *Projection) SetRecords(records []visit.Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = records
	p.dirty = true
}

// SetFilter replaces the filter.
func (p *Projection) SetFilter(f Filter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filter = f
	p.dirty = true
}

// Filter returns the current filter.
func (p *Projection) Filter() Filter {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.filter
}

// View returns the derived records. It recomputes when an input changed
// or the local date rolled over since the last call.
func (p *Projection) View() []visit.Record {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	today := visit.DayOf(now)
	if p.dirty || (p.filter.Mode == Today && today != p.day) {
		p.derived = Derive(p.records, p.filter, now)
		p.day = today
		p.dirty = false
	}
	return append([]visit.Record(nil), p.derived...)
}

// Bind feeds every state change of c into p and returns a func that stops
// it. The current records are loaded immediately unless a change already
// arrived through the listener, which is registered first.
func (p *Projection) Bind(c *live.Collection[visit.Record]) (unbind func()) {
	var (
		mu      sync.Mutex
		changed bool
	)
	unbind = c.OnChange(func(s live.State[visit.Record]) {
		mu.Lock()
		defer mu.Unlock()
		changed = true
		p.SetRecords(s.Records)
	})

	current := c.State()
	mu.Lock()
	if !changed {
		p.SetRecords(current.Records)
	}
	mu.Unlock()
	return unbind
}
