// Package feed pages through time-ordered encounter events for a catchment or
// a single patient.
//
// Storage is asked for twice the page size starting at the caller's
// updatedSince date. The page is then cut from that window after the caller's
// marker. When the window is full and the marker is missing from it, or too
// close to its end for a full page, storage is read again from the marker so
// a run of entries sharing one timestamp cannot pin the feed to one window.
// A non-empty page yields a cursor at its last event. An empty catchment page
// for a past year rolls the window forward one month so sparse catchments can
// be walked without rescanning the same empty range.
package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MinCatchmentLength is the length of a division+district code.
const MinCatchmentLength = 4

// ErrInvalidCatchment is returned for catchment codes shorter than
// MinCatchmentLength.
var ErrInvalidCatchment = errors.New("catchment should have division and district")

// Entry is an item in a feed. Marker is unique and orders entries ascending.
type Entry interface {
	Marker() string
	Timestamp() time.Time
}

type ScopeKind int

const (
	ScopeCatchment ScopeKind = iota
	ScopePatient
)

func (k ScopeKind) String() string {
	if k == ScopePatient {
		return "patient"
	}
	return "catchment"
}

// Scope selects the entries a query runs over.
type Scope struct {
	Kind ScopeKind
	Key  string
}

// Store returns up to limit entries in scope received at or after since,
// ascending by timestamp then marker. A non-empty from also drops the entries
// received exactly at since whose marker sorts before from.
type Store[E Entry] interface {
	FindByTimeRange(ctx context.Context, scope Scope, since time.Time, from string, limit int) ([]E, error)
}

// Cursor is where the next page starts. A rollover cursor carries a date and
// no marker.
type Cursor struct {
	UpdatedSince time.Time
	LastMarker   string
}

// Page is one slice of a feed.
type Page[E Entry] struct {
	Entries []E
	Next    *Cursor
}

type Engine[E Entry] struct {
	store Store[E]
	now   func() time.Time
}

func NewEngine[E Entry](store Store[E]) *Engine[E] {
	return &Engine[E]{store: store, now: time.Now}
}

// WithClock replaces the clock used for rollover decisions.
func (e *Engine[E]) WithClock(now func() time.Time) *Engine[E] {
	e.now = now
	return e
}

// ValidateCatchment trims code and rejects it when it is shorter than a
// division+district code.
func ValidateCatchment(code string) (string, error) {
	code = strings.TrimSpace(code)
	if len(code) < MinCatchmentLength {
		return "", ErrInvalidCatchment
	}
	return code, nil
}

// ListCatchmentFeed returns the page of catchment entries after marker.
func (e *Engine[E]) ListCatchmentFeed(ctx context.Context, catchment string, since time.Time, marker string, limit int) (Page[E], error) {
	catchment, err := ValidateCatchment(catchment)
	if err != nil {
		return Page[E]{}, err
	}
	page, err := e.list(ctx, Scope{Kind: ScopeCatchment, Key: catchment}, since, marker, limit)
	if err != nil {
		return Page[E]{}, err
	}
	if len(page.Entries) == 0 {
		page.Next = Rollover(since, e.now())
	}
	return page, nil
}

// ListPatientFeed returns the page of a patient's entries after marker. A
// zero since reads from the beginning. Patient feeds never roll over.
func (e *Engine[E]) ListPatientFeed(ctx context.Context, healthID string, since time.Time, marker string, limit int) (Page[E], error) {
	return e.list(ctx, Scope{Kind: ScopePatient, Key: healthID}, since, marker, limit)
}

func (e *Engine[E]) list(ctx context.Context, scope Scope, since time.Time, marker string, limit int) (Page[E], error) {
	if limit <= 0 {
		return Page[E]{}, fmt.Errorf("limit must be positive, got %d", limit)
	}
	window, err := e.store.FindByTimeRange(ctx, scope, since, "", limit*2)
	if err != nil {
		return Page[E]{}, fmt.Errorf("reading %s feed: %w", scope.Kind, err)
	}

	marker = strings.TrimSpace(marker)
	if i := indexOf(window, marker); marker != "" && len(window) == limit*2 && (i < 0 || len(window)-1-i < limit) {
		resumed, err := e.store.FindByTimeRange(ctx, scope, since, marker, limit*2)
		if err != nil {
			return Page[E]{}, fmt.Errorf("reading %s feed: %w", scope.Kind, err)
		}
		// a marker storage does not know keeps the first-page answer
		if indexOf(resumed, marker) >= 0 {
			window = resumed
		}
	}

	entries := After(window, marker, limit)
	page := Page[E]{Entries: entries}
	if n := len(entries); n > 0 {
		last := entries[n-1]
		page.Next = &Cursor{UpdatedSince: last.Timestamp(), LastMarker: last.Marker()}
	}
	return page, nil
}

// After returns up to limit entries following marker. A blank marker, or one
// that is not in entries, starts from the first entry. The returned slice
// shares storage with entries.
func After[E Entry](entries []E, marker string, limit int) []E {
	start := indexOf(entries, strings.TrimSpace(marker)) + 1
	end := start + limit
	if end > len(entries) {
		end = len(entries)
	}
	return entries[start:end]
}

func indexOf[E Entry](entries []E, marker string) int {
	if marker == "" {
		return -1
	}
	for i, e := range entries {
		if e.Marker() == marker {
			return i
		}
	}
	return -1
}

// Rollover decides where an empty catchment feed continues. A since in a past
// year advances to the first day of the following month. The same year or a
// later one has nothing further to read and returns nil.
func Rollover(since, now time.Time) *Cursor {
	if since.IsZero() || since.Year() >= now.Year() {
		return nil
	}
	return &Cursor{UpdatedSince: FirstOfNextMonth(since)}
}

// FirstOfNextMonth returns midnight on the first day of the month after t,
// in t's location.
func FirstOfNextMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
}

// FirstOfMonth returns midnight on the first day of t's month.
func FirstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
