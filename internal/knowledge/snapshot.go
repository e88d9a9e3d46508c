package knowledge

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ahrav/go-dldprompt/internal/domain"
)

// Snapshot is an immutable, run-scoped copy of the store. A nil *Snapshot is
// valid and behaves as an empty store.
type Snapshot struct {
	entries map[Category][]Entry
	history []domain.RunRecord
	takenAt time.Time
}

// Take reads every reference category and, when historyLimit > 0, the most
// recent records for fingerprint. Any read failure is reported as
// ErrUnavailable.
func Take(ctx context.Context, r Reader, fingerprint string, historyLimit int) (*Snapshot, error) {
	s := &Snapshot{entries: make(map[Category][]Entry), takenAt: time.Now()}
	for _, c := range Categories() {
		list, err := r.List(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("%w: list %s: %w", ErrUnavailable, c, err)
		}
		s.entries[c] = cloneEntries(list)
	}
	if historyLimit > 0 && fingerprint != "" {
		hist, err := r.History(ctx, fingerprint, historyLimit)
		if err != nil {
			return nil, fmt.Errorf("%w: history: %w", ErrUnavailable, err)
		}
		s.history = slices.Clone(hist)
	}
	return s, nil
}

// NewSnapshot builds a snapshot directly from entries and history.
func NewSnapshot(entries []Entry, history []domain.RunRecord) *Snapshot {
	s := &Snapshot{entries: make(map[Category][]Entry), takenAt: time.Now()}
	for _, e := range entries {
		s.entries[e.Category] = append(s.entries[e.Category], e.clone())
	}
	for c := range s.entries {
		sortEntries(s.entries[c])
	}
	s.history = slices.Clone(history)
	return s
}

// Get returns the entry for key in category.
func (s *Snapshot) Get(c Category, key string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	for _, e := range s.entries[c] {
		if e.Key == key {
			return e.clone(), true
		}
	}
	return Entry{}, false
}

// List returns the entries of category ordered by key.
func (s *Snapshot) List(c Category) []Entry {
	if s == nil {
		return nil
	}
	return cloneEntries(s.entries[c])
}

// Tags returns the lowercased tags of an entry, or nil when absent.
func (s *Snapshot) Tags(c Category, key string) []string {
	e, ok := s.Get(c, key)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(e.Tags))
	for _, t := range e.Tags {
		out = append(out, strings.ToLower(t))
	}
	return out
}

// History returns the prior run records captured at snapshot time, newest first.
func (s *Snapshot) History() []domain.RunRecord {
	if s == nil {
		return nil
	}
	return slices.Clone(s.history)
}

// TakenAt returns when the snapshot was captured.
func (s *Snapshot) TakenAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.takenAt
}

func cloneEntries(in []Entry) []Entry {
	out := make([]Entry, len(in))
	for i, e := range in {
		out[i] = e.clone()
	}
	return out
}

func sortEntries(es []Entry) {
	slices.SortFunc(es, func(a, b Entry) int { return strings.Compare(a.Key, b.Key) })
}
