package knowledge

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ahrav/go-dldprompt/internal/domain"
)

// runNode is one element of the immutable run log. Nodes are never modified
// after publication.
type runNode struct {
	rec  domain.RunRecord
	prev *runNode
	size int
}

// InMemoryStore keeps reference entries in memory and run records in a
// lock-free append-only log. Appends from concurrent runs never block each
// other: each append publishes a new head with compare-and-swap.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[Category]map[string]Entry

	head   atomic.Pointer[runNode]
	runIDs sync.Map
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[Category]map[string]Entry)}
}

// Put stores e, replacing any previous value for its key.
func (s *InMemoryStore) Put(_ context.Context, e Entry) error {
	if err := validateEntry(e); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.entries[e.Category]
	if !ok {
		bucket = make(map[string]Entry)
		s.entries[e.Category] = bucket
	}
	bucket[e.Key] = e.clone()
	return nil
}

// Get implements Reader.
func (s *InMemoryStore) Get(ctx context.Context, c Category, key string) (Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[c][key]
	if !ok {
		return Entry{}, false, nil
	}
	return e.clone(), true, nil
}

// List implements Reader.
func (s *InMemoryStore) List(ctx context.Context, c Category) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]Entry, 0, len(s.entries[c]))
	for _, e := range s.entries[c] {
		out = append(out, e.clone())
	}
	s.mu.RUnlock()
	sortEntries(out)
	return out, nil
}

// Append implements Appender. A second record for a run id is dropped.
func (s *InMemoryStore) Append(ctx context.Context, rec domain.RunRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateRecord(rec); err != nil {
		return err
	}
	if _, dup := s.runIDs.LoadOrStore(rec.RunID, struct{}{}); dup {
		return nil
	}
	for {
		head := s.head.Load()
		size := 1
		if head != nil {
			size = head.size + 1
		}
		node := &runNode{rec: rec, prev: head, size: size}
		if s.head.CompareAndSwap(head, node) {
			return nil
		}
	}
}

// History implements Reader.
func (s *InMemoryStore) History(ctx context.Context, fingerprint string, limit int) ([]domain.RunRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []domain.RunRecord
	for n := s.head.Load(); n != nil; n = n.prev {
		if limit > 0 && len(out) >= limit {
			break
		}
		if n.rec.Fingerprint == fingerprint {
			out = append(out, n.rec)
		}
	}
	return out, nil
}

// Records returns every appended record, oldest first.
func (s *InMemoryStore) Records() []domain.RunRecord {
	head := s.head.Load()
	if head == nil {
		return nil
	}
	out := make([]domain.RunRecord, head.size)
	for n := head; n != nil; n = n.prev {
		out[n.size-1] = n.rec
	}
	return out
}

// Len returns the number of appended records.
func (s *InMemoryStore) Len() int {
	if head := s.head.Load(); head != nil {
		return head.size
	}
	return 0
}
