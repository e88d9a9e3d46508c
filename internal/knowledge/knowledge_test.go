package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-dldprompt/internal/domain"
)

func record(runID, fingerprint string) domain.RunRecord {
	return domain.RunRecord{RunID: runID, Fingerprint: fingerprint, Outcome: domain.OutcomeAccepted}
}

func TestInMemoryStore_GetListPut(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	require.NoError(t, s.Put(ctx, Entry{Category: CategoryTemplate, Key: "ran", Value: "b"}))
	require.NoError(t, s.Put(ctx, Entry{Category: CategoryTemplate, Key: "core", Value: "a"}))
	require.ErrorIs(t, s.Put(ctx, Entry{Category: CategoryTemplate}), ErrInvalidEntry)

	e, ok, err := s.Get(ctx, CategoryTemplate, "ran")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", e.Value)

	_, ok, err = s.Get(ctx, CategoryRubric, "ran")
	require.NoError(t, err)
	assert.False(t, ok, "absent keys report false without error")

	list, err := s.List(ctx, CategoryTemplate)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "core", list[0].Key, "list is ordered by key")
}

func TestInMemoryStore_AppendRejectsIncompleteRecords(t *testing.T) {
	s := NewInMemoryStore()
	err := s.Append(context.Background(), domain.RunRecord{RunID: "r1"})
	require.ErrorIs(t, err, ErrInvalidRecord)
	assert.Equal(t, 0, s.Len())
}

func TestInMemoryStore_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	const writers, perWriter = 8, 50
	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWriter {
				assert.NoError(t, s.Append(ctx, record(fmt.Sprintf("w%d-%d", w, i), fmt.Sprintf("fp-%d", w))))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, writers*perWriter, s.Len())
	recs := s.Records()
	require.Len(t, recs, writers*perWriter)

	seen := make(map[string]bool, len(recs))
	for _, r := range recs {
		assert.False(t, seen[r.RunID], "duplicate record %s", r.RunID)
		seen[r.RunID] = true
	}

	hist, err := s.History(ctx, "fp-3", 0)
	require.NoError(t, err)
	assert.Len(t, hist, perWriter)
	for _, r := range hist {
		assert.True(t, strings.HasPrefix(r.RunID, "w3-"))
	}
}

func TestInMemoryStore_AppendIsIdempotentPerRun(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	first := record("run-1", "fp")
	second := record("run-1", "fp")
	second.RetryCount = 2
	require.NoError(t, s.Append(ctx, first))
	require.NoError(t, s.Append(ctx, second), "a repeated append succeeds")

	require.Equal(t, 1, s.Len())
	assert.Equal(t, first.RetryCount, s.Records()[0].RetryCount, "the first record wins")
}

func TestInMemoryStore_HistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	for i := range 5 {
		require.NoError(t, s.Append(ctx, record(fmt.Sprintf("r%d", i), "fp")))
	}
	require.NoError(t, s.Append(ctx, record("other", "fp-2")))

	hist, err := s.History(ctx, "fp", 2)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "r4", hist[0].RunID)
	assert.Equal(t, "r3", hist[1].RunID)
}

func TestSnapshot_IsolatedFromLaterWrites(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	require.NoError(t, s.Put(ctx, Entry{Category: CategoryGuideline, Key: "ran", Value: "v1", Tags: []string{"GNB"}}))
	require.NoError(t, s.Append(ctx, record("r1", "fp")))

	snap, err := Take(ctx, s, "fp", 10)
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, Entry{Category: CategoryGuideline, Key: "ran", Value: "v2"}))
	require.NoError(t, s.Put(ctx, Entry{Category: CategoryGuideline, Key: "core", Value: "new"}))
	require.NoError(t, s.Append(ctx, record("r2", "fp")))

	e, ok := snap.Get(CategoryGuideline, "ran")
	require.True(t, ok)
	assert.Equal(t, "v1", e.Value)
	assert.Len(t, snap.List(CategoryGuideline), 1)
	assert.Len(t, snap.History(), 1)
	assert.Equal(t, []string{"gnb"}, snap.Tags(CategoryGuideline, "ran"))

	list := snap.List(CategoryGuideline)
	list[0].Tags[0] = "mutated"
	assert.Equal(t, []string{"gnb"}, snap.Tags(CategoryGuideline, "ran"), "callers cannot mutate the snapshot")
}

type failingReader struct{ Reader }

func (failingReader) List(context.Context, Category) ([]Entry, error) {
	return nil, errors.New("connection refused")
}

func TestTake_ReportsUnavailable(t *testing.T) {
	_, err := Take(context.Background(), failingReader{}, "fp", 0)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestNilSnapshotIsEmpty(t *testing.T) {
	var snap *Snapshot
	_, ok := snap.Get(CategoryRubric, "clarity")
	assert.False(t, ok)
	assert.Nil(t, snap.List(CategoryRubric))
	assert.Nil(t, snap.History())
}

func TestDefaultSeed(t *testing.T) {
	entries, err := DefaultSeed()
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	s := NewInMemoryStore()
	require.NoError(t, Seed(context.Background(), s, entries))

	for _, c := range Categories() {
		list, err := s.List(context.Background(), c)
		require.NoError(t, err)
		assert.NotEmpty(t, list, "seed has no %s entries", c)
	}
}

func TestLoadSeed_RejectsUnknownFields(t *testing.T) {
	_, err := LoadSeed(strings.NewReader("entries:\n  - category: rubric\n    key: clarity\n    weight: 2\n"))
	require.Error(t, err)

	_, err = LoadSeed(strings.NewReader("entries:\n  - category: rubric\n"))
	require.ErrorIs(t, err, ErrInvalidEntry)

	entries, err := LoadSeed(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, entries)
}
