// Package knowledge provides access to the reference data that stages
// consult (ontology entries, templates, guidelines, rubrics, constraints)
// and the append-only log of run records written by the feedback recorder.
//
// Stages never see a live store. The orchestrator takes a Snapshot at run
// start and every stage of that run reads the same immutable view.
package knowledge

import (
	"context"
	"errors"
	"slices"

	"github.com/ahrav/go-dldprompt/internal/domain"
)

// Category partitions knowledge entries.
type Category string

// Knowledge categories.
const (
	CategoryOntology   Category = "ontology"
	CategoryTemplate   Category = "template"
	CategoryGuideline  Category = "guideline"
	CategoryRubric     Category = "rubric"
	CategoryConstraint Category = "constraint"
)

// Categories returns the reference categories captured in a snapshot.
func Categories() []Category {
	return []Category{
		CategoryOntology,
		CategoryTemplate,
		CategoryGuideline,
		CategoryRubric,
		CategoryConstraint,
	}
}

var (
	// ErrUnavailable indicates the backing store could not be reached.
	ErrUnavailable = errors.New("knowledge store unavailable")

	// ErrInvalidEntry indicates an entry is missing its category or key.
	ErrInvalidEntry = errors.New("invalid knowledge entry")

	// ErrInvalidRecord indicates a run record cannot be appended.
	ErrInvalidRecord = errors.New("invalid run record")
)

// Entry is one versioned reference value. Value is opaque to the store;
// Tags carry the terms a stage matches against.
type Entry struct {
	Category Category `json:"category" yaml:"category" validate:"required"`
	Key      string   `json:"key"      yaml:"key"      validate:"required"`
	Value    string   `json:"value"    yaml:"value"`
	Tags     []string `json:"tags,omitempty"    yaml:"tags,omitempty"`
	Version  int      `json:"version,omitempty" yaml:"version,omitempty"`
}

func (e Entry) clone() Entry {
	e.Tags = slices.Clone(e.Tags)
	return e
}

// Reader is key-based read access to the store.
type Reader interface {
	// Get returns the entry for key. The bool is false when absent.
	Get(ctx context.Context, category Category, key string) (Entry, bool, error)
	// List returns every entry of a category ordered by key.
	List(ctx context.Context, category Category) ([]Entry, error)
	// History returns up to limit records for a document fingerprint,
	// newest first.
	History(ctx context.Context, fingerprint string, limit int) ([]domain.RunRecord, error)
}

// Appender is the append-only write side used by the feedback recorder.
// Append is idempotent per run id: once a record for a run is stored, later
// appends for the same run succeed without writing.
type Appender interface {
	Append(ctx context.Context, rec domain.RunRecord) error
}

// Writer stores reference entries. Used for seeding only.
type Writer interface {
	Put(ctx context.Context, e Entry) error
}

// Store combines every store capability.
type Store interface {
	Reader
	Appender
	Writer
}

func validateEntry(e Entry) error {
	if e.Category == "" || e.Key == "" {
		return ErrInvalidEntry
	}
	return nil
}

func validateRecord(rec domain.RunRecord) error {
	if rec.RunID == "" || rec.Fingerprint == "" || rec.Outcome == "" {
		return ErrInvalidRecord
	}
	return nil
}
