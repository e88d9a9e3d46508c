package pipeline

import (
	"errors"
	"maps"
	"slices"
)

// Bundle-specific errors.
var (
	// ErrFieldMissing indicates that a requested field does not exist in the bundle.
	ErrFieldMissing = errors.New("field not found in bundle")

	// ErrFieldType indicates that a field holds a value of an unexpected type.
	ErrFieldType = errors.New("field has unexpected type")

	// ErrNilValue indicates an attempt to store a nil value in a bundle.
	ErrNilValue = errors.New("cannot store nil value in bundle")
)

// Field names a value carried between stages.
type Field string

// Fields exchanged by the built-in stages.
const (
	FieldDocument     Field = "document"
	FieldCodeFacts    Field = "code_facts"
	FieldConventions  Field = "conventions"
	FieldParameters   Field = "parameters"
	FieldHint         Field = "hint"
	FieldReport       Field = "report"
	FieldCodeMap      Field = "code_map"
	FieldRequirements Field = "requirements"
	FieldDomainTags   Field = "domain_tags"
	FieldTraceability Field = "traceability"
	FieldArtifact     Field = "artifact"
	FieldRetriesLeft  Field = "retries_left"
	FieldScore        Field = "score"
	FieldDecision     Field = "decision"
)

// Bundle is an immutable set of named values with copy-on-write semantics.
// The zero value is an empty bundle. With never modifies its receiver.
type Bundle struct {
	m map[Field]any
}

// NewBundle creates a bundle from initial data. Nil values are dropped.
func NewBundle(data map[Field]any) Bundle {
	m := make(map[Field]any, len(data))
	for k, v := range data {
		if v != nil {
			m[k] = v
		}
	}
	return Bundle{m: m}
}

// With returns a new bundle with the field set.
func (b Bundle) With(f Field, v any) (Bundle, error) {
	if v == nil {
		return b, ErrNilValue
	}
	m := make(map[Field]any, len(b.m)+1)
	maps.Copy(m, b.m)
	m[f] = v
	return Bundle{m: m}, nil
}

// MustWith is With for values known to be non-nil.
func (b Bundle) MustWith(f Field, v any) Bundle {
	nb, err := b.With(f, v)
	if err != nil {
		panic(err)
	}
	return nb
}

// Merge returns a new bundle where other's fields override b's.
func (b Bundle) Merge(other Bundle) Bundle {
	m := make(map[Field]any, len(b.m)+len(other.m))
	maps.Copy(m, b.m)
	maps.Copy(m, other.m)
	return Bundle{m: m}
}

// Get returns the raw value of f.
func (b Bundle) Get(f Field) (any, bool) {
	v, ok := b.m[f]
	return v, ok
}

// Has reports whether f is present.
func (b Bundle) Has(f Field) bool {
	_, ok := b.m[f]
	return ok
}

// Fields returns the present field names in sorted order.
func (b Bundle) Fields() []Field {
	out := make([]Field, 0, len(b.m))
	for k := range b.m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Len returns the number of fields.
func (b Bundle) Len() int { return len(b.m) }

// Value returns f as a T.
func Value[T any](b Bundle, f Field) (T, error) {
	var zero T
	raw, ok := b.m[f]
	if !ok {
		return zero, &FieldError{Field: f, Err: ErrFieldMissing}
	}
	v, ok := raw.(T)
	if !ok {
		return zero, &FieldError{Field: f, Err: ErrFieldType}
	}
	return v, nil
}

// Optional returns f as a T, or the zero value when absent or mistyped.
func Optional[T any](b Bundle, f Field) (T, bool) {
	v, err := Value[T](b, f)
	return v, err == nil
}

// FieldError reports a failed field lookup.
type FieldError struct {
	Field Field
	Err   error
}

func (e *FieldError) Error() string { return "bundle field '" + string(e.Field) + "': " + e.Err.Error() }

func (e *FieldError) Unwrap() error { return e.Err }
