package knowledge

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-dldprompt/internal/domain"
)

//go:embed seed.yaml
var defaultSeed []byte

// seedFile is the YAML layout of a seed document.
type seedFile struct {
	Entries []Entry `yaml:"entries" validate:"dive"`
}

// LoadSeed decodes a YAML seed document.
func LoadSeed(r io.Reader) ([]Entry, error) {
	var f seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	if err := domain.ValidateStruct(f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEntry, err)
	}
	return f.Entries, nil
}

// DefaultSeed returns the built-in seed entries.
func DefaultSeed() ([]Entry, error) {
	return LoadSeed(bytes.NewReader(defaultSeed))
}

// Seed writes entries into w.
func Seed(ctx context.Context, w Writer, entries []Entry) error {
	for _, e := range entries {
		if err := w.Put(ctx, e); err != nil {
			return fmt.Errorf("seed %s/%s: %w", e.Category, e.Key, err)
		}
	}
	return nil
}
