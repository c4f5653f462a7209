// Package dataset loads the question items of a run from a JSON array.
// Entries may carry extra fields; only question_id and question are kept.
package dataset

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ahrav/go-recall/internal/domain"
)

//go:embed schema.json
var schemaSource string

var compiled struct {
	once   sync.Once
	schema *jsonschema.Schema
	err    error
}

func schema() (*jsonschema.Schema, error) {
	compiled.once.Do(func() {
		compiled.schema, compiled.err = jsonschema.CompileString("dataset.schema.json", schemaSource)
	})
	return compiled.schema, compiled.err
}

// LoadFile reads and validates the dataset at path.
func LoadFile(path string) ([]domain.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	items, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return items, nil
}

// Load decodes a JSON array of items from r. The document is checked
// against the embedded schema before decoding, and question IDs must be
// unique.
func Load(r io.Reader) ([]domain.Item, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}
	s, err := schema()
	if err != nil {
		return nil, fmt.Errorf("compile dataset schema: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidItem, err)
	}

	var items []domain.Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	if err := domain.ValidateItems(items); err != nil {
		return nil, err
	}
	return items, nil
}

// Slice returns the items from offset on. An offset at or past the end
// yields no items.
func Slice(items []domain.Item, offset int) []domain.Item {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	return items[offset:]
}
