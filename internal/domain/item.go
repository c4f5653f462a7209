// Package domain provides the core types of an evaluation run: the question
// items fed through the pipeline, the context snippets retrieved for them, the
// per-item results, and the batch and checkpoint metadata that make a run
// resumable. Types here carry no I/O; they are shared by the scheduler, the
// checkpoint writer and the Temporal driver.
package domain

import (
	"encoding/json"
	"fmt"
)

// Item is one unit of work: a question identified by its question ID.
// Items are immutable input and their position in the input sequence
// defines processing order.
type Item struct {
	// QuestionID uniquely identifies the item across the dataset.
	QuestionID string `json:"question_id" validate:"required"`

	// Question is the text sent to the context search service.
	Question string `json:"question"`
}

// Validate checks that the item carries an identifier.
func (i Item) Validate() error { return validate.Struct(i) }

// ValidateItems validates every item and rejects duplicate question IDs.
// The returned error names the offending position.
func ValidateItems(items []Item) error {
	seen := make(map[string]int, len(items))
	for pos, it := range items {
		if err := it.Validate(); err != nil {
			return fmt.Errorf("%w: item %d: %w", ErrInvalidItem, pos, err)
		}
		if prev, ok := seen[it.QuestionID]; ok {
			return fmt.Errorf("%w: question_id %q at %d duplicates item %d",
				ErrDuplicateItem, it.QuestionID, pos, prev)
		}
		seen[it.QuestionID] = pos
	}
	return nil
}

// ContextSnippet is one retrieved context entry. Only Content is interpreted;
// the full object is kept in Raw and re-emitted verbatim when marshalled.
type ContextSnippet struct {
	Content string
	Raw     json.RawMessage
}

// UnmarshalJSON keeps the original object and extracts its content field.
// A missing or null content decodes as the empty string.
func (s *ContextSnippet) UnmarshalJSON(data []byte) error {
	var probe struct {
		Content *string `json:"content"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	s.Raw = append(s.Raw[:0], data...)
	s.Content = ""
	if probe.Content != nil {
		s.Content = *probe.Content
	}
	return nil
}

// MarshalJSON re-emits the original payload, or a minimal object when the
// snippet was built in code.
func (s ContextSnippet) MarshalJSON() ([]byte, error) {
	if len(s.Raw) > 0 {
		return s.Raw, nil
	}
	return json.Marshal(struct {
		Content string `json:"content"`
	}{Content: s.Content})
}
