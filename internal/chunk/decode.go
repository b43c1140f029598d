package chunk

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotObject is wrapped by ValidationError when a line is valid JSON but
// not an object.
var ErrNotObject = errors.New("record is not a JSON object")

// ValidationError describes a record that was skipped.
type ValidationError struct {
	// Line is the 1-based line number, or 0 when unknown.
	Line int
	Err  error
}

func (e *ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: invalid record: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("invalid record: %v", e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Decode parses one JSON object into a LabeledChunk. Unknown keys are ignored;
// known keys holding non-string values make the record invalid.
func Decode(line []byte) (LabeledChunk, error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) > 0 && trimmed[0] != '{' && json.Valid(trimmed) {
		return LabeledChunk{}, &ValidationError{Err: ErrNotObject}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return LabeledChunk{}, &ValidationError{Err: err}
	}

	var c LabeledChunk
	fields := []struct {
		key string
		dst *string
	}{
		{"subject", &c.Subject},
		{"topic", &c.Topic},
		{"subtopic", &c.Subtopic},
		{"title", &c.Title},
		{"summary", &c.Summary},
		{"text", &c.Text},
		{"label", &c.Label},
	}
	for _, f := range fields {
		v, ok := raw[f.key]
		if !ok || string(v) == "null" {
			continue
		}
		if err := json.Unmarshal(v, f.dst); err != nil {
			return LabeledChunk{}, &ValidationError{Err: fmt.Errorf("field %q: %w", f.key, err)}
		}
		if f.key == "label" {
			c.HasLabel = true
		}
	}

	return c, nil
}
