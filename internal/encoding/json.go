package encoding

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// IsRLEObject reports whether raw is a JSON object carrying a "run" or a
// "value" key, i.e. an explicit run rather than a bare value.
func IsRLEObject(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return false
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return false
	}
	_, hasRun := keys["run"]
	_, hasValue := keys["value"]
	return hasRun || hasValue
}

// UnmarshalJSON accepts a bare value or {"run": n, "value": v}. A missing
// run means 1; an explicit zero run is rejected.
func (e *Entry[T]) UnmarshalJSON(b []byte) error {
	if !IsRLEObject(b) {
		var v T
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*e = Entry[T]{Run: 1, Value: v}
		return nil
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(b, &keys); err != nil {
		return err
	}
	rawValue, ok := keys["value"]
	if !ok {
		return fmt.Errorf("rle entry: missing value")
	}
	run := uint64(1)
	if rawRun, ok := keys["run"]; ok {
		run = 0
		if err := json.Unmarshal(rawRun, &run); err != nil {
			return fmt.Errorf("rle entry: run: %w", err)
		}
	}
	if run == 0 {
		return fmt.Errorf("rle entry: %w", ErrBadRun)
	}
	if run > 1<<31 {
		return fmt.Errorf("rle entry: run %d too large", run)
	}
	var v T
	if err := json.Unmarshal(rawValue, &v); err != nil {
		return fmt.Errorf("rle entry: value: %w", err)
	}
	*e = Entry[T]{Run: int(run), Value: v}
	return nil
}

// MarshalJSON writes single runs as bare values.
func (e Entry[T]) MarshalJSON() ([]byte, error) {
	if e.Run == 1 {
		return json.Marshal(e.Value)
	}
	return json.Marshal(struct {
		Run   int `json:"run"`
		Value T   `json:"value"`
	}{Run: e.Run, Value: e.Value})
}
