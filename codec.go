package floorcast

import (
	"encoding/json"
	"fmt"
)

// EncodeJSON marshals v for storage in a JSON-typed column (event Data,
// Metadata, snapshot State).
func EncodeJSON(v any) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

// DecodeJSON unmarshals a JSON-typed column into T, treating an empty
// or null column as the zero value of T rather than an error.
func DecodeJSON[T any](b []byte) (T, error) {
	var v T
	if len(b) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("floorcast: failed to decode json: %w", err)
	}
	return v, nil
}
