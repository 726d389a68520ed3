// Copyright 2025 Agent Trust Protocol Contributors

package schema

import (
	"encoding/json"
	"fmt"

	"github.com/atp-protocol/atp-engine/pkg/codec"
)

// ToDoc converts a typed variant struct into the generic canonical map
// the codec operates on.
func ToDoc(v interface{}) (codec.Doc, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("schema: marshal: %w", err)
	}
	return codec.DecodeJSON(raw)
}

// FromDoc unmarshals a generic canonical map into a typed variant
// struct. Fields present in doc but absent from the target struct are
// silently dropped (encoding/json's default behavior without
// DisallowUnknownFields) per the protocol's forward-evolution rule.
func FromDoc(doc codec.Doc, target interface{}) error {
	raw, err := json.Marshal(map[string]interface{}(doc))
	if err != nil {
		return fmt.Errorf("schema: marshal doc: %w", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("schema: unmarshal: %w", err)
	}
	return nil
}

// Tag extracts the "t" discriminator from a generic document without
// fully validating or parsing it.
func Tag(doc codec.Doc) (string, bool) {
	v, ok := doc["t"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
