package types

import (
	"encoding/json"
)

// decodeDocument unmarshals data into v and returns the top level fields of
// data that v does not model. v must not implement json.Marshaler.
func decodeDocument(data []byte, v any) (map[string]json.RawMessage, error) {
	if err := json.Unmarshal(data, v); err != nil {
		return nil, err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}

	known, err := modeledFields(v)
	if err != nil {
		return nil, err
	}
	for k := range known {
		delete(all, k)
	}

	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

// encodeDocument marshals v and merges extra into the result. Modeled
// fields win over extra ones with the same key.
func encodeDocument(v any, extra map[string]json.RawMessage) ([]byte, error) {
	if len(extra) == 0 {
		return json.Marshal(v)
	}

	fields, err := modeledFields(v)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]json.RawMessage, len(fields)+len(extra))
	for k, raw := range extra {
		merged[k] = raw
	}
	for k, raw := range fields {
		merged[k] = raw
	}
	return json.Marshal(merged)
}

func modeledFields(v any) (map[string]json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
