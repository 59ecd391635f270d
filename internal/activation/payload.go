package activation

import (
	"encoding/json"
	"fmt"
	"sort"
)

// sortedKeys gives the engine deterministic iteration over its tables.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func jsonMarshal(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// decodePayload unmarshals a command payload into dst, tagging decode
// failures as ErrBadPayload so the dispatcher logs them as operator
// errors rather than engine faults.
func decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: empty payload", ErrBadPayload)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}

// userPayload is the minimal {"user": ...} body most verbs carry.
type userPayload struct {
	User string `json:"user"`
}

func decodeUser(raw json.RawMessage) (string, error) {
	var p userPayload
	if err := decodePayload(raw, &p); err != nil {
		return "", err
	}
	if p.User == "" {
		return "", fmt.Errorf("%w: missing user", ErrBadPayload)
	}
	return p.User, nil
}
