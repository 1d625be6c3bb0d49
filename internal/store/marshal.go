package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/flowguard/internal/canon"
)

// marshalObject converts an object to canonical JSON TEXT for storage.
func marshalObject(obj canon.Object) (string, error) {
	if obj == nil {
		obj = canon.Object{}
	}
	data, err := canon.MarshalCanonical(obj)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// unmarshalObject parses canonical JSON TEXT. Large integers survive
// because canon decodes numbers via json.Number.
func unmarshalObject(data string) (canon.Object, error) {
	if data == "" || data == "{}" {
		return canon.Object{}, nil
	}
	var obj canon.Object
	if err := obj.UnmarshalJSON([]byte(data)); err != nil {
		return nil, err
	}
	return obj, nil
}

func marshalNames(names []string) (string, error) {
	if names == nil {
		names = []string{}
	}
	data, err := json.Marshal(names)
	if err != nil {
		return "", fmt.Errorf("marshal indexed: %w", err)
	}
	return string(data), nil
}

func unmarshalNames(data string) ([]string, error) {
	var names []string
	if err := json.Unmarshal([]byte(data), &names); err != nil {
		return nil, fmt.Errorf("unmarshal indexed: %w", err)
	}
	if len(names) == 0 {
		return nil, nil
	}
	return names, nil
}
