package cache

import (
	"encoding/json"
	"maps"
	"os"
	"slices"
	"strings"
)

// JSONPath returns the path of the human-readable mirror.
func (s *Store[T]) JSONPath() string {
	if s.path == "" {
		return ""
	}
	return strings.TrimSuffix(s.path, ".bin") + ".json"
}

func (s *Store[T]) writeJSON(entries map[string]Entry[T]) error {
	list := make([]Entry[T], 0, len(entries))
	for _, p := range slices.Sorted(maps.Keys(entries)) {
		list = append(list, entries[p])
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}

	target := s.JSONPath()
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
