package store

import (
	"bytes"
	"encoding/json"
	"sync"
)

// Setting is one name/value pair.
type Setting struct {
	Key   string
	Value any
}

// Defaults are the firmware's factory scale settings, in the order the
// device reports them.
func Defaults() []Setting {
	return []Setting{
		{Key: "read_samples", Value: 4},
		{Key: "speed", Value: 10},
		{Key: "gain", Value: 1},
		{Key: "calibration_factor", Value: -0.015270548},
		{Key: "target_dose_single", Value: 9.5},
		{Key: "target_dose_double", Value: 18},
	}
}

// Store is a thread-safe, insertion-ordered map of setting name to value.
// It is shared by every connection of a settings server.
type Store struct {
	mu     sync.RWMutex
	keys   []string
	values map[string]any
}

// New creates a Store seeded with initial, preserving its order.
func New(initial []Setting) *Store {
	s := &Store{values: make(map[string]any, len(initial))}
	for _, kv := range initial {
		s.setLocked(kv.Key, kv.Value)
	}
	return s
}

// Get returns the value for key and whether it exists.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key. New keys are appended after existing ones.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(key, value)
}

// Merge applies every pair in kv. Keys already present keep their position;
// new keys are appended in kv's order.
func (s *Store) Merge(kv []Setting) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range kv {
		s.setLocked(p.Key, p.Value)
	}
}

// Len returns the number of settings.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

// List returns a copy of all settings in order.
func (s *Store) List() []Setting {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Setting, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, Setting{Key: k, Value: s.values[k]})
	}
	return out
}

// MarshalJSON renders the store as a single JSON object with keys in order.
func (s *Store) MarshalJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range s.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(s.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (s *Store) setLocked(key string, value any) {
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}
