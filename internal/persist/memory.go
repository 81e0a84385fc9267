package persist

import (
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process key-value store.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory returns an empty memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

// Get returns the value stored under key.
func (m *Memory) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[key]
	return value, ok
}

// Set stores value under key.
func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// Remove deletes key.
func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// RemoveIf deletes key when match accepts its current value.
func (m *Memory) RemoveIf(key string, match func(current string) bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.values[key]
	if !ok || !match(current) {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

// Keys returns the sorted keys starting with prefix.
func (m *Memory) Keys(prefix string) []string {
	m.mu.RLock()
	keys := make([]string, 0, len(m.values))
	for key := range m.values {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	m.mu.RUnlock()
	sort.Strings(keys)
	return keys
}
