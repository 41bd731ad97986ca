package kvstore

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemStore is an in-memory Store used by tests and throwaway sessions.
type MemStore struct {
	mu     sync.RWMutex
	values map[string]memValue
}

type memValue struct {
	data    []byte
	modTime time.Time
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{values: make(map[string]memValue)}
}

func (m *MemStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]Entry, 0)
	for key, val := range m.values {
		if strings.HasPrefix(key, prefix) {
			entries = append(entries, Entry{
				Key:     key,
				Size:    int64(len(val.data)),
				ModTime: val.modTime,
			})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

func (m *MemStore) Read(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	val, exists := m.values[key]
	if !exists {
		return nil, fmt.Errorf("key not found: %w", os.ErrNotExist)
	}
	return append([]byte(nil), val.data...), nil
}

func (m *MemStore) Write(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = memValue{
		data:    append([]byte(nil), data...),
		modTime: time.Now(),
	}
	return nil
}

func (m *MemStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.values[key]; !exists {
		return fmt.Errorf("key not found: %w", os.ErrNotExist)
	}
	delete(m.values, key)
	return nil
}

func (m *MemStore) Rename(ctx context.Context, oldKey, newKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	val, exists := m.values[oldKey]
	if !exists {
		return fmt.Errorf("key not found: %w", os.ErrNotExist)
	}
	delete(m.values, oldKey)
	val.modTime = time.Now()
	m.values[newKey] = val
	return nil
}

func (m *MemStore) Stat(ctx context.Context, key string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	val, exists := m.values[key]
	if !exists {
		return Entry{}, fmt.Errorf("key not found: %w", os.ErrNotExist)
	}
	return Entry{Key: key, Size: int64(len(val.data)), ModTime: val.modTime}, nil
}

func (m *MemStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.values[key]
	return exists, nil
}

func (m *MemStore) Close() error { return nil }
