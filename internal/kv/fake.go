package kv

import "sync"

// FakeStore is an in-memory Store for tests.
type FakeStore struct {
	mu     sync.Mutex
	values map[string][]byte

	// Writes counts successful Set calls per key.
	Writes map[string]int

	// SetError, if set, is returned by Set and nothing is stored.
	SetError error

	// GetError, if set, is returned by Get.
	GetError error
}

// NewFakeStore creates an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		values: make(map[string][]byte),
		Writes: make(map[string]int),
	}
}

// Get returns a copy of the stored value.
func (f *FakeStore) Get(key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GetError != nil {
		return nil, f.GetError
	}
	v, ok := f.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set stores a copy of value.
func (f *FakeStore) Set(key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.values[key] = append([]byte(nil), value...)
	f.Writes[key]++
	return nil
}

// WriteCount returns how many times key was written.
func (f *FakeStore) WriteCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Writes[key]
}
