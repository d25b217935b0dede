package kv

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/peterbourgon/diskv/v3"
)

// DiskStore persists blobs as one file per key under a base directory.
type DiskStore struct {
	d *diskv.Diskv
}

// OpenDisk creates a DiskStore rooted at basePath, creating the directory if
// needed.
func OpenDisk(basePath string) (*DiskStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &DiskStore{d: diskv.New(diskv.Options{
		BasePath:     basePath,
		Transform:    func(string) []string { return []string{} },
		CacheSizeMax: 64 * 1024,
		TempDir:      basePath + ".tmp",
	})}, nil
}

// Get returns the value stored under key.
func (s *DiskStore) Get(key string) ([]byte, error) {
	val, err := s.d.Read(key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return val, nil
}

// Set atomically replaces the value stored under key.
func (s *DiskStore) Set(key string, value []byte) error {
	if err := s.d.Write(key, value); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Keys lists every stored key.
func (s *DiskStore) Keys() []string {
	var keys []string
	for k := range s.d.Keys(nil) {
		keys = append(keys, k)
	}
	return keys
}
