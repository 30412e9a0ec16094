package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// KeyValue is the subset of Store a KVSlot needs
type KeyValue interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
}

// KVSlot is a single named slot in a key-value store
type KVSlot struct {
	kv  KeyValue
	key string
}

// NewKVSlot returns the slot stored under key
func NewKVSlot(kv KeyValue, key string) *KVSlot {
	return &KVSlot{kv: kv, key: key}
}

// Load returns the slot contents; a slot never written yields nil data
func (s *KVSlot) Load() ([]byte, error) {
	data, err := s.kv.Get(s.key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return data, err
}

// Save replaces the slot contents
func (s *KVSlot) Save(data []byte) error {
	return s.kv.Put(s.key, data)
}

// FileSlot keeps the slot in a single file, used when the database is off
type FileSlot struct {
	path string
}

// NewFileSlot returns a slot backed by path
func NewFileSlot(path string) *FileSlot {
	return &FileSlot{path: path}
}

// Load returns the file contents; a missing file yields nil data
func (s *FileSlot) Load() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	return data, nil
}

// Save writes data to a temp file and renames it over the slot
func (s *FileSlot) Save(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create slot directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}
