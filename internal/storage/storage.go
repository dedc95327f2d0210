// Package storage keeps serialized afhe artifacts addressed by the BLAKE3
// hash of their bytes.
package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/luxfi/afhe"
)

// Common errors.
var (
	ErrNotFound      = errors.New("artifact not found")
	ErrStorageFull   = errors.New("storage capacity exceeded")
	ErrInvalidHandle = errors.New("invalid artifact handle")
	ErrInvalidBlob   = errors.New("not a serialized afhe artifact")
)

// Handle is the hex BLAKE3-256 digest of an artifact.
type Handle string

// ComputeHandle returns the handle of data.
func ComputeHandle(data []byte) Handle {
	sum := blake3.Sum256(data)
	return Handle(hex.EncodeToString(sum[:]))
}

// ParseHandle checks that s is a well-formed handle.
func ParseHandle(s string) (Handle, error) {
	if len(s) != 64 {
		return "", ErrInvalidHandle
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", ErrInvalidHandle
	}
	return Handle(s), nil
}

// checkBlob rejects bytes whose header does not describe exactly data.
func checkBlob(data []byte) error {
	h, err := afhe.ReadHeader(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBlob, err)
	}
	if h.TotalSize != uint64(len(data)) {
		return fmt.Errorf("%w: header claims %d bytes, have %d", ErrInvalidBlob, h.TotalSize, len(data))
	}
	return nil
}

// Storage holds artifacts.
type Storage interface {
	// Store saves a serialized artifact and returns its handle. Storing the
	// same bytes twice returns the same handle.
	Store(ctx context.Context, data []byte) (Handle, error)
	// Load returns the artifact behind handle.
	Load(ctx context.Context, handle Handle) ([]byte, error)
	// Delete removes an artifact.
	Delete(ctx context.Context, handle Handle) error
	// Exists reports whether handle is stored.
	Exists(ctx context.Context, handle Handle) (bool, error)
	// Close releases the storage.
	Close() error
}

// MemoryStorage keeps artifacts in a map, bounded by a byte capacity.
type MemoryStorage struct {
	mu       sync.RWMutex
	data     map[Handle][]byte
	capacity int64
	size     int64
}

// NewMemoryStorage returns a store holding at most capacityMB megabytes.
func NewMemoryStorage(capacityMB int64) *MemoryStorage {
	return &MemoryStorage{
		data:     make(map[Handle][]byte),
		capacity: capacityMB << 20,
	}
}

func (s *MemoryStorage) Store(ctx context.Context, data []byte) (Handle, error) {
	if err := checkBlob(data); err != nil {
		return "", err
	}
	handle := ComputeHandle(data)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[handle]; ok {
		return handle, nil
	}
	if s.size+int64(len(data)) > s.capacity {
		return "", ErrStorageFull
	}
	s.data[handle] = append([]byte(nil), data...)
	s.size += int64(len(data))
	return handle, nil
}

func (s *MemoryStorage) Load(ctx context.Context, handle Handle) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.data[handle]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStorage) Delete(ctx context.Context, handle Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.data[handle]
	if !ok {
		return ErrNotFound
	}
	s.size -= int64(len(data))
	delete(s.data, handle)
	return nil
}

func (s *MemoryStorage) Exists(ctx context.Context, handle Handle) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.data[handle]
	return ok, nil
}

// Usage returns the number of artifacts and their total size.
func (s *MemoryStorage) Usage() (count int, bytes int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data), s.size
}

func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[Handle][]byte)
	s.size = 0
	return nil
}

// FileStorage keeps one file per artifact under a base directory, sharded by
// the first byte of the handle.
type FileStorage struct {
	baseDir string
}

// NewFileStorage creates baseDir if needed.
func NewFileStorage(baseDir string) (*FileStorage, error) {
	if err := os.MkdirAll(baseDir, 0750); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStorage{baseDir: baseDir}, nil
}

func (s *FileStorage) path(handle Handle) (string, error) {
	h, err := ParseHandle(string(handle))
	if err != nil {
		return "", err
	}
	return filepath.Join(s.baseDir, string(h[:2]), string(h)+".afhe"), nil
}

func (s *FileStorage) Store(ctx context.Context, data []byte) (Handle, error) {
	if err := checkBlob(data); err != nil {
		return "", err
	}
	handle := ComputeHandle(data)
	path, err := s.path(handle)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(path); err == nil {
		return handle, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return "", fmt.Errorf("create shard dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("rename temp file: %w", err)
	}
	return handle, nil
}

func (s *FileStorage) Load(ctx context.Context, handle Handle) ([]byte, error) {
	path, err := s.path(handle)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

func (s *FileStorage) Delete(ctx context.Context, handle Handle) error {
	path, err := s.path(handle)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

func (s *FileStorage) Exists(ctx context.Context, handle Handle) (bool, error) {
	path, err := s.path(handle)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat file: %w", err)
}

func (s *FileStorage) Close() error {
	return nil
}
