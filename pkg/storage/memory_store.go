package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// ErrInjected is returned by MemoryStore when a failure has been configured.
var ErrInjected = errors.New("injected object store failure")

// MemoryObject is a stored payload.
type MemoryObject struct {
	Data        []byte
	ContentType string
}

// MemoryStore is an in-process ObjectStore used in tests and local runs.
type MemoryStore struct {
	mu      sync.Mutex
	base    string
	objects map[string]MemoryObject
	calls   int

	failPut    bool
	failDelete bool
}

// NewMemoryStore creates an empty store whose URLs start with base.
func NewMemoryStore(base string) *MemoryStore {
	if strings.TrimSpace(base) == "" {
		base = "memory://objects/notes"
	}
	return &MemoryStore{
		base:    strings.TrimRight(base, "/"),
		objects: make(map[string]MemoryObject),
	}
}

func (m *MemoryStore) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	m.mu.Lock()
	m.calls++
	fail := m.failPut
	m.mu.Unlock()
	if fail {
		return fmt.Errorf("put object: %w", ErrInjected)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read object: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = MemoryObject{Data: bytes.Clone(data), ContentType: contentType}
	return nil
}

func (m *MemoryStore) URL(key string) string {
	return m.base + "/" + strings.TrimLeft(key, "/")
}

func (m *MemoryStore) BaseURL() string {
	return m.base
}

func (m *MemoryStore) PresignGet(_ context.Context, key string, expiry time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if _, ok := m.objects[key]; !ok {
		return "", fmt.Errorf("presign get: object %q not found", key)
	}
	return fmt.Sprintf("%s?expires=%d", m.URL(key), int64(expiry.Seconds())), nil
}

func (m *MemoryStore) DeleteIfExists(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failDelete {
		return fmt.Errorf("delete object: %w", ErrInjected)
	}
	delete(m.objects, key)
	return nil
}

// Get returns a stored object.
func (m *MemoryStore) Get(key string) (MemoryObject, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	return obj, ok
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// Calls counts every backend operation, failed or not.
func (m *MemoryStore) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// SetFailures makes Put and DeleteIfExists fail with ErrInjected until reset.
func (m *MemoryStore) SetFailures(put, del bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPut = put
	m.failDelete = del
}
