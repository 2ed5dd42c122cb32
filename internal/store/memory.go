package store

import (
	"strconv"
	"sync"
)

// Memory is an in-process Store. Writes made in a read-write session become
// visible to other sessions only after Close.
type Memory struct {
	mu   sync.Mutex
	data map[string]map[string]string

	// Opens counts sessions opened, for test assertions.
	Opens int
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]map[string]string)}
}

// Open starts a session on namespace.
func (m *Memory) Open(namespace string, readOnly bool) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Opens++

	snap := make(map[string]string, len(m.data[namespace]))
	for k, v := range m.data[namespace] {
		snap[k] = v
	}
	return &memorySession{store: m, namespace: namespace, readOnly: readOnly, kv: snap}, nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

// Keys returns the number of keys stored in namespace.
func (m *Memory) Keys(namespace string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data[namespace])
}

// Set writes a raw value directly, bypassing sessions. Useful for seeding
// corrupted state in tests.
func (m *Memory) Set(namespace, key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[namespace] == nil {
		m.data[namespace] = make(map[string]string)
	}
	m.data[namespace][key] = value
}

type memorySession struct {
	store     *Memory
	namespace string
	readOnly  bool
	closed    bool
	kv        map[string]string
}

func (s *memorySession) GetString(key, def string) string {
	if v, ok := s.kv[key]; ok {
		return v
	}
	return def
}

func (s *memorySession) GetInt(key string, def int) int {
	v, ok := s.kv[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func (s *memorySession) PutString(key, value string) error {
	if err := s.writable(); err != nil {
		return err
	}
	s.kv[key] = value
	return nil
}

func (s *memorySession) PutInt(key string, value int) error {
	return s.PutString(key, strconv.Itoa(value))
}

func (s *memorySession) Clear() error {
	if err := s.writable(); err != nil {
		return err
	}
	s.kv = make(map[string]string)
	return nil
}

func (s *memorySession) Close() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	if s.readOnly {
		return nil
	}
	s.store.mu.Lock()
	s.store.data[s.namespace] = s.kv
	s.store.mu.Unlock()
	return nil
}

func (s *memorySession) Abort() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	s.kv = nil
	return nil
}

func (s *memorySession) writable() error {
	if s.closed {
		return ErrClosed
	}
	if s.readOnly {
		return ErrReadOnly
	}
	return nil
}
