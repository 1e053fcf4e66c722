package store

import "sync"

// Memory is a settings store that lives only as long as the process
type Memory struct {
	lock  sync.Mutex
	kv    map[string][]byte
	saves int
}

// NewMemory creates an empty memory store
func NewMemory() *Memory {
	return &Memory{kv: make(map[string][]byte)}
}

// Load implements Settings
func (m *Memory) Load(key string) ([]byte, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	v, ok := m.kv[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte{}, v...), nil
}

// Save implements Settings
func (m *Memory) Save(key string, value []byte) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.kv[key] = append([]byte{}, value...)
	m.saves++
	return nil
}

// SaveCount returns the number of successful saves
func (m *Memory) SaveCount() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.saves
}

// Close implements Settings
func (m *Memory) Close() error {
	return nil
}
