package cache

import (
	"context"
	"encoding"
	"sync"
	"time"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// sweepInterval is the minimum time between full scans for expired
// entries.
const sweepInterval = time.Minute

// Memory is a process-local Cache used when no Redis address is
// configured. Expired entries are dropped on read, and Set sweeps the
// whole map at most once per sweepInterval so keys that are never read
// again do not accumulate.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	defaultTTL time.Duration
	closed     bool
	now        func() time.Time
	lastSweep  time.Time
}

func NewMemory(opts Options) *Memory {
	ttl := opts.DefaultTTL
	if ttl <= 0 {
		ttl = DefaultOptions().DefaultTTL
	}
	return &Memory{
		entries:    make(map[string]memoryEntry),
		defaultTTL: ttl,
		now:        time.Now,
	}
}

func (m *Memory) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = append([]byte(nil), v...)
	case encoding.BinaryMarshaler:
		b, err := v.MarshalBinary()
		if err != nil {
			return err
		}
		data = b
	default:
		return ErrInvalidValue
	}
	if ttl == 0 {
		ttl = m.defaultTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	now := m.now()
	if now.Sub(m.lastSweep) >= sweepInterval {
		m.sweep(now)
	}
	m.entries[key] = memoryEntry{data: data, expiresAt: now.Add(ttl)}
	return nil
}

// sweep must be called with mu held.
func (m *Memory) sweep(now time.Time) {
	for key, entry := range m.entries {
		if !now.Before(entry.expiresAt) {
			delete(m.entries, key)
		}
	}
	m.lastSweep = now
}

func (m *Memory) Get(ctx context.Context, key string, value interface{}) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	entry, ok := m.entries[key]
	if ok && !m.now().Before(entry.expiresAt) {
		delete(m.entries, key)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	switch v := value.(type) {
	case *string:
		*v = string(entry.data)
	case encoding.BinaryUnmarshaler:
		return v.UnmarshalBinary(entry.data)
	default:
		return ErrInvalidValue
	}
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.entries = nil
	return nil
}
