package replica

import (
	"context"
	"errors"
	"sync"
)

// MemoryStore is an in-process Store. Subscribers are notified synchronously
// after the write, outside the store lock.
type MemoryStore struct {
	mu      sync.Mutex
	data    map[Channel]map[string][]byte
	subs    map[Channel]map[int]func(Change)
	nextSub int
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[Channel]map[string][]byte),
		subs: make(map[Channel]map[int]func(Change)),
	}
}

func (m *MemoryStore) Get(_ context.Context, ch Channel, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[ch][id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(v), nil
}

func (m *MemoryStore) List(_ context.Context, ch Channel) ([]Entry, error) {
	m.mu.Lock()
	out := make([]Entry, 0, len(m.data[ch]))
	for id, v := range m.data[ch] {
		out = append(out, Entry{ID: id, Data: clone(v)})
	}
	m.mu.Unlock()
	sortEntries(out)
	return out, nil
}

func (m *MemoryStore) Put(_ context.Context, ch Channel, id string, data []byte) error {
	m.mu.Lock()
	m.set(ch, id, data)
	m.mu.Unlock()
	m.notify(Change{Channel: ch, ID: id, Data: clone(data)})
	return nil
}

func (m *MemoryStore) Update(_ context.Context, ch Channel, id string, fn UpdateFunc) error {
	m.mu.Lock()
	old, exists := m.data[ch][id]
	next, err := fn(clone(old), exists)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.set(ch, id, next)
	m.mu.Unlock()
	m.notify(Change{Channel: ch, ID: id, Data: clone(next)})
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, ch Channel, id string) error {
	m.mu.Lock()
	_, ok := m.data[ch][id]
	delete(m.data[ch], id)
	m.mu.Unlock()
	if ok {
		m.notify(Change{Channel: ch, ID: id, Deleted: true})
	}
	return nil
}

func (m *MemoryStore) DeleteAll(ctx context.Context, ch Channel) error {
	entries, err := m.List(ctx, ch)
	if err != nil {
		return err
	}
	var errs []error
	for _, e := range entries {
		errs = append(errs, m.Delete(ctx, ch, e.ID))
	}
	return errors.Join(errs...)
}

func (m *MemoryStore) Subscribe(ch Channel, fn func(Change)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subs[ch] == nil {
		m.subs[ch] = make(map[int]func(Change))
	}
	id := m.nextSub
	m.nextSub++
	m.subs[ch][id] = fn
	return func() {
		m.mu.Lock()
		delete(m.subs[ch], id)
		m.mu.Unlock()
	}
}

func (m *MemoryStore) set(ch Channel, id string, data []byte) {
	if m.data[ch] == nil {
		m.data[ch] = make(map[string][]byte)
	}
	m.data[ch][id] = clone(data)
}

func (m *MemoryStore) notify(c Change) {
	m.mu.Lock()
	fns := make([]func(Change), 0, len(m.subs[c.Channel]))
	for _, fn := range m.subs[c.Channel] {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
