package processed

import (
	"container/list"
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process LRU of processed paths. Lookups and adds both count
// as use; when capacity is exceeded the least recently used path is dropped.
type Memory struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	items    map[string]*list.Element
	now      func() time.Time
}

// NewMemory constructs an LRU record. A capacity <= 0 means unbounded.
func NewMemory(capacity int, opts ...Option) *Memory {
	o := buildOptions(opts)
	return &Memory{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element),
		now:      o.now,
	}
}

func (m *Memory) Contains(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	elem, ok := m.items[Key(path)]
	if ok {
		m.order.MoveToFront(elem)
	}
	return ok, nil
}

func (m *Memory) Add(_ context.Context, path string) error {
	key := Key(path)
	if key == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if elem, ok := m.items[key]; ok {
		m.order.MoveToFront(elem)
		return nil
	}
	m.items[key] = m.order.PushFront(Entry{Path: key, ProcessedAt: m.now()})
	for m.capacity > 0 && m.order.Len() > m.capacity {
		oldest := m.order.Back()
		m.order.Remove(oldest)
		delete(m.items, oldest.Value.(Entry).Path)
	}
	return nil
}

func (m *Memory) Remove(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	elem, ok := m.items[Key(path)]
	if !ok {
		return false, nil
	}
	m.order.Remove(elem)
	delete(m.items, elem.Value.(Entry).Path)
	return true, nil
}

func (m *Memory) List(_ context.Context, limit int) ([]Entry, error) {
	m.mu.Lock()
	entries := make([]Entry, 0, m.order.Len())
	for elem := m.order.Front(); elem != nil; elem = elem.Next() {
		entries = append(entries, elem.Value.(Entry))
	}
	m.mu.Unlock()

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ProcessedAt.After(entries[j].ProcessedAt)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (m *Memory) Len(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len(), nil
}

func (m *Memory) Prune(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for elem := m.order.Front(); elem != nil; {
		next := elem.Next()
		entry := elem.Value.(Entry)
		if entry.ProcessedAt.Before(before) {
			m.order.Remove(elem)
			delete(m.items, entry.Path)
			removed++
		}
		elem = next
	}
	return removed, nil
}

func (m *Memory) Close() error { return nil }
