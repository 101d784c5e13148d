package collection

import (
	"context"
	"github.com/mohae/deepcopy"
	"sort"
	"sync"
)

var _ Store = (*Memory)(nil)

// Memory is a process-local Store. Props are deep-copied on every boundary so
// callers never share maps with the store.
type Memory struct {
	name  string
	mu    sync.RWMutex
	items map[string]Props
}

func NewMemory(name string) *Memory {
	return &Memory{name: name, items: make(map[string]Props)}
}

// List returns keys in lexical order.
func (m *Memory) List(_ context.Context) ([]Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	list := make([]Item, len(keys))
	for i, k := range keys {
		list[i] = Item{Collection: m.name, Key: k}
	}
	return list, nil
}

func (m *Memory) Get(_ context.Context, key string) (Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	props, ok := m.items[key]
	if !ok {
		return Item{}, ErrNotFound
	}
	return Item{Collection: m.name, Key: key, Props: copyProps(props)}, nil
}

func (m *Memory) Set(_ context.Context, key string, props Props) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := merge(m.items[key], copyProps(props))
	m.items[key] = stored
	return Item{Collection: m.name, Key: key, Props: copyProps(stored)}, nil
}

func copyProps(p Props) Props {
	if p == nil {
		return nil
	}
	return deepcopy.Copy(p).(Props)
}
