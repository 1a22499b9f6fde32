// Package memory implements the catalog, sale and user stores in process
// memory. It backs the "memory" storage mode and handler tests.
package memory

import (
	"sort"
	"sync"
)

// rowLocks hands out one mutex per key. Locks live as long as the store.
type rowLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *rowLocks) get(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	return m
}

// lockAll locks keys in sorted order and returns the unlock func.
func (l *rowLocks) lockAll(keys []string) func() {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	held := make([]*sync.Mutex, 0, len(sorted))
	for i, k := range sorted {
		if i > 0 && sorted[i-1] == k {
			continue
		}
		m := l.get(k)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
