package ingest

import (
	"container/list"
	"sync"
)

// lru is a fixed-capacity set used to absorb relay echo (spec 4.2:
// "deduplicates at the id level within a 1024-entry LRU before
// touching storage"). No third-party LRU package appears anywhere in
// the retrieved example pack, so this is implemented directly over
// container/list.
type lru struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	index    map[string]*list.Element
}

func newLRU(capacity int) *lru {
	return &lru{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element),
	}
}

// SeenAndAdd reports whether key was already present, and records it
// as most-recently-used either way.
func (l *lru) SeenAndAdd(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if elem, ok := l.index[key]; ok {
		l.order.MoveToFront(elem)
		return true
	}

	elem := l.order.PushFront(key)
	l.index[key] = elem

	if l.order.Len() > l.capacity {
		oldest := l.order.Back()
		if oldest != nil {
			l.order.Remove(oldest)
			delete(l.index, oldest.Value.(string))
		}
	}

	return false
}
