package aggregator

import (
	"container/list"
	"sync"
)

// appliedWindow is a capacity-bounded set of applied (event id, address)
// keys. Eviction is LRU; the window only needs to cover the checkpoint
// replay depth, since anything older cannot be redelivered without the
// checkpoint also having regressed.
type appliedWindow struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	items    map[string]*list.Element
}

func newAppliedWindow(capacity int) *appliedWindow {
	if capacity <= 0 {
		capacity = 1
	}
	return &appliedWindow{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element, capacity),
	}
}

// markIfNew records key and reports true when it was not already present.
func (w *appliedWindow) markIfNew(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if elem, ok := w.items[key]; ok {
		w.order.MoveToFront(elem)
		return false
	}

	if w.order.Len() >= w.capacity {
		oldest := w.order.Back()
		if oldest != nil {
			w.order.Remove(oldest)
			delete(w.items, oldest.Value.(string))
		}
	}

	w.items[key] = w.order.PushFront(key)
	return true
}

func (w *appliedWindow) len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.order.Len()
}
