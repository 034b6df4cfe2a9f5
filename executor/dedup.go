package executor

import (
	"container/list"
	"sync"
)

// Dedup remembers the most recent signal identities, evicting the oldest first.
type Dedup struct {
	lock  sync.Mutex
	cap   int
	order *list.List
	index map[string]*list.Element
}

func NewDedup(capacity int) *Dedup {
	if capacity <= 0 {
		capacity = 1
	}
	return &Dedup{cap: capacity, order: list.New(), index: make(map[string]*list.Element)}
}

// Seen reports whether id was already seen, and records it as the newest entry either way.
func (d *Dedup) Seen(id string) bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	if e, ok := d.index[id]; ok {
		d.order.MoveToBack(e)
		return true
	}
	d.index[id] = d.order.PushBack(id)
	for d.order.Len() > d.cap {
		oldest := d.order.Front()
		d.order.Remove(oldest)
		delete(d.index, oldest.Value.(string))
	}
	return false
}

// Forget drops id so the same signal can be retried.
func (d *Dedup) Forget(id string) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if e, ok := d.index[id]; ok {
		d.order.Remove(e)
		delete(d.index, id)
	}
}

func (d *Dedup) Len() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.order.Len()
}
