package cache

import (
	"github.com/CosmWasm/wasmvm/v2/types"
)

// memoryTier is the bounded LRU tier. The budget bounds the sum of entry
// size estimates, not the entry count. Not safe for concurrent use; the
// orchestrator serializes access.
type memoryTier struct {
	budget  uint64
	used    uint64
	entries map[types.Checksum]*Entry
	order   []types.Checksum // front is least recently used
}

func newMemoryTier(budget uint64) *memoryTier {
	return &memoryTier{
		budget:  budget,
		entries: make(map[types.Checksum]*Entry),
	}
}

// get returns the entry and marks it most recently used.
func (t *memoryTier) get(checksum types.Checksum) (*Entry, bool) {
	e, ok := t.entries[checksum]
	if !ok {
		return nil, false
	}
	t.touch(checksum)
	return e, true
}

func (t *memoryTier) touch(checksum types.Checksum) {
	for i, cs := range t.order {
		if cs == checksum {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	t.order = append(t.order, checksum)
}

// add inserts the entry, evicting from the least recently used end until it
// fits. An entry larger than the whole budget is not inserted and ok is
// false; the caller keeps its module either way.
func (t *memoryTier) add(e *Entry) (evicted []*Entry, ok bool) {
	if e.size > t.budget {
		return nil, false
	}
	if old, exists := t.entries[e.checksum]; exists {
		if old == e {
			t.touch(e.checksum)
			return nil, true
		}
		t.removeFromOrder(e.checksum)
		delete(t.entries, e.checksum)
		t.used -= old.size
		evicted = append(evicted, old)
	}
	for t.used+e.size > t.budget && len(t.order) > 0 {
		oldest := t.order[0]
		t.order = t.order[1:]
		victim := t.entries[oldest]
		delete(t.entries, oldest)
		t.used -= victim.size
		evicted = append(evicted, victim)
	}
	t.entries[e.checksum] = e
	t.order = append(t.order, e.checksum)
	t.used += e.size
	return evicted, true
}

// remove takes the entry out of the tier without closing it.
func (t *memoryTier) remove(checksum types.Checksum) (*Entry, bool) {
	e, ok := t.entries[checksum]
	if !ok {
		return nil, false
	}
	delete(t.entries, checksum)
	t.removeFromOrder(checksum)
	t.used -= e.size
	return e, true
}

func (t *memoryTier) removeFromOrder(checksum types.Checksum) {
	for i, cs := range t.order {
		if cs == checksum {
			t.order = append(t.order[:i], t.order[i+1:]...)
			return
		}
	}
}

func (t *memoryTier) len() uint64 {
	return uint64(len(t.entries))
}

func (t *memoryTier) size() uint64 {
	return t.used
}
