package classify

import (
	"container/list"
	"sync"
)

// DefaultMemoCapacity bounds the classifier's memoization size so it
// can't grow unbounded on a huge playlist.
const DefaultMemoCapacity = 50_000

// Result is the memoized output of classifying and parsing one entry.
type Result struct {
	Kind  MediaKind
	Title ParsedTitle
}

// Memo is a fixed-capacity LRU keyed on (name, group), protecting the
// classifier from re-running its regex cascade 800k+ times across a
// playlist with many repeated channel/title strings.
type Memo struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	index    map[memoKey]*list.Element
}

type memoKey struct {
	name  string
	group string
}

type memoEntry struct {
	key    memoKey
	result Result
}

// NewMemo returns a Memo with the given capacity (DefaultMemoCapacity
// if capacity <= 0).
func NewMemo(capacity int) *Memo {
	if capacity <= 0 {
		capacity = DefaultMemoCapacity
	}
	return &Memo{
		capacity: capacity,
		ll:       list.New(),
		index:    make(map[memoKey]*list.Element, capacity),
	}
}

// Get returns the cached result for (name, group), promoting it to
// most-recently-used, or (_, false) on a miss.
func (m *Memo) Get(name, group string) (Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memoKey{name, group}
	el, ok := m.index[key]
	if !ok {
		return Result{}, false
	}
	m.ll.MoveToFront(el)
	return el.Value.(*memoEntry).result, true
}

// Put inserts or updates the cached result for (name, group), evicting
// the least-recently-used entry if the memo is at capacity.
func (m *Memo) Put(name, group string, result Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memoKey{name, group}
	if el, ok := m.index[key]; ok {
		el.Value.(*memoEntry).result = result
		m.ll.MoveToFront(el)
		return
	}
	el := m.ll.PushFront(&memoEntry{key: key, result: result})
	m.index[key] = el
	if m.ll.Len() > m.capacity {
		oldest := m.ll.Back()
		if oldest != nil {
			m.ll.Remove(oldest)
			delete(m.index, oldest.Value.(*memoEntry).key)
		}
	}
}

// Len reports the number of entries currently memoized.
func (m *Memo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ll.Len()
}
