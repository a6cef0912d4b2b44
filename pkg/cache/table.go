package cache

import "sync"

// slot is one entry in a table's recency ring.
type slot[V any] struct {
	key        string
	value      V
	prev, next *slot[V]
}

// table backs both strategies. Entries sit on a ring ordered most recent
// first. With limit 0 nothing is evicted and reads leave the order alone;
// with a positive limit reads promote and the tail is evicted on overflow.
type table[V any] struct {
	mu     sync.Mutex
	limit  int
	index  map[string]*slot[V]
	head   slot[V]
	obs    observer
	onEvic EvictCallback[V]
}

func newTable[V any](limit int, opts *cacheOptions[V], op string) (*table[V], error) {
	obs, err := newObserver(opts, op)
	if err != nil {
		return nil, err
	}
	t := &table[V]{
		limit:  limit,
		index:  make(map[string]*slot[V]),
		obs:    obs,
		onEvic: opts.evictCallback,
	}
	t.head.prev, t.head.next = &t.head, &t.head
	return t, nil
}

func (t *table[V]) unlink(s *slot[V]) {
	s.prev.next = s.next
	s.next.prev = s.prev
	s.prev, s.next = nil, nil
}

func (t *table[V]) pushFront(s *slot[V]) {
	s.prev = &t.head
	s.next = t.head.next
	t.head.next.prev = s
	t.head.next = s
}

func (t *table[V]) Get(key string) (V, bool) {
	t.mu.Lock()
	s, ok := t.index[key]
	var v V
	if ok {
		v = s.value
		if t.limit > 0 {
			t.unlink(s)
			t.pushFront(s)
		}
	}
	t.mu.Unlock()

	if ok {
		t.obs.hit()
	} else {
		t.obs.miss()
	}
	return v, ok
}

func (t *table[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	var evicted []*slot[V]
	t.mu.Lock()
	s, existed := t.index[key]
	if existed {
		s.value = value
		t.unlink(s)
	} else {
		s = &slot[V]{key: key, value: value}
		t.index[key] = s
	}
	t.pushFront(s)
	for t.limit > 0 && len(t.index) > t.limit {
		tail := t.head.prev
		t.unlink(tail)
		delete(t.index, tail.key)
		evicted = append(evicted, tail)
	}
	size := len(t.index)
	t.mu.Unlock()

	t.obs.set(size)
	for _, e := range evicted {
		t.obs.evicted()
		t.notify(e)
	}
	return !existed, nil
}

func (t *table[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	t.mu.Lock()
	s, ok := t.index[key]
	if ok {
		t.unlink(s)
		delete(t.index, key)
	}
	size := len(t.index)
	t.mu.Unlock()

	if !ok {
		return false, nil
	}
	t.obs.deleted(size)
	t.notify(s)
	return true, nil
}

// Clear drops every entry, reporting them oldest first.
func (t *table[V]) Clear() error {
	t.mu.Lock()
	var dropped []*slot[V]
	if t.onEvic != nil {
		dropped = make([]*slot[V], 0, len(t.index))
		for s := t.head.prev; s != &t.head; s = s.prev {
			dropped = append(dropped, s)
		}
	}
	t.index = make(map[string]*slot[V])
	t.head.prev, t.head.next = &t.head, &t.head
	t.mu.Unlock()

	t.obs.resize(0)
	for _, s := range dropped {
		t.notify(s)
	}
	return nil
}

func (t *table[V]) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.index)
}

// Keys lists keys most recent first.
func (t *table[V]) Keys() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]string, 0, len(t.index))
	for s := t.head.next; s != &t.head; s = s.next {
		keys = append(keys, s.key)
	}
	return keys
}

func (t *table[V]) Stats() *Statistics { return t.obs.stats }

func (t *table[V]) Close() error { return nil }

func (t *table[V]) notify(s *slot[V]) {
	if t.onEvic != nil {
		t.onEvic(s.key, s.value)
	}
}
