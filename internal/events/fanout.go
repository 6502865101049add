package events

import (
	"context"
	"sort"
	"sync"
)

// Fanout is a [Sink] that calls every subscriber in subscription order.
type Fanout struct {
	mu   sync.RWMutex
	next uint64
	subs map[uint64]func(Event)
}

func NewFanout() *Fanout {
	return &Fanout{subs: make(map[uint64]func(Event))}
}

// Subscribe registers fn and returns a function that removes it. The returned
// function is idempotent.
func (f *Fanout) Subscribe(fn func(Event)) func() {
	if fn == nil {
		return func() {}
	}
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = fn
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}

// Len returns the number of active subscribers.
func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

func (f *Fanout) Emit(_ context.Context, event Event) {
	f.mu.RLock()
	ids := make([]uint64, 0, len(f.subs))
	for id := range f.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, f.subs[id])
	}
	f.mu.RUnlock()

	for _, fn := range fns {
		fn(event)
	}
}
