package favorites

import (
	"sync"

	"github.com/google/uuid"
)

type feed struct {
	mu     sync.Mutex
	subs   map[string]chan Snapshot
	closed bool
}

func newFeed() *feed {
	return &feed{subs: make(map[string]chan Snapshot)}
}

func (f *feed) subscribe(current Snapshot) (string, <-chan Snapshot) {
	id := uuid.NewString()
	ch := make(chan Snapshot, 1)
	ch <- current

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		close(ch)
		return id, ch
	}
	f.subs[id] = ch
	return id, ch
}

func (f *feed) unsubscribe(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.subs[id]; ok {
		delete(f.subs, id)
		close(ch)
	}
}

// publish never blocks: a subscriber that has not drained its previous
// snapshot gets it replaced by snap.
func (f *feed) publish(snap Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (f *feed) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}
