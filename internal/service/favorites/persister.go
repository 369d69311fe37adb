package favorites

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/zhouzirui/z-favorites/backend/internal/model/user"
	"github.com/zhouzirui/z-favorites/backend/internal/storage/kv"
)

// persister is the single writer for the favorites key. Scheduled snapshots
// coalesce, so the last snapshot scheduled is always the last one written.
type persister struct {
	store   kv.Store
	key     string
	timeout time.Duration

	mu      sync.Mutex
	pending []user.User
	dirty   bool

	notify   chan struct{}
	flushes  chan chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newPersister(store kv.Store, key string, timeout time.Duration) *persister {
	p := &persister{
		store:   store,
		key:     key,
		timeout: timeout,
		notify:  make(chan struct{}, 1),
		flushes: make(chan chan struct{}),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// schedule replaces the pending snapshot and wakes the writer without
// blocking the caller.
func (p *persister) schedule(items []user.User) {
	p.mu.Lock()
	p.pending = items
	p.dirty = true
	p.mu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *persister) run() {
	defer close(p.done)
	for {
		select {
		case <-p.notify:
			p.writePending()
		case ack := <-p.flushes:
			p.writePending()
			close(ack)
		case <-p.stop:
			p.writePending()
			return
		}
	}
}

func (p *persister) writePending() {
	p.mu.Lock()
	if !p.dirty {
		p.mu.Unlock()
		return
	}
	items := p.pending
	p.pending = nil
	p.dirty = false
	p.mu.Unlock()

	if items == nil {
		items = []user.User{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		log.Printf("[favorites] error encoding favorites: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.store.Set(ctx, p.key, data); err != nil {
		log.Printf("[favorites] error saving favorites: %v", err)
	}
}

func (p *persister) flush(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case p.flushes <- ack:
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *persister) close(ctx context.Context) error {
	p.stopOnce.Do(func() { close(p.stop) })
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
