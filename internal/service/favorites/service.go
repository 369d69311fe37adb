package favorites

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/z-favorites/backend/internal/model/favorite"
	"github.com/zhouzirui/z-favorites/backend/internal/model/user"
	"github.com/zhouzirui/z-favorites/backend/internal/service/directory"
	"github.com/zhouzirui/z-favorites/backend/internal/storage/kv"
)

const (
	DefaultKey          = "favorites"
	DefaultPage         = 2
	defaultWriteTimeout = 5 * time.Second
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrClosed       = errors.New("favorites service closed")
)

// Config tunes a Service. Zero values fall back to the defaults above.
type Config struct {
	// Page is the directory page fetched at startup.
	Page int
	// Key is the storage key holding the serialized favorites.
	Key string
	// WriteTimeout bounds a single persistence write.
	WriteTimeout time.Duration
}

// Snapshot is a consistent copy of both collections.
type Snapshot struct {
	Version   uint64      `json:"version"`
	Users     []user.User `json:"users"`
	Favorites []user.User `json:"favorites"`
}

// Service owns the primary user list and the favorites collection, and keeps
// storage eventually consistent with the in-memory favorites.
type Service struct {
	directory directory.Client
	store     kv.Store
	page      int
	key       string

	mu        sync.RWMutex
	users     []user.User
	favorites *favorite.Collection
	version   uint64
	closed    bool

	persister *persister
	feed      *feed
}

// NewService wires the synchronizer and starts its write-behind goroutine.
// Callers must Close it.
func NewService(dir directory.Client, store kv.Store, cfg Config) *Service {
	if cfg.Page < 1 {
		cfg.Page = DefaultPage
	}
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	return &Service{
		directory: dir,
		store:     store,
		page:      cfg.Page,
		key:       cfg.Key,
		users:     []user.User{},
		favorites: favorite.NewCollection(nil),
		persister: newPersister(store, cfg.Key, cfg.WriteTimeout),
		feed:      newFeed(),
	}
}

// Bootstrap runs both startup loads concurrently. Neither load can fail
// startup; failures are logged and leave the affected collection empty.
func (s *Service) Bootstrap(ctx context.Context) {
	// A plain Group: one failed load must not cancel the other.
	var g errgroup.Group
	g.Go(func() error {
		if err := s.LoadUsers(ctx); err != nil {
			log.Printf("[favorites] error fetching users: %v", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.LoadFavorites(ctx); err != nil {
			log.Printf("[favorites] error loading favorites: %v", err)
		}
		return nil
	})
	_ = g.Wait()

	s.mu.RLock()
	log.Printf("[favorites] bootstrap complete users=%d favorites=%d", len(s.users), s.favorites.Len())
	s.mu.RUnlock()
}

// LoadUsers fetches the configured directory page and replaces the primary
// list. On error the list is left unchanged.
func (s *Service) LoadUsers(ctx context.Context) error {
	fetched, err := s.directory.FetchUsers(ctx, s.page)
	if err != nil {
		return err
	}

	users := make([]user.User, len(fetched))
	copy(users, fetched)

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range users {
		users[i].IsFavorite = false
	}
	s.users = users
	s.reconcileLocked()
	s.publishLocked()
	return nil
}

// LoadFavorites reads the persisted favorites. A missing key leaves the
// collection empty without error. A malformed blob also empties it, and the
// decode error is returned.
func (s *Service) LoadFavorites(ctx context.Context) error {
	blob, found, err := s.store.Get(ctx, s.key)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	items, decodeErr := DecodeFavorites(blob)
	if decodeErr != nil {
		items = nil
		decodeErr = fmt.Errorf("discarding stored favorites: %w", decodeErr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.favorites = favorite.NewCollection(items)
	s.reconcileLocked()
	s.publishLocked()
	return decodeErr
}

// ToggleFavorite flips the favorite flag of the user with id and persists the
// resulting collection.
func (s *Service) ToggleFavorite(_ context.Context, id int) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return user.User{}, ErrClosed
	}

	idx := s.indexLocked(id)
	if idx < 0 {
		return user.User{}, fmt.Errorf("%w: %d", ErrUserNotFound, id)
	}

	target := &s.users[idx]
	target.IsFavorite = !target.IsFavorite
	if target.IsFavorite {
		s.favorites.Add(*target)
	} else {
		s.favorites.Remove(id)
	}

	// Persist the collection including this change.
	s.persister.schedule(s.favorites.Items())
	s.publishLocked()

	return *target, nil
}

// RemoveFromFavorites drops id from the favorites and clears the flag on the
// primary list. Reports whether anything changed; repeated calls are no-ops.
func (s *Service) RemoveFromFavorites(_ context.Context, id int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}

	changed := s.favorites.Remove(id)
	if idx := s.indexLocked(id); idx >= 0 && s.users[idx].IsFavorite {
		s.users[idx].IsFavorite = false
		changed = true
	}
	if !changed {
		return false, nil
	}

	s.persister.schedule(s.favorites.Items())
	s.publishLocked()
	return true, nil
}

// Users returns a copy of the primary list.
func (s *Service) Users() []user.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]user.User{}, s.users...)
}

// Favorites returns a copy of the favorites in favoriting order.
func (s *Service) Favorites() []user.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.favorites.Items()
}

// Snapshot returns both collections at one version.
func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Subscribe registers a change feed. The current snapshot is delivered first.
// Slow subscribers only ever see the newest snapshot.
func (s *Service) Subscribe() (string, <-chan Snapshot) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feed.subscribe(s.snapshotLocked())
}

// Unsubscribe closes the feed registered under id.
func (s *Service) Unsubscribe(id string) {
	s.feed.unsubscribe(id)
}

// Flush blocks until every write scheduled so far has been attempted.
func (s *Service) Flush(ctx context.Context) error {
	return s.persister.flush(ctx)
}

// Close rejects further mutations, ends all feeds, then flushes pending
// writes and stops the writer.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.feed.closeAll()
	return s.persister.close(ctx)
}

func (s *Service) indexLocked(id int) int {
	for i := range s.users {
		if s.users[i].ID == id {
			return i
		}
	}
	return -1
}

// reconcileLocked derives every primary-list flag from the favorites set.
func (s *Service) reconcileLocked() {
	for i := range s.users {
		s.users[i].IsFavorite = s.favorites.Contains(s.users[i].ID)
	}
}

func (s *Service) snapshotLocked() Snapshot {
	return Snapshot{
		Version:   s.version,
		Users:     append([]user.User{}, s.users...),
		Favorites: s.favorites.Items(),
	}
}

func (s *Service) publishLocked() {
	s.version++
	s.feed.publish(s.snapshotLocked())
}

// DecodeFavorites parses and validates a stored favorites blob.
func DecodeFavorites(blob []byte) ([]user.User, error) {
	var items []user.User
	if err := json.Unmarshal(blob, &items); err != nil {
		return nil, fmt.Errorf("parse favorites: %w", err)
	}
	if err := user.ValidateAll(items); err != nil {
		return nil, err
	}
	return items, nil
}
