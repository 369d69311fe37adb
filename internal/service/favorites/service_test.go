package favorites

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-favorites/backend/internal/model/user"
	"github.com/zhouzirui/z-favorites/backend/internal/storage/kv"
)

type fakeDirectory struct {
	users []user.User
	err   error
	page  int
}

func (f *fakeDirectory) FetchUsers(_ context.Context, page int) ([]user.User, error) {
	f.page = page
	if f.err != nil {
		return nil, f.err
	}
	return append([]user.User(nil), f.users...), nil
}

// failingStore rejects every write and optionally every read.
type failingStore struct {
	*kv.MemoryStore
	failGet bool

	mu     sync.Mutex
	writes int
}

func (s *failingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.failGet {
		return nil, false, errors.New("disk unavailable")
	}
	return s.MemoryStore.Get(ctx, key)
}

func (s *failingStore) Set(context.Context, string, []byte) error {
	s.mu.Lock()
	s.writes++
	s.mu.Unlock()
	return errors.New("disk full")
}

func sampleUser(id int, first string) user.User {
	return user.User{
		ID:        id,
		FirstName: first,
		LastName:  "Tester",
		Email:     first + "@reqres.in",
		Avatar:    "https://reqres.in/img/faces/1-image.jpg",
	}
}

func newTestService(t *testing.T, dir *fakeDirectory, store kv.Store) *Service {
	t.Helper()
	svc := NewService(dir, store, Config{})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = svc.Close(ctx)
	})
	return svc
}

func storedIDs(t *testing.T, store kv.Store) []int {
	t.Helper()
	blob, found, err := store.Get(context.Background(), DefaultKey)
	require.NoError(t, err)
	require.True(t, found, "favorites key should be written")

	var items []user.User
	require.NoError(t, json.Unmarshal(blob, &items))
	ids := make([]int, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids
}

func TestLoadUsers_TagsEveryUserUnfavorited(t *testing.T) {
	u := sampleUser(1, "george")
	u.IsFavorite = true
	dir := &fakeDirectory{users: []user.User{u, sampleUser(2, "janet")}}
	svc := newTestService(t, dir, kv.NewMemoryStore())

	require.NoError(t, svc.LoadUsers(context.Background()))

	users := svc.Users()
	require.Len(t, users, 2)
	for _, got := range users {
		assert.False(t, got.IsFavorite)
	}
	assert.Equal(t, DefaultPage, dir.page)
}

func TestLoadUsers_ErrorLeavesListEmpty(t *testing.T) {
	svc := newTestService(t, &fakeDirectory{err: errors.New("connection refused")}, kv.NewMemoryStore())

	err := svc.LoadUsers(context.Background())

	assert.ErrorContains(t, err, "connection refused")
	assert.Empty(t, svc.Users())
}

func TestToggleFavorite_AddsUser(t *testing.T) {
	store := kv.NewMemoryStore()
	svc := newTestService(t, &fakeDirectory{users: []user.User{sampleUser(1, "george")}}, store)
	ctx := context.Background()
	svc.Bootstrap(ctx)

	updated, err := svc.ToggleFavorite(ctx, 1)
	require.NoError(t, err)
	assert.True(t, updated.IsFavorite)

	users := svc.Users()
	require.Len(t, users, 1)
	assert.True(t, users[0].IsFavorite)

	favs := svc.Favorites()
	require.Len(t, favs, 1)
	assert.Equal(t, 1, favs[0].ID)

	require.NoError(t, svc.Flush(ctx))
	assert.Equal(t, []int{1}, storedIDs(t, store), "persisted value must include this toggle")
}

func TestToggleFavorite_FlagMatchesMembership(t *testing.T) {
	dir := &fakeDirectory{users: []user.User{
		sampleUser(7, "michael"), sampleUser(8, "lindsay"), sampleUser(9, "tobias"),
	}}
	svc := newTestService(t, dir, kv.NewMemoryStore())
	ctx := context.Background()
	svc.Bootstrap(ctx)

	for _, id := range []int{7, 9, 7, 8, 9, 9} {
		_, err := svc.ToggleFavorite(ctx, id)
		require.NoError(t, err)

		members := map[int]bool{}
		for _, fav := range svc.Favorites() {
			members[fav.ID] = true
		}
		for _, u := range svc.Users() {
			assert.Equal(t, members[u.ID], u.IsFavorite, "user %d after toggling %d", u.ID, id)
		}
	}
}

func TestToggleFavorite_UnknownUser(t *testing.T) {
	svc := newTestService(t, &fakeDirectory{}, kv.NewMemoryStore())

	_, err := svc.ToggleFavorite(context.Background(), 42)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestToggleFavorite_UnfavoriteRemovesAndPersists(t *testing.T) {
	store := kv.NewMemoryStore()
	svc := newTestService(t, &fakeDirectory{users: []user.User{sampleUser(1, "george"), sampleUser(2, "janet")}}, store)
	ctx := context.Background()
	svc.Bootstrap(ctx)

	_, err := svc.ToggleFavorite(ctx, 1)
	require.NoError(t, err)
	_, err = svc.ToggleFavorite(ctx, 2)
	require.NoError(t, err)
	_, err = svc.ToggleFavorite(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, svc.Flush(ctx))
	assert.Equal(t, []int{2}, storedIDs(t, store))
}

func TestRemoveFromFavorites_Scenario(t *testing.T) {
	store := kv.NewMemoryStore()
	blob, err := json.Marshal([]user.User{sampleUser(1, "george"), sampleUser(2, "janet")})
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), DefaultKey, blob))

	svc := newTestService(t, &fakeDirectory{users: []user.User{sampleUser(2, "janet")}}, store)
	ctx := context.Background()
	svc.Bootstrap(ctx)

	require.True(t, svc.Users()[0].IsFavorite, "stored favorite should be reflected in the fetched list")

	changed, err := svc.RemoveFromFavorites(ctx, 2)
	require.NoError(t, err)
	assert.True(t, changed)

	favs := svc.Favorites()
	require.Len(t, favs, 1)
	assert.Equal(t, 1, favs[0].ID)
	assert.False(t, svc.Users()[0].IsFavorite)

	require.NoError(t, svc.Flush(ctx))
	assert.Equal(t, []int{1}, storedIDs(t, store))
}

func TestRemoveFromFavorites_Idempotent(t *testing.T) {
	store := kv.NewMemoryStore()
	svc := newTestService(t, &fakeDirectory{users: []user.User{sampleUser(1, "george"), sampleUser(2, "janet")}}, store)
	ctx := context.Background()
	svc.Bootstrap(ctx)
	_, _ = svc.ToggleFavorite(ctx, 1)
	_, _ = svc.ToggleFavorite(ctx, 2)

	changed, err := svc.RemoveFromFavorites(ctx, 2)
	require.NoError(t, err)
	assert.True(t, changed)
	once := svc.Snapshot()

	changed, err = svc.RemoveFromFavorites(ctx, 2)
	require.NoError(t, err)
	assert.False(t, changed)
	twice := svc.Snapshot()

	assert.Equal(t, once, twice)
}

func TestRoundTripAcrossRestart(t *testing.T) {
	store := kv.NewMemoryStore()
	dir := &fakeDirectory{users: []user.User{sampleUser(7, "michael"), sampleUser(8, "lindsay"), sampleUser(9, "tobias")}}
	ctx := context.Background()

	first := NewService(dir, store, Config{})
	first.Bootstrap(ctx)
	_, _ = first.ToggleFavorite(ctx, 9)
	_, _ = first.ToggleFavorite(ctx, 7)
	require.NoError(t, first.Close(ctx))

	second := newTestService(t, dir, store)
	second.Bootstrap(ctx)

	ids := []int{}
	for _, fav := range second.Favorites() {
		ids = append(ids, fav.ID)
	}
	assert.Equal(t, []int{9, 7}, ids)

	for _, u := range second.Users() {
		assert.Equal(t, u.ID != 8, u.IsFavorite, "user %d", u.ID)
	}
}

func TestLoadFavorites_CorruptedBlob(t *testing.T) {
	cases := map[string]string{
		"not json":     `{{{`,
		"wrong shape":  `{"id": 1}`,
		"invalid user": `[{"id": -1, "first_name": "x", "email": "x", "avatar": "https://a/b"}]`,
	}

	for name, blob := range cases {
		t.Run(name, func(t *testing.T) {
			store := kv.NewMemoryStore()
			require.NoError(t, store.Set(context.Background(), DefaultKey, []byte(blob)))
			svc := newTestService(t, &fakeDirectory{users: []user.User{sampleUser(1, "george")}}, store)

			assert.Error(t, svc.LoadFavorites(context.Background()))
			assert.NotPanics(t, func() { svc.Bootstrap(context.Background()) })
			assert.Empty(t, svc.Favorites())
			assert.Len(t, svc.Users(), 1)
		})
	}
}

func TestLoadFavorites_StorageReadError(t *testing.T) {
	store := &failingStore{MemoryStore: kv.NewMemoryStore(), failGet: true}
	svc := newTestService(t, &fakeDirectory{}, store)

	err := svc.LoadFavorites(context.Background())

	assert.ErrorContains(t, err, "disk unavailable")
	assert.Empty(t, svc.Favorites())
}

func TestWriteFailureIsNotFatal(t *testing.T) {
	store := &failingStore{MemoryStore: kv.NewMemoryStore()}
	svc := newTestService(t, &fakeDirectory{users: []user.User{sampleUser(1, "george")}}, store)
	ctx := context.Background()
	svc.Bootstrap(ctx)

	_, err := svc.ToggleFavorite(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, svc.Flush(ctx))

	assert.Len(t, svc.Favorites(), 1)
	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, 1, store.writes)
}

func TestSubscribe_DeliversCurrentThenChanges(t *testing.T) {
	svc := newTestService(t, &fakeDirectory{users: []user.User{sampleUser(1, "george")}}, kv.NewMemoryStore())
	ctx := context.Background()
	svc.Bootstrap(ctx)

	id, updates := svc.Subscribe()
	defer svc.Unsubscribe(id)

	initial := <-updates
	assert.Empty(t, initial.Favorites)

	_, err := svc.ToggleFavorite(ctx, 1)
	require.NoError(t, err)

	select {
	case snap := <-updates:
		require.Len(t, snap.Favorites, 1)
		assert.Greater(t, snap.Version, initial.Version)
	case <-time.After(time.Second):
		t.Fatal("expected snapshot after toggle")
	}
}

func TestSubscribe_SlowSubscriberSeesLatest(t *testing.T) {
	svc := newTestService(t, &fakeDirectory{users: []user.User{sampleUser(1, "george"), sampleUser(2, "janet")}}, kv.NewMemoryStore())
	ctx := context.Background()
	svc.Bootstrap(ctx)

	id, updates := svc.Subscribe()
	defer svc.Unsubscribe(id)

	_, _ = svc.ToggleFavorite(ctx, 1)
	_, _ = svc.ToggleFavorite(ctx, 2)

	latest := <-updates
	assert.Equal(t, svc.Snapshot().Version, latest.Version)
	assert.Len(t, latest.Favorites, 2)
}

func TestCloseEndsFeeds(t *testing.T) {
	svc := NewService(&fakeDirectory{}, kv.NewMemoryStore(), Config{})
	_, updates := svc.Subscribe()
	<-updates

	require.NoError(t, svc.Close(context.Background()))

	_, open := <-updates
	assert.False(t, open)
}

func TestMutationsAfterCloseAreRejected(t *testing.T) {
	store := kv.NewMemoryStore()
	svc := NewService(&fakeDirectory{users: []user.User{sampleUser(1, "george"), sampleUser(2, "janet")}}, store, Config{})
	ctx := context.Background()
	svc.Bootstrap(ctx)

	_, err := svc.ToggleFavorite(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, svc.Close(ctx))
	before := svc.Snapshot()

	_, err = svc.ToggleFavorite(ctx, 2)
	assert.ErrorIs(t, err, ErrClosed)
	changed, err := svc.RemoveFromFavorites(ctx, 1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, changed)

	assert.Equal(t, before, svc.Snapshot())
	assert.Equal(t, []int{1}, storedIDs(t, store))
}

func TestDecodeFavorites(t *testing.T) {
	blob, err := json.Marshal([]user.User{sampleUser(3, "emma")})
	require.NoError(t, err)

	items, err := DecodeFavorites(blob)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].ID)

	_, err = DecodeFavorites([]byte(`[{"id": 4, "first_name": "", "email": "x@y", "avatar": "https://a/b"}]`))
	assert.ErrorIs(t, err, user.ErrInvalidUser)
}
