package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

type testEnv struct {
	mr    *miniredis.Miniredis
	rdb   *redis.Client
	clock *testClock
}

// advance moves both the injected clock and miniredis TTLs forward.
func (e *testEnv) advance(d time.Duration) {
	e.clock.mu.Lock()
	e.clock.now = e.clock.now.Add(d)
	e.clock.mu.Unlock()
	e.mr.FastForward(d)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return &testEnv{
		mr:    mr,
		rdb:   rdb,
		clock: &testClock{now: time.Unix(1700000000, 0)},
	}
}

func (e *testEnv) store(prefix string, scanCount int64) *Store {
	return NewStore(e.rdb, prefix, scanCount, e.clock.Now)
}

func TestStoreUpsertOverwritesSingleRecord(t *testing.T) {
	env := newTestEnv(t)
	s := env.store("bl", 0)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "1", "abc", "v1", time.Minute))
	require.NoError(t, s.Upsert(ctx, "1", "abc", "v2", 2*time.Minute))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	rec, err := s.Get(ctx, "1", "abc")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "v2", rec.Value)
	require.Equal(t, "bl", rec.Namespace)
	require.True(t, env.clock.Now().Add(2*time.Minute).Equal(rec.ExpiresAt))
}

func TestStoreRejectsInvalidKeysAndPastExpiry(t *testing.T) {
	env := newTestEnv(t)
	s := env.store("bl", 0)
	ctx := context.Background()

	require.ErrorIs(t, s.Upsert(ctx, "", "abc", "v", time.Minute), ErrInvalidKey)
	require.ErrorIs(t, s.Upsert(ctx, "1", "", "v", time.Minute), ErrInvalidKey)
	require.ErrorIs(t, s.Upsert(ctx, "1", "a:b", "v", time.Minute), ErrInvalidKey)
	require.ErrorIs(t, s.Upsert(ctx, "1", "abc", "v", 0), ErrExpired)
	require.ErrorIs(t, s.UpsertUntil(ctx, "1", "abc", "v", env.clock.Now().Add(-time.Second)), ErrExpired)

	_, err := s.Find(ctx, "", "")
	require.ErrorIs(t, err, ErrInvalidLookup)
	_, err = s.FindAll(ctx, "", "")
	require.ErrorIs(t, err, ErrInvalidLookup)
}

func TestStoreUpsertUntilRoundsUpToOneSecond(t *testing.T) {
	env := newTestEnv(t)
	s := env.store("bl", 0)
	ctx := context.Background()

	require.NoError(t, s.UpsertUntil(ctx, "1", "abc", "v", env.clock.Now().Add(200*time.Millisecond)))
	ttl, err := s.RemainingTTL(ctx, "1", "abc")
	require.NoError(t, err)
	require.Equal(t, time.Second, ttl)
}

func TestStoreFindByEitherPart(t *testing.T) {
	env := newTestEnv(t)
	s := env.store("rt", 2)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "1", "aaa", "x", time.Hour))
	require.NoError(t, s.Upsert(ctx, "1", "bbb", "y", time.Hour))
	require.NoError(t, s.Upsert(ctx, "2", "ccc", "z", time.Hour))

	rec, err := s.Find(ctx, "1", "")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "1", rec.UserID)

	rec, err = s.Find(ctx, "", "ccc")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "2", rec.UserID)
	require.Equal(t, "z", rec.Value)

	rec, err = s.Find(ctx, "3", "")
	require.NoError(t, err)
	require.Nil(t, rec)

	rec, err = s.Find(ctx, "1", "ccc")
	require.NoError(t, err)
	require.Nil(t, rec)

	all, err := s.FindAll(ctx, "1", "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "aaa", all[0].JTI)
	require.Equal(t, "bbb", all[1].JTI)

	all, err = s.FindAll(ctx, "2", "ccc")
	require.NoError(t, err)
	require.Len(t, all, 1)

	all, err = s.FindAll(ctx, "9", "nope")
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestStoreScanEscapesGlobCharacters(t *testing.T) {
	env := newTestEnv(t)
	s := env.store("rt", 0)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "user*", "aaa", "x", time.Hour))
	require.NoError(t, s.Upsert(ctx, "user1", "bbb", "y", time.Hour))
	require.NoError(t, s.Upsert(ctx, "tenant:7", "ccc", "z", time.Hour))

	all, err := s.FindAll(ctx, "user*", "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "aaa", all[0].JTI)

	rec, err := s.Find(ctx, "", "ccc")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "tenant:7", rec.UserID)
}

func TestStoreUserLookupIgnoresLongerIDs(t *testing.T) {
	env := newTestEnv(t)
	s := env.store("rt", 0)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "7:eu", "aaa", "x", time.Hour))

	all, err := s.FindAll(ctx, "7", "")
	require.NoError(t, err)
	require.Empty(t, all)

	found, err := s.AnyFor(ctx, "7")
	require.NoError(t, err)
	require.False(t, found)

	found, err = s.AnyFor(ctx, "7:eu")
	require.NoError(t, err)
	require.True(t, found)
}

func TestStoreDeleteAndRemainingTTL(t *testing.T) {
	env := newTestEnv(t)
	s := env.store("bl", 0)
	ctx := context.Background()

	ttl, err := s.RemainingTTL(ctx, "1", "abc")
	require.NoError(t, err)
	require.Equal(t, TTLMissing, ttl)

	require.NoError(t, s.Upsert(ctx, "1", "abc", "v", 10*time.Second))
	ttl, err = s.RemainingTTL(ctx, "1", "abc")
	require.NoError(t, err)
	require.Equal(t, 10*time.Second, ttl)

	ok, err := s.Delete(ctx, "1", "abc")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Delete(ctx, "1", "abc")
	require.NoError(t, err)
	require.False(t, ok)

	exists, err := s.Exists(ctx, "1", "abc")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestStoreRecordsExpireWithoutSweep(t *testing.T) {
	env := newTestEnv(t)
	s := env.store("bl", 0)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "1", "abc", "v", 5*time.Second))
	env.advance(4 * time.Second)

	exists, err := s.Exists(ctx, "1", "abc")
	require.NoError(t, err)
	require.True(t, exists)

	env.advance(2 * time.Second)
	exists, err = s.Exists(ctx, "1", "abc")
	require.NoError(t, err)
	require.False(t, exists)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestStoreExpireAtMostNeverExtends(t *testing.T) {
	env := newTestEnv(t)
	s := env.store("rt", 0)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "1", "abc", "v", time.Hour))

	ok, err := s.ExpireAtMost(ctx, "1", "abc", 8*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	ttl, err := s.RemainingTTL(ctx, "1", "abc")
	require.NoError(t, err)
	require.Equal(t, 8*time.Second, ttl)

	env.advance(5 * time.Second)
	ok, err = s.ExpireAtMost(ctx, "1", "abc", 8*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	ttl, err = s.RemainingTTL(ctx, "1", "abc")
	require.NoError(t, err)
	require.Equal(t, 3*time.Second, ttl)

	ok, err = s.ExpireAtMost(ctx, "1", "missing", 8*time.Second)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStoreAnyForAndCountAcrossPrefixes(t *testing.T) {
	env := newTestEnv(t)
	refresh := env.store("refresh", 1)
	blacklist := env.store("blacklist", 1)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		require.NoError(t, refresh.Upsert(ctx, "1", fmt.Sprintf("jti%02d", i), "x", time.Hour))
	}
	require.NoError(t, blacklist.Upsert(ctx, "2", "jti00", "true", time.Hour))

	found, err := refresh.AnyFor(ctx, "1")
	require.NoError(t, err)
	require.True(t, found)

	found, err = refresh.AnyFor(ctx, "2")
	require.NoError(t, err)
	require.False(t, found)

	count, err := refresh.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 25, count)

	count, err = blacklist.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestStoreScanToleratesConcurrentMutation(t *testing.T) {
	env := newTestEnv(t)
	s := env.store("refresh", 3)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		require.NoError(t, s.Upsert(ctx, "1", fmt.Sprintf("seed%02d", i), "x", time.Hour))
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_ = s.Upsert(ctx, "1", fmt.Sprintf("late%02d", i), "x", time.Hour)
			_, _ = s.Delete(ctx, "1", fmt.Sprintf("seed%02d", i))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			_, _ = s.FindAll(ctx, "1", "")
		}
	}()
	wg.Wait()

	all, err := s.FindAll(ctx, "1", "")
	require.NoError(t, err)
	require.Len(t, all, 50)
}

func TestStoreWrapsTransportFailures(t *testing.T) {
	env := newTestEnv(t)
	s := env.store("bl", 0)
	ctx := context.Background()
	env.mr.Close()

	err := s.Upsert(ctx, "1", "abc", "v", time.Minute)
	require.ErrorIs(t, err, ErrRedisUnavailable)
	_, err = s.Exists(ctx, "1", "abc")
	require.ErrorIs(t, err, ErrRedisUnavailable)
	_, err = s.Find(ctx, "1", "")
	require.ErrorIs(t, err, ErrRedisUnavailable)
}
