package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// RefreshList is the set of user ids whose token claims are stale and must
// be re-resolved on next verification. Add and Remove are idempotent.
type RefreshList struct {
	redis redis.UniversalClient
	key   string
}

// NewRefreshList creates a [RefreshList] stored as a Redis set under key.
func NewRefreshList(client redis.UniversalClient, key string) *RefreshList {
	return &RefreshList{redis: client, key: key}
}

// Key returns the Redis key of the set.
func (l *RefreshList) Key() string {
	return l.key
}

// Add marks userIDs for forced refresh.
func (l *RefreshList) Add(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	members := make([]any, 0, len(userIDs))
	for _, id := range userIDs {
		if id == "" {
			return ErrInvalidKey
		}
		members = append(members, id)
	}
	if err := l.redis.SAdd(ctx, l.key, members...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Remove unmarks userID and reports whether it was a member. Concurrent
// callers racing on the same id see true exactly once.
//
//	Performance: 1 Redis SREM.
func (l *RefreshList) Remove(ctx context.Context, userID string) (bool, error) {
	n, err := l.redis.SRem(ctx, l.key, userID).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}

// Contains reports whether userID is marked.
//
//	Performance: 1 Redis SISMEMBER.
func (l *RefreshList) Contains(ctx context.Context, userID string) (bool, error) {
	ok, err := l.redis.SIsMember(ctx, l.key, userID).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ok, nil
}

// Members returns every marked user id in lexical order.
func (l *RefreshList) Members(ctx context.Context) ([]string, error) {
	members, err := l.redis.SMembers(ctx, l.key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	sort.Strings(members)
	return members, nil
}

// Size returns the number of marked users.
func (l *RefreshList) Size(ctx context.Context) (int64, error) {
	n, err := l.redis.SCard(ctx, l.key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n, nil
}

// Clear unmarks every user.
func (l *RefreshList) Clear(ctx context.Context) error {
	if err := l.redis.Del(ctx, l.key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
