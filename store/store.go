package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every transport-level failure of the backing store.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrInvalidLookup is returned when neither a user id nor a jti is supplied.
var ErrInvalidLookup = errors.New("user id or jti required")

// ErrInvalidKey is returned when a key part is empty or a jti contains the separator.
var ErrInvalidKey = errors.New("invalid record key")

// ErrExpired is returned when a record would be written with an expiry at or before now.
var ErrExpired = errors.New("record expiry is not in the future")

const (
	// TTLMissing is returned by RemainingTTL when the record does not exist.
	TTLMissing time.Duration = -2
	// TTLNoExpiry is returned by RemainingTTL when the record exists without an expiry.
	TTLNoExpiry time.Duration = -1
)

const (
	keySeparator     = ":"
	defaultScanCount = 100
)

// shortenScript lowers a key's TTL to ARGV[1] milliseconds unless it already
// expires sooner. It never extends a record.
const shortenScript = `
local ttl = redis.call("PTTL", KEYS[1])
if ttl == -2 then
  return 0
end
local limit = tonumber(ARGV[1])
if ttl < 0 or ttl > limit then
  redis.call("PEXPIRE", KEYS[1], limit)
end
return 1
`

var shortenLua = redis.NewScript(shortenScript)

// Record is one keyed, expiring entry of a namespace.
type Record struct {
	Namespace string
	UserID    string
	JTI       string
	Value     string
	ExpiresAt time.Time
}

// Store is a namespaced TTL record store over Redis. Records are keyed by
// (user id, jti) under a fixed prefix and expire through Redis' own TTL
// mechanism; the store never sweeps.
//
// Every single-key operation is atomic. Lookups by only one of the two key
// parts use a cursor SCAN: a record inserted or deleted mid-scan may be
// missed or seen, but every scan ends after one full pass.
//
//	Key layout: <prefix>:<user id>:<jti>
type Store struct {
	redis     redis.UniversalClient
	prefix    string
	scanCount int64
	now       func() time.Time
}

// NewStore creates a [Store] for the namespace prefix. scanCount is the
// SCAN COUNT hint (defaults to 100); now supplies the clock used to turn
// absolute expiries into TTLs (defaults to time.Now).
func NewStore(client redis.UniversalClient, prefix string, scanCount int64, now func() time.Time) *Store {
	if scanCount <= 0 {
		scanCount = defaultScanCount
	}
	if now == nil {
		now = time.Now
	}
	return &Store{
		redis:     client,
		prefix:    prefix,
		scanCount: scanCount,
		now:       now,
	}
}

// Namespace returns the key prefix of the store.
func (s *Store) Namespace() string {
	return s.prefix
}

// Now returns the store clock reading.
func (s *Store) Now() time.Time {
	return s.now()
}

func (s *Store) key(userID, jti string) string {
	return s.prefix + keySeparator + userID + keySeparator + jti
}

func (s *Store) pattern(userID, jti string) string {
	user := "*"
	if userID != "" {
		user = escapeGlob(userID)
	}
	id := "*"
	if jti != "" {
		id = escapeGlob(jti)
	}
	return escapeGlob(s.prefix) + keySeparator + user + keySeparator + id
}

// parseKey splits a stored key back into user id and jti. User ids may
// contain the separator; jtis may not.
func (s *Store) parseKey(key string) (string, string, bool) {
	rest, ok := strings.CutPrefix(key, s.prefix+keySeparator)
	if !ok {
		return "", "", false
	}
	idx := strings.LastIndex(rest, keySeparator)
	if idx <= 0 || idx == len(rest)-1 {
		return "", "", false
	}
	return rest[:idx], rest[idx+1:], true
}

// owned drops keys whose user id only matched the scan pattern because a
// longer id shares the prefix (user "7" against "7:eu"). An empty userID
// keeps everything.
func (s *Store) owned(keys []string, userID string) []string {
	if userID == "" {
		return keys
	}
	out := keys[:0:0]
	for _, k := range keys {
		if owner, _, ok := s.parseKey(k); ok && owner == userID {
			out = append(out, k)
		}
	}
	return out
}

func validKey(userID, jti string) error {
	if userID == "" || jti == "" || strings.Contains(jti, keySeparator) {
		return ErrInvalidKey
	}
	return nil
}

// Upsert writes value for (userID, jti) expiring ttl from now. An existing
// record is overwritten, including its expiry.
//
//	Performance: 1 Redis SET.
func (s *Store) Upsert(ctx context.Context, userID, jti, value string, ttl time.Duration) error {
	if err := validKey(userID, jti); err != nil {
		return err
	}
	if ttl <= 0 {
		return ErrExpired
	}
	if err := s.redis.Set(ctx, s.key(userID, jti), value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// UpsertUntil writes value for (userID, jti) expiring at expiresAt. A
// sub-second remainder is rounded up to one second.
func (s *Store) UpsertUntil(ctx context.Context, userID, jti, value string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return ErrExpired
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	return s.Upsert(ctx, userID, jti, value, ttl)
}

// Exists reports whether a live record exists for (userID, jti).
func (s *Store) Exists(ctx context.Context, userID, jti string) (bool, error) {
	if err := validKey(userID, jti); err != nil {
		return false, err
	}
	n, err := s.redis.Exists(ctx, s.key(userID, jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}

// Get returns the record stored under (userID, jti), or nil if absent.
//
//	Performance: 1 pipelined GET + PTTL.
func (s *Store) Get(ctx context.Context, userID, jti string) (*Record, error) {
	if err := validKey(userID, jti); err != nil {
		return nil, err
	}
	records, err := s.load(ctx, []string{s.key(userID, jti)})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// Find returns one record matching the given user id and/or jti, or nil.
// With both parts the lookup is exact. With one part the namespace is
// scanned and the first live match is returned.
func (s *Store) Find(ctx context.Context, userID, jti string) (*Record, error) {
	if userID == "" && jti == "" {
		return nil, ErrInvalidLookup
	}
	if userID != "" && jti != "" {
		return s.Get(ctx, userID, jti)
	}

	var found *Record
	err := s.scan(ctx, s.pattern(userID, jti), func(keys []string) (bool, error) {
		records, err := s.load(ctx, s.owned(keys, userID))
		if err != nil {
			return true, err
		}
		if len(records) > 0 {
			found = records[0]
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// FindAll returns every record matching the given user id and/or jti,
// ordered by user id then jti.
func (s *Store) FindAll(ctx context.Context, userID, jti string) ([]*Record, error) {
	if userID == "" && jti == "" {
		return nil, ErrInvalidLookup
	}
	if userID != "" && jti != "" {
		rec, err := s.Get(ctx, userID, jti)
		if err != nil || rec == nil {
			return []*Record{}, err
		}
		return []*Record{rec}, nil
	}

	seen := make(map[string]struct{})
	out := make([]*Record, 0)
	err := s.scan(ctx, s.pattern(userID, jti), func(keys []string) (bool, error) {
		fresh := keys[:0:0]
		for _, k := range s.owned(keys, userID) {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			fresh = append(fresh, k)
		}
		records, err := s.load(ctx, fresh)
		if err != nil {
			return true, err
		}
		out = append(out, records...)
		return false, nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].JTI < out[j].JTI
	})
	return out, nil
}

// AnyFor reports whether at least one record exists for userID. The scan
// stops at the first hit.
func (s *Store) AnyFor(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, ErrInvalidLookup
	}
	var found bool
	err := s.scan(ctx, s.pattern(userID, ""), func(keys []string) (bool, error) {
		for _, k := range keys {
			if owner, _, ok := s.parseKey(k); ok && owner == userID {
				found = true
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// Delete removes the record for (userID, jti) and reports whether it existed.
func (s *Store) Delete(ctx context.Context, userID, jti string) (bool, error) {
	if err := validKey(userID, jti); err != nil {
		return false, err
	}
	n, err := s.redis.Del(ctx, s.key(userID, jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}

// Expire sets the remaining lifetime of an existing record to ttl and
// reports whether the record existed.
func (s *Store) Expire(ctx context.Context, userID, jti string, ttl time.Duration) (bool, error) {
	if err := validKey(userID, jti); err != nil {
		return false, err
	}
	ok, err := s.redis.PExpire(ctx, s.key(userID, jti), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ok, nil
}

// ExpireAtMost lowers the remaining lifetime of an existing record to ttl
// unless it already expires sooner, and reports whether the record existed.
//
//	Performance: 1 Lua EVALSHA (PTTL + conditional PEXPIRE, atomic).
func (s *Store) ExpireAtMost(ctx context.Context, userID, jti string, ttl time.Duration) (bool, error) {
	if err := validKey(userID, jti); err != nil {
		return false, err
	}
	if ttl <= 0 {
		return s.Delete(ctx, userID, jti)
	}
	n, err := shortenLua.Run(ctx, s.redis, []string{s.key(userID, jti)}, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}

// RemainingTTL returns the time left before (userID, jti) expires, or
// [TTLMissing] when the record does not exist.
func (s *Store) RemainingTTL(ctx context.Context, userID, jti string) (time.Duration, error) {
	if err := validKey(userID, jti); err != nil {
		return TTLMissing, err
	}
	ttl, err := s.redis.PTTL(ctx, s.key(userID, jti)).Result()
	if err != nil {
		return TTLMissing, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	switch ttl {
	case -2:
		return TTLMissing, nil
	case -1:
		return TTLNoExpiry, nil
	}
	return ttl, nil
}

// Count returns the number of live records in the namespace.
// This is an O(n) scan and must not be used in request hot paths.
func (s *Store) Count(ctx context.Context) (int, error) {
	total := 0
	seen := make(map[string]struct{})
	err := s.scan(ctx, escapeGlob(s.prefix)+keySeparator+"*", func(keys []string) (bool, error) {
		for _, k := range keys {
			if _, dup := seen[k]; dup {
				continue
			}
			if _, _, ok := s.parseKey(k); ok {
				seen[k] = struct{}{}
				total++
			}
		}
		return false, nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// scan walks the keyspace once with a resumable cursor and hands every
// non-empty batch to fn until fn asks to stop or the cursor wraps to 0.
func (s *Store) scan(ctx context.Context, pattern string, fn func(keys []string) (bool, error)) error {
	var cursor uint64
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, s.scanCount).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if len(keys) > 0 {
			stop, err := fn(keys)
			if err != nil {
				return err
			}
			if stop {
				return nil
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// load fetches value and TTL for keys in one pipeline and drops keys that
// vanished between SCAN and GET.
func (s *Store) load(ctx context.Context, keys []string) ([]*Record, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	pipe := s.redis.Pipeline()
	gets := make([]*redis.StringCmd, len(keys))
	ttls := make([]*redis.DurationCmd, len(keys))
	for i, k := range keys {
		gets[i] = pipe.Get(ctx, k)
		ttls[i] = pipe.PTTL(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	now := s.now()
	out := make([]*Record, 0, len(keys))
	for i, k := range keys {
		value, err := gets[i].Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		userID, jti, ok := s.parseKey(k)
		if !ok {
			continue
		}
		rec := &Record{
			Namespace: s.prefix,
			UserID:    userID,
			JTI:       jti,
			Value:     value,
		}
		if ttl, err := ttls[i].Result(); err == nil && ttl > 0 {
			rec.ExpiresAt = now.Add(ttl)
		}
		out = append(out, rec)
	}
	return out, nil
}

func escapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
