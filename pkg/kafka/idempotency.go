package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SeenStore records event IDs that were already handled.
// Implementations must be safe for concurrent use.
type SeenStore interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkSeen(ctx context.Context, eventID string) error
}

// MemorySeenStore keeps event IDs in process memory for ttl.
type MemorySeenStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

func NewMemorySeenStore(ttl time.Duration) *MemorySeenStore {
	return &MemorySeenStore{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemorySeenStore) Seen(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	at, ok := s.entries[eventID]
	if !ok {
		return false, nil
	}
	if s.now().Sub(at) > s.ttl {
		delete(s.entries, eventID)
		return false, nil
	}
	return true, nil
}

func (s *MemorySeenStore) MarkSeen(_ context.Context, eventID string) error {
	s.mu.Lock()
	s.entries[eventID] = s.now()
	s.mu.Unlock()
	return nil
}

// Len includes entries that expired but were not yet looked up.
func (s *MemorySeenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// RedisSeenStore shares seen event IDs across replicas through Redis keys
// that expire after ttl.
type RedisSeenStore struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisSeenStore(rdb redis.Cmdable, prefix string, ttl time.Duration) *RedisSeenStore {
	return &RedisSeenStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisSeenStore) key(eventID string) string {
	return s.prefix + eventID
}

func (s *RedisSeenStore) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.key(eventID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisSeenStore) MarkSeen(ctx context.Context, eventID string) error {
	return s.rdb.Set(ctx, s.key(eventID), 1, s.ttl).Err()
}
