package history

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/companion/internal/cache"
)

// CachedStore 在任意 Store 前加一层 Redis 缓存。
// List/Read 结果按 TTL 缓存，Append/Delete 时失效；并发的相同读取通过
// singleflight 合并为一次后端访问。
type CachedStore struct {
	next   Store
	cache  *cache.Manager
	ttl    time.Duration
	group  singleflight.Group
	logger *zap.Logger
}

// NewCachedStore wraps next. A zero ttl uses the cache manager default.
func NewCachedStore(next Store, c *cache.Manager, ttl time.Duration, logger *zap.Logger) *CachedStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedStore{
		next:   next,
		cache:  c,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "history_cache")),
	}
}

func listKey(confUID string) string { return "history:list:" + confUID }

func readKey(confUID, historyUID string) string {
	return "history:read:" + confUID + ":" + historyUID
}

// Create implements Store. New histories are empty and never listed, so no
// cache entry is affected.
func (s *CachedStore) Create(ctx context.Context, confUID string) (string, error) {
	return s.next.Create(ctx, confUID)
}

// Append implements Store.
func (s *CachedStore) Append(ctx context.Context, confUID, historyUID string, msg Message) error {
	if err := s.next.Append(ctx, confUID, historyUID, msg); err != nil {
		return err
	}
	s.invalidate(ctx, listKey(confUID), readKey(confUID, historyUID))
	return nil
}

// Delete implements Store.
func (s *CachedStore) Delete(ctx context.Context, confUID, historyUID string) error {
	if err := s.next.Delete(ctx, confUID, historyUID); err != nil {
		return err
	}
	s.invalidate(ctx, listKey(confUID), readKey(confUID, historyUID))
	return nil
}

// Read implements Store.
func (s *CachedStore) Read(ctx context.Context, confUID, historyUID string) ([]Message, error) {
	if err := sanitizePair(confUID, historyUID); err != nil {
		return nil, err
	}
	key := readKey(confUID, historyUID)

	var msgs []Message
	if s.lookup(ctx, key, &msgs) {
		return msgs, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		msgs, err := s.next.Read(ctx, confUID, historyUID)
		if err != nil {
			return nil, err
		}
		s.store(ctx, key, msgs)
		return msgs, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneMessages(v.([]Message)), nil
}

// List implements Store.
func (s *CachedStore) List(ctx context.Context, confUID string) ([]Info, error) {
	if _, err := SanitizePathComponent(confUID); err != nil {
		return nil, err
	}
	key := listKey(confUID)

	var infos []Info
	if s.lookup(ctx, key, &infos) {
		return infos, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		infos, err := s.next.List(ctx, confUID)
		if err != nil {
			return nil, err
		}
		s.store(ctx, key, infos)
		return infos, nil
	})
	if err != nil {
		return nil, err
	}
	out := append([]Info(nil), v.([]Info)...)
	if out == nil {
		out = []Info{}
	}
	return out, nil
}

// Close closes the wrapped store when it holds connections.
func (s *CachedStore) Close(ctx context.Context) error {
	if c, ok := s.next.(Closer); ok {
		return c.Close(ctx)
	}
	return nil
}

// CacheStats implements CacheReporter.
func (s *CachedStore) CacheStats(ctx context.Context) (*cache.Stats, error) {
	return s.cache.GetStats(ctx)
}

// lookup 缓存故障时退化为直接读后端
func (s *CachedStore) lookup(ctx context.Context, key string, dest any) bool {
	err := s.cache.GetJSON(ctx, key, dest)
	if err == nil {
		return true
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("history cache read failed", zap.String("key", key), zap.Error(err))
	}
	return false
}

func (s *CachedStore) store(ctx context.Context, key string, v any) {
	if err := s.cache.SetJSON(ctx, key, v, s.ttl); err != nil {
		s.logger.Warn("history cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *CachedStore) invalidate(ctx context.Context, keys ...string) {
	for _, k := range keys {
		s.group.Forget(k)
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.Warn("history cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func cloneMessages(in []Message) []Message {
	out := make([]Message, len(in))
	copy(out, in)
	return out
}

var (
	_ Store  = (*CachedStore)(nil)
	_ Closer = (*CachedStore)(nil)
)
