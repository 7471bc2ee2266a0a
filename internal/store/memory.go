package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process implementation of the store operations,
// guarded by a single mutex. It exists for unit tests and local development
// where Redis is unavailable; the mutex gives the same mutation atomicity the
// Lua script provides on the server.
type MemoryStore struct {
	mu     sync.Mutex
	zsets  map[string]map[string]float64
	values map[string]memoryValue
	now    func() time.Time
}

type memoryValue struct {
	data      string
	expiresAt time.Time // zero means no expiry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		zsets:  make(map[string]map[string]float64),
		values: make(map[string]memoryValue),
		now:    time.Now,
	}
}

func (s *MemoryStore) set(key string) map[string]float64 {
	z, ok := s.zsets[key]
	if !ok {
		z = make(map[string]float64)
		s.zsets[key] = z
	}
	return z
}

// ZAddNX adds a member only if absent. Returns true if the member was added.
func (s *MemoryStore) ZAddNX(_ context.Context, key, member string, score float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	z := s.set(key)
	if _, exists := z[member]; exists {
		return false, nil
	}
	z[member] = score
	return true, nil
}

// ZAddAt adds a member with an explicit score, overwriting any existing score.
func (s *MemoryStore) ZAddAt(_ context.Context, key, member string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.set(key)[member] = score
	return nil
}

// ZRem removes members from a sorted set.
func (s *MemoryStore) ZRem(_ context.Context, key string, members ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	z, ok := s.zsets[key]
	if !ok {
		return 0, nil
	}
	var removed int64
	for _, m := range members {
		if _, exists := z[m]; exists {
			delete(z, m)
			removed++
		}
	}
	return removed, nil
}

// ZRevRange returns members between start and stop ranks, highest score first.
// Ties are broken by member, descending, matching Redis ZREVRANGE order.
func (s *MemoryStore) ZRevRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	z, ok := s.zsets[key]
	if !ok {
		return nil, nil
	}

	type entry struct {
		member string
		score  float64
	}
	entries := make([]entry, 0, len(z))
	for m, sc := range z {
		entries = append(entries, entry{m, sc})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].member > entries[j].member
	})

	n := int64(len(entries))
	if start < 0 {
		start = 0
	}
	if stop < 0 || stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return nil, nil
	}

	out := make([]string, 0, stop-start+1)
	for _, e := range entries[start : stop+1] {
		out = append(out, e.member)
	}
	return out, nil
}

// ZCard returns the number of members in a sorted set.
func (s *MemoryStore) ZCard(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.zsets[key])), nil
}

// ZScore looks up a member's score.
func (s *MemoryStore) ZScore(_ context.Context, key, member string) (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	z, ok := s.zsets[key]
	if !ok {
		return 0, false, nil
	}
	score, exists := z[member]
	return score, exists, nil
}

// ZRangeByScore returns members with scores in [min, max], lowest first.
func (s *MemoryStore) ZRangeByScore(_ context.Context, key string, min, max float64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	z, ok := s.zsets[key]
	if !ok {
		return nil, nil
	}

	type entry struct {
		member string
		score  float64
	}
	var entries []entry
	for m, sc := range z {
		if sc >= min && sc <= max {
			entries = append(entries, entry{m, sc})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score < entries[j].score
		}
		return entries[i].member < entries[j].member
	})

	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.member)
	}
	return out, nil
}

// ZIncrByBoundedMulti applies delta to member across all sets under one lock,
// mirroring the atomicity of the server-side script.
func (s *MemoryStore) ZIncrByBoundedMulti(_ context.Context, sets []KeyTTL, member string, delta, floor float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result float64
	for _, set := range sets {
		z := s.set(set.Key)
		score := z[member] + delta
		if score < floor {
			score = floor
		}
		z[member] = score
		result = score
	}
	return result, nil
}

// Del removes keys of either kind.
func (s *MemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.zsets, k)
		delete(s.values, k)
	}
	return nil
}

// Expire is a no-op for sorted sets in the in-memory store; per-key expiry is
// only honored for cache values.
func (s *MemoryStore) Expire(_ context.Context, _ string, _ time.Duration) error {
	return nil
}

// Get reads a cache value, honoring expiry.
func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.values[key]
	if !ok {
		return "", false, nil
	}
	if !v.expiresAt.IsZero() && s.now().After(v.expiresAt) {
		delete(s.values, key)
		return "", false, nil
	}
	return v.data, true, nil
}

// Set writes a cache value with an optional TTL.
func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := memoryValue{data: value}
	if ttl > 0 {
		v.expiresAt = s.now().Add(ttl)
	}
	s.values[key] = v
	return nil
}

// Delete removes cache entries.
func (s *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	return s.Del(ctx, keys...)
}
