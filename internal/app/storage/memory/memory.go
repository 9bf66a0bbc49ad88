// Package memory provides an in-memory implementation of the storage.KV
// contract. It is safe for concurrent use, honours the same compare-and-set
// semantics as the redis adapter, and is primarily intended for tests and
// local development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/R3E-Network/gm_engine/internal/app/storage"
)

// Store is a mutex-guarded map-backed key-value store.
type Store struct {
	mu      sync.RWMutex
	values  map[string][]byte
	zsets   map[string]map[string]float64
	sets    map[string]map[string]struct{}
	failCAS bool
}

var _ storage.KV = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		values: make(map[string][]byte),
		zsets:  make(map[string]map[string]float64),
		sets:   make(map[string]map[string]struct{}),
	}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	val, ok := s.values[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = clone(value)
	return nil
}

func (s *Store) CompareAndSet(_ context.Context, key string, expected, next []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failCAS {
		return false, nil
	}

	cur, exists := s.values[key]
	if expected == nil {
		if exists {
			return false, nil
		}
	} else {
		if !exists || string(cur) != string(expected) {
			return false, nil
		}
	}
	s.values[key] = clone(next)
	return true, nil
}

func (s *Store) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.values, key)
		delete(s.zsets, key)
		delete(s.sets, key)
	}
	return nil
}

func (s *Store) ScanKeys(_ context.Context, pattern string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for key := range s.values {
		if storage.MatchPattern(pattern, key) {
			keys = append(keys, key)
		}
	}
	for key := range s.zsets {
		if storage.MatchPattern(pattern, key) {
			keys = append(keys, key)
		}
	}
	for key := range s.sets {
		if storage.MatchPattern(pattern, key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) SortedSetIncrBy(_ context.Context, key, member string, delta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	zset, ok := s.zsets[key]
	if !ok {
		zset = make(map[string]float64)
		s.zsets[key] = zset
	}
	zset[member] += delta
	return nil
}

func (s *Store) SortedSetSet(_ context.Context, key, member string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	zset, ok := s.zsets[key]
	if !ok {
		zset = make(map[string]float64)
		s.zsets[key] = zset
	}
	zset[member] = score
	return nil
}

func (s *Store) SortedSetRevRange(_ context.Context, key string, offset, limit int64) ([]storage.ScoredMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	zset := s.zsets[key]
	members := make([]storage.ScoredMember, 0, len(zset))
	for member, score := range zset {
		members = append(members, storage.ScoredMember{Member: member, Score: score})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Score != members[j].Score {
			return members[i].Score > members[j].Score
		}
		// Redis orders equal scores lexicographically; reversed here.
		return members[i].Member > members[j].Member
	})

	if offset >= int64(len(members)) {
		return nil, nil
	}
	members = members[offset:]
	if limit >= 0 && limit < int64(len(members)) {
		members = members[:limit]
	}
	return members, nil
}

func (s *Store) SetAdd(_ context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	set[member] = struct{}{}
	return nil
}

func (s *Store) SetCount(_ context.Context, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.sets[key])), nil
}

// FailCompareAndSet makes every subsequent CompareAndSet report a conflict.
// Tests use it to exercise the contention-exhausted path.
func (s *Store) FailCompareAndSet(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCAS = fail
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
