// Package storage defines the persistence surface of the engine: a small
// key-value contract with conditional writes, pattern scans and sorted-set
// score operations. All keys passed through these interfaces are logical
// (unprefixed); adapters apply the application namespace.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("storage: key not found")

// ScoredMember is one entry of a sorted-set range result.
type ScoredMember struct {
	Member string
	Score  float64
}

// KV is the store contract required by the mission, streak, leaderboard
// and admin services.
//
// CompareAndSet writes next only if the key currently holds expected; a
// nil expected means the key must not exist yet. It reports whether the
// write was applied. This is the primitive behind the optimistic
// read-modify-write protocol used for mission mutations.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	CompareAndSet(ctx context.Context, key string, expected, next []byte) (bool, error)
	Delete(ctx context.Context, keys ...string) error

	// ScanKeys returns every key matching the glob pattern. Only the '*'
	// wildcard is supported.
	ScanKeys(ctx context.Context, pattern string) ([]string, error)

	SortedSetIncrBy(ctx context.Context, key, member string, delta float64) error
	SortedSetSet(ctx context.Context, key, member string, score float64) error
	// SortedSetRevRange returns members ordered by descending score,
	// starting at offset. A negative limit returns all remaining members.
	SortedSetRevRange(ctx context.Context, key string, offset, limit int64) ([]ScoredMember, error)

	SetAdd(ctx context.Context, key, member string) error
	SetCount(ctx context.Context, key string) (int64, error)
}
