// Package adminreset performs bulk, scoped deletion of persisted engine
// state. Resets are destructive and irreversible; callers reach this
// service only through an authenticated administrative path.
package adminreset

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/gm_engine/internal/app/domain/admin"
	"github.com/R3E-Network/gm_engine/internal/app/metrics"
	"github.com/R3E-Network/gm_engine/internal/app/storage"
	"github.com/R3E-Network/gm_engine/pkg/logger"
)

// deleteBatchSize respects store-side limits on bulk deletes.
const deleteBatchSize = 100

// ErrInvalidScope is returned before any scan or delete when the scope is
// not one of the supported values.
var ErrInvalidScope = errors.New("adminreset: invalid scope")

// scopePatterns lists the key globs each scope expands to. Patterns may
// overlap (the broad mission pattern and the proof pattern both match
// proof keys); matched keys are deduplicated before deletion.
var scopePatterns = map[admin.Scope][]string{
	admin.ScopeStreaks: {
		"streak:*",
	},
	admin.ScopeMissions: {
		"missions:*",
		"missions:proof:*",
		"idemp:*",
	},
}

// Service executes scoped resets.
type Service struct {
	kv  storage.KV
	log *logger.Logger
	now func() time.Time
}

// New constructs an admin reset service.
func New(kv storage.KV, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("adminreset")
	}
	return &Service{
		kv:  kv,
		log: log,
		now: time.Now,
	}
}

// Reset deletes every key in the scope's families and returns an audit
// entry carrying the number of distinct keys removed.
func (s *Service) Reset(ctx context.Context, scope admin.Scope) (admin.ResetAudit, error) {
	if !scope.Valid() {
		return admin.ResetAudit{}, ErrInvalidScope
	}

	keys, err := s.collect(ctx, scope)
	if err != nil {
		return admin.ResetAudit{}, err
	}

	deleted := 0
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(keys) {
			end = len(keys)
		}
		batch := keys[start:end]

		if err := s.kv.Delete(ctx, batch...); err == nil {
			deleted += len(batch)
			continue
		}
		// A failing batch falls back to single-key deletes so one bad key
		// cannot block the rest.
		for _, key := range batch {
			if err := s.kv.Delete(ctx, key); err != nil {
				s.log.WithField("key", key).WithError(err).Warn("reset: key delete failed")
				continue
			}
			deleted++
		}
	}

	audit := admin.ResetAudit{
		ID:          uuid.NewString(),
		Scope:       scope,
		DeletedKeys: deleted,
		At:          s.now().UTC(),
	}
	if encoded, err := json.Marshal(audit); err == nil {
		if err := s.kv.Set(ctx, storage.AdminLastResetKey, encoded); err != nil {
			s.log.WithError(err).Warn("reset: audit write failed")
		}
	}

	metrics.RecordKeysDeleted(deleted)
	s.log.WithField("scope", string(scope)).
		WithField("deleted_keys", deleted).
		Info("admin reset executed")
	return audit, nil
}

// collect scans every pattern for the scope and returns the deduplicated
// key set, so no key is counted or deleted more than once.
func (s *Service) collect(ctx context.Context, scope admin.Scope) ([]string, error) {
	patterns := scopePatterns[scope]
	if scope == admin.ScopeAll {
		union := make([]string, 0, len(scopePatterns[admin.ScopeStreaks])+len(scopePatterns[admin.ScopeMissions]))
		union = append(union, scopePatterns[admin.ScopeStreaks]...)
		union = append(union, scopePatterns[admin.ScopeMissions]...)
		patterns = union
	}

	seen := make(map[string]struct{})
	var keys []string
	for _, pattern := range patterns {
		matched, err := s.kv.ScanKeys(ctx, pattern)
		if err != nil {
			return nil, err
		}
		for _, key := range matched {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	return keys, nil
}
