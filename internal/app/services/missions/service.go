// Package missions applies task completions to per-address per-day mission
// records under the optimistic conditional-write protocol.
package missions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/R3E-Network/gm_engine/internal/app/domain/missions"
	"github.com/R3E-Network/gm_engine/internal/app/metrics"
	"github.com/R3E-Network/gm_engine/internal/app/services/effects"
	"github.com/R3E-Network/gm_engine/internal/app/storage"
	"github.com/R3E-Network/gm_engine/pkg/logger"
)

const (
	dayFormat = "2006-01-02"

	// maxWriteAttempts bounds the conditional-write retry loop.
	maxWriteAttempts = 5

	// maxCountPerCall bounds a single call's effect on counter subtasks.
	maxCountPerCall = 1000
)

// ErrUpdateContention is returned when every conditional-write attempt lost
// to a concurrent writer. The caller is expected to retry the operation.
var ErrUpdateContention = errors.New("missions: update contention, retries exhausted")

// addressPattern is the canonical address shape; looser input could
// collide with the leaderboard and proof key families in the flat
// colon-separated namespace.
var addressPattern = regexp.MustCompile(`^0x[0-9a-f]{1,40}$`)

// ErrInvalidAddress is returned when the caller's address is not a
// 0x-prefixed hex string.
var ErrInvalidAddress = errors.New("missions: invalid address")

// ErrInvalidDay is returned when a day parameter is not in 2006-01-02 form.
var ErrInvalidDay = errors.New("missions: invalid day")

// Service is the mission progress tracker.
type Service struct {
	kv      storage.KV
	effects effects.Runner
	log     *logger.Logger
	now     func() time.Time
}

// New constructs a mission service.
func New(kv storage.KV, runner effects.Runner, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("missions")
	}
	return &Service{
		kv:      kv,
		effects: runner,
		log:     log,
		now:     time.Now,
	}
}

// ApplyTask applies one task completion to today's mission record for the
// address. The mutation runs as a read-modify-conditional-write loop so
// concurrent calls completing different subtasks both land and concurrent
// calls completing the same subtask cannot double-award points. Proof is an
// optional caller-supplied JSON blob persisted independently for audit.
func (s *Service) ApplyTask(ctx context.Context, address, taskID string, proof []byte, count int) (missions.Day, error) {
	address, err := canonicalAddress(address)
	if err != nil {
		return missions.Day{}, err
	}
	if !missions.KnownTask(taskID) {
		return missions.Day{}, fmt.Errorf("%w: %s", missions.ErrUnknownTask, taskID)
	}
	if count < 1 {
		count = 1
	}
	if count > maxCountPerCall {
		count = maxCountPerCall
	}

	now := s.now().UTC()
	today := now.Format(dayFormat)
	key := storage.MissionDayKey(address, today)

	var lastErr error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		raw, err := s.kv.Get(ctx, key)
		if err != nil && err != storage.ErrNotFound {
			lastErr = err
			continue
		}

		day := s.decode(raw, address, today)
		changed, gained, completedNow, err := missions.Apply(&day, taskID, count, now)
		if err != nil {
			return missions.Day{}, err
		}
		if !changed {
			// Subtask already satisfied; nothing to write.
			return day, nil
		}

		next, err := json.Marshal(day)
		if err != nil {
			return missions.Day{}, fmt.Errorf("encode mission record: %w", err)
		}

		applied, err := s.kv.CompareAndSet(ctx, key, raw, next)
		if err != nil {
			lastErr = err
			continue
		}
		if !applied {
			metrics.RecordWriteConflict()
			continue
		}

		s.afterApply(address, taskID, today, now, gained, completedNow, proof)
		return day, nil
	}

	metrics.RecordWriteExhausted()
	if lastErr != nil {
		return missions.Day{}, fmt.Errorf("apply task %s for %s: %w", taskID, address, lastErr)
	}
	s.log.WithField("address", address).WithField("task_id", taskID).Warn("mission update contention")
	return missions.Day{}, ErrUpdateContention
}

// GetDay returns the mission record for the address and day (today when day
// is empty), creating and persisting a zeroed record on first access.
func (s *Service) GetDay(ctx context.Context, address, day string) (missions.Day, error) {
	address, err := canonicalAddress(address)
	if err != nil {
		return missions.Day{}, err
	}
	if day == "" {
		day = s.now().UTC().Format(dayFormat)
	} else if _, err := time.Parse(dayFormat, day); err != nil {
		return missions.Day{}, fmt.Errorf("%w: %q", ErrInvalidDay, day)
	}

	key := storage.MissionDayKey(address, day)
	raw, err := s.kv.Get(ctx, key)
	if err != nil && err != storage.ErrNotFound {
		return missions.Day{}, err
	}
	if err == nil {
		var rec missions.Day
		if jsonErr := json.Unmarshal(raw, &rec); jsonErr == nil {
			return rec, nil
		}
		s.log.WithField("address", address).WithField("day", day).Warn("malformed mission record, reinitializing")
	}

	fresh := missions.NewDay(address, day)
	encoded, encErr := json.Marshal(fresh)
	if encErr != nil {
		return missions.Day{}, fmt.Errorf("encode mission record: %w", encErr)
	}

	// Condition the create on the value we read so a concurrent writer's
	// progress is never clobbered; on conflict the winner's record is
	// returned instead.
	applied, casErr := s.kv.CompareAndSet(ctx, key, raw, encoded)
	if casErr != nil {
		return missions.Day{}, casErr
	}
	if applied {
		return fresh, nil
	}

	raw, err = s.kv.Get(ctx, key)
	if err != nil {
		return missions.Day{}, err
	}
	return s.decode(raw, address, day), nil
}

// ClaimReward writes the idempotency marker for a logical reward event.
// It reports true only for the first caller; duplicates see false.
func (s *Service) ClaimReward(ctx context.Context, address, rewardID string) (bool, error) {
	address, err := canonicalAddress(address)
	if err != nil {
		return false, err
	}
	marker, err := json.Marshal(map[string]string{
		"address":    address,
		"reward_id":  rewardID,
		"claimed_at": s.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return false, err
	}
	return s.kv.CompareAndSet(ctx, storage.IdempotencyKey(address, rewardID), nil, marker)
}

// afterApply enqueues the best-effort side effects of a successful write.
func (s *Service) afterApply(address, taskID, day string, now time.Time, gained int, completedNow bool, proof []byte) {
	if gained > 0 {
		month := now.Format("200601")
		delta := float64(gained)
		s.effects.Enqueue(effects.Effect{
			Name: "mission_leaderboard",
			Run: func(ctx context.Context) error {
				return s.kv.SortedSetIncrBy(ctx, storage.MissionLeaderboardKey(month), address, delta)
			},
		})
	}

	if len(proof) > 0 {
		record := missions.ProofRecord{
			ID:         uuid.NewString(),
			Address:    address,
			Day:        day,
			TaskID:     taskID,
			TxHash:     gjson.GetBytes(proof, "tx_hash").String(),
			Meta:       gjson.GetBytes(proof, "meta").Raw,
			RecordedAt: now,
		}
		s.effects.Enqueue(effects.Effect{
			Name: "mission_proof",
			Run: func(ctx context.Context) error {
				encoded, err := json.Marshal(record)
				if err != nil {
					return err
				}
				return s.kv.Set(ctx, storage.ProofKey(address, day, taskID), encoded)
			},
		})
	}

	if completedNow {
		rewardID := "day-complete:" + day
		s.effects.Enqueue(effects.Effect{
			Name: "mission_day_reward",
			Run: func(ctx context.Context) error {
				first, err := s.ClaimReward(ctx, address, rewardID)
				if err != nil {
					return err
				}
				if first {
					s.log.WithField("address", address).WithField("day", day).Info("mission day completed")
				}
				return nil
			},
		})
	}
}

func (s *Service) decode(raw []byte, address, day string) missions.Day {
	if raw == nil {
		return missions.NewDay(address, day)
	}
	var rec missions.Day
	if err := json.Unmarshal(raw, &rec); err != nil {
		s.log.WithField("address", address).WithField("day", day).Warn("malformed mission record, reinitializing")
		return missions.NewDay(address, day)
	}
	return rec
}

func canonicalAddress(address string) (string, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	if !addressPattern.MatchString(address) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return address, nil
}
