// Package streak tracks per-address consecutive-day activity.
package streak

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/R3E-Network/gm_engine/internal/app/domain/streak"
	"github.com/R3E-Network/gm_engine/internal/app/services/effects"
	"github.com/R3E-Network/gm_engine/internal/app/storage"
	"github.com/R3E-Network/gm_engine/pkg/logger"
)

const dayFormat = "2006-01-02"

// addressPattern is the canonical address shape. The key schema is a flat
// colon-separated namespace, so anything looser would let an address
// collide with the leaderboard and activity key families.
var addressPattern = regexp.MustCompile(`^0x[0-9a-f]{1,40}$`)

// ErrInvalidAddress is returned when the caller's address is not a
// 0x-prefixed hex string.
var ErrInvalidAddress = errors.New("streak: invalid address")

// Service computes and persists streak records. Streak writes need no
// conditional-write protocol: the only race is repeated same-day activity
// for one address, which the same-day no-op check already absorbs.
type Service struct {
	kv      storage.KV
	effects effects.Runner
	log     *logger.Logger
	now     func() time.Time
}

// New constructs a streak service.
func New(kv storage.KV, runner effects.Runner, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("streak")
	}
	return &Service{
		kv:      kv,
		effects: runner,
		log:     log,
		now:     time.Now,
	}
}

// TrackDailyActivity records qualifying activity for the address today.
// Calling it any number of times within one UTC day is equivalent to
// calling it once.
func (s *Service) TrackDailyActivity(ctx context.Context, address string) (streak.Record, error) {
	address, err := canonicalAddress(address)
	if err != nil {
		return streak.Record{}, err
	}

	now := s.now().UTC()
	today := now.Format(dayFormat)
	yesterday := now.AddDate(0, 0, -1).Format(dayFormat)

	rec, err := s.load(ctx, address)
	if err != nil {
		return streak.Record{}, err
	}
	if rec.LastActiveDay == today {
		return rec, nil
	}

	if rec.LastActiveDay == yesterday {
		rec.Current++
	} else {
		rec.Current = 1
	}
	if rec.Current > rec.Best {
		rec.Best = rec.Current
	}
	rec.LastActiveDay = today

	if err := s.persist(ctx, rec); err != nil {
		return streak.Record{}, err
	}

	month := now.Format("200601")
	current := rec.Current
	s.effects.Enqueue(effects.Effect{
		Name: "streak_activity_set",
		Run: func(ctx context.Context) error {
			return s.kv.SetAdd(ctx, storage.ActivityKey(today), address)
		},
	})
	s.effects.Enqueue(effects.Effect{
		Name: "streak_leaderboard",
		Run: func(ctx context.Context) error {
			// Overwrite, not increment: the board shows each address's
			// latest streak value.
			return s.kv.SortedSetSet(ctx, storage.StreakLeaderboardKey(month), address, float64(current))
		},
	})

	s.log.WithField("address", address).
		WithField("current", rec.Current).
		WithField("best", rec.Best).
		Debugf("daily activity tracked")
	return rec, nil
}

// Get returns the address's streak record with missed-day normalization
// applied. Every external read goes through here so skipped days surface
// without a background sweep.
func (s *Service) Get(ctx context.Context, address string) (streak.Record, error) {
	address, err := canonicalAddress(address)
	if err != nil {
		return streak.Record{}, err
	}
	rec, err := s.load(ctx, address)
	if err != nil {
		return streak.Record{}, err
	}
	return s.Normalize(ctx, address, rec)
}

// Normalize resets Current to zero when at least one full calendar day has
// been skipped since LastActiveDay, preserving Best, and persists the
// correction so later reads do not recompute it.
func (s *Service) Normalize(ctx context.Context, address string, rec streak.Record) (streak.Record, error) {
	if rec.Current == 0 || rec.LastActiveDay == "" {
		return rec, nil
	}

	now := s.now().UTC()
	today := now.Format(dayFormat)
	yesterday := now.AddDate(0, 0, -1).Format(dayFormat)
	if rec.LastActiveDay == today || rec.LastActiveDay == yesterday {
		return rec, nil
	}

	rec.Current = 0
	if err := s.persist(ctx, rec); err != nil {
		return streak.Record{}, err
	}
	s.log.WithField("address", address).
		WithField("last_active_day", rec.LastActiveDay).
		Debugf("streak reset after missed day")
	return rec, nil
}

// DailyActiveCount returns the number of distinct addresses active on the
// given day.
func (s *Service) DailyActiveCount(ctx context.Context, day string) (int64, error) {
	return s.kv.SetCount(ctx, storage.ActivityKey(day))
}

func (s *Service) load(ctx context.Context, address string) (streak.Record, error) {
	raw, err := s.kv.Get(ctx, storage.StreakKey(address))
	if err == storage.ErrNotFound {
		return streak.Record{Address: address}, nil
	}
	if err != nil {
		return streak.Record{}, err
	}

	var rec streak.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		// Unparseable records are replaced with a fresh default rather
		// than failing the call.
		s.log.WithField("address", address).WithError(err).Warn("malformed streak record, reinitializing")
		return streak.Record{Address: address}, nil
	}
	rec.Address = address
	return rec, nil
}

func (s *Service) persist(ctx context.Context, rec streak.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode streak record: %w", err)
	}
	return s.kv.Set(ctx, storage.StreakKey(rec.Address), raw)
}

func canonicalAddress(address string) (string, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	if !addressPattern.MatchString(address) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return address, nil
}
