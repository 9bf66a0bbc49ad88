// Package leaderboard derives the monthly and combined rankings from the
// persisted per-period structures.
package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/R3E-Network/gm_engine/internal/app/domain/leaderboard"
	"github.com/R3E-Network/gm_engine/internal/app/domain/streak"
	"github.com/R3E-Network/gm_engine/internal/app/storage"
	"github.com/R3E-Network/gm_engine/pkg/logger"
)

// DefaultTopN is the ranking truncation used when none is configured.
const DefaultTopN = 50

var monthPattern = regexp.MustCompile(`^\d{6}$`)

// ErrInvalidMonth is returned when the month selector is not yyyymm.
var ErrInvalidMonth = errors.New("leaderboard: invalid month")

// Boards is the pair of rankings returned to callers.
type Boards struct {
	StreakTop  []leaderboard.Entry `json:"streak_top"`
	MissionTop []leaderboard.Entry `json:"mission_top"`
}

// Service aggregates rankings. Combined views are recomputed on every read;
// the monthly sorted structures remain the only persisted state, so a
// dropped leaderboard side effect self-heals on the next mutation.
type Service struct {
	kv   storage.KV
	log  *logger.Logger
	topN int
}

// New constructs a leaderboard service. topN values below one fall back to
// DefaultTopN.
func New(kv storage.KV, topN int, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("leaderboard")
	}
	if topN < 1 {
		topN = DefaultTopN
	}
	return &Service{
		kv:   kv,
		log:  log,
		topN: topN,
	}
}

// Leaderboards returns the streak and mission rankings. A month in yyyymm
// form selects that month's boards; an empty month selects the combined
// all-time view.
func (s *Service) Leaderboards(ctx context.Context, month string) (Boards, error) {
	month = strings.TrimSpace(month)
	if month == "" {
		return s.combined(ctx)
	}
	if !monthPattern.MatchString(month) {
		return Boards{}, fmt.Errorf("%w: %q", ErrInvalidMonth, month)
	}
	return s.monthly(ctx, month)
}

func (s *Service) monthly(ctx context.Context, month string) (Boards, error) {
	streakTop, err := s.revRange(ctx, storage.StreakLeaderboardKey(month))
	if err != nil {
		return Boards{}, err
	}
	missionTop, err := s.revRange(ctx, storage.MissionLeaderboardKey(month))
	if err != nil {
		return Boards{}, err
	}
	return Boards{StreakTop: streakTop, MissionTop: missionTop}, nil
}

func (s *Service) combined(ctx context.Context) (Boards, error) {
	missionTop, err := s.combinedMissions(ctx)
	if err != nil {
		return Boards{}, err
	}
	streakTop, err := s.combinedStreaks(ctx)
	if err != nil {
		return Boards{}, err
	}
	return Boards{StreakTop: streakTop, MissionTop: missionTop}, nil
}

// combinedMissions sums each address's score across every historical
// monthly board: lifetime points are legitimately additive.
func (s *Service) combinedMissions(ctx context.Context) ([]leaderboard.Entry, error) {
	keys, err := s.kv.ScanKeys(ctx, storage.MissionLeaderboardKey("*"))
	if err != nil {
		return nil, err
	}

	totals := make(map[string]float64)
	for _, key := range keys {
		members, err := s.kv.SortedSetRevRange(ctx, key, 0, -1)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			totals[m.Member] += m.Score
		}
	}

	entries := make([]leaderboard.Entry, 0, len(totals))
	for address, total := range totals {
		entries = append(entries, leaderboard.Entry{Address: address, Score: int64(math.Round(total))})
	}
	return s.rank(entries), nil
}

// combinedStreaks ranks by each record's best streak: summing streak scores
// across months would conflate unrelated streak episodes, so the all-time
// view reads the records themselves.
func (s *Service) combinedStreaks(ctx context.Context) ([]leaderboard.Entry, error) {
	keys, err := s.kv.ScanKeys(ctx, "streak:*")
	if err != nil {
		return nil, err
	}

	var entries []leaderboard.Entry
	for _, key := range keys {
		// The streak family shares its prefix with the leaderboard and
		// activity structures; only plain records carry a best value.
		if strings.HasPrefix(key, "streak:leaderboard:") || strings.HasPrefix(key, "streak:activity:") {
			continue
		}
		raw, err := s.kv.Get(ctx, key)
		if err == storage.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		var rec streak.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			s.log.WithField("key", key).WithError(err).Warn("skipping malformed streak record")
			continue
		}
		if rec.Best <= 0 {
			continue
		}
		address := strings.TrimPrefix(key, "streak:")
		entries = append(entries, leaderboard.Entry{Address: address, Score: int64(rec.Best)})
	}
	return s.rank(entries), nil
}

func (s *Service) revRange(ctx context.Context, key string) ([]leaderboard.Entry, error) {
	members, err := s.kv.SortedSetRevRange(ctx, key, 0, int64(s.topN))
	if err != nil {
		return nil, err
	}
	entries := make([]leaderboard.Entry, 0, len(members))
	for _, m := range members {
		entries = append(entries, leaderboard.Entry{Address: m.Member, Score: int64(math.Round(m.Score))})
	}
	return entries, nil
}

// rank sorts descending with a stable address tie-break and truncates.
func (s *Service) rank(entries []leaderboard.Entry) []leaderboard.Entry {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Address < entries[j].Address
	})
	if len(entries) > s.topN {
		entries = entries[:s.topN]
	}
	return entries
}
