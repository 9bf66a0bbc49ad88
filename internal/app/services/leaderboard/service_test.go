package leaderboard

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/gm_engine/internal/app/domain/leaderboard"
	"github.com/R3E-Network/gm_engine/internal/app/domain/streak"
	"github.com/R3E-Network/gm_engine/internal/app/storage"
	"github.com/R3E-Network/gm_engine/internal/app/storage/memory"
)

func entry(address string, score int64) leaderboard.Entry {
	return leaderboard.Entry{Address: address, Score: score}
}

func seedStreakRecord(t *testing.T, kv *memory.Store, address string, current, best int) {
	t.Helper()
	raw, err := json.Marshal(streak.Record{Address: address, Current: current, Best: best, LastActiveDay: "2025-01-15"})
	require.NoError(t, err)
	require.NoError(t, kv.Set(context.Background(), storage.StreakKey(address), raw))
}

func TestLeaderboards_MonthlyRankings(t *testing.T) {
	kv := memory.New()
	svc := New(kv, 10, nil)
	ctx := context.Background()

	require.NoError(t, kv.SortedSetIncrBy(ctx, storage.MissionLeaderboardKey("202501"), "0xaaa", 40))
	require.NoError(t, kv.SortedSetIncrBy(ctx, storage.MissionLeaderboardKey("202501"), "0xbbb", 80))
	require.NoError(t, kv.SortedSetSet(ctx, storage.StreakLeaderboardKey("202501"), "0xaaa", 3))
	require.NoError(t, kv.SortedSetSet(ctx, storage.StreakLeaderboardKey("202501"), "0xbbb", 7))

	boards, err := svc.Leaderboards(ctx, "202501")
	require.NoError(t, err)

	require.Equal(t, []leaderboard.Entry{entry("0xbbb", 80), entry("0xaaa", 40)}, boards.MissionTop)
	require.Equal(t, []leaderboard.Entry{entry("0xbbb", 7), entry("0xaaa", 3)}, boards.StreakTop)
}

func TestLeaderboards_CombinedMissionsSumAcrossMonths(t *testing.T) {
	kv := memory.New()
	svc := New(kv, 10, nil)
	ctx := context.Background()

	// 20 points in January plus 20 in February: the February board shows
	// 20, the combined view shows 40.
	require.NoError(t, kv.SortedSetIncrBy(ctx, storage.MissionLeaderboardKey("202501"), "0xaaa", 20))
	require.NoError(t, kv.SortedSetIncrBy(ctx, storage.MissionLeaderboardKey("202502"), "0xaaa", 20))

	boards, err := svc.Leaderboards(ctx, "202502")
	require.NoError(t, err)
	require.Equal(t, []leaderboard.Entry{entry("0xaaa", 20)}, boards.MissionTop)

	boards, err = svc.Leaderboards(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []leaderboard.Entry{entry("0xaaa", 40)}, boards.MissionTop)
}

func TestLeaderboards_CombinedStreaksUseBest(t *testing.T) {
	kv := memory.New()
	svc := New(kv, 10, nil)
	ctx := context.Background()

	seedStreakRecord(t, kv, "0xaaa", 1, 9)
	seedStreakRecord(t, kv, "0xbbb", 4, 4)
	seedStreakRecord(t, kv, "0xccc", 0, 0)

	// Non-record structures under the streak prefix must not surface.
	require.NoError(t, kv.SortedSetSet(ctx, storage.StreakLeaderboardKey("202501"), "0xzzz", 99))
	require.NoError(t, kv.SetAdd(ctx, storage.ActivityKey("2025-01-15"), "0xzzz"))

	boards, err := svc.Leaderboards(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []leaderboard.Entry{entry("0xaaa", 9), entry("0xbbb", 4)}, boards.StreakTop)
}

func TestLeaderboards_TieBreakAndTruncation(t *testing.T) {
	kv := memory.New()
	svc := New(kv, 2, nil)
	ctx := context.Background()

	require.NoError(t, kv.SortedSetIncrBy(ctx, storage.MissionLeaderboardKey("202501"), "0xccc", 30))
	require.NoError(t, kv.SortedSetIncrBy(ctx, storage.MissionLeaderboardKey("202501"), "0xaaa", 30))
	require.NoError(t, kv.SortedSetIncrBy(ctx, storage.MissionLeaderboardKey("202501"), "0xbbb", 10))

	boards, err := svc.Leaderboards(ctx, "")
	require.NoError(t, err)
	require.Len(t, boards.MissionTop, 2)
	require.Equal(t, []leaderboard.Entry{entry("0xaaa", 30), entry("0xccc", 30)}, boards.MissionTop)
}

func TestLeaderboards_RejectsMalformedMonth(t *testing.T) {
	svc := New(memory.New(), 10, nil)
	for _, month := range []string{"2025-01", "20251", "abcdef", "2025011"} {
		_, err := svc.Leaderboards(context.Background(), month)
		require.ErrorIs(t, err, ErrInvalidMonth, "month %q", month)
	}
}

func TestLeaderboards_EmptyStoreReturnsEmptyBoards(t *testing.T) {
	svc := New(memory.New(), 10, nil)

	boards, err := svc.Leaderboards(context.Background(), "202501")
	require.NoError(t, err)
	require.Empty(t, boards.MissionTop)
	require.Empty(t, boards.StreakTop)

	boards, err = svc.Leaderboards(context.Background(), "")
	require.NoError(t, err)
	require.Empty(t, boards.MissionTop)
	require.Empty(t, boards.StreakTop)
}
