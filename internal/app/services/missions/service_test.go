package missions

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	missionsdomain "github.com/R3E-Network/gm_engine/internal/app/domain/missions"
	"github.com/R3E-Network/gm_engine/internal/app/services/effects"
	"github.com/R3E-Network/gm_engine/internal/app/storage"
	"github.com/R3E-Network/gm_engine/internal/app/storage/memory"
)

var fixedNow = time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	kv := memory.New()
	svc := New(kv, effects.Inline{}, nil)
	svc.now = func() time.Time { return fixedNow }
	return svc, kv
}

func TestApplyTask_PointsFollowSectionWeights(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	day, err := svc.ApplyTask(ctx, "0xABC", missionsdomain.TaskCheckIn, nil, 1)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if day.Pts != 0 {
		t.Fatalf("expected 0 pts, got %d", day.Pts)
	}
	if day.Address != "0xabc" {
		t.Fatalf("address not canonicalized: %s", day.Address)
	}

	prev := 0
	sequence := []string{
		missionsdomain.TaskShare,
		missionsdomain.TaskOpenApp,
		missionsdomain.TaskQuiz,
		missionsdomain.TaskReadArticle,
		missionsdomain.TaskSendTx,
		missionsdomain.TaskStakeGas,
		missionsdomain.TaskVoteCouncil,
	}
	for _, taskID := range sequence {
		day, err = svc.ApplyTask(ctx, "0xabc", taskID, nil, 1)
		if err != nil {
			t.Fatalf("apply %s: %v", taskID, err)
		}
		if day.Pts < prev {
			t.Fatalf("points decreased: %d -> %d after %s", prev, day.Pts, taskID)
		}
		prev = day.Pts
	}

	want := 0
	for _, sec := range []struct {
		done   bool
		weight int
	}{
		{day.Social.Done, missionsdomain.WeightSocial},
		{day.Play.Done, missionsdomain.WeightPlay},
		{day.Learn.Done, missionsdomain.WeightLearn},
		{day.OnChain.Done, missionsdomain.WeightOnChain},
	} {
		if sec.done {
			want += sec.weight
		}
	}
	if day.Pts != want {
		t.Fatalf("pts %d != sum of done section weights %d", day.Pts, want)
	}
}

func TestApplyTask_CounterThreshold(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.ApplyTask(ctx, "0xabc", missionsdomain.TaskOpenApp, nil, 1); err != nil {
		t.Fatalf("apply: %v", err)
	}

	for i := 0; i < 4; i++ {
		day, err := svc.ApplyTask(ctx, "0xabc", missionsdomain.TaskPlayGame, nil, 1)
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
		if day.Play.Done {
			t.Fatalf("section done after %d plays", i+1)
		}
	}
	day, err := svc.ApplyTask(ctx, "0xabc", missionsdomain.TaskPlayGame, nil, 1)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !day.Play.Done || day.Pts != missionsdomain.WeightPlay {
		t.Fatalf("fifth play should complete the section: %+v", day)
	}

	// One call with count=5 is equivalent.
	if _, err := svc.ApplyTask(ctx, "0xdef", missionsdomain.TaskOpenApp, nil, 1); err != nil {
		t.Fatalf("apply: %v", err)
	}
	day, err = svc.ApplyTask(ctx, "0xdef", missionsdomain.TaskPlayGame, nil, 5)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !day.Play.Done {
		t.Fatalf("count=5 should complete the section: %+v", day)
	}
}

func TestApplyTask_CountClamped(t *testing.T) {
	svc, _ := newTestService(t)

	day, err := svc.ApplyTask(context.Background(), "0xabc", missionsdomain.TaskPlayGame, nil, 1<<20)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if day.Play.GamesPlayed != 1000 {
		t.Fatalf("count not clamped: %d", day.Play.GamesPlayed)
	}
}

func TestApplyTask_ConcurrentDistinctSubtasksAllLand(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tasks := []string{
		missionsdomain.TaskCheckIn,
		missionsdomain.TaskShare,
		missionsdomain.TaskOpenApp,
		missionsdomain.TaskQuiz,
		missionsdomain.TaskReadArticle,
		missionsdomain.TaskSendTx,
		missionsdomain.TaskStakeGas,
		missionsdomain.TaskVoteCouncil,
		missionsdomain.TaskPlayGame,
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(tasks))
	for _, taskID := range tasks {
		wg.Add(1)
		go func(taskID string) {
			defer wg.Done()
			// The protocol reports contention rather than dropping work;
			// callers retry the whole operation.
			for {
				_, err := svc.ApplyTask(ctx, "0xabc", taskID, nil, 5)
				if errors.Is(err, ErrUpdateContention) {
					continue
				}
				if err != nil {
					errCh <- err
				}
				return
			}
		}(taskID)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("concurrent apply: %v", err)
	}

	day, err := svc.GetDay(ctx, "0xabc", "")
	if err != nil {
		t.Fatalf("get day: %v", err)
	}
	if !day.Completed() {
		t.Fatalf("lost update: %+v", day)
	}
	if day.Pts != missionsdomain.MaxPoints {
		t.Fatalf("expected %d pts, got %d", missionsdomain.MaxPoints, day.Pts)
	}
}

func TestApplyTask_ContentionSurfacesAfterRetries(t *testing.T) {
	svc, kv := newTestService(t)
	kv.FailCompareAndSet(true)

	_, err := svc.ApplyTask(context.Background(), "0xabc", missionsdomain.TaskCheckIn, nil, 1)
	if !errors.Is(err, ErrUpdateContention) {
		t.Fatalf("expected ErrUpdateContention, got %v", err)
	}
}

func TestApplyTask_SameSubtaskDoesNotDoubleAward(t *testing.T) {
	svc, kv := newTestService(t)
	ctx := context.Background()

	for _, taskID := range []string{missionsdomain.TaskCheckIn, missionsdomain.TaskShare} {
		if _, err := svc.ApplyTask(ctx, "0xabc", taskID, nil, 1); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}

	day, err := svc.ApplyTask(ctx, "0xabc", missionsdomain.TaskShare, nil, 1)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if day.Pts != missionsdomain.WeightSocial {
		t.Fatalf("replay double-awarded: %d", day.Pts)
	}

	// The monthly board carries the section weight exactly once.
	members, err := kv.SortedSetRevRange(ctx, storage.MissionLeaderboardKey("202501"), 0, -1)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(members) != 1 || members[0].Score != float64(missionsdomain.WeightSocial) {
		t.Fatalf("unexpected leaderboard state: %+v", members)
	}
}

func TestApplyTask_MalformedRecordReinitialized(t *testing.T) {
	svc, kv := newTestService(t)
	ctx := context.Background()

	key := storage.MissionDayKey("0xabc", "2025-01-15")
	if err := kv.Set(ctx, key, []byte("{corrupt")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	day, err := svc.ApplyTask(ctx, "0xabc", missionsdomain.TaskCheckIn, nil, 1)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !day.Social.CheckIn || day.Pts != 0 {
		t.Fatalf("expected fresh record with checkin applied: %+v", day)
	}
}

func TestApplyTask_UnknownTaskRejectedBeforeIO(t *testing.T) {
	svc, kv := newTestService(t)

	if _, err := svc.ApplyTask(context.Background(), "0xabc", "teleport", nil, 1); !errors.Is(err, missionsdomain.ErrUnknownTask) {
		t.Fatalf("expected ErrUnknownTask, got %v", err)
	}
	keys, err := kv.ScanKeys(context.Background(), "missions:*")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("unexpected writes: %v", keys)
	}
}

func TestApplyTask_ProofPersistedIndependently(t *testing.T) {
	svc, kv := newTestService(t)
	ctx := context.Background()

	proof := []byte(`{"tx_hash":"0xfeed","meta":{"block":12}}`)
	if _, err := svc.ApplyTask(ctx, "0xabc", missionsdomain.TaskSendTx, proof, 1); err != nil {
		t.Fatalf("apply: %v", err)
	}

	raw, err := kv.Get(ctx, storage.ProofKey("0xabc", "2025-01-15", missionsdomain.TaskSendTx))
	if err != nil {
		t.Fatalf("proof not persisted: %v", err)
	}
	var rec missionsdomain.ProofRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		t.Fatalf("decode proof: %v", err)
	}
	if rec.TxHash != "0xfeed" || rec.ID == "" {
		t.Fatalf("unexpected proof record: %+v", rec)
	}
}

func TestApplyTask_CompletionClaimsRewardOnce(t *testing.T) {
	svc, kv := newTestService(t)
	ctx := context.Background()

	all := []string{
		missionsdomain.TaskCheckIn, missionsdomain.TaskShare,
		missionsdomain.TaskOpenApp,
		missionsdomain.TaskQuiz, missionsdomain.TaskReadArticle,
		missionsdomain.TaskSendTx, missionsdomain.TaskStakeGas, missionsdomain.TaskVoteCouncil,
	}
	for _, taskID := range all {
		if _, err := svc.ApplyTask(ctx, "0xabc", taskID, nil, 1); err != nil {
			t.Fatalf("apply %s: %v", taskID, err)
		}
	}
	day, err := svc.ApplyTask(ctx, "0xabc", missionsdomain.TaskPlayGame, nil, 5)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if day.CompletedAt == nil {
		t.Fatalf("day should be complete: %+v", day)
	}

	if _, err := kv.Get(ctx, storage.IdempotencyKey("0xabc", "day-complete:2025-01-15")); err != nil {
		t.Fatalf("idempotency marker missing: %v", err)
	}
	again, err := svc.ClaimReward(ctx, "0xabc", "day-complete:2025-01-15")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if again {
		t.Fatalf("duplicate claim succeeded")
	}
}

func TestGetDay_CreatesZeroedRecordOnFirstAccess(t *testing.T) {
	svc, kv := newTestService(t)
	ctx := context.Background()

	day, err := svc.GetDay(ctx, "0xABC", "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if day.Date != "2025-01-15" || day.Pts != 0 {
		t.Fatalf("unexpected fresh record: %+v", day)
	}
	if _, err := kv.Get(ctx, storage.MissionDayKey("0xabc", "2025-01-15")); err != nil {
		t.Fatalf("record not persisted: %v", err)
	}

	if _, err := svc.GetDay(ctx, "0xabc", "15-01-2025"); !errors.Is(err, ErrInvalidDay) {
		t.Fatalf("expected ErrInvalidDay, got %v", err)
	}
}

func TestGetDay_ReturnsWinnerOnConcurrentCreate(t *testing.T) {
	svc, kv := newTestService(t)
	ctx := context.Background()

	seeded := missionsdomain.NewDay("0xabc", "2025-01-10")
	seeded.Social.CheckIn = true
	raw, _ := json.Marshal(seeded)
	if err := kv.Set(ctx, storage.MissionDayKey("0xabc", "2025-01-10"), raw); err != nil {
		t.Fatalf("seed: %v", err)
	}

	day, err := svc.GetDay(ctx, "0xabc", "2025-01-10")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !day.Social.CheckIn {
		t.Fatalf("stored progress clobbered: %+v", day)
	}
}

func TestApplyTask_RejectsNonHexAddress(t *testing.T) {
	svc, kv := newTestService(t)
	ctx := context.Background()

	// "missions:" + "leaderboard" + ":" + day is the monthly ranking key
	// family; "proof" shadows the proof family the same way.
	for _, address := range []string{"", "leaderboard", "proof", "0xabc:2025", "abc", "0xZZ"} {
		if _, err := svc.ApplyTask(ctx, address, missionsdomain.TaskCheckIn, nil, 1); !errors.Is(err, ErrInvalidAddress) {
			t.Fatalf("address %q: expected ErrInvalidAddress, got %v", address, err)
		}
		if _, err := svc.GetDay(ctx, address, ""); !errors.Is(err, ErrInvalidAddress) {
			t.Fatalf("address %q: expected ErrInvalidAddress, got %v", address, err)
		}
	}

	keys, err := kv.ScanKeys(ctx, "*")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("rejected addresses must not write: %v", keys)
	}
}
