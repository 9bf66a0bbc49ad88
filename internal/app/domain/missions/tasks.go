package missions

import (
	"fmt"
	"sort"
	"time"
)

// Task identifiers accepted by Apply. Each maps to exactly one subtask in
// exactly one section.
const (
	TaskCheckIn     = "checkin"
	TaskShare       = "share"
	TaskOpenApp     = "open_app"
	TaskPlayGame    = "play_game"
	TaskQuiz        = "quiz"
	TaskReadArticle = "read_article"
	TaskSendTx      = "send_tx"
	TaskStakeGas    = "stake_gas"
	TaskVoteCouncil = "vote_council"
)

// ErrUnknownTask is returned when a task identifier has no catalog entry.
var ErrUnknownTask = fmt.Errorf("missions: unknown task")

// transition mutates the subtask a task maps to and reports whether state
// changed. Boolean subtasks flip on first occurrence regardless of count;
// counter subtasks accumulate it.
type transition func(d *Day, count int) bool

var catalog = map[string]transition{
	TaskCheckIn: func(d *Day, _ int) bool { return setFlag(&d.Social.CheckIn) },
	TaskShare:   func(d *Day, _ int) bool { return setFlag(&d.Social.Share) },
	TaskOpenApp: func(d *Day, _ int) bool { return setFlag(&d.Play.AppOpened) },
	TaskPlayGame: func(d *Day, count int) bool {
		if count <= 0 {
			return false
		}
		d.Play.GamesPlayed += count
		return true
	},
	TaskQuiz:        func(d *Day, _ int) bool { return setFlag(&d.Learn.Quiz) },
	TaskReadArticle: func(d *Day, _ int) bool { return setFlag(&d.Learn.ReadArticle) },
	TaskSendTx:      func(d *Day, _ int) bool { return setFlag(&d.OnChain.SentTx) },
	TaskStakeGas:    func(d *Day, _ int) bool { return setFlag(&d.OnChain.StakedGas) },
	TaskVoteCouncil: func(d *Day, _ int) bool { return setFlag(&d.OnChain.VotedCouncil) },
}

func setFlag(flag *bool) bool {
	if *flag {
		return false
	}
	*flag = true
	return true
}

// KnownTask reports whether the identifier has a catalog entry.
func KnownTask(taskID string) bool {
	_, ok := catalog[taskID]
	return ok
}

// TaskIDs returns the catalog identifiers in stable order.
func TaskIDs() []string {
	ids := make([]string, 0, len(catalog))
	for id := range catalog {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Apply runs the task's transition against the record and re-evaluates the
// section completion predicates. It reports whether the record changed, the
// points gained by newly-completed sections, and whether this application
// brought the day to full completion.
func Apply(d *Day, taskID string, count int, now time.Time) (changed bool, gained int, completedNow bool, err error) {
	apply, ok := catalog[taskID]
	if !ok {
		return false, 0, false, fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	if !apply(d, count) {
		return false, 0, false, nil
	}
	wasComplete := d.CompletedAt != nil
	gained = recompute(d, now)
	return true, gained, !wasComplete && d.CompletedAt != nil, nil
}
