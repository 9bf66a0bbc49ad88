// Package missions holds the daily mission record and its section state
// machine. Everything in this package is pure: persistence and the
// optimistic-write protocol live in the missions service.
package missions

import "time"

// Section point weights. They sum to MaxPoints.
const (
	WeightSocial  = 20
	WeightPlay    = 20
	WeightLearn   = 10
	WeightOnChain = 30

	// MaxPoints caps the daily total.
	MaxPoints = 80
)

// GamesPlayedTarget is the counter threshold for the play_game subtask.
const GamesPlayedTarget = 5

// Social is section one: community participation.
type Social struct {
	CheckIn bool `json:"checkin"`
	Share   bool `json:"share"`
	Done    bool `json:"done"`
}

// Play is section two: miniapp engagement.
type Play struct {
	AppOpened   bool `json:"open_app"`
	GamesPlayed int  `json:"games_played"`
	Done        bool `json:"done"`
}

// Learn is section three: educational content.
type Learn struct {
	Quiz        bool `json:"quiz"`
	ReadArticle bool `json:"read_article"`
	Done        bool `json:"done"`
}

// OnChain is section four: on-chain actions reported by trusted callers.
type OnChain struct {
	SentTx       bool `json:"send_tx"`
	StakedGas    bool `json:"stake_gas"`
	VotedCouncil bool `json:"vote_council"`
	Done         bool `json:"done"`
}

// Day is one address's mission record for one UTC calendar day. Section
// Done flags are one-way ratchets and Pts never decreases within a day.
type Day struct {
	Address     string     `json:"address"`
	Date        string     `json:"date"`
	Social      Social     `json:"s1"`
	Play        Play       `json:"s2"`
	Learn       Learn      `json:"s3"`
	OnChain     OnChain    `json:"s4"`
	Pts         int        `json:"pts"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewDay returns a zeroed record for the address and day.
func NewDay(address, date string) Day {
	return Day{Address: address, Date: date}
}

// Completed reports whether every section is done.
func (d *Day) Completed() bool {
	return d.Social.Done && d.Play.Done && d.Learn.Done && d.OnChain.Done
}

func (s Social) complete() bool  { return s.CheckIn && s.Share }
func (s Play) complete() bool    { return s.AppOpened && s.GamesPlayed >= GamesPlayedTarget }
func (s Learn) complete() bool   { return s.Quiz && s.ReadArticle }
func (s OnChain) complete() bool { return s.SentTx && s.StakedGas && s.VotedCouncil }

// recompute re-evaluates every section predicate, ratchets Done flags that
// newly hold, and returns the points gained. The first time Pts reaches
// MaxPoints the completion timestamp is stamped.
func recompute(d *Day, now time.Time) (gained int) {
	if !d.Social.Done && d.Social.complete() {
		d.Social.Done = true
		gained += WeightSocial
	}
	if !d.Play.Done && d.Play.complete() {
		d.Play.Done = true
		gained += WeightPlay
	}
	if !d.Learn.Done && d.Learn.complete() {
		d.Learn.Done = true
		gained += WeightLearn
	}
	if !d.OnChain.Done && d.OnChain.complete() {
		d.OnChain.Done = true
		gained += WeightOnChain
	}
	if gained == 0 {
		return 0
	}

	d.Pts += gained
	if d.Pts > MaxPoints {
		gained -= d.Pts - MaxPoints
		d.Pts = MaxPoints
	}
	if d.Pts == MaxPoints && d.CompletedAt == nil {
		stamp := now.UTC()
		d.CompletedAt = &stamp
	}
	return gained
}

// ProofRecord is optional audit metadata attached to a task completion.
// It is persisted independently of the mission record and never consulted
// by the state machine.
type ProofRecord struct {
	ID         string    `json:"id"`
	Address    string    `json:"address"`
	Day        string    `json:"day"`
	TaskID     string    `json:"task_id"`
	TxHash     string    `json:"tx_hash,omitempty"`
	Meta       string    `json:"meta,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}
