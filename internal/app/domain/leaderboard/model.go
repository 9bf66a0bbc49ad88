// Package leaderboard holds the derived ranking entry shared by the
// monthly and combined views.
package leaderboard

// Entry is one ranked address. Score is mission points for mission boards
// and streak length (current for monthly, best for combined) for streak
// boards.
type Entry struct {
	Address string `json:"address"`
	Score   int64  `json:"score"`
}
