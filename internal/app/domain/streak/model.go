// Package streak holds the consecutive-day activity record.
package streak

// Record tracks an address's consecutive-day activity. Best never drops
// below Current; Current falls back to zero once a full UTC calendar day
// has been skipped since LastActiveDay.
type Record struct {
	Address       string `json:"address"`
	Current       int    `json:"current"`
	Best          int    `json:"best"`
	LastActiveDay string `json:"last_active_day,omitempty"`
}
