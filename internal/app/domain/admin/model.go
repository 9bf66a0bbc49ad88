// Package admin holds the administrative reset types.
package admin

import "time"

// Scope selects which key families an administrative reset removes.
type Scope string

const (
	ScopeStreaks  Scope = "streaks"
	ScopeMissions Scope = "missions"
	ScopeAll      Scope = "all"
)

// Valid reports whether the scope is one of the supported values.
func (s Scope) Valid() bool {
	switch s {
	case ScopeStreaks, ScopeMissions, ScopeAll:
		return true
	}
	return false
}

// ResetAudit records one executed reset. The latest entry is persisted
// under the admin audit key.
type ResetAudit struct {
	ID          string    `json:"id"`
	Scope       Scope     `json:"scope"`
	DeletedKeys int       `json:"deleted_keys"`
	At          time.Time `json:"at"`
}
