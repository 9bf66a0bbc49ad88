package storage

// Logical key shapes shared by the services. Addresses are canonical
// lowercase, days use the 2006-01-02 form and months use 200601.

// AdminLastResetKey stores the most recent admin reset audit entry.
const AdminLastResetKey = "admin:lastResetAt"

// StreakKey addresses a per-address streak record.
func StreakKey(address string) string {
	return "streak:" + address
}

// StreakLeaderboardKey addresses the monthly streak ranking sorted set.
func StreakLeaderboardKey(month string) string {
	return "streak:leaderboard:" + month
}

// ActivityKey addresses the per-day set of active addresses.
func ActivityKey(day string) string {
	return "streak:activity:" + day
}

// MissionDayKey addresses a per-address per-day mission record.
func MissionDayKey(address, day string) string {
	return "missions:" + address + ":" + day
}

// MissionLeaderboardKey addresses the monthly mission points sorted set.
func MissionLeaderboardKey(month string) string {
	return "missions:leaderboard:" + month
}

// ProofKey addresses an audit proof attached to a task completion.
func ProofKey(address, day, taskID string) string {
	return "missions:proof:" + address + ":" + day + ":" + taskID
}

// IdempotencyKey addresses a one-shot reward issuance marker.
func IdempotencyKey(address, rewardID string) string {
	return "idemp:" + address + ":" + rewardID
}
