package storage

import "strings"

// MatchPattern reports whether key matches a glob pattern where '*' matches
// any run of characters (including none). This mirrors the subset of redis
// MATCH syntax used by the engine so the in-memory store scans identically.
func MatchPattern(pattern, key string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == key
	}
	if !strings.HasPrefix(key, parts[0]) {
		return false
	}
	rest := key[len(parts[0]):]
	last := len(parts) - 1
	for i := 1; i < last; i++ {
		idx := strings.Index(rest, parts[i])
		if idx < 0 {
			return false
		}
		rest = rest[idx+len(parts[i]):]
	}
	return strings.HasSuffix(rest, parts[last])
}

// DedupeKeys removes duplicate keys, preserving first-seen order. SCAN-style
// iteration delivers keys at least once, not exactly once, so aggregating
// consumers need a deduplicated view.
func DedupeKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0]
	for _, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
