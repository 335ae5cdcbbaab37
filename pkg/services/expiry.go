package service

import "time"

// IsExpired reports whether an entry written at storedAt is older than ttl.
// An entry exactly ttl old is still fresh.
func IsExpired(storedAt time.Time, ttl time.Duration, now time.Time) bool {
	return now.Sub(storedAt) > ttl
}

// expiryCutoff is the newest storedAt that IsExpired considers expired at
// millisecond store resolution.
func expiryCutoff(now time.Time, ttl time.Duration) time.Time {
	return now.Add(-ttl).Add(-time.Millisecond)
}
