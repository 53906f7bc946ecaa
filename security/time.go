package security

import "time"

// Clock returns the current time. Stores and the OAuth server take one so
// expiry boundaries can be tested without sleeping.
type Clock func() time.Time

// SystemClock is the wall clock.
func SystemClock() time.Time {
	return time.Now()
}

// IsExpiredAt reports whether a credential that expires at expiresAt is
// expired at now. A credential is still valid at the exact expiry instant.
// A zero expiresAt never expires.
func IsExpiredAt(expiresAt, now time.Time) bool {
	if expiresAt.IsZero() {
		return false
	}
	return now.After(expiresAt)
}

// SecondsUntil returns the whole number of seconds from now until expiresAt,
// never negative. Used for the expires_in field of token responses.
func SecondsUntil(expiresAt, now time.Time) int64 {
	d := expiresAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int64(d.Round(time.Second) / time.Second)
}
