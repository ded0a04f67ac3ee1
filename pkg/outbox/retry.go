package outbox

import (
	"math/rand"
	"time"
	"unicode/utf8"
)

// backoff doubles from one second per attempt and is capped at limit.
func backoff(attempts int, limit time.Duration) time.Duration {
	if attempts <= 0 {
		return 0
	}
	d := time.Second
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	return min(d, limit)
}

func jitter(r *rand.Rand, limit time.Duration) time.Duration {
	if r == nil || limit <= 0 {
		return 0
	}
	return time.Duration(r.Int63n(int64(limit) + 1)) //nolint:gosec
}

// truncateError cuts err's text to at most maxBytes without splitting a rune.
func truncateError(err error, maxBytes int) string {
	if err == nil || maxBytes <= 0 {
		return ""
	}
	s := err.Error()
	if len(s) <= maxBytes {
		return s
	}
	s = s[:maxBytes]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
