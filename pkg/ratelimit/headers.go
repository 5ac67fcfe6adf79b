package ratelimit

import (
	"net/http"
	"strconv"
)

// WriteBlockedHeaders sets the response headers spec §4.2 mandates on a
// blocked request: Retry-After, X-RateLimit-Limit, X-RateLimit-Remaining,
// X-RateLimit-Reset.
func WriteBlockedHeaders(w http.ResponseWriter, result Result, policy Policy, nowMs int64) {
	retryAfterSeconds := (result.ResetAtMs - nowMs) / 1000
	if retryAfterSeconds < 0 {
		retryAfterSeconds = 0
	}

	h := w.Header()
	h.Set("Retry-After", strconv.FormatInt(retryAfterSeconds, 10))
	h.Set("X-RateLimit-Limit", strconv.Itoa(policy.MaxRequests))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAtMs, 10))
}
