package ratelimit

import (
	"net/http"
	"strings"
)

// unknownClientID is the literal fallback identifier per spec §4.2.
const unknownClientID = "unknown"

// ClientID derives the rate-limit client identifier for req per spec §4.2:
// "first non-empty of forwarded-for first token, real-ip header,
// transport-level peer address, or the literal unknown, prefixed to
// namespace."
func ClientID(req *http.Request, namespace string) string {
	id := unknownClientID

	switch {
	case firstForwardedFor(req.Header.Get("X-Forwarded-For")) != "":
		id = firstForwardedFor(req.Header.Get("X-Forwarded-For"))
	case req.Header.Get("X-Real-Ip") != "":
		id = req.Header.Get("X-Real-Ip")
	case req.RemoteAddr != "":
		id = req.RemoteAddr
	}

	if namespace == "" {
		return id
	}

	return namespace + ":" + id
}

func firstForwardedFor(header string) string {
	first, _, _ := strings.Cut(header, ",")

	return strings.TrimSpace(first)
}
