package security

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP returns the caller's IP address for logging.
//
// Forwarding headers are honoured only when trustProxy is set, and only the
// hop written by the nearest proxy is taken from X-Forwarded-For: entries to
// its left are client-controlled.
func GetClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := lastForwardedIP(r.Header.Get("X-Forwarded-For")); ip != "" {
			return ip
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(ip) != nil {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func lastForwardedIP(xff string) string {
	if xff == "" {
		return ""
	}
	hops := strings.Split(xff, ",")
	ip := strings.TrimSpace(hops[len(hops)-1])
	if net.ParseIP(ip) == nil {
		return ""
	}
	return ip
}
