package admission

import (
	"net"
	"strings"
)

// ClientIP returns the canonical IP for a RemoteAddr-style value ("ip",
// "ip:port" or "[v6]:port"). IPv4-mapped IPv6 is normalized to IPv4.
// Returns false for unparseable inputs.
func ClientIP(remoteAddr string) (string, bool) {
	value := strings.TrimSpace(remoteAddr)
	if host, _, err := net.SplitHostPort(value); err == nil {
		value = host
	}
	value = strings.Trim(value, "[]")

	ip := net.ParseIP(value)
	if ip == nil {
		return "", false
	}
	if ip4 := ip.To4(); ip4 != nil {
		return ip4.String(), true
	}
	return ip.String(), true
}

// windowKey picks the requester key for the rate window.
func windowKey(keyBy string, req Request) string {
	if keyBy == KeyUserAgent {
		return "ua:" + strings.ToLower(strings.TrimSpace(req.UserAgent))
	}
	if ip, ok := ClientIP(req.RemoteAddr); ok {
		return "ip:" + ip
	}
	return "ip:" + strings.TrimSpace(req.RemoteAddr)
}
