package site

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/developingchet/pagesmith/internal/admission"
)

// parseTrustedProxies turns IP and CIDR entries into networks. A bare IP
// becomes a /32 or /128.
func parseTrustedProxies(entries []string) ([]*net.IPNet, error) {
	result := make([]*net.IPNet, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.Contains(e, "/") {
			ip := net.ParseIP(e)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", e)
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			e = fmt.Sprintf("%s/%d", ip.String(), bits)
		}
		_, cidr, err := net.ParseCIDR(e)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy CIDR %q: %w", e, err)
		}
		result = append(result, cidr)
	}
	return result, nil
}

func isTrusted(addr string, trusted []*net.IPNet) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// realIP rewrites RemoteAddr from X-Forwarded-For or X-Real-IP, but only
// when the connection comes from a trusted proxy. X-Forwarded-For is read
// right to left and the first hop outside the trusted set wins, so a client
// cannot pick its own address by prepending entries. With no trusted proxies
// the headers are ignored.
func realIP(trusted []*net.IPNet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(trusted) > 0 {
				if peer, ok := admission.ClientIP(r.RemoteAddr); ok && isTrusted(peer, trusted) {
					if ip := forwardedFor(r, trusted); ip != "" {
						r.RemoteAddr = ip
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func forwardedFor(r *http.Request, trusted []*net.IPNet) string {
	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			ip, ok := admission.ClientIP(hops[i])
			if !ok {
				// unparseable hop; anything left of it is client-controlled
				return ""
			}
			if !isTrusted(ip, trusted) {
				return ip
			}
		}
		return ""
	}
	if ip, ok := admission.ClientIP(r.Header.Get("X-Real-IP")); ok {
		return ip
	}
	return ""
}
