package httputil

import (
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/handlers"
)

// GetClientIP returns the client address of r without the port. Forwarding
// headers are honored only through TrustedProxyHeaders, which rewrites
// RemoteAddr before this is called.
func GetClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.Trim(r.RemoteAddr, "[]")
	}
	return ip
}

// TrustedProxyHeaders applies X-Forwarded-For / X-Real-IP only for requests
// arriving from one of the trusted proxies (IPs or CIDRs). Requests from
// anyone else keep their socket address.
func TrustedProxyHeaders(trusted []string) func(http.Handler) http.Handler {
	nets := parseTrusted(trusted)
	return func(next http.Handler) http.Handler {
		if len(nets) == 0 {
			return next
		}
		proxied := handlers.ProxyHeaders(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := net.ParseIP(GetClientIP(r))
			for _, n := range nets {
				if ip != nil && n.Contains(ip) {
					proxied.ServeHTTP(w, r)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func parseTrusted(trusted []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range trusted {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			if ip := net.ParseIP(entry); ip != nil {
				bits := 32
				if ip.To4() == nil {
					bits = 128
				}
				nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			}
			continue
		}
		if _, n, err := net.ParseCIDR(entry); err == nil {
			nets = append(nets, n)
		}
	}
	return nets
}
