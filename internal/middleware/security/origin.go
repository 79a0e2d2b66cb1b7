package security

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
)

// OriginGuard rejects state-changing requests coming from another site.
type OriginGuard struct {
	rejected int64
	onReject func(r *http.Request, reason string)
}

func NewOriginGuard(onReject func(r *http.Request, reason string)) *OriginGuard {
	return &OriginGuard{onReject: onReject}
}

func (g *OriginGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reason, ok := g.allowed(r); !ok {
			atomic.AddInt64(&g.rejected, 1)
			if g.onReject != nil {
				g.onReject(r, reason)
			}
			http.Error(w, "Cross-origin request rejected", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *OriginGuard) allowed(r *http.Request) (string, bool) {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return "", true
	}

	if site := r.Header.Get("Sec-Fetch-Site"); site != "" {
		if site == "same-origin" || site == "none" {
			return "", true
		}
		return "sec-fetch-site " + site, false
	}

	// Older clients: fall back to comparing Origin with Host. Requests
	// without an Origin header are non-browser clients.
	origin := r.Header.Get("Origin")
	if origin == "" {
		return "", true
	}
	u, err := url.Parse(origin)
	if err != nil || !strings.EqualFold(u.Host, r.Host) {
		return "origin " + origin, false
	}
	return "", true
}

// Rejected returns how many requests the guard has refused.
func (g *OriginGuard) Rejected() int64 {
	return atomic.LoadInt64(&g.rejected)
}

// ExtractClientIP returns the peer address. Forwarded headers are ignored
// because the tracker is not deployed behind a proxy.
func ExtractClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
