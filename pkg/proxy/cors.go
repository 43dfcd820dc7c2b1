package proxy

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gencohq/genco/pkg/keyring"
)

const (
	corsHeaders = "Content-Type, Authorization"
	corsMethods = "GET, POST, DELETE, OPTIONS"
)

// applyCORS writes the CORS response headers for this request. With no
// allowlist configured the server is permissive ("*", development default).
// With an allowlist, the origin is echoed back only when it matches an entry
// exactly, matches an entry's hostname, or is a loopback/private-network
// host; anything else gets the restrictive "null" origin so browsers block
// the response.
func (s *Server) applyCORS(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Access-Control-Allow-Headers", corsHeaders)
	h.Set("Access-Control-Allow-Methods", corsMethods)

	allowed := s.cfg.OriginAllowlist()
	if len(allowed) == 0 {
		h.Set("Access-Control-Allow-Origin", "*")
		return
	}

	origin := r.Header.Get("Origin")
	if originAllowed(origin, allowed) {
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		return
	}
	h.Set("Access-Control-Allow-Origin", "null")
}

func originAllowed(origin string, allowed []string) bool {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "" {
		return false
	}
	for _, entry := range allowed {
		if entry == origin {
			return true
		}
		if parsed, err := url.Parse(entry); err == nil && parsed.Hostname() != "" {
			if parsed.Hostname() == host {
				return true
			}
			continue
		}
		// Entry may be a bare hostname.
		if entry == host {
			return true
		}
	}
	// Local development hosts pass even when not listed.
	return keyring.OriginIsLocal(origin)
}

// preflight short-circuits OPTIONS requests before routing so every path
// shares one preflight behavior.
func (s *Server) preflight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			s.applyCORS(w, r)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
