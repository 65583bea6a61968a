// Package auth gates the HTTP surface with API-key roles and per-key
// rate limiting. Credential management itself lives outside this
// service; keys arrive via configuration.
package auth

import (
	"net"
	"net/http"
	"strings"

	"botpipe/pkg/logger"
	"botpipe/pkg/logging"
	"botpipe/pkg/utils"
)

// Role is the resolved caller role for a request.
type Role int

const (
	RoleUnauth Role = iota
	RoleIngest
	RoleReader
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleIngest:
		return "ingest"
	case RoleReader:
		return "reader"
	case RoleAdmin:
		return "admin"
	}
	return "unauth"
}

// SecConfig drives authentication and rate limiting for the HTTP
// surface. Ingest keys may post activities; reader keys may read
// transcripts; admin keys may additionally delete them.
type SecConfig struct {
	RPS        float64
	Burst      int
	IngestKeys map[string]struct{}
	ReaderKeys map[string]struct{}
	AdminKeys  map[string]struct{}
}

// resolve extracts the API key from the request and maps it to a role.
func resolve(r *http.Request, cfg SecConfig) (Role, string) {
	key := strings.TrimSpace(r.Header.Get("X-API-Key"))
	if key == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			key = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		}
	}
	if key == "" {
		return RoleUnauth, ""
	}
	if _, ok := cfg.AdminKeys[key]; ok {
		return RoleAdmin, key
	}
	if _, ok := cfg.IngestKeys[key]; ok {
		return RoleIngest, key
	}
	if _, ok := cfg.ReaderKeys[key]; ok {
		return RoleReader, key
	}
	return RoleUnauth, ""
}

// Middleware authenticates each request, applies per-key rate limiting
// and exposes the resolved role to handlers via the X-Role-Name header.
// Health probes pass unauthenticated.
func Middleware(cfg SecConfig) func(http.Handler) http.Handler {
	limiters := newLimiterPool(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if (r.URL.Path == "/healthz" || r.URL.Path == "/readyz") && r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}
			logging.LogRequest(r)

			role, key := resolve(r, cfg)
			if role == RoleUnauth {
				logger.Warn("request_unauthorized", "path", r.URL.Path, "remote", r.RemoteAddr)
				utils.JSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			limKey := key
			if limKey == "" {
				limKey = clientIP(r)
			}
			if !limiters.Allow(limKey) {
				logger.Warn("request_rate_limited", "path", r.URL.Path, "role", role.String())
				utils.JSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			r.Header.Set("X-Role-Name", role.String())
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole blocks requests whose resolved role is weaker than min.
// Admin satisfies every requirement.
func RequireRole(min Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var role Role
			switch r.Header.Get("X-Role-Name") {
			case "ingest":
				role = RoleIngest
			case "reader":
				role = RoleReader
			case "admin":
				role = RoleAdmin
			}
			if role != RoleAdmin && role != min {
				logger.Warn("request_forbidden", "path", r.URL.Path, "role", role.String())
				utils.JSONError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
