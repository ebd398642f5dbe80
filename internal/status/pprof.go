package status

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

type Option func(*Server)

// WithProfiler mounts net/http/pprof under /debug/pprof. A non-empty token
// is required as "Authorization: Bearer <token>" or "?token=<token>".
func WithProfiler(token string) Option {
	return func(s *Server) {
		s.profiler = true
		s.pprofToken = strings.TrimSpace(token)
	}
}

func (s *Server) mountProfiler() {
	h := middleware.Profiler()
	if s.pprofToken != "" {
		h = requireToken(s.pprofToken, h)
	}
	s.mux.Mount("/debug", h)
}

func requireToken(token string, next http.Handler) http.Handler {
	want := []byte(token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.URL.Query().Get("token")
		if got == "" {
			got = strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		}
		if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IsLoopbackAddr reports whether a host:port only listens on loopback. An
// empty host means every interface.
func IsLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
