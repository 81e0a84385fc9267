package httpapi

import (
	"errors"
	"fmt"
	"mime"
	"net/http"

	"pkt.systems/tabterm/internal/logx"
	"pkt.systems/tabterm/schema"
)

var errForbiddenOrigin = errors.New("origin not allowed")

// withMutationGuard rejects state-changing requests from origins outside the
// allow list and requests that are not JSON. Requiring application/json
// keeps browsers from sending cross-site POSTs without a CORS preflight,
// which this server never answers.
func (s *Server) withMutationGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		log := logx.Ctx(r.Context()).With("remote", clientIP(r), "method", r.Method, "path", r.URL.Path)
		if origin := r.Header.Get("Origin"); origin != "" && !s.cfg.originAllowed(origin) {
			log.Warn("http request origin rejected", "origin", origin)
			writeError(w, http.StatusForbidden, errForbiddenOrigin)
			return
		}
		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "application/json" {
			log.Warn("http request content type rejected", "content_type", r.Header.Get("Content-Type"))
			writeError(w, http.StatusUnsupportedMediaType, fmt.Errorf("%w: content type must be application/json", schema.ErrInvalidRequest))
			return
		}
		next.ServeHTTP(w, r)
	})
}
