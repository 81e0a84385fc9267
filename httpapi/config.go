package httpapi

import (
	"strings"
	"time"
)

// Config defines HTTP API settings.
type Config struct {
	Addr string
	// BasePath mounts every route under a prefix, e.g. "/tabterm".
	BasePath string
	// AllowedOrigins lists the Origin values accepted on the page event
	// WebSocket. Empty allows any origin; "*" does the same explicitly.
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

const defaultShutdownTimeout = 5 * time.Second

func (c Config) originAllowed(origin string) bool {
	if len(c.AllowedOrigins) == 0 {
		return true
	}
	origin = strings.TrimRight(strings.TrimSpace(origin), "/")
	for _, allowed := range c.AllowedOrigins {
		allowed = strings.TrimRight(strings.TrimSpace(allowed), "/")
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}
