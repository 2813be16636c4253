package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

// originPolicy is the set of browser origins allowed to open a WebSocket.
// Origins are compared as lower-case scheme://host.
type originPolicy struct {
	list     []string
	allowed  map[string]struct{}
	allowAll bool
}

// parseOriginPolicy builds a policy from configured entries. Blank entries are
// skipped, "*" allows any origin, and entries that are not absolute URLs are
// returned as rejected.
func parseOriginPolicy(entries []string) (originPolicy, []string) {
	p := originPolicy{allowed: make(map[string]struct{}, len(entries))}
	var rejected []string

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		switch {
		case entry == "":
			continue
		case entry == "*":
			p.allowAll = true
			continue
		}

		origin, ok := canonicalOrigin(entry)
		if !ok {
			rejected = append(rejected, entry)
			continue
		}
		if _, dup := p.allowed[origin]; dup {
			continue
		}
		p.allowed[origin] = struct{}{}
		p.list = append(p.list, origin)
	}
	return p, rejected
}

// origins returns the canonical entries, with "*" last when present.
func (p originPolicy) origins() []string {
	out := append([]string(nil), p.list...)
	if p.allowAll {
		out = append(out, "*")
	}
	return out
}

// allows reports whether a request carrying the Origin header value origin
// may connect. A missing or malformed origin is never allowed.
func (p originPolicy) allows(origin string) bool {
	canonical, ok := canonicalOrigin(origin)
	if !ok {
		return false
	}
	if p.allowAll {
		return true
	}
	_, ok = p.allowed[canonical]
	return ok
}

func canonicalOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// newUpgrader returns the WebSocket upgrader for hub. The allowlist is read
// from the active config on every handshake, so a reload applies to the next
// connection attempt.
func newUpgrader(hub *Hub) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			policy, _ := parseOriginPolicy(CurrentConfig().AllowedOrigins)
			if policy.allows(origin) {
				return true
			}
			hub.log.Warn("Blocked WebSocket connection from disallowed origin", "origin", origin, "addr", r.RemoteAddr)
			return false
		},
	}
}
