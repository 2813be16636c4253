package server

import (
	"bytes"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseOriginPolicy(t *testing.T) {
	req := require.New(t)

	p, rejected := parseOriginPolicy([]string{"", " https://A.example:8443 ", "ftp//broken", "*", "https://a.example:8443"})
	req.True(p.allowAll)
	req.Equal([]string{"ftp//broken"}, rejected)
	req.Equal([]string{"https://a.example:8443", "*"}, p.origins())

	p, rejected = parseOriginPolicy(nil)
	req.False(p.allowAll)
	req.Empty(rejected)
	req.Empty(p.origins())
	req.False(p.allows("http://localhost:8080"), "an empty policy rejects everything")
}

func TestUpgrader_CheckOrigin(t *testing.T) {
	t.Cleanup(func() { SetConfig(nil) })
	SetConfig(&Config{AllowedOrigins: []string{"http://localhost:8080", "https://chat.example.com"}})
	upgrader := newUpgrader(newTestHub())

	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"allowed", "http://localhost:8080", true},
		{"case insensitive", "HTTPS://CHAT.EXAMPLE.COM", true},
		{"other port", "http://localhost:9090", false},
		{"other scheme", "https://localhost:8080", false},
		{"missing", "", false},
		{"garbage", "::::", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			require.Equal(t, tt.want, upgrader.CheckOrigin(r))
		})
	}
}

func TestUpgrader_CheckOrigin_Wildcard(t *testing.T) {
	t.Cleanup(func() { SetConfig(nil) })
	SetConfig(&Config{AllowedOrigins: []string{"*"}})
	upgrader := newUpgrader(newTestHub())

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "https://anywhere.test")
	require.True(t, upgrader.CheckOrigin(r))

	r.Header.Del("Origin")
	require.False(t, upgrader.CheckOrigin(r), "a missing origin is rejected even with a wildcard")
}

func TestUpgrader_CheckOrigin_FollowsReloadAndLogsThroughHub(t *testing.T) {
	t.Cleanup(func() { SetConfig(nil) })
	req := require.New(t)

	var buf bytes.Buffer
	hub := NewHub(slog.New(slog.NewTextHandler(&buf, nil)))
	upgrader := newUpgrader(hub)

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "https://late.example.com")

	SetConfig(&Config{AllowedOrigins: []string{"http://localhost:8080"}})
	req.False(upgrader.CheckOrigin(r))
	req.Contains(buf.String(), "Blocked WebSocket connection from disallowed origin")
	req.Contains(buf.String(), "https://late.example.com")

	SetConfig(&Config{AllowedOrigins: []string{"https://late.example.com"}})
	req.True(upgrader.CheckOrigin(r), "the upgrader reads the active allowlist")
}
