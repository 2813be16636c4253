// Package testhelpers provides common utilities for testing the chat relay
// over real HTTP and WebSocket connections.
//
// It covers creating test servers, making HTTP requests, dialing the
// WebSocket endpoint, and reading typed protocol events so that tests can
// assert on what a client actually receives.
package testhelpers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/SanjeetWD1419/chat-web/internal/chat"
)

// TestOrigin is the Origin header sent by ConnectWebSocket. It matches the
// default allowlist.
const TestOrigin = "http://localhost:8080"

// EventTimeout bounds how long ReadEvent waits for the next event.
const EventTimeout = 2 * time.Second

// CreateTestServer creates a test HTTP server with the given handler.
// It returns a running httptest.Server that should be closed after use.
func CreateTestServer(handler http.Handler) *httptest.Server {
	return httptest.NewServer(handler)
}

// WebSocketURL turns a test server URL into the URL of its /ws endpoint.
func WebSocketURL(serverURL string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	require.NoError(t, err, "create request")

	resp, err := client.Do(req)
	require.NoError(t, err, "make request")
	return resp
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	require.Equal(t, expected, resp.StatusCode, "status code")
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	require.Equal(t, expected, resp.Header.Get("Content-Type"), "content type")
}

// ConnectWebSocket creates a WebSocket connection to the specified URL using
// TestOrigin.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	conn, _, err := ConnectWebSocketWithOrigin(url, TestOrigin)
	return conn, err
}

// ConnectWebSocketWithOrigin dials url with the given Origin header; an empty
// origin sends none. The handshake response is returned for status checks.
func ConnectWebSocketWithOrigin(url, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// SendRequest sends one request record, e.g.
// map[string]any{"type": "join_room", "room": "lobby"}.
func SendRequest(conn *websocket.Conn, req map[string]any) error {
	return conn.WriteJSON(req)
}

// SendRawMessage sends a raw frame over the WebSocket connection.
func SendRawMessage(conn *websocket.Conn, messageType int, data []byte) error {
	return conn.WriteMessage(messageType, data)
}

// ReadEvent reads and decodes the next event, failing the test if none
// arrives within EventTimeout.
func ReadEvent(t *testing.T, conn *websocket.Conn) chat.Event {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(EventTimeout)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err, "read event")

	e, err := chat.DecodeEvent(raw)
	require.NoError(t, err, "decode event %s", raw)
	return e
}

// ExpectNoEvent fails the test if an event arrives within wait. A timed-out
// gorilla connection cannot be read again, so this must be the last read on
// conn.
func ExpectNoEvent(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	_, raw, err := conn.ReadMessage()
	require.Error(t, err, "unexpected event %s", raw)
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
