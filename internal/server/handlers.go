// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketHandler returns a handler for WebSocket upgrade requests. It
// validates that the request uses the GET method, upgrades the HTTP connection
// and hands the new Client to the hub, which opens its session and starts its
// pumps.
func WebSocketHandler(hub *Hub) http.HandlerFunc {
	upgrader := newUpgrader(hub)
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.Warn("WebSocket upgrade failed", "addr", r.RemoteAddr, "err", err)
			return
		}

		client := NewClient(conn, hub, r.RemoteAddr)
		if !hub.Register(client) {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			_ = conn.Close()
		}
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the server is running.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Chat relay is running!")
}

// TestPageHandler serves an HTML page for trying the chat protocol from a
// browser: pick a name, create or join a room, and talk.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprint(w, testPage)
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>Chat Relay Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #log {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { width: 200px; padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
        .row { margin: 6px 0; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
        .error { color: #a00; }
        .system { color: gray; font-style: italic; }
    </style>
</head>
<body>
    <h1>Chat Relay Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>
    <div class="row"><button id="connectButton" onclick="toggleConnection()">Connect</button></div>
    <div class="row">
        <input type="text" id="username" placeholder="Username">
        <button onclick="send({type: 'set_username', username: val('username')})">Set username</button>
    </div>
    <div class="row">
        <input type="text" id="room" placeholder="Room">
        <button onclick="send({type: 'create_room', room: val('room')})">Create</button>
        <button onclick="send({type: 'join_room', room: val('room')})">Join</button>
        <button onclick="send({type: 'list_rooms'})">Refresh</button>
    </div>
    <div class="row">Rooms: <span id="rooms"></span></div>
    <div class="row">In room: <span id="current">-</span> Users: <span id="users"></span></div>
    <div id="log"></div>
    <div class="row">
        <input type="text" id="text" placeholder="Type a message..." style="width: 400px">
        <button onclick="sendText()">Send</button>
    </div>

    <script>
        let ws = null;
        const logDiv = document.getElementById('log');
        const statusDiv = document.getElementById('status');
        const connectButton = document.getElementById('connectButton');

        function val(id) { return document.getElementById(id).value; }

        function addLine(text, cls) {
            const el = document.createElement('div');
            el.textContent = text;
            if (cls) { el.className = cls; }
            logDiv.appendChild(el);
            logDiv.scrollTop = logDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function handle(ev) {
            switch (ev.type) {
            case 'rooms_list':
            case 'rooms_update':
                document.getElementById('rooms').textContent = ev.rooms.join(', ');
                break;
            case 'joined':
                document.getElementById('current').textContent = ev.room;
                addLine('Joined ' + ev.room + ' as ' + ev.username, 'system');
                break;
            case 'user_list':
                document.getElementById('users').textContent = ev.users.join(', ');
                break;
            case 'message':
                const when = new Date(ev.ts).toLocaleTimeString();
                addLine('[' + when + '] ' + ev.username + ': ' + ev.text, ev.username === 'system' ? 'system' : '');
                break;
            case 'error':
                addLine('Error: ' + ev.error, 'error');
                break;
            }
        }

        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');
            ws.onopen = function() { updateStatus(true); };
            ws.onmessage = function(event) { handle(JSON.parse(event.data)); };
            ws.onclose = function() { updateStatus(false); ws = null; };
            ws.onerror = function() { addLine('Connection error', 'error'); };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function send(req) {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify(req));
            }
        }

        function sendText() {
            const input = document.getElementById('text');
            send({type: 'message', text: input.value});
            input.value = '';
        }

        document.getElementById('text').addEventListener('keypress', function(e) {
            if (e.key === 'Enter') { sendText(); }
        });
    </script>
</body>
</html>`
