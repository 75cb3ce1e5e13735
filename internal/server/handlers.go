// Package server exposes HTTP handlers, including the WebSocket gateway,
// health checks, and the built-in test page.
package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// Gateway serves the HTTP surface of a chat Server. WebSocket clients join
// the same registry as TCP clients.
type Gateway struct {
	srv      *Server
	upgrader websocket.Upgrader
}

// NewGateway creates the HTTP handlers for srv, enforcing its allowed origins.
func NewGateway(srv *Server) *Gateway {
	policy := newOriginPolicy(srv.cfg.AllowedOrigins, srv.logger)
	return &Gateway{
		srv: srv,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     policy.check,
		},
	}
}

// WebSocketHandler upgrades GET requests and hands the connection to the
// chat server, which runs the same handshake as for TCP clients.
func (g *Gateway) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.srv.logger.Warn().Err(err).Str("addr", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	g.srv.ServeConn(NewWebSocketConn(conn, r.RemoteAddr, g.srv.cfg.BufferSize))
}

// HealthHandler reports that the server is running and how many users are online.
func (g *Gateway) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Chat server is running! %d users online", g.srv.hub.Registry().Len())
}

// TestPageHandler serves an HTML page that joins the chat over the WebSocket
// gateway, sending the username first and JSON frames afterwards.
func (g *Gateway) TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		g.srv.logger.Warn().Err(err).Msg("error writing HTML response")
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>Chat WebSocket Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; margin: 10px 0; background-color: #f9f9f9; }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
        .status { color: #a07000; } .command { color: #0050a0; } .dm { color: #107010; } .error { color: #b00020; }
    </style>
</head>
<body>
    <h1>Chat WebSocket Test</h1>
    <div>
        <input type="text" id="username" placeholder="Username">
        <button id="connectButton" onclick="connect()">Join</button>
    </div>
    <div id="messages"></div>
    <div>
        <input type="text" id="messageInput" placeholder="Message, /users or /dm user text" disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>

    <script>
        let ws = null;
        let username = '';
        const messagesDiv = document.getElementById('messages');
        const messageInput = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');

        function now() {
            return new Date().toISOString().replace('T', ' ').substring(0, 19);
        }

        function show(msg) {
            const el = document.createElement('div');
            el.className = msg.type;
            el.textContent = '[' + msg.timestamp + '] ' + msg.sender + ': ' + msg.content;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function connect() {
            username = document.getElementById('username').value.trim();
            if (!username) { return; }
            ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
            ws.onopen = function() {
                ws.send(username);
                messageInput.disabled = false;
                sendButton.disabled = false;
            };
            ws.onmessage = function(event) { show(JSON.parse(event.data)); };
            ws.onclose = function() {
                show({type: 'status', timestamp: now(), sender: 'Client', content: 'Connection closed'});
                messageInput.disabled = true;
                sendButton.disabled = true;
                ws = null;
            };
        }

        function frame(type, content, recipient) {
            return JSON.stringify({type: type, content: content, sender: username, recipient: recipient || null, timestamp: now()});
        }

        function sendMessage() {
            const text = messageInput.value.trim();
            if (!text || !ws) { return; }
            if (text === '/quit') {
                ws.close();
            } else if (text.startsWith('/dm ')) {
                const parts = text.split(/\s+/);
                if (parts.length >= 3) {
                    ws.send(frame('dm', parts.slice(2).join(' '), parts[1]));
                }
            } else if (text.startsWith('/')) {
                ws.send(frame('command', text.substring(1)));
            } else {
                ws.send(frame('chat', text));
                show({type: 'chat', timestamp: now(), sender: username, content: text});
            }
            messageInput.value = '';
        }

        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') { sendMessage(); }
        });
    </script>
</body>
</html>`
