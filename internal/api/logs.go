package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// logWriteWait bounds how long a single log line write to a viewer may block.
const logWriteWait = 10 * time.Second

// upgrader configures the WebSocket upgrader for log streaming.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Log streams are bearer-token authenticated; origin is not the gate.
		return true
	},
}

// wsViewer adapts a WebSocket connection to the log relay's viewer
// contract. Writes are serialized; gorilla connections permit only one
// concurrent writer.
type wsViewer struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Send delivers one log line to the connected client.
func (v *wsViewer) Send(line []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	//nolint:errcheck // deadline errors surface through the write below
	v.conn.SetWriteDeadline(time.Now().Add(logWriteWait))
	return v.conn.WriteMessage(websocket.TextMessage, line)
}

// handleDeviceLogs upgrades the connection and streams the device's logs
// until the client disconnects.
//
// The caller is attached as a viewer on the device's log session: cached
// lines replay immediately, new lines follow live. Disconnecting is the
// only way to stop the stream; the last viewer's departure stops the
// device publishing.
func (s *Server) handleDeviceLogs(w http.ResponseWriter, r *http.Request) {
	teamID := chi.URLParam(r, "teamID")
	deviceID := chi.URLParam(r, "deviceID")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	viewer := &wsViewer{conn: conn}
	relay := s.comms.Relay()

	if err := relay.StreamLogs(r.Context(), teamID, deviceID, viewer); err != nil {
		s.logger.Debug("log stream attach failed",
			"team_id", teamID, "device_id", deviceID, "error", err)
		//nolint:errcheck // best-effort close frame before dropping the connection
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "stream unavailable"),
			time.Now().Add(logWriteWait))
		conn.Close()
		return
	}

	s.logger.Debug("log stream attached", "team_id", teamID, "device_id", deviceID)

	// Block reading until the client goes away. Inbound frames are
	// discarded; the stream is one-way.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	// Detach with a fresh context: the request context is already done.
	relay.Detach(context.Background(), deviceID, viewer)
	conn.Close()
	s.logger.Debug("log stream detached", "team_id", teamID, "device_id", deviceID)
}
