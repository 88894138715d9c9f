package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/SK-Rookies-Final-Project/Backend/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Browser clients connect from arbitrary dashboard origins.
		return true
	},
}

// handleWebSocket serves the same stream semantics as handleSSE over a
// WebSocket. The upgrade happens before any check so a denial still arrives
// as one structured frame on the socket the client negotiated.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	category, valid := types.ParseCategory(r.PathValue("category"))
	if !valid {
		s.closeWSWithError(ws, errorFrame("unknown stream category", ""))
		return
	}

	username, err := s.identity(r)
	if err != nil {
		s.closeWSWithError(ws, errorFrame("authentication required", ""))
		return
	}

	required := s.bindings.Required(category)
	if err := s.gate.Authorize(r.Context(), username, required); err != nil {
		s.closeWSWithError(ws, errorFrame("access denied", string(required)))
		return
	}

	conn, err := s.registry.OpenStream(r.Context(), username, category)
	if err != nil {
		s.closeWSWithError(ws, errorFrame("stream open failed", ""))
		return
	}
	defer func() {
		_ = s.registry.CloseConnection(context.Background(), username, conn.ID)
	}()

	if err := s.writeWSFrame(ws, connectionFrame(conn.ID)); err != nil {
		return
	}

	// Reader goroutine: we never expect client data, but a read error is the
	// fastest disconnect signal.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg := <-conn.Events():
			if err := s.writeWSFrame(ws, string(msg)); err != nil {
				return
			}
		case <-conn.Done():
			return
		case <-clientGone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) writeWSFrame(ws *websocket.Conn, payload string) error {
	_ = ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return ws.WriteMessage(websocket.TextMessage, []byte(payload))
}

// closeWSWithError sends exactly one error frame then closes cleanly
func (s *Server) closeWSWithError(ws *websocket.Conn, frame string) {
	_ = s.writeWSFrame(ws, frame)
	deadline := time.Now().Add(time.Second)
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ""), deadline)
	// Give the peer a moment to complete the close handshake so the error
	// frame is not torn down with the socket.
	_ = ws.SetReadDeadline(deadline)
	_, _, _ = ws.ReadMessage()
}
