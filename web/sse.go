package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/SK-Rookies-Final-Project/Backend/transform"
	"github.com/SK-Rookies-Final-Project/Backend/types"
)

// handleSSE serves one long-lived event stream for one category. The
// response is negotiated as text/event-stream before any check runs, so a
// failure is always delivered as a single parseable error frame followed by
// a clean close, never a plain error body.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	category, valid := types.ParseCategory(r.PathValue("category"))
	if !valid {
		s.writeSSEFrame(w, flusher, errorFrame("unknown stream category", ""))
		return
	}

	username, err := s.identity(r)
	if err != nil {
		s.writeSSEFrame(w, flusher, errorFrame("authentication required", ""))
		return
	}

	required := s.bindings.Required(category)
	if err := s.gate.Authorize(r.Context(), username, required); err != nil {
		s.writeSSEFrame(w, flusher, errorFrame("access denied", string(required)))
		return
	}

	conn, err := s.registry.OpenStream(r.Context(), username, category)
	if err != nil {
		s.writeSSEFrame(w, flusher, errorFrame("stream open failed", ""))
		return
	}
	defer func() {
		// The request context is already cancelled here; the removal (and
		// possible credential purge) must still complete.
		_ = s.registry.CloseConnection(context.Background(), username, conn.ID)
	}()

	s.writeSSEFrame(w, flusher, connectionFrame(conn.ID))

	for {
		select {
		case msg := <-conn.Events():
			s.writeSSEFrame(w, flusher, string(msg))
		case <-conn.Done():
			return
		case <-r.Context().Done():
			return
		}
	}
}

// writeSSEFrame emits one data frame and flushes it immediately
func (s *Server) writeSSEFrame(w http.ResponseWriter, flusher http.Flusher, payload string) {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return
	}
	flusher.Flush()
}

// errorFrame builds the single structured error frame sent on denial paths
func errorFrame(message, required string) string {
	frame := map[string]any{
		"error":     message,
		"timestamp": time.Now().UnixMilli(),
	}
	if required != "" {
		frame["required"] = required
	}
	data, _ := json.Marshal(frame)
	return string(data)
}

// connectionFrame builds the initial frame confirming the stream is live,
// shaped like a real audit record so clients reuse one parser.
func connectionFrame(connectionID string) string {
	frame := map[string]any{
		"id":           uuid.NewString(),
		"eventTimeKST": transform.NowKST(),
		"clientIp":     "127.0.0.1",
		"methodName":   "SSE_CONNECTION",
		"description":  "stream connected",
		"connectionId": connectionID,
	}
	data, _ := json.Marshal(frame)
	return string(data)
}
