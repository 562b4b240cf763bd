package server

import (
	"log/slog"
	"moonshop/runtime"
	"moonshop/sink"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

// WebsocketHandler upgrades /ws requests and runs one relay session per socket.
// The reading goroutine feeds the relay, a second goroutine owns every write.
type WebsocketHandler struct {
	relay                *runtime.Relay
	upgrader             websocket.Upgrader
	connectionBufferSize int
	writeTimeout         time.Duration
	log                  *slog.Logger
}

func NewWebsocketHandler(relay *runtime.Relay, allowedOrigins []string,
	connectionBufferSize int, writeTimeout time.Duration, log *slog.Logger) *WebsocketHandler {
	return &WebsocketHandler{
		relay: relay,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(allowedOrigins),
		},
		connectionBufferSize: connectionBufferSize,
		writeTimeout:         writeTimeout,
		log:                  log,
	}
}

func (h *WebsocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the client
		h.log.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	outbound := sink.NewWebsocketSink(h.connectionBufferSize)
	session := h.relay.Open(outbound)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(conn, outbound, session.ID)
	}()

	defer func() {
		h.relay.Close(session)
		outbound.Close()
		_ = conn.Close()
		<-writerDone
	}()

	ctx := r.Context()
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("WebSocket closed", "session_id", session.ID, "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			h.log.Warn("Ignoring non text frame", "session_id", session.ID, "type", messageType)
			continue
		}
		h.relay.Handle(ctx, session, data)
	}
}

// writeLoop drains the sink until it is closed or a write fails.
// A failed write closes the socket so the read loop ends too.
func (h *WebsocketHandler) writeLoop(conn *websocket.Conn, outbound *sink.WebsocketSink, sessionID string) {
	for {
		select {
		case <-outbound.Done():
			return
		case evt := <-outbound.Outbound:
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := conn.WriteJSON(evt); err != nil {
				h.log.Debug("WebSocket write failed", "session_id", sessionID, "error", err)
				outbound.Close()
				_ = conn.Close()
				return
			}
		}
	}
}

func originChecker(allowedOrigins []string) func(r *http.Request) bool {
	if len(allowedOrigins) == 0 || lo.Contains(allowedOrigins, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || lo.Contains(allowedOrigins, origin)
	}
}
