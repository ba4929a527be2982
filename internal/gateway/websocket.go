package gateway

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/chathub/chathub/internal/provider"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsFrame is the message envelope in both directions.
//
// Client -> server types: chat, new_chat, ping.
// Server -> client types: connected, typing, chunk, complete, chat_reset,
// pong, error.
type wsFrame struct {
	Type      string `json:"type"`
	Message   string `json:"message,omitempty"`
	Content   string `json:"content,omitempty"`
	Provider  string `json:"provider,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	ClientID  string `json:"clientId,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

func (s *Server) handleWebSocket(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return err
	}
	defer ws.Close()

	clientID := c.Param("client_id")
	if clientID == "" {
		clientID = uuid.NewString()
	}
	connID := uuid.NewString()

	// Clients may resume a session by passing ?session=<id>.
	sess := s.sessions.AttachConn(connID, c.QueryParam("session"), s.registry.Default())
	defer s.sessions.DetachConn(connID)

	s.logger.Info().Str("client", clientID).Str("session", sess.ID).Msg("WebSocket client connected")

	_ = ws.WriteJSON(wsFrame{
		Type:      "connected",
		ClientID:  clientID,
		SessionID: sess.ID,
		Provider:  s.registry.Default(),
		Timestamp: time.Now().UnixMilli(),
	})

	for {
		var frame wsFrame
		if err := ws.ReadJSON(&frame); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Info().Str("client", clientID).Msg("WebSocket client disconnected")
			} else if !strings.Contains(err.Error(), "use of closed") {
				s.logger.Error().Err(err).Str("client", clientID).Msg("WebSocket read error")
			}
			break
		}

		switch frame.Type {
		case "ping":
			_ = ws.WriteJSON(wsFrame{Type: "pong", Timestamp: time.Now().UnixMilli()})

		case "chat":
			s.handleWSChat(ws, sess.ID, frame)

		case "new_chat":
			s.handleWSNewChat(ws, frame)

		default:
			_ = ws.WriteJSON(wsFrame{Type: "error", Error: "unknown message type: " + frame.Type})
		}
	}

	return nil
}

// handleWSChat streams a provider response over the socket. The read loop
// blocks until the exchange finishes, so frames stay ordered per connection.
func (s *Server) handleWSChat(ws *websocket.Conn, sessionID string, frame wsFrame) {
	if frame.Message == "" {
		_ = ws.WriteJSON(wsFrame{Type: "error", Error: "message is required"})
		return
	}

	p, err := s.registry.Get(frame.Provider)
	if err != nil {
		_ = ws.WriteJSON(wsFrame{Type: "error", Error: err.Error()})
		return
	}

	_ = ws.WriteJSON(wsFrame{
		Type:      "typing",
		Provider:  p.Name(),
		SessionID: sessionID,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var full strings.Builder
	err = p.Stream(ctx, frame.Message, nil, func(delta string) {
		full.WriteString(delta)
		_ = ws.WriteJSON(wsFrame{
			Type:      "chunk",
			Content:   delta,
			Provider:  p.Name(),
			SessionID: sessionID,
		})
	})
	if err != nil {
		s.logger.Error().Err(err).Str("provider", p.Name()).Msg("WebSocket chat failed")
		_ = ws.WriteJSON(wsFrame{Type: "error", Error: err.Error(), Provider: p.Name(), SessionID: sessionID})
		return
	}

	s.sessions.Touch(sessionID)
	_ = ws.WriteJSON(wsFrame{
		Type:      "complete",
		Content:   full.String(),
		Provider:  p.Name(),
		SessionID: sessionID,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Server) handleWSNewChat(ws *websocket.Conn, frame wsFrame) {
	p, err := s.registry.Get(frame.Provider)
	if err != nil {
		_ = ws.WriteJSON(wsFrame{Type: "error", Error: err.Error()})
		return
	}

	if conv, ok := p.(provider.Conversational); ok {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := conv.NewChat(ctx); err != nil {
			_ = ws.WriteJSON(wsFrame{Type: "error", Error: err.Error(), Provider: p.Name()})
			return
		}
	}

	_ = ws.WriteJSON(wsFrame{
		Type:      "chat_reset",
		Provider:  p.Name(),
		Timestamp: time.Now().UnixMilli(),
	})
}
