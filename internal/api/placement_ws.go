package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/terra-clan/ruleset-engine/internal/models"
	"github.com/terra-clan/ruleset-engine/internal/placement"
)

const (
	wsReadLimit   = 4096
	wsIdleTimeout = 10 * time.Minute
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// PlacementMessage is exchanged over the placement websocket.
// Clients send "advance" (phase, correct_count) or "state"; the server answers
// with "connected", "outcome", "state", "finished" or "error".
type PlacementMessage struct {
	Type         string             `json:"type"`
	Phase        models.Phase       `json:"phase,omitempty"`
	CorrectCount *int               `json:"correct_count,omitempty"`
	Session      *placement.Session `json:"session,omitempty"`
	Outcome      *placement.Outcome `json:"outcome,omitempty"`
	Code         string             `json:"code,omitempty"`
	Message      string             `json:"message,omitempty"`
}

func (s *Server) handlePlacementWS(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	session, err := s.placement.Get(r.Context(), sessionID)
	if err != nil {
		respondFailure(w, r, "get placement session", err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsReadLimit)

	slog.Info("placement websocket connected", "session_id", sessionID)

	if err := s.sendPlacementMessage(conn, PlacementMessage{Type: "connected", Session: session}); err != nil {
		return
	}
	if session.Closed() {
		s.sendPlacementMessage(conn, PlacementMessage{Type: "finished", Session: session})
		return
	}

	ctx := r.Context()
	for {
		conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket read error", "error", err)
			}
			break
		}

		var msg PlacementMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendPlacementError(conn, "invalid_request", "invalid message format")
			continue
		}

		switch msg.Type {
		case "advance":
			if msg.CorrectCount == nil {
				s.sendPlacementError(conn, "validation_error", "correct_count is required")
				continue
			}
			updated, outcome, err := s.placement.Advance(ctx, sessionID, msg.Phase, *msg.CorrectCount)
			if err != nil {
				_, code := errorStatus(err)
				s.sendPlacementError(conn, code, err.Error())
				if updated != nil && updated.Closed() {
					s.sendPlacementMessage(conn, PlacementMessage{Type: "finished", Session: updated})
					return
				}
				continue
			}
			if err := s.sendPlacementMessage(conn, PlacementMessage{Type: "outcome", Session: updated, Outcome: outcome}); err != nil {
				return
			}
			if updated.Closed() {
				s.sendPlacementMessage(conn, PlacementMessage{Type: "finished", Session: updated})
				return
			}
		case "state":
			current, err := s.placement.Get(ctx, sessionID)
			if err != nil {
				_, code := errorStatus(err)
				s.sendPlacementError(conn, code, err.Error())
				continue
			}
			s.sendPlacementMessage(conn, PlacementMessage{Type: "state", Session: current})
		default:
			s.sendPlacementError(conn, "invalid_request", "unknown message type "+msg.Type)
		}
	}

	slog.Info("placement websocket disconnected", "session_id", sessionID)
}

func (s *Server) sendPlacementMessage(conn *websocket.Conn, msg PlacementMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal placement message", "error", err)
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("failed to send placement message", "error", err)
		return err
	}
	return nil
}

func (s *Server) sendPlacementError(conn *websocket.Conn, code, message string) {
	s.sendPlacementMessage(conn, PlacementMessage{
		Type:    "error",
		Code:    code,
		Message: message,
	})
}
