package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/mcdev12/basta/go/internal/apperrors"
	"github.com/mcdev12/basta/go/internal/events"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for game rooms
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	service           GameService
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, svc GameService) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		service:           svc,
	}
}

// HandleGameConnection handles GET /ws/games/{code}?playerId=N. Without a
// playerId the socket only listens.
func (h *WebSocketHandler) HandleGameConnection(w http.ResponseWriter, r *http.Request) {
	lobby, err := h.service.Lobby(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	var playerID int64
	if raw := r.URL.Query().Get("playerId"); raw != "" {
		playerID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || playerID <= 0 {
			writeError(w, r, apperrors.ErrInvalidPlayerID)
			return
		}
		member := false
		for _, p := range lobby.Players {
			if p.ID == playerID {
				member = true
				break
			}
		}
		if !member {
			writeError(w, r, apperrors.ErrPlayerNotFound)
			return
		}
	}

	code := lobby.Game.Code
	conn, err := h.connectionManager.UpgradeConnection(w, r, code, playerID, h.handleMessage)
	if err != nil {
		// the upgrader already replied
		log.Error().
			Err(err).
			Str("game_code", code).
			Int64("player_id", playerID).
			Msg("failed to upgrade WebSocket connection")
		return
	}

	h.reply(conn, events.TypeLobbyUpdate, lobby)
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, c *Connection, msg ClientMessage) {
	switch msg.Type {
	case MsgBasta:
		if err := h.service.Basta(ctx, c.Code); err != nil {
			_, body := errorBody(err)
			h.reply(c, TypeError, body)
		}

	case MsgAnswers:
		var data AnswersMessage
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			h.reply(c, TypeAnswersSaved, AnswersSavedPayload{Error: apperrors.ErrInvalidAnswers.Code})
			return
		}
		if c.PlayerID == 0 {
			h.reply(c, TypeAnswersSaved, AnswersSavedPayload{Error: apperrors.ErrInvalidPlayerID.Code})
			return
		}
		if _, err := h.service.SubmitAnswers(ctx, c.Code, data.RoundID, c.PlayerID, data.Answers); err != nil {
			log.Debug().Err(err).Str("game_code", c.Code).Int64("player_id", c.PlayerID).Msg("socket answers rejected")
			h.reply(c, TypeAnswersSaved, AnswersSavedPayload{Error: apperrors.CodeOf(err)})
			return
		}
		h.reply(c, TypeAnswersSaved, AnswersSavedPayload{OK: true})

	default:
		log.Debug().
			Str("connection_id", c.ID).
			Str("type", msg.Type).
			Msg("ignoring unknown client message")
	}
}

func (h *WebSocketHandler) reply(c *Connection, t events.Type, payload any) {
	e, err := events.New(c.Code, t, payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(t)).Msg("failed to build reply")
		return
	}
	h.connectionManager.SendTo(c, e)
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.connectionManager.Stats())
}
