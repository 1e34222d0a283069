package gateway

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/mcdev12/basta/go/internal/apperrors"
	"github.com/mcdev12/basta/go/internal/games"
	"github.com/mcdev12/basta/go/internal/models"
	"github.com/mcdev12/basta/go/internal/rounds"
)

const defaultTMinus = 3

// Handler serves the REST API
type Handler struct {
	service GameService
	creator GameCreator
	tMinus  int
}

// NewHandler creates a new REST handler
func NewHandler(svc GameService, creator GameCreator) *Handler {
	return &Handler{service: svc, creator: creator, tMinus: defaultTMinus}
}

// WithStartCountdown sets the countdown used when a start request omits tMinus.
func (h *Handler) WithStartCountdown(sec int) *Handler {
	h.tMinus = sec
	return h
}

type joinRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type lockRequest struct {
	Locked *bool `json:"locked"`
}

type startGameRequest struct {
	TMinus *int `json:"tMinus"`
}

type startRoundRequest struct {
	Letter      string `json:"letter"`
	DurationSec int    `json:"durationSec"`
}

type submitAnswersRequest struct {
	PlayerID int64           `json:"playerId"`
	Answers  []models.Answer `json:"answers"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type startGameResponse struct {
	OK     bool `json:"ok"`
	TMinus int  `json:"tMinus"`
}

type startRoundResponse struct {
	Round *rounds.RoundDescriptor `json:"round"`
}

type submitAnswersResponse struct {
	OK bool `json:"ok"`
	*rounds.SubmitResult
}

// CreateGame handles POST /api/games
func (h *Handler) CreateGame(w http.ResponseWriter, r *http.Request) {
	var req games.CreateGameRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.creator.CreateGameWithHost(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// GetLobby handles GET /api/games/{code}
func (h *Handler) GetLobby(w http.ResponseWriter, r *http.Request) {
	lobby, err := h.service.Lobby(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lobby)
}

// GetInGame handles GET /api/games/{code}/ingame
func (h *Handler) GetInGame(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.InGame(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// JoinGame handles POST /api/games/join
func (h *Handler) JoinGame(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.service.JoinGame(r.Context(), req.Code, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// UpdateSettings handles POST /api/games/{code}/settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req games.UpdateSettingsRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	lobby, err := h.service.UpdateSettings(r.Context(), chi.URLParam(r, "code"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lobby)
}

// SetLocked handles POST /api/games/{code}/lock
func (h *Handler) SetLocked(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Locked == nil {
		writeError(w, r, apperrors.Validation(apperrors.ErrInvalidBody.Code, "locked is required"))
		return
	}
	lobby, err := h.service.SetLocked(r.Context(), chi.URLParam(r, "code"), *req.Locked)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lobby)
}

// StartGame handles POST /api/games/{code}/start
func (h *Handler) StartGame(w http.ResponseWriter, r *http.Request) {
	var req startGameRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	tMinus := h.tMinus
	if req.TMinus != nil {
		tMinus = *req.TMinus
	}
	if tMinus < 0 || tMinus > 30 {
		writeError(w, r, apperrors.Validation(apperrors.ErrInvalidBody.Code, "tMinus must be between 0 and 30"))
		return
	}
	if err := h.service.StartGame(r.Context(), chi.URLParam(r, "code"), tMinus); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, startGameResponse{OK: true, TMinus: tMinus})
}

// StartRound handles POST /api/games/{code}/rounds
func (h *Handler) StartRound(w http.ResponseWriter, r *http.Request) {
	var req startRoundRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	desc, err := h.service.StartRound(r.Context(), chi.URLParam(r, "code"), req.Letter, req.DurationSec)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, startRoundResponse{Round: desc})
}

// SubmitAnswers handles POST /api/games/{code}/rounds/{roundId}/answers
func (h *Handler) SubmitAnswers(w http.ResponseWriter, r *http.Request) {
	roundID, err := strconv.ParseInt(chi.URLParam(r, "roundId"), 10, 64)
	if err != nil || roundID <= 0 {
		writeError(w, r, apperrors.ErrInvalidRoundID)
		return
	}
	var req submitAnswersRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.service.SubmitAnswers(r.Context(), chi.URLParam(r, "code"), roundID, req.PlayerID, req.Answers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, submitAnswersResponse{OK: true, SubmitResult: res})
}

// Leave handles POST /api/games/{code}/players/{playerId}/leave
func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	playerID, err := strconv.ParseInt(chi.URLParam(r, "playerId"), 10, 64)
	if err != nil || playerID <= 0 {
		writeError(w, r, apperrors.ErrInvalidPlayerID)
		return
	}
	res, err := h.service.Leave(r.Context(), chi.URLParam(r, "code"), playerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// DeleteGame handles DELETE /api/games/{code}
func (h *Handler) DeleteGame(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteGame(r.Context(), chi.URLParam(r, "code")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// Health handles GET /api/health
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
