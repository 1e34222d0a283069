package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the REST API under /api and the game sockets under /ws.
func NewRouter(h *Handler, ws *WebSocketHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", Health)

		r.Post("/games", h.CreateGame)
		r.Post("/games/join", h.JoinGame)

		r.Route("/games/{code}", func(r chi.Router) {
			r.Get("/", h.GetLobby)
			r.Delete("/", h.DeleteGame)
			r.Get("/ingame", h.GetInGame)
			r.Post("/settings", h.UpdateSettings)
			r.Post("/lock", h.SetLocked)
			r.Post("/start", h.StartGame)
			r.Post("/rounds", h.StartRound)
			r.Post("/rounds/{roundId}/answers", h.SubmitAnswers)
			r.Post("/players/{playerId}/leave", h.Leave)
		})
	})

	r.Get("/ws/games/{code}", ws.HandleGameConnection)
	r.Get("/ws/stats", ws.HandleConnectionStats)
	return r
}
