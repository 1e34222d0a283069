package games

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Session is the in-process state of a live game.
type Session struct {
	Code      string
	GameID    int64
	CreatedAt time.Time

	mu            sync.Mutex
	activeRoundID int64
}

// ActiveRound returns the id of the round currently being played, or 0.
func (s *Session) ActiveRound() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeRoundID
}

// SetActiveRound records the round currently being played; 0 clears it.
func (s *Session) SetActiveRound(roundID int64) {
	s.mu.Lock()
	s.activeRoundID = roundID
	s.mu.Unlock()
}

// ClearActiveRound clears the active round if it is still roundID.
func (s *Session) ClearActiveRound(roundID int64) {
	s.mu.Lock()
	if s.activeRoundID == roundID {
		s.activeRoundID = 0
	}
	s.mu.Unlock()
}

// Registry tracks live game sessions keyed by join code
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewRegistry creates an empty session registry
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Create registers a new session, replacing any stale one with the same code.
func (r *Registry) Create(code string, gameID int64) *Session {
	s := &Session{Code: code, GameID: gameID, CreatedAt: r.now()}

	r.mu.Lock()
	r.sessions[code] = s
	n := len(r.sessions)
	r.mu.Unlock()

	log.Debug().Str("game_code", code).Int64("game_id", gameID).Int("sessions", n).Msg("session created")
	return s
}

// Get returns the session for code, if any.
func (r *Registry) Get(code string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[code]
	return s, ok
}

// Ensure returns the session for code, creating it when the process has no
// record of it yet (e.g. after a restart).
func (r *Registry) Ensure(code string, gameID int64) *Session {
	r.mu.RLock()
	s, ok := r.sessions[code]
	r.mu.RUnlock()
	if ok && s.GameID == gameID {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[code]; ok && s.GameID == gameID {
		return s
	}
	s = &Session{Code: code, GameID: gameID, CreatedAt: r.now()}
	r.sessions[code] = s
	return s
}

// Remove drops the session for code.
func (r *Registry) Remove(code string) {
	r.mu.Lock()
	_, ok := r.sessions[code]
	delete(r.sessions, code)
	r.mu.Unlock()

	if ok {
		log.Debug().Str("game_code", code).Msg("session removed")
	}
}

// Len is the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
