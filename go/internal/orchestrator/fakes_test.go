package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/basta/go/internal/apperrors"
	"github.com/mcdev12/basta/go/internal/events"
	"github.com/mcdev12/basta/go/internal/games"
	"github.com/mcdev12/basta/go/internal/models"
	"github.com/mcdev12/basta/go/internal/rounds"
	"github.com/stretchr/testify/require"
)

const testCode = "ABC123"

type fakeGames struct {
	mu             sync.Mutex
	game           *models.Game
	players        []models.Player
	scores         []models.Score
	end            *games.GameEnd
	registry       *games.Registry
	played         int
	deleted        bool
	finished       bool
	endFailures    int
	finishFailures int
}

func newFakeGames() *fakeGames {
	return &fakeGames{
		game: &models.Game{
			ID:          1,
			Code:        testCode,
			Status:      models.GameStatusLobby,
			PointLimit:  1500,
			RoundLimit:  7,
			DurationSec: 30,
		},
		players: []models.Player{
			{ID: 10, GameID: 1, Name: "Ana", IsHost: true},
			{ID: 11, GameID: 1, Name: "Beto"},
		},
		scores:   []models.Score{{ID: 10, Name: "Ana", Total: 100}, {ID: 11, Name: "Beto", Total: 50}},
		registry: games.NewRegistry(),
	}
}

func (f *fakeGames) lookup(code string) (*models.Game, error) {
	if f.deleted || strings.ToUpper(code) != f.game.Code {
		return nil, apperrors.ErrGameNotFound
	}
	g := *f.game
	return &g, nil
}

func (f *fakeGames) lobby() *games.Lobby {
	g := *f.game
	players := append([]models.Player(nil), f.players...)
	var host *int64
	for i := range players {
		if players[i].IsHost {
			id := players[i].ID
			host = &id
		}
	}
	return &games.Lobby{Game: &g, Players: players, HostID: host}
}

func (f *fakeGames) GetGame(_ context.Context, code string) (*models.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookup(code)
}

func (f *fakeGames) GetLobby(_ context.Context, code string) (*games.Lobby, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.lookup(code); err != nil {
		return nil, err
	}
	return f.lobby(), nil
}

func (f *fakeGames) JoinGame(_ context.Context, code, name string) (*games.JoinResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.lookup(code); err != nil {
		return nil, err
	}
	for i := range f.players {
		if f.players[i].Name == name {
			p := f.players[i]
			l := f.lobby()
			return &games.JoinResult{Game: l.Game, Player: &p, Players: l.Players}, nil
		}
	}
	if f.game.Locked {
		return nil, apperrors.ErrLobbyLocked
	}
	p := models.Player{ID: int64(100 + len(f.players)), GameID: f.game.ID, Name: name}
	f.players = append(f.players, p)
	l := f.lobby()
	return &games.JoinResult{Game: l.Game, Player: &p, Players: l.Players, Created: true}, nil
}

func (f *fakeGames) Leave(_ context.Context, code string, playerID int64) (*games.LeaveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.lookup(code); err != nil {
		return nil, err
	}
	removed := false
	kept := f.players[:0]
	for _, p := range f.players {
		if p.ID == playerID {
			removed = true
			continue
		}
		kept = append(kept, p)
	}
	f.players = kept
	return &games.LeaveResult{Lobby: f.lobby(), Removed: removed}, nil
}

func (f *fakeGames) UpdateSettings(_ context.Context, code string, req games.UpdateSettingsRequest) (*games.Lobby, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.lookup(code); err != nil {
		return nil, err
	}
	if req.DurationSec != nil {
		f.game.DurationSec = *req.DurationSec
	}
	return f.lobby(), nil
}

func (f *fakeGames) SetLocked(_ context.Context, code string, locked bool) (*games.Lobby, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.lookup(code); err != nil {
		return nil, err
	}
	f.game.Locked = locked
	return f.lobby(), nil
}

func (f *fakeGames) MarkPlaying(context.Context, int64) error {
	f.mu.Lock()
	f.game.Status = models.GameStatusPlaying
	f.mu.Unlock()
	return nil
}

func (f *fakeGames) CheckGameEnd(context.Context, int64) (*games.GameEnd, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleted {
		return nil, apperrors.ErrGameNotFound
	}
	if f.endFailures > 0 {
		f.endFailures--
		return nil, errors.New("connection reset")
	}
	f.played++
	if f.end != nil {
		return f.end, nil
	}
	return &games.GameEnd{RoundsPlayed: f.played}, nil
}

func (f *fakeGames) FinishGame(context.Context, int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finishFailures > 0 {
		f.finishFailures--
		return errors.New("connection reset")
	}
	f.finished = true
	f.game.Status = models.GameStatusFinished
	return nil
}

func (f *fakeGames) isFinished() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finished
}

func (f *fakeGames) Scores(context.Context, int64) ([]models.Score, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Score(nil), f.scores...), nil
}

func (f *fakeGames) RoundsPlayed(context.Context, int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.played, nil
}

func (f *fakeGames) Categories(context.Context, int64) ([]models.Category, error) {
	return []models.Category{{ID: 1, Slug: "nombre", Name: "Nombre", Enabled: true}}, nil
}

func (f *fakeGames) DeleteGame(_ context.Context, code string) (*models.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, err := f.lookup(code)
	if err != nil {
		return nil, err
	}
	f.deleted = true
	f.registry.Remove(g.Code)
	return g, nil
}

func (f *fakeGames) Registry() *games.Registry {
	return f.registry
}

type fakeRounds struct {
	mu               sync.Mutex
	clock            clockwork.Clock
	rounds           map[int64]*models.Round
	nextID           int64
	starts           []rounds.StartRoundRequest
	progress         rounds.Progress
	finalizeFailures int
	claimed          int
}

func newFakeRounds(clock clockwork.Clock) *fakeRounds {
	return &fakeRounds{
		clock:    clock,
		rounds:   make(map[int64]*models.Round),
		progress: rounds.Progress{Needed: 2, TotalPlayers: 2},
	}
}

// seed stores an unfinished round directly, as a previous process would have.
func (f *fakeRounds) seed(gameID int64, endsAt time.Time) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.rounds[f.nextID] = &models.Round{
		ID:          f.nextID,
		GameID:      gameID,
		Number:      int(f.nextID),
		Letter:      "M",
		DurationSec: 30,
		StartsAt:    endsAt.Add(-30 * time.Second),
		EndsAt:      endsAt,
	}
	return f.nextID
}

func (f *fakeRounds) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts)
}

// forget drops a round as a cascade delete of its game would.
func (f *fakeRounds) forget(roundID int64) {
	f.mu.Lock()
	delete(f.rounds, roundID)
	f.mu.Unlock()
}

func (f *fakeRounds) claimedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.claimed
}

func (f *fakeRounds) StartRound(_ context.Context, req rounds.StartRoundRequest) (*rounds.RoundDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rounds {
		if r.GameID == req.GameID && !r.IsFinished {
			return nil, apperrors.ErrRoundInProgress
		}
	}
	f.starts = append(f.starts, req)
	f.nextID++
	letter := req.Letter
	if letter == "" {
		letter = string(rune('A' + f.nextID - 1))
	}
	now := f.clock.Now()
	r := &models.Round{
		ID:          f.nextID,
		GameID:      req.GameID,
		Number:      len(f.starts),
		Letter:      letter,
		DurationSec: req.DurationSec,
		StartsAt:    now,
		EndsAt:      now.Add(time.Duration(req.DurationSec) * time.Second),
	}
	f.rounds[r.ID] = r
	return describeRound(r), nil
}

func describeRound(r *models.Round) *rounds.RoundDescriptor {
	return &rounds.RoundDescriptor{
		RoundID:     r.ID,
		GameID:      r.GameID,
		RoundNumber: r.Number,
		Letter:      r.Letter,
		DurationSec: r.DurationSec,
		StartsAt:    r.StartsAt,
		EndsAt:      r.EndsAt,
	}
}

func (f *fakeRounds) SubmitAnswers(_ context.Context, req rounds.SubmitRequest) (*rounds.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rounds[req.RoundID]
	if !ok {
		return nil, apperrors.ErrRoundNotFound
	}
	if r.IsFinished {
		return nil, apperrors.ErrRoundAlreadyFinished
	}
	return &rounds.SubmitResult{
		RoundID:   r.ID,
		GameID:    r.GameID,
		Inserted:  len(req.Answers),
		Valid:     len(req.Answers),
		Qualifies: true,
	}, nil
}

func (f *fakeRounds) Progress(_ context.Context, roundID int64) (*rounds.Progress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.progress
	p.RoundID = roundID
	return &p, nil
}

func (f *fakeRounds) FinalizeRound(_ context.Context, roundID int64) (*rounds.FinalizeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finalizeFailures > 0 {
		f.finalizeFailures--
		return nil, errors.New("connection reset")
	}
	r, ok := f.rounds[roundID]
	if !ok {
		return nil, apperrors.ErrRoundNotFound
	}
	if r.IsFinished {
		return &rounds.FinalizeResult{}, nil
	}
	r.IsFinished = true
	f.claimed++
	return &rounds.FinalizeResult{
		Claimed: true,
		Results: &rounds.Results{
			RoundID: r.ID,
			GameID:  r.GameID,
			Letter:  r.Letter,
			Scores:  []rounds.PlayerResult{{ID: 10, Name: "Ana", RoundPoints: 100, Total: 100}},
		},
	}, nil
}

func (f *fakeRounds) GetRound(_ context.Context, roundID int64) (*models.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rounds[roundID]
	if !ok {
		return nil, apperrors.ErrRoundNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRounds) ActiveRound(_ context.Context, gameID int64) (*models.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var active *models.Round
	for _, r := range f.rounds {
		if r.GameID == gameID && !r.IsFinished && (active == nil || r.ID > active.ID) {
			cp := *r
			active = &cp
		}
	}
	return active, nil
}

func (f *fakeRounds) Describe(_ context.Context, round *models.Round) (*rounds.RoundDescriptor, error) {
	return describeRound(round), nil
}

func (f *fakeRounds) ExpiredRounds(_ context.Context, limit int) ([]rounds.ExpiredRound, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.clock.Now()
	var out []rounds.ExpiredRound
	for _, r := range f.rounds {
		if !r.IsFinished && now.After(r.EndsAt) && len(out) < limit {
			out = append(out, rounds.ExpiredRound{RoundID: r.ID, GameID: r.GameID, GameCode: testCode, EndsAt: r.EndsAt})
		}
	}
	return out, nil
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *recorder) ofType(t events.Type) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recorder) waitFor(t *testing.T, typ events.Type, n int) []events.Event {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(r.ofType(typ)) >= n
	}, 2*time.Second, 5*time.Millisecond, "waiting for %d %s events", n, typ)
	return r.ofType(typ)
}

func decode[T any](t *testing.T, e events.Event) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(e.Data, &v))
	return v
}
