package gateway

import (
	"context"
	"sync"

	"github.com/mcdev12/basta/go/internal/apperrors"
	"github.com/mcdev12/basta/go/internal/games"
	"github.com/mcdev12/basta/go/internal/models"
	"github.com/mcdev12/basta/go/internal/orchestrator"
	"github.com/mcdev12/basta/go/internal/rounds"
)

const testCode = "ABC123"

type fakeService struct {
	mu        sync.Mutex
	err       error
	tMinus    int
	locked    *bool
	submitted []rounds.SubmitRequest
	bastas    int
	deleted   bool
}

func (f *fakeService) game(code string) (*models.Game, error) {
	if f.err != nil {
		return nil, f.err
	}
	if code != testCode && code != "abc123" {
		return nil, apperrors.ErrGameNotFound
	}
	return &models.Game{ID: 1, Code: testCode, Status: models.GameStatusLobby, DurationSec: 60}, nil
}

func (f *fakeService) lobby(code string) (*games.Lobby, error) {
	g, err := f.game(code)
	if err != nil {
		return nil, err
	}
	host := int64(10)
	return &games.Lobby{
		Game:    g,
		Players: []models.Player{{ID: 10, GameID: 1, Name: "Ana", IsHost: true}, {ID: 11, GameID: 1, Name: "Beto"}},
		HostID:  &host,
	}, nil
}

func (f *fakeService) Lobby(_ context.Context, code string) (*games.Lobby, error) {
	return f.lobby(code)
}

func (f *fakeService) InGame(_ context.Context, code string) (*orchestrator.InGame, error) {
	g, err := f.game(code)
	if err != nil {
		return nil, err
	}
	return &orchestrator.InGame{Game: g, Left: 12, RoundsPlayed: 2, CurrentRound: 3}, nil
}

func (f *fakeService) JoinGame(_ context.Context, code, name string) (*games.JoinResult, error) {
	l, err := f.lobby(code)
	if err != nil {
		return nil, err
	}
	p := &models.Player{ID: 12, GameID: 1, Name: name}
	return &games.JoinResult{Game: l.Game, Player: p, Players: append(l.Players, *p), Created: true}, nil
}

func (f *fakeService) Leave(_ context.Context, code string, playerID int64) (*games.LeaveResult, error) {
	l, err := f.lobby(code)
	if err != nil {
		return nil, err
	}
	return &games.LeaveResult{Lobby: l, Removed: playerID == 11}, nil
}

func (f *fakeService) UpdateSettings(_ context.Context, code string, req games.UpdateSettingsRequest) (*games.Lobby, error) {
	l, err := f.lobby(code)
	if err != nil {
		return nil, err
	}
	if req.DurationSec != nil {
		l.Game.DurationSec = *req.DurationSec
	}
	return l, nil
}

func (f *fakeService) SetLocked(_ context.Context, code string, locked bool) (*games.Lobby, error) {
	l, err := f.lobby(code)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.locked = &locked
	f.mu.Unlock()
	l.Game.Locked = locked
	return l, nil
}

func (f *fakeService) StartGame(_ context.Context, code string, tMinus int) error {
	if _, err := f.game(code); err != nil {
		return err
	}
	f.mu.Lock()
	f.tMinus = tMinus
	f.mu.Unlock()
	return nil
}

func (f *fakeService) StartRound(_ context.Context, code, letter string, durationSec int) (*rounds.RoundDescriptor, error) {
	g, err := f.game(code)
	if err != nil {
		return nil, err
	}
	if letter == "" {
		letter = "M"
	}
	if durationSec == 0 {
		durationSec = g.DurationSec
	}
	return &rounds.RoundDescriptor{RoundID: 7, GameID: g.ID, RoundNumber: 1, Letter: letter, DurationSec: durationSec}, nil
}

func (f *fakeService) SubmitAnswers(_ context.Context, code string, roundID, playerID int64, answers []models.Answer) (*rounds.SubmitResult, error) {
	g, err := f.game(code)
	if err != nil {
		return nil, err
	}
	if roundID != 7 {
		return nil, apperrors.ErrRoundNotFound
	}
	f.mu.Lock()
	f.submitted = append(f.submitted, rounds.SubmitRequest{RoundID: roundID, PlayerID: playerID, Answers: answers})
	f.mu.Unlock()
	return &rounds.SubmitResult{RoundID: roundID, GameID: g.ID, Inserted: len(answers), Valid: len(answers), Qualifies: true}, nil
}

func (f *fakeService) Basta(_ context.Context, code string) error {
	if _, err := f.game(code); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bastas++
	if f.bastas > 1 {
		return apperrors.ErrRoundNotFound
	}
	return nil
}

func (f *fakeService) DeleteGame(_ context.Context, code string) error {
	if _, err := f.game(code); err != nil {
		return err
	}
	f.mu.Lock()
	f.deleted = true
	f.mu.Unlock()
	return nil
}

type fakeCreator struct{}

func (fakeCreator) CreateGameWithHost(_ context.Context, req games.CreateGameRequest) (*games.CreateGameResult, error) {
	if len(req.HostName) < 2 {
		return nil, apperrors.ErrInvalidName
	}
	host := &models.Player{ID: 10, GameID: 1, Name: req.HostName, IsHost: true}
	return &games.CreateGameResult{
		Game:    &models.Game{ID: 1, Code: testCode, Status: models.GameStatusLobby},
		Host:    host,
		Players: []models.Player{*host},
	}, nil
}
