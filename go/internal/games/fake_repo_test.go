package games

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mcdev12/basta/go/internal/apperrors"
	"github.com/mcdev12/basta/go/internal/models"
)

type fakeRepo struct {
	mu             sync.Mutex
	nextID         int64
	games          map[int64]*models.Game
	players        map[int64]*models.Player
	finishedRounds map[int64]int
	takenCodes     map[string]bool
	categories     []models.Category
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		games:          make(map[int64]*models.Game),
		players:        make(map[int64]*models.Player),
		finishedRounds: make(map[int64]int),
		takenCodes:     make(map[string]bool),
		categories: []models.Category{
			{ID: 1, Slug: "nombre", Name: "Nombre", IsDefault: true, Enabled: true, Position: 1},
			{ID: 2, Slug: "fruta", Name: "Fruta", IsDefault: true, Enabled: true, Position: 2},
		},
	}
}

func (f *fakeRepo) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeRepo) CreateGame(_ context.Context, p CreateGameParams) (*models.Game, *models.Player, []models.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.takenCodes[p.Code] {
		return nil, nil, nil, errCodeTaken
	}
	f.takenCodes[p.Code] = true
	g := &models.Game{
		ID: f.id(), Code: p.Code, Status: models.GameStatusLobby,
		PointLimit: p.PointLimit, RoundLimit: p.RoundLimit, DurationSec: p.DurationSec,
	}
	f.games[g.ID] = g
	h := &models.Player{ID: f.id(), GameID: g.ID, Name: p.HostName, IsHost: true, CreatedAt: time.Now()}
	f.players[h.ID] = h
	gc, hc := *g, *h
	return &gc, &hc, append([]models.Category(nil), f.categories...), nil
}

func (f *fakeRepo) GetGameByCode(_ context.Context, code string) (*models.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.games {
		if g.Code == code {
			gc := *g
			return &gc, nil
		}
	}
	return nil, apperrors.ErrGameNotFound
}

func (f *fakeRepo) GetGameByID(_ context.Context, id int64) (*models.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.games[id]
	if !ok {
		return nil, apperrors.ErrGameNotFound
	}
	gc := *g
	return &gc, nil
}

func (f *fakeRepo) AddPlayer(_ context.Context, gameID int64, name string) (*models.Player, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.players {
		if p.GameID == gameID && p.Name == name {
			pc := *p
			return &pc, false, nil
		}
	}
	p := &models.Player{ID: f.id(), GameID: gameID, Name: name, CreatedAt: time.Now()}
	f.players[p.ID] = p
	pc := *p
	return &pc, true, nil
}

func (f *fakeRepo) RemovePlayer(_ context.Context, gameID, playerID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.players[playerID]
	if !ok || p.GameID != gameID {
		return false, nil
	}
	delete(f.players, playerID)
	if p.IsHost {
		var next *models.Player
		for _, o := range f.players {
			if o.GameID == gameID && (next == nil || o.ID < next.ID) {
				next = o
			}
		}
		if next != nil {
			next.IsHost = true
		}
	}
	return true, nil
}

func (f *fakeRepo) ListPlayers(_ context.Context, gameID int64) ([]models.Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Player
	for _, p := range f.players {
		if p.GameID == gameID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsHost != out[j].IsHost {
			return out[i].IsHost
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (f *fakeRepo) Scores(ctx context.Context, gameID int64) ([]models.Score, error) {
	players, _ := f.ListPlayers(ctx, gameID)
	scores := make([]models.Score, 0, len(players))
	for _, p := range players {
		scores = append(scores, models.Score{ID: p.ID, Name: p.Name, Total: p.Score})
	}
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Total != scores[j].Total {
			return scores[i].Total > scores[j].Total
		}
		return scores[i].Name < scores[j].Name
	})
	return scores, nil
}

func (f *fakeRepo) UpdateSettings(_ context.Context, gameID int64, pointLimit, roundLimit, durationSec int) (*models.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.games[gameID]
	if !ok {
		return nil, apperrors.ErrGameNotFound
	}
	g.PointLimit, g.RoundLimit, g.DurationSec = pointLimit, roundLimit, durationSec
	gc := *g
	return &gc, nil
}

func (f *fakeRepo) SetLocked(_ context.Context, gameID int64, locked bool) (*models.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.games[gameID]
	if !ok {
		return nil, apperrors.ErrGameNotFound
	}
	g.Locked = locked
	gc := *g
	return &gc, nil
}

func (f *fakeRepo) SetStatus(_ context.Context, gameID int64, status models.GameStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.games[gameID]
	if !ok {
		return apperrors.ErrGameNotFound
	}
	g.Status = status
	return nil
}

func (f *fakeRepo) CountFinishedRounds(_ context.Context, gameID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finishedRounds[gameID], nil
}

func (f *fakeRepo) ListGameCategories(_ context.Context, _ int64) ([]models.Category, error) {
	return append([]models.Category(nil), f.categories...), nil
}

func (f *fakeRepo) DeleteGame(_ context.Context, gameID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.games[gameID]; !ok {
		return apperrors.ErrGameNotFound
	}
	delete(f.games, gameID)
	for id, p := range f.players {
		if p.GameID == gameID {
			delete(f.players, id)
		}
	}
	return nil
}

func (f *fakeRepo) setScore(playerID int64, score int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.players[playerID].Score = score
}
