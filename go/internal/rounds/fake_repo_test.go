package rounds

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mcdev12/basta/go/internal/apperrors"
	"github.com/mcdev12/basta/go/internal/models"
	"github.com/mcdev12/basta/go/internal/textnorm"
)

type fakeRepo struct {
	mu          sync.Mutex
	nextID      int64
	rounds      map[int64]*models.Round
	subs        map[int64][]models.Submission
	players     map[int64][]models.Player
	categories  []models.Category
	results     map[int64]*Results
	finalizeErr error
	finalized   int
	beforeClaim func()
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		rounds:  make(map[int64]*models.Round),
		subs:    make(map[int64][]models.Submission),
		players: make(map[int64][]models.Player),
		results: make(map[int64]*Results),
		categories: []models.Category{
			{ID: 1, Slug: "fruta", Name: "Fruta", Enabled: true, Position: 1},
			{ID: 2, Slug: "color", Name: "Color", Enabled: true, Position: 2},
			{ID: 3, Slug: "animal", Name: "Animal", Enabled: false, Position: 3},
		},
	}
}

func (f *fakeRepo) addPlayers(gameID int64, names ...string) []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for _, n := range names {
		f.nextID++
		f.players[gameID] = append(f.players[gameID], models.Player{ID: f.nextID, GameID: gameID, Name: n})
		ids = append(ids, f.nextID)
	}
	return ids
}

func (f *fakeRepo) total(gameID, playerID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.players[gameID] {
		if p.ID == playerID {
			return p.Score
		}
	}
	return -1
}

func (f *fakeRepo) CreateRound(_ context.Context, p CreateRoundParams) (*models.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	number := 1
	for _, r := range f.rounds {
		if r.GameID != p.GameID {
			continue
		}
		if !r.IsFinished && r.EndsAt.After(p.StartsAt) {
			return nil, apperrors.ErrRoundInProgress
		}
		if r.Number >= number {
			number = r.Number + 1
		}
	}
	f.nextID++
	r := &models.Round{
		ID: f.nextID, GameID: p.GameID, Number: number, Letter: p.Letter,
		StartsAt: p.StartsAt, EndsAt: p.EndsAt, DurationSec: p.DurationSec,
	}
	f.rounds[r.ID] = r
	rc := *r
	return &rc, nil
}

func (f *fakeRepo) GetRound(_ context.Context, id int64) (*models.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rounds[id]
	if !ok {
		return nil, apperrors.ErrRoundNotFound
	}
	rc := *r
	return &rc, nil
}

func (f *fakeRepo) GetActiveRound(_ context.Context, gameID int64) (*models.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var active *models.Round
	for _, r := range f.rounds {
		if r.GameID == gameID && !r.IsFinished && (active == nil || r.Number > active.Number) {
			active = r
		}
	}
	if active == nil {
		return nil, apperrors.ErrRoundNotFound
	}
	rc := *active
	return &rc, nil
}

func (f *fakeRepo) UsedLetters(_ context.Context, gameID int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, r := range f.rounds {
		if r.GameID == gameID {
			out = append(out, r.Letter)
		}
	}
	return out, nil
}

func (f *fakeRepo) CountPlayers(_ context.Context, gameID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.players[gameID]), nil
}

func (f *fakeRepo) PlayerInGame(_ context.Context, gameID, playerID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.players[gameID] {
		if p.ID == playerID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) ListGameCategories(_ context.Context, _ int64) ([]models.Category, error) {
	return append([]models.Category(nil), f.categories...), nil
}

func (f *fakeRepo) ReplaceSubmissions(_ context.Context, roundID, playerID int64, subs []models.Submission, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rounds[roundID]
	if !ok {
		return apperrors.ErrRoundNotFound
	}
	if r.IsFinished {
		return apperrors.ErrRoundAlreadyFinished
	}
	if now.After(r.EndsAt) {
		return apperrors.ErrRoundTimeExpired
	}
	kept := f.subs[roundID][:0:0]
	for _, s := range f.subs[roundID] {
		if s.PlayerID != playerID {
			kept = append(kept, s)
		}
	}
	for _, s := range subs {
		s.PlayerID = playerID
		kept = append(kept, s)
	}
	f.subs[roundID] = kept
	return nil
}

func (f *fakeRepo) ListSubmissions(_ context.Context, roundID int64) ([]models.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Submission(nil), f.subs[roundID]...), nil
}

func (f *fakeRepo) FinalizeRound(ctx context.Context, roundID int64, score ScoreFunc) (*FinalizeResult, error) {
	if hook := f.beforeClaim; hook != nil {
		f.beforeClaim = nil
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finalizeErr != nil {
		return nil, f.finalizeErr
	}
	r, ok := f.rounds[roundID]
	if !ok || r.IsFinished {
		return &FinalizeResult{}, nil
	}

	players := f.players[r.GameID]
	ids := make([]int64, 0, len(players))
	for _, p := range players {
		ids = append(ids, p.ID)
	}
	scored, err := score(ctx, f.subs[roundID], ids)
	if err != nil {
		return nil, err
	}
	r.IsFinished = true
	f.finalized++

	res := &Results{RoundID: roundID, GameID: r.GameID, Letter: r.Letter, Duplicates: scored.Duplicates}
	for i := range players {
		players[i].Score += scored.Points[players[i].ID]
		res.Scores = append(res.Scores, PlayerResult{
			ID: players[i].ID, Name: players[i].Name,
			RoundPoints: scored.Points[players[i].ID], Total: players[i].Score,
		})
	}
	sort.Slice(res.Scores, func(i, j int) bool { return res.Scores[i].Total > res.Scores[j].Total })
	f.results[roundID] = res
	return &FinalizeResult{Claimed: true, Results: res}, nil
}

func (f *fakeRepo) GetResults(_ context.Context, roundID int64) (*Results, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := f.results[roundID]
	if !ok {
		return nil, apperrors.ErrRoundNotFound
	}
	return res, nil
}

func (f *fakeRepo) ListExpiredRounds(_ context.Context, now time.Time, limit int) ([]ExpiredRound, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ExpiredRound
	for _, r := range f.rounds {
		if !r.IsFinished && !r.EndsAt.After(now) {
			out = append(out, ExpiredRound{RoundID: r.ID, GameID: r.GameID, EndsAt: r.EndsAt})
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// fakeDict approves normalized words per category slug.
type fakeDict map[string][]string

func (d fakeDict) Exists(_ context.Context, slug, raw string) (bool, error) {
	w := textnorm.Normalize(raw)
	for _, ok := range d[slug] {
		if ok == w {
			return true, nil
		}
	}
	return false, nil
}

// countingDict wraps a dictionary and counts lookups.
type countingDict struct {
	Dictionary
	mu    sync.Mutex
	calls int
	err   error
}

func (d *countingDict) Exists(ctx context.Context, slug, raw string) (bool, error) {
	d.mu.Lock()
	d.calls++
	err := d.err
	d.mu.Unlock()
	if err != nil {
		return false, err
	}
	return d.Dictionary.Exists(ctx, slug, raw)
}
