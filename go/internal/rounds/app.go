// Package rounds owns the round lifecycle: starting a round, taking answer
// batches, measuring quorum and finalizing exactly once.
package rounds

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/basta/go/internal/apperrors"
	"github.com/mcdev12/basta/go/internal/models"
	"github.com/mcdev12/basta/go/internal/scoring"
	"github.com/mcdev12/basta/go/internal/textnorm"
	"github.com/rs/zerolog/log"
)

const (
	minDurationSec = 15
	maxDurationSec = 300
	maxAnswerLen   = 80
	maxAnswers     = 32

	finalizeAttempts = 3
)

var errStaleWords = errors.New("answers changed after dictionary lookup")

type wordKey struct {
	slug string
	word string
}

// RoundsRepository defines what the app layer needs from the round repository
type RoundsRepository interface {
	CreateRound(ctx context.Context, p CreateRoundParams) (*models.Round, error)
	GetRound(ctx context.Context, id int64) (*models.Round, error)
	GetActiveRound(ctx context.Context, gameID int64) (*models.Round, error)
	UsedLetters(ctx context.Context, gameID int64) ([]string, error)
	CountPlayers(ctx context.Context, gameID int64) (int, error)
	PlayerInGame(ctx context.Context, gameID, playerID int64) (bool, error)
	ListGameCategories(ctx context.Context, gameID int64) ([]models.Category, error)
	ReplaceSubmissions(ctx context.Context, roundID, playerID int64, subs []models.Submission, now time.Time) error
	ListSubmissions(ctx context.Context, roundID int64) ([]models.Submission, error)
	FinalizeRound(ctx context.Context, roundID int64, score ScoreFunc) (*FinalizeResult, error)
	GetResults(ctx context.Context, roundID int64) (*Results, error)
	ListExpiredRounds(ctx context.Context, now time.Time, limit int) ([]ExpiredRound, error)
}

// Dictionary is the oracle for valid words
type Dictionary interface {
	Exists(ctx context.Context, categorySlug, rawWord string) (bool, error)
}

// App handles round business logic
type App struct {
	repo   RoundsRepository
	dict   Dictionary
	clock  clockwork.Clock
	policy QuorumPolicy
	intn   func(int) int
}

// NewApp creates a new rounds App
func NewApp(repo RoundsRepository, dict Dictionary, clock clockwork.Clock, policy QuorumPolicy) *App {
	if policy == "" {
		policy = QuorumHalfCategories
	}
	return &App{
		repo:   repo,
		dict:   dict,
		clock:  clock,
		policy: policy,
		intn:   rand.Intn,
	}
}

// StartRound validates the request, picks a letter when none is given and
// persists the round.
func (a *App) StartRound(ctx context.Context, req StartRoundRequest) (*RoundDescriptor, error) {
	if req.DurationSec < minDurationSec || req.DurationSec > maxDurationSec {
		return nil, apperrors.Validation(apperrors.ErrInvalidDuration.Code,
			"durationSec must be between %d and %d", minDurationSec, maxDurationSec)
	}

	used, err := a.repo.UsedLetters(ctx, req.GameID)
	if err != nil {
		return nil, err
	}

	letter := PickLetter(used, a.intn)
	if strings.TrimSpace(req.Letter) != "" {
		l, ok := ParseLetter(req.Letter)
		if !ok {
			return nil, apperrors.ErrInvalidLetter
		}
		if !letterAvailable(l, used) {
			return nil, apperrors.Validation(apperrors.ErrInvalidLetter.Code, "letter %s was already played", l)
		}
		letter = l
	}

	now := a.clock.Now()
	round, err := a.repo.CreateRound(ctx, CreateRoundParams{
		GameID:      req.GameID,
		Letter:      letter,
		DurationSec: req.DurationSec,
		StartsAt:    now,
		EndsAt:      now.Add(time.Duration(req.DurationSec) * time.Second),
	})
	if err != nil {
		return nil, err
	}

	cats, err := a.repo.ListGameCategories(ctx, req.GameID)
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("game_id", round.GameID).
		Int64("round_id", round.ID).
		Int("round_number", round.Number).
		Str("letter", round.Letter).
		Int("duration_sec", round.DurationSec).
		Msg("round started")

	return describe(round, cats), nil
}

// SubmitAnswers validates and stores one player's batch, replacing any
// earlier batch of that player for the round.
func (a *App) SubmitAnswers(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	answers, err := validateSubmit(req)
	if err != nil {
		return nil, err
	}

	round, err := a.repo.GetRound(ctx, req.RoundID)
	if err != nil {
		return nil, err
	}
	if round.IsFinished {
		return nil, apperrors.ErrRoundAlreadyFinished
	}
	if round.Expired(a.clock.Now()) {
		return nil, apperrors.ErrRoundTimeExpired
	}

	ok, err := a.repo.PlayerInGame(ctx, round.GameID, req.PlayerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrPlayerNotFound
	}

	cats, err := a.repo.ListGameCategories(ctx, round.GameID)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]models.Category, len(cats))
	for _, c := range cats {
		byID[c.ID] = c
	}

	subs := make([]models.Submission, 0, len(answers))
	valid := 0
	for _, ans := range answers {
		s, err := a.evaluate(ctx, round, byID, ans)
		if err != nil {
			return nil, err
		}
		if s.Status == models.SubmissionStatusValid {
			valid++
		}
		subs = append(subs, s)
	}

	// the deadline is checked again under the round lock
	if err := a.repo.ReplaceSubmissions(ctx, round.ID, req.PlayerID, subs, a.clock.Now()); err != nil {
		return nil, err
	}

	res := &SubmitResult{
		RoundID:   round.ID,
		GameID:    round.GameID,
		Inserted:  len(subs),
		Valid:     valid,
		Qualifies: a.policy.Qualifies(subs, len(cats)),
	}
	if !res.Qualifies {
		res.Warning = fmt.Sprintf("answers saved but at least %d are needed to count toward closing the round", minAnswers(len(cats)))
	}

	log.Debug().
		Int64("round_id", round.ID).
		Int64("player_id", req.PlayerID).
		Int("submitted", res.Inserted).
		Int("valid", valid).
		Bool("qualifies", res.Qualifies).
		Msg("answers stored")
	return res, nil
}

func (a *App) evaluate(ctx context.Context, round *models.Round, cats map[int64]models.Category, ans models.Answer) (models.Submission, error) {
	cat, attached := cats[ans.CategoryID]
	s := models.Submission{
		RoundID:         round.ID,
		CategoryID:      ans.CategoryID,
		CategorySlug:    cat.Slug,
		RawText:         ans.Text,
		NormalizedText:  textnorm.Normalize(ans.Text),
		IsValidCategory: attached && cat.Enabled,
		IsValidLetter:   textnorm.StartsWithLetter(ans.Text, round.Letter),
		Status:          models.SubmissionStatusInvalid,
	}
	if !s.IsValidLetter || !s.IsValidCategory || s.NormalizedText == "" {
		return s, nil
	}

	found, err := a.dict.Exists(ctx, cat.Slug, ans.Text)
	if err != nil {
		return s, err
	}
	if found {
		s.Status = models.SubmissionStatusValid
		s.RepetitionGroupHash = scoring.GroupHash(s.CategoryID, s.NormalizedText)
	}
	return s, nil
}

// Progress counts the players whose stored batch qualifies for quorum.
func (a *App) Progress(ctx context.Context, roundID int64) (*Progress, error) {
	round, err := a.repo.GetRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	total, err := a.repo.CountPlayers(ctx, round.GameID)
	if err != nil {
		return nil, err
	}
	cats, err := a.repo.ListGameCategories(ctx, round.GameID)
	if err != nil {
		return nil, err
	}
	subs, err := a.repo.ListSubmissions(ctx, roundID)
	if err != nil {
		return nil, err
	}

	byPlayer := make(map[int64][]models.Submission)
	for _, s := range subs {
		byPlayer[s.PlayerID] = append(byPlayer[s.PlayerID], s)
	}
	submitted := 0
	for _, batch := range byPlayer {
		if a.policy.Qualifies(batch, len(cats)) {
			submitted++
		}
	}

	return &Progress{
		RoundID:      roundID,
		Submitted:    submitted,
		Needed:       Needed(total),
		TotalPlayers: total,
	}, nil
}

// FinalizeRound scores the round once. A round that is already finished, or
// that turns out finished after a failed attempt, is a successful no-op.
func (a *App) FinalizeRound(ctx context.Context, roundID int64) (*FinalizeResult, error) {
	done, err := a.IsFinished(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if done {
		log.Debug().Int64("round_id", roundID).Msg("round already finalized")
		return &FinalizeResult{}, nil
	}

	res, err := a.finalize(ctx, roundID)
	if err != nil {
		if done, cerr := a.IsFinished(ctx, roundID); cerr == nil && done {
			log.Warn().Err(err).Int64("round_id", roundID).Msg("finalize failed but round is finished, treating as done")
			return &FinalizeResult{}, nil
		}
		return nil, err
	}

	if !res.Claimed {
		log.Debug().Int64("round_id", roundID).Msg("finalize claim lost")
		return res, nil
	}
	log.Info().
		Int64("round_id", roundID).
		Int64("game_id", res.Results.GameID).
		Int("players", len(res.Results.Scores)).
		Int("duplicates", len(res.Results.Duplicates)).
		Msg("round finalized")
	return res, nil
}

// finalize resolves the dictionary outside the claim transaction, so the round
// row is never locked while a lookup waits for a pooled connection. Answers
// replaced in between make the claim roll back and the lookups run again.
func (a *App) finalize(ctx context.Context, roundID int64) (*FinalizeResult, error) {
	for attempt := 1; ; attempt++ {
		words, err := a.approvedWords(ctx, roundID)
		if err != nil {
			return nil, err
		}
		res, err := a.repo.FinalizeRound(ctx, roundID, scoreWith(words))
		if errors.Is(err, errStaleWords) && attempt < finalizeAttempts {
			log.Debug().Int64("round_id", roundID).Int("attempt", attempt).Msg("answers changed during finalize, retrying")
			continue
		}
		return res, err
	}
}

// approvedWords looks up every answer that can score in the round.
func (a *App) approvedWords(ctx context.Context, roundID int64) (map[wordKey]bool, error) {
	subs, err := a.repo.ListSubmissions(ctx, roundID)
	if err != nil {
		return nil, err
	}
	words := make(map[wordKey]bool)
	for _, s := range subs {
		if s.NormalizedText == "" || !s.IsValidLetter || !s.IsValidCategory {
			continue
		}
		k := wordKey{slug: s.CategorySlug, word: s.NormalizedText}
		if _, seen := words[k]; seen {
			continue
		}
		ok, err := a.dict.Exists(ctx, s.CategorySlug, s.NormalizedText)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve answers of round %d: %w", roundID, err)
		}
		words[k] = ok
	}
	return words, nil
}

func scoreWith(words map[wordKey]bool) ScoreFunc {
	lookup := func(_ context.Context, slug, word string) (bool, error) {
		ok, seen := words[wordKey{slug: slug, word: word}]
		if !seen {
			return false, errStaleWords
		}
		return ok, nil
	}
	return func(ctx context.Context, subs []models.Submission, players []int64) (scoring.Result, error) {
		return scoring.Score(ctx, subs, players, lookup)
	}
}

// IsFinished reports whether the round has been finalized
func (a *App) IsFinished(ctx context.Context, roundID int64) (bool, error) {
	round, err := a.repo.GetRound(ctx, roundID)
	if err != nil {
		return false, err
	}
	return round.IsFinished, nil
}

// GetRound retrieves a round by ID
func (a *App) GetRound(ctx context.Context, roundID int64) (*models.Round, error) {
	if roundID <= 0 {
		return nil, apperrors.ErrInvalidRoundID
	}
	return a.repo.GetRound(ctx, roundID)
}

// ActiveRound returns the unfinished round of a game, or nil when there is none.
func (a *App) ActiveRound(ctx context.Context, gameID int64) (*models.Round, error) {
	round, err := a.repo.GetActiveRound(ctx, gameID)
	if errors.Is(err, apperrors.ErrRoundNotFound) {
		return nil, nil
	}
	return round, err
}

// Results returns the stored outcome of a finished round
func (a *App) Results(ctx context.Context, roundID int64) (*Results, error) {
	return a.repo.GetResults(ctx, roundID)
}

// Describe builds the round:started payload for an existing round
func (a *App) Describe(ctx context.Context, round *models.Round) (*RoundDescriptor, error) {
	cats, err := a.repo.ListGameCategories(ctx, round.GameID)
	if err != nil {
		return nil, err
	}
	return describe(round, cats), nil
}

// ExpiredRounds lists unfinished rounds past their deadline
func (a *App) ExpiredRounds(ctx context.Context, limit int) ([]ExpiredRound, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than 0")
	}
	return a.repo.ListExpiredRounds(ctx, a.clock.Now(), limit)
}

func describe(round *models.Round, cats []models.Category) *RoundDescriptor {
	if cats == nil {
		cats = []models.Category{}
	}
	return &RoundDescriptor{
		RoundID:     round.ID,
		GameID:      round.GameID,
		RoundNumber: round.Number,
		Letter:      round.Letter,
		DurationSec: round.DurationSec,
		StartsAt:    round.StartsAt,
		EndsAt:      round.EndsAt,
		Categories:  cats,
	}
}

// validateSubmit rejects malformed batches before any I/O. Answers are
// trimmed, capped in length and de-duplicated per category (last wins).
func validateSubmit(req SubmitRequest) ([]models.Answer, error) {
	if req.RoundID <= 0 {
		return nil, apperrors.ErrInvalidRoundID
	}
	if req.PlayerID <= 0 {
		return nil, apperrors.ErrInvalidPlayerID
	}
	if len(req.Answers) > maxAnswers {
		return nil, apperrors.Validation(apperrors.ErrInvalidAnswers.Code, "at most %d answers per batch", maxAnswers)
	}

	index := make(map[int64]int, len(req.Answers))
	out := make([]models.Answer, 0, len(req.Answers))
	for _, ans := range req.Answers {
		if ans.CategoryID <= 0 {
			return nil, apperrors.Validation(apperrors.ErrInvalidAnswers.Code,
				"categoryId must be positive, got %d", ans.CategoryID)
		}
		ans.Text = truncate(strings.TrimSpace(ans.Text), maxAnswerLen)
		if i, dup := index[ans.CategoryID]; dup {
			out[i] = ans
			continue
		}
		index[ans.CategoryID] = len(out)
		out = append(out, ans)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}
