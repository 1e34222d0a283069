package rounds

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/basta/go/internal/apperrors"
	"github.com/mcdev12/basta/go/internal/models"
	"github.com/mcdev12/basta/go/internal/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGameID = int64(100)

var testDict = fakeDict{
	"fruta": {"manzana", "mango", "pera"},
	"color": {"marron", "morado"},
}

func newTestApp(policy QuorumPolicy) (*App, *fakeRepo, *clockwork.FakeClock) {
	repo := newFakeRepo()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	app := NewApp(repo, testDict, clock, policy)
	app.intn = func(int) int { return 0 }
	return app, repo, clock
}

func startRound(t *testing.T, app *App, letter string) *RoundDescriptor {
	t.Helper()
	rd, err := app.StartRound(context.Background(), StartRoundRequest{GameID: testGameID, Letter: letter, DurationSec: 60})
	require.NoError(t, err)
	return rd
}

func TestStartRound(t *testing.T) {
	ctx := context.Background()

	t.Run("explicit letter and timing window", func(t *testing.T) {
		app, _, clock := newTestApp("")
		rd := startRound(t, app, " m ")

		assert.Equal(t, "M", rd.Letter)
		assert.Equal(t, 1, rd.RoundNumber)
		assert.Equal(t, clock.Now(), rd.StartsAt)
		assert.Equal(t, clock.Now().Add(60*time.Second), rd.EndsAt)
		assert.Len(t, rd.Categories, 3)
	})

	t.Run("random letter skips used ones", func(t *testing.T) {
		app, _, clock := newTestApp("")
		first := startRound(t, app, "")
		assert.Equal(t, "A", first.Letter)

		clock.Advance(61 * time.Second)
		_, err := app.FinalizeRound(ctx, first.RoundID)
		require.NoError(t, err)

		second := startRound(t, app, "")
		assert.Equal(t, "B", second.Letter)
		assert.Equal(t, 2, second.RoundNumber)
	})

	t.Run("rejects a letter already played", func(t *testing.T) {
		app, _, clock := newTestApp("")
		rd := startRound(t, app, "M")
		clock.Advance(61 * time.Second)
		_, err := app.FinalizeRound(ctx, rd.RoundID)
		require.NoError(t, err)

		_, err = app.StartRound(ctx, StartRoundRequest{GameID: testGameID, Letter: "m", DurationSec: 60})
		assert.ErrorIs(t, err, apperrors.ErrInvalidLetter)
	})

	t.Run("validation", func(t *testing.T) {
		app, _, _ := newTestApp("")
		_, err := app.StartRound(ctx, StartRoundRequest{GameID: testGameID, Letter: "AB", DurationSec: 60})
		assert.ErrorIs(t, err, apperrors.ErrInvalidLetter)
		_, err = app.StartRound(ctx, StartRoundRequest{GameID: testGameID, Letter: "7", DurationSec: 60})
		assert.ErrorIs(t, err, apperrors.ErrInvalidLetter)
		_, err = app.StartRound(ctx, StartRoundRequest{GameID: testGameID, DurationSec: 10})
		assert.ErrorIs(t, err, apperrors.ErrInvalidDuration)
	})

	t.Run("one round at a time", func(t *testing.T) {
		app, _, _ := newTestApp("")
		startRound(t, app, "")
		_, err := app.StartRound(ctx, StartRoundRequest{GameID: testGameID, DurationSec: 60})
		assert.ErrorIs(t, err, apperrors.ErrRoundInProgress)
	})
}

func TestStartRoundNeverRepeatsLettersUntilExhausted(t *testing.T) {
	ctx := context.Background()
	app, _, clock := newTestApp("")
	app.intn = func(n int) int { return n - 1 }

	seen := make(map[string]bool)
	for i := 0; i < 27; i++ {
		rd := startRound(t, app, "")
		if i < 26 {
			assert.False(t, seen[rd.Letter], "letter %s repeated in round %d", rd.Letter, i+1)
		}
		seen[rd.Letter] = true
		clock.Advance(61 * time.Second)
		_, err := app.FinalizeRound(ctx, rd.RoundID)
		require.NoError(t, err)
	}
	assert.Len(t, seen, 26)
}

func TestSubmitAnswers(t *testing.T) {
	ctx := context.Background()

	t.Run("evaluates every answer", func(t *testing.T) {
		app, repo, _ := newTestApp("")
		ids := repo.addPlayers(testGameID, "Ana", "Beto")
		rd := startRound(t, app, "M")

		res, err := app.SubmitAnswers(ctx, SubmitRequest{RoundID: rd.RoundID, PlayerID: ids[0], Answers: []models.Answer{
			{CategoryID: 1, Text: "  Manzana "},
			{CategoryID: 2, Text: "Pera"},
			{CategoryID: 3, Text: "Mono"},
			{CategoryID: 9, Text: "Mesa"},
		}})
		require.NoError(t, err)
		assert.Equal(t, 4, res.Inserted)
		assert.Equal(t, 1, res.Valid)
		assert.True(t, res.Qualifies)
		assert.Empty(t, res.Warning)

		subs, _ := repo.ListSubmissions(ctx, rd.RoundID)
		require.Len(t, subs, 4)
		byCat := make(map[int64]models.Submission)
		for _, s := range subs {
			byCat[s.CategoryID] = s
		}

		manzana := byCat[1]
		assert.Equal(t, "Manzana", manzana.RawText)
		assert.Equal(t, "manzana", manzana.NormalizedText)
		assert.Equal(t, models.SubmissionStatusValid, manzana.Status)
		assert.Equal(t, scoring.GroupHash(1, "manzana"), manzana.RepetitionGroupHash)

		pera := byCat[2]
		assert.False(t, pera.IsValidLetter)
		assert.Equal(t, models.SubmissionStatusInvalid, pera.Status)
		assert.Empty(t, pera.RepetitionGroupHash)

		assert.False(t, byCat[3].IsValidCategory, "disabled category")
		assert.False(t, byCat[9].IsValidCategory, "category not in game")
	})

	t.Run("resubmission replaces the batch", func(t *testing.T) {
		app, repo, _ := newTestApp("")
		ids := repo.addPlayers(testGameID, "Ana")
		rd := startRound(t, app, "M")

		_, err := app.SubmitAnswers(ctx, SubmitRequest{RoundID: rd.RoundID, PlayerID: ids[0], Answers: []models.Answer{
			{CategoryID: 1, Text: "Mango"}, {CategoryID: 2, Text: "Morado"},
		}})
		require.NoError(t, err)
		_, err = app.SubmitAnswers(ctx, SubmitRequest{RoundID: rd.RoundID, PlayerID: ids[0], Answers: []models.Answer{
			{CategoryID: 1, Text: "Manzana"},
		}})
		require.NoError(t, err)

		subs, _ := repo.ListSubmissions(ctx, rd.RoundID)
		require.Len(t, subs, 1)
		assert.Equal(t, "manzana", subs[0].NormalizedText)
	})

	t.Run("last answer per category wins and text is capped", func(t *testing.T) {
		app, repo, _ := newTestApp("")
		ids := repo.addPlayers(testGameID, "Ana")
		rd := startRound(t, app, "M")

		_, err := app.SubmitAnswers(ctx, SubmitRequest{RoundID: rd.RoundID, PlayerID: ids[0], Answers: []models.Answer{
			{CategoryID: 1, Text: "Mango"},
			{CategoryID: 1, Text: "M" + strings.Repeat("a", 100)},
		}})
		require.NoError(t, err)

		subs, _ := repo.ListSubmissions(ctx, rd.RoundID)
		require.Len(t, subs, 1)
		assert.Len(t, subs[0].RawText, maxAnswerLen)
	})

	t.Run("below quorum minimum is stored with a warning", func(t *testing.T) {
		app, repo, _ := newTestApp("")
		ids := repo.addPlayers(testGameID, "Ana")
		rd := startRound(t, app, "M")

		res, err := app.SubmitAnswers(ctx, SubmitRequest{RoundID: rd.RoundID, PlayerID: ids[0], Answers: []models.Answer{
			{CategoryID: 1, Text: "Mango"},
		}})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Inserted)
		assert.False(t, res.Qualifies)
		assert.NotEmpty(t, res.Warning)
	})

	t.Run("rejects before any I/O", func(t *testing.T) {
		app, _, _ := newTestApp("")
		_, err := app.SubmitAnswers(ctx, SubmitRequest{RoundID: 0, PlayerID: 1})
		assert.ErrorIs(t, err, apperrors.ErrInvalidRoundID)
		_, err = app.SubmitAnswers(ctx, SubmitRequest{RoundID: 1, PlayerID: -1})
		assert.ErrorIs(t, err, apperrors.ErrInvalidPlayerID)
		_, err = app.SubmitAnswers(ctx, SubmitRequest{RoundID: 1, PlayerID: 1, Answers: []models.Answer{{CategoryID: 0, Text: "x"}}})
		assert.ErrorIs(t, err, apperrors.ErrInvalidAnswers)
	})

	t.Run("unknown round and player", func(t *testing.T) {
		app, repo, _ := newTestApp("")
		repo.addPlayers(testGameID, "Ana")
		rd := startRound(t, app, "M")

		_, err := app.SubmitAnswers(ctx, SubmitRequest{RoundID: 999, PlayerID: 1})
		assert.ErrorIs(t, err, apperrors.ErrRoundNotFound)
		_, err = app.SubmitAnswers(ctx, SubmitRequest{RoundID: rd.RoundID, PlayerID: 999})
		assert.ErrorIs(t, err, apperrors.ErrPlayerNotFound)
	})

	t.Run("expired and finished rounds", func(t *testing.T) {
		app, repo, clock := newTestApp("")
		ids := repo.addPlayers(testGameID, "Ana")
		rd := startRound(t, app, "M")
		req := SubmitRequest{RoundID: rd.RoundID, PlayerID: ids[0], Answers: []models.Answer{{CategoryID: 1, Text: "Mango"}}}

		clock.Advance(60 * time.Second)
		_, err := app.SubmitAnswers(ctx, req)
		require.NoError(t, err, "the deadline itself is still on time")

		clock.Advance(time.Second)
		_, err = app.SubmitAnswers(ctx, req)
		assert.ErrorIs(t, err, apperrors.ErrRoundTimeExpired)

		_, err = app.FinalizeRound(ctx, rd.RoundID)
		require.NoError(t, err)
		_, err = app.SubmitAnswers(ctx, req)
		assert.ErrorIs(t, err, apperrors.ErrRoundAlreadyFinished)
	})
}

func TestProgress(t *testing.T) {
	ctx := context.Background()
	full := []models.Answer{{CategoryID: 1, Text: "Mango"}, {CategoryID: 2, Text: "Morado"}}
	thin := []models.Answer{{CategoryID: 1, Text: "Mango"}}

	t.Run("half categories", func(t *testing.T) {
		app, repo, _ := newTestApp(QuorumHalfCategories)
		ids := repo.addPlayers(testGameID, "Ana", "Beto", "Carla", "Dani", "Eva")
		rd := startRound(t, app, "M")

		_, err := app.SubmitAnswers(ctx, SubmitRequest{RoundID: rd.RoundID, PlayerID: ids[0], Answers: full})
		require.NoError(t, err)
		_, err = app.SubmitAnswers(ctx, SubmitRequest{RoundID: rd.RoundID, PlayerID: ids[1], Answers: thin})
		require.NoError(t, err)

		p, err := app.Progress(ctx, rd.RoundID)
		require.NoError(t, err)
		assert.Equal(t, 1, p.Submitted)
		assert.Equal(t, 3, p.Needed)
		assert.Equal(t, 5, p.TotalPlayers)
		assert.False(t, p.Reached())
	})

	t.Run("any valid", func(t *testing.T) {
		app, repo, _ := newTestApp(QuorumAnyValid)
		ids := repo.addPlayers(testGameID, "Ana", "Beto")
		rd := startRound(t, app, "M")

		_, err := app.SubmitAnswers(ctx, SubmitRequest{RoundID: rd.RoundID, PlayerID: ids[1], Answers: thin})
		require.NoError(t, err)

		p, err := app.Progress(ctx, rd.RoundID)
		require.NoError(t, err)
		assert.Equal(t, 1, p.Submitted)
		assert.Equal(t, 1, p.Needed)
		assert.True(t, p.Reached())
	})
}

func TestFinalizeRound(t *testing.T) {
	ctx := context.Background()

	t.Run("scores duplicates and uniques", func(t *testing.T) {
		app, repo, _ := newTestApp("")
		ids := repo.addPlayers(testGameID, "Ana", "Beto", "Carla")
		rd := startRound(t, app, "M")

		_, err := app.SubmitAnswers(ctx, SubmitRequest{RoundID: rd.RoundID, PlayerID: ids[0], Answers: []models.Answer{
			{CategoryID: 1, Text: "Mango"}, {CategoryID: 2, Text: "Marrón"},
		}})
		require.NoError(t, err)
		_, err = app.SubmitAnswers(ctx, SubmitRequest{RoundID: rd.RoundID, PlayerID: ids[1], Answers: []models.Answer{
			{CategoryID: 1, Text: "MANGO"}, {CategoryID: 2, Text: "Pera"},
		}})
		require.NoError(t, err)

		res, err := app.FinalizeRound(ctx, rd.RoundID)
		require.NoError(t, err)
		require.True(t, res.Claimed)

		assert.Equal(t, 150, repo.total(testGameID, ids[0]))
		assert.Equal(t, 50, repo.total(testGameID, ids[1]))
		assert.Equal(t, 0, repo.total(testGameID, ids[2]))
		require.Len(t, res.Results.Duplicates, 1)
		assert.Equal(t, "mango", res.Results.Duplicates[0].Text)
		assert.Len(t, res.Results.Scores, 3)
	})

	t.Run("second finalize is a no-op", func(t *testing.T) {
		app, repo, _ := newTestApp("")
		ids := repo.addPlayers(testGameID, "Ana")
		rd := startRound(t, app, "M")
		_, err := app.SubmitAnswers(ctx, SubmitRequest{RoundID: rd.RoundID, PlayerID: ids[0], Answers: []models.Answer{{CategoryID: 1, Text: "Mango"}}})
		require.NoError(t, err)

		first, err := app.FinalizeRound(ctx, rd.RoundID)
		require.NoError(t, err)
		second, err := app.FinalizeRound(ctx, rd.RoundID)
		require.NoError(t, err)

		assert.True(t, first.Claimed)
		assert.False(t, second.Claimed)
		assert.Nil(t, second.Results)
		assert.Equal(t, 100, repo.total(testGameID, ids[0]))
	})

	t.Run("concurrent finalize scores once", func(t *testing.T) {
		app, repo, _ := newTestApp("")
		ids := repo.addPlayers(testGameID, "Ana", "Beto")
		rd := startRound(t, app, "M")
		_, err := app.SubmitAnswers(ctx, SubmitRequest{RoundID: rd.RoundID, PlayerID: ids[0], Answers: []models.Answer{{CategoryID: 1, Text: "Mango"}}})
		require.NoError(t, err)

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			claimed int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := app.FinalizeRound(ctx, rd.RoundID)
				if assert.NoError(t, err) && res.Claimed {
					mu.Lock()
					claimed++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, claimed)
		assert.Equal(t, 1, repo.finalized)
		assert.Equal(t, 100, repo.total(testGameID, ids[0]))
	})

	t.Run("storage failure surfaces unless the round got finished", func(t *testing.T) {
		app, repo, _ := newTestApp("")
		repo.addPlayers(testGameID, "Ana")
		rd := startRound(t, app, "M")

		boom := errors.New("connection reset")
		repo.finalizeErr = boom
		_, err := app.FinalizeRound(ctx, rd.RoundID)
		assert.ErrorIs(t, err, boom)

		repo.rounds[rd.RoundID].IsFinished = true
		res, err := app.FinalizeRound(ctx, rd.RoundID)
		require.NoError(t, err)
		assert.False(t, res.Claimed)
	})

	t.Run("dictionary failure leaves the round open", func(t *testing.T) {
		app, repo, _ := newTestApp("")
		ids := repo.addPlayers(testGameID, "Ana")
		rd := startRound(t, app, "M")
		_, err := app.SubmitAnswers(ctx, SubmitRequest{RoundID: rd.RoundID, PlayerID: ids[0], Answers: []models.Answer{{CategoryID: 1, Text: "Mango"}}})
		require.NoError(t, err)

		boom := errors.New("too many connections")
		app.dict = &countingDict{Dictionary: testDict, err: boom}

		_, err = app.FinalizeRound(ctx, rd.RoundID)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 0, repo.finalized)
		assert.False(t, repo.rounds[rd.RoundID].IsFinished)
	})

	t.Run("answers replaced during finalize are looked up again", func(t *testing.T) {
		app, repo, _ := newTestApp("")
		ids := repo.addPlayers(testGameID, "Ana")
		rd := startRound(t, app, "M")
		_, err := app.SubmitAnswers(ctx, SubmitRequest{RoundID: rd.RoundID, PlayerID: ids[0], Answers: []models.Answer{{CategoryID: 1, Text: "Mango"}}})
		require.NoError(t, err)

		dict := &countingDict{Dictionary: testDict}
		app.dict = dict
		repo.beforeClaim = func() {
			_, err := app.SubmitAnswers(ctx, SubmitRequest{RoundID: rd.RoundID, PlayerID: ids[0], Answers: []models.Answer{{CategoryID: 2, Text: "Morado"}}})
			require.NoError(t, err)
		}

		res, err := app.FinalizeRound(ctx, rd.RoundID)
		require.NoError(t, err)
		require.True(t, res.Claimed)
		assert.Equal(t, 1, repo.finalized)
		assert.Equal(t, 100, repo.total(testGameID, ids[0]))
		assert.GreaterOrEqual(t, dict.calls, 3, "mango, then morado at submit and again before the claim")
	})

	t.Run("unknown round", func(t *testing.T) {
		app, _, _ := newTestApp("")
		_, err := app.FinalizeRound(ctx, 42)
		assert.ErrorIs(t, err, apperrors.ErrRoundNotFound)
	})
}

func TestActiveRoundAndExpired(t *testing.T) {
	ctx := context.Background()
	app, _, clock := newTestApp("")

	r, err := app.ActiveRound(ctx, testGameID)
	require.NoError(t, err)
	assert.Nil(t, r)

	rd := startRound(t, app, "")
	r, err = app.ActiveRound(ctx, testGameID)
	require.NoError(t, err)
	assert.Equal(t, rd.RoundID, r.ID)

	expired, err := app.ExpiredRounds(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, expired)

	clock.Advance(60 * time.Second)
	expired, err = app.ExpiredRounds(ctx, 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, rd.RoundID, expired[0].RoundID)
}
