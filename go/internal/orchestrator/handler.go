package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/basta/go/internal/apperrors"
	"github.com/mcdev12/basta/go/internal/events"
	"github.com/mcdev12/basta/go/internal/models"
	"github.com/mcdev12/basta/go/internal/rounds"
	"github.com/rs/zerolog/log"
)

// StartRound starts a round in the game with the given code. An empty letter
// picks a random unused one and a zero duration uses the game setting.
func (o *Orchestrator) StartRound(ctx context.Context, code, letter string, durationSec int) (*rounds.RoundDescriptor, error) {
	game, err := o.games.GetGame(ctx, code)
	if err != nil {
		return nil, err
	}
	if game.Status == models.GameStatusFinished {
		return nil, apperrors.ErrGameFinished
	}
	if durationSec == 0 {
		durationSec = game.DurationSec
	}
	return o.startRound(ctx, game.Code, game.ID, letter, durationSec)
}

func (o *Orchestrator) startRound(ctx context.Context, code string, gameID int64, letter string, durationSec int) (*rounds.RoundDescriptor, error) {
	desc, err := o.rounds.StartRound(ctx, rounds.StartRoundRequest{
		GameID:      gameID,
		Letter:      letter,
		DurationSec: durationSec,
	})
	if err != nil {
		return nil, err
	}

	o.schedule(code, desc.RoundID, desc.EndsAt)
	o.games.Registry().Ensure(code, gameID).SetActiveRound(desc.RoundID)
	o.publish(ctx, code, events.TypeRoundStarted, desc)

	return desc, nil
}

// SubmitAnswers stores a player's batch, broadcasts the new progress and
// closes the round as soon as the quorum is reached.
func (o *Orchestrator) SubmitAnswers(ctx context.Context, code string, roundID, playerID int64, answers []models.Answer) (*rounds.SubmitResult, error) {
	game, err := o.games.GetGame(ctx, code)
	if err != nil {
		return nil, err
	}
	round, err := o.rounds.GetRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if round.GameID != game.ID {
		return nil, apperrors.ErrRoundNotFound
	}

	res, err := o.rounds.SubmitAnswers(ctx, rounds.SubmitRequest{
		RoundID:  roundID,
		PlayerID: playerID,
		Answers:  answers,
	})
	if err != nil {
		return nil, err
	}

	o.publish(ctx, game.Code, events.TypeAnswersSubmitted, events.AnswersSubmittedPayload{
		RoundID:  roundID,
		PlayerID: playerID,
		Count:    res.Inserted,
		Valid:    res.Valid,
	})

	progress, err := o.rounds.Progress(ctx, roundID)
	if err != nil {
		log.Error().Err(err).Int64("round_id", roundID).Msg("failed to compute round progress")
		return res, nil
	}
	o.publish(ctx, game.Code, events.TypeRoundProgress, progress)

	if progress.Reached() {
		log.Info().
			Str("game_code", game.Code).
			Int64("round_id", roundID).
			Int("submitted", progress.Submitted).
			Int("needed", progress.Needed).
			Msg("quorum reached, closing round")
		// the round must close even if the submitting client goes away
		closeCtx := context.WithoutCancel(ctx)
		if err := o.closeNow(closeCtx, closeRequest{roundID: roundID, code: game.Code, reason: events.ReasonQuorum}); err != nil {
			log.Error().Err(err).Int64("round_id", roundID).Msg("failed to close round on quorum")
		}
	}
	return res, nil
}

// Basta closes the active round of a game on a player's call.
func (o *Orchestrator) Basta(ctx context.Context, code string) error {
	game, err := o.games.GetGame(ctx, code)
	if err != nil {
		return err
	}
	round, err := o.rounds.ActiveRound(ctx, game.ID)
	if err != nil {
		return err
	}
	if round == nil {
		return apperrors.ErrRoundNotFound
	}
	return o.closeNow(context.WithoutCancel(ctx), closeRequest{roundID: round.ID, code: game.Code, reason: events.ReasonBasta})
}

// closeNow closes a round on the caller's goroutine unless a worker already has it.
func (o *Orchestrator) closeNow(ctx context.Context, req closeRequest) error {
	if !o.tryBegin(req.roundID) {
		log.Debug().Int64("round_id", req.roundID).Msg("round close already in flight")
		return nil
	}
	defer o.end(req.roundID)
	return o.closeRound(ctx, req)
}

// closeRound finalizes a round exactly once and moves the game forward.
func (o *Orchestrator) closeRound(ctx context.Context, req closeRequest) error {
	o.cancelTimer(req.roundID)

	res, err := o.rounds.FinalizeRound(ctx, req.roundID)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindNotFound {
			log.Warn().Err(err).Int64("round_id", req.roundID).Msg("round is gone, dropping close")
			return fmt.Errorf("failed to close round %d: %w", req.roundID, err)
		}
		o.scheduleRetry(req.code, req.roundID, req.reason)
		return fmt.Errorf("failed to close round %d: %w", req.roundID, err)
	}
	if !res.Claimed {
		return nil
	}

	results := res.Results
	if s, ok := o.games.Registry().Get(req.code); ok {
		s.ClearActiveRound(req.roundID)
	}
	o.publish(ctx, req.code, events.TypeRoundEnded, events.RoundEndedPayload{
		RoundID:    results.RoundID,
		Letter:     results.Letter,
		Reason:     req.reason,
		Scores:     results.Scores,
		Duplicates: results.Duplicates,
	})

	log.Info().
		Str("game_code", req.code).
		Int64("round_id", req.roundID).
		Str("reason", req.reason).
		Str("instance", o.instanceID).
		Msg("round closed")

	o.advance(ctx, req.code, results.GameID, req.roundID)
	return nil
}

// advance ends the game or starts the round after roundID. A failed step is
// retried every FinalizeRetry until it succeeds or the game is gone.
func (o *Orchestrator) advance(ctx context.Context, code string, gameID, roundID int64) {
	err := o.chain(ctx, code, gameID, roundID)
	if err == nil {
		return
	}
	if apperrors.KindOf(err) == apperrors.KindNotFound {
		log.Warn().Err(err).Str("game_code", code).Msg("game is gone, not advancing")
		return
	}
	log.Error().
		Err(err).
		Str("game_code", code).
		Int64("round_id", roundID).
		Dur("retry_in", o.cfg.FinalizeRetry).
		Msg("failed to advance game")
	o.after(o.cfg.FinalizeRetry, func(ctx context.Context) {
		o.advance(ctx, code, gameID, roundID)
	})
}

func (o *Orchestrator) chain(ctx context.Context, code string, gameID, roundID int64) error {
	end, err := o.games.CheckGameEnd(ctx, gameID)
	if err != nil {
		return fmt.Errorf("failed to check game end: %w", err)
	}
	if end.Finished {
		return o.finishGame(ctx, code, gameID, end.Reason, end.Winner, end.RoundsPlayed)
	}

	round, err := o.rounds.GetRound(ctx, roundID)
	if err != nil {
		return fmt.Errorf("failed to load closed round: %w", err)
	}
	o.after(o.cfg.NextRoundDelay, func(ctx context.Context) {
		_, err := o.startRound(ctx, code, gameID, "", round.DurationSec)
		switch {
		case err == nil:
		case errors.Is(err, apperrors.ErrRoundInProgress):
			log.Debug().Str("game_code", code).Msg("next round already started")
		case apperrors.KindOf(err) == apperrors.KindNotFound:
			log.Warn().Err(err).Str("game_code", code).Msg("game is gone, not starting next round")
		default:
			log.Error().Err(err).Str("game_code", code).Dur("retry_in", o.cfg.FinalizeRetry).Msg("failed to start next round")
			o.after(o.cfg.FinalizeRetry, func(ctx context.Context) {
				o.advance(ctx, code, gameID, roundID)
			})
		}
	})
	return nil
}

func (o *Orchestrator) finishGame(ctx context.Context, code string, gameID int64, reason string, winner *models.Score, roundsPlayed int) error {
	if err := o.games.FinishGame(ctx, gameID); err != nil {
		return fmt.Errorf("failed to finish game: %w", err)
	}
	scores, err := o.games.Scores(ctx, gameID)
	if err != nil {
		return fmt.Errorf("failed to load final scores: %w", err)
	}

	o.publish(ctx, code, events.TypeGameFinished, events.GameFinishedPayload{
		Winner:       winner,
		Reason:       reason,
		RoundsPlayed: roundsPlayed,
		Scores:       scores,
	})

	ev := log.Info().Str("game_code", code).Str("reason", reason).Int("rounds_played", roundsPlayed)
	if winner != nil {
		ev = ev.Int64("winner_id", winner.ID)
	}
	ev.Msg("game finished")
	return nil
}

// StartGame locks the lobby, announces the countdown and starts the first
// round once tMinus seconds have passed.
func (o *Orchestrator) StartGame(ctx context.Context, code string, tMinus int) error {
	game, err := o.games.GetGame(ctx, code)
	if err != nil {
		return err
	}
	if game.Status == models.GameStatusFinished {
		return apperrors.ErrGameFinished
	}
	active, err := o.rounds.ActiveRound(ctx, game.ID)
	if err != nil {
		return err
	}
	if active != nil {
		return apperrors.ErrRoundInProgress
	}
	if tMinus < 0 {
		tMinus = 0
	}

	if _, err := o.SetLocked(ctx, game.Code, true); err != nil {
		return err
	}
	o.publish(ctx, game.Code, events.TypeGameStarting, events.GameStartingPayload{TMinus: tMinus})

	log.Info().Str("game_code", game.Code).Int("t_minus", tMinus).Msg("game starting")

	o.after(time.Duration(tMinus)*time.Second, func(ctx context.Context) {
		if err := o.games.MarkPlaying(ctx, game.ID); err != nil {
			log.Error().Err(err).Str("game_code", game.Code).Msg("failed to mark game playing")
			return
		}
		o.publish(ctx, game.Code, events.TypeGameStarted, events.GameStartedPayload{GameID: game.ID})

		// settings may have changed during the countdown
		current, err := o.games.GetGame(ctx, game.Code)
		if err != nil {
			log.Error().Err(err).Str("game_code", game.Code).Msg("failed to reload game")
			return
		}
		if _, err := o.startRound(ctx, current.Code, current.ID, "", current.DurationSec); err != nil {
			log.Error().Err(err).Str("game_code", game.Code).Msg("failed to start first round")
		}
	})
	return nil
}

// DeleteGame stops the game's timers, deletes it and tells the room.
func (o *Orchestrator) DeleteGame(ctx context.Context, code string) error {
	game, err := o.games.GetGame(ctx, code)
	if err != nil {
		return err
	}
	if s, ok := o.games.Registry().Get(game.Code); ok {
		if id := s.ActiveRound(); id != 0 {
			o.cancelTimer(id)
		}
	}
	active, err := o.rounds.ActiveRound(ctx, game.ID)
	if err != nil {
		return err
	}
	if active != nil {
		o.cancelTimer(active.ID)
	}

	if _, err := o.games.DeleteGame(ctx, game.Code); err != nil {
		return err
	}
	o.publish(ctx, game.Code, events.TypeGameDeleted, events.GameDeletedPayload{Code: game.Code})
	return nil
}

// InGame returns the running state of a game.
func (o *Orchestrator) InGame(ctx context.Context, code string) (*InGame, error) {
	game, err := o.games.GetGame(ctx, code)
	if err != nil {
		return nil, err
	}

	out := &InGame{Game: game, CurrentRound: game.CurrentRound}

	round, err := o.rounds.ActiveRound(ctx, game.ID)
	if err != nil {
		return nil, err
	}
	if round != nil {
		desc, err := o.rounds.Describe(ctx, round)
		if err != nil {
			return nil, err
		}
		out.Round = desc
		out.Left = round.SecondsLeft(o.clock.Now())
	}

	if out.Categories, err = o.games.Categories(ctx, game.ID); err != nil {
		return nil, err
	}
	if out.Scores, err = o.games.Scores(ctx, game.ID); err != nil {
		return nil, err
	}
	if out.RoundsPlayed, err = o.games.RoundsPlayed(ctx, game.ID); err != nil {
		return nil, err
	}
	return out, nil
}
