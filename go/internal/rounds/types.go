package rounds

import (
	"context"
	"time"

	"github.com/mcdev12/basta/go/internal/models"
	"github.com/mcdev12/basta/go/internal/scoring"
)

// StartRoundRequest contains all data needed to start a round
type StartRoundRequest struct {
	GameID      int64  `json:"gameId"`
	Letter      string `json:"letter,omitempty"`
	DurationSec int    `json:"durationSec"`
}

// CreateRoundParams is what the repository persists for a new round
type CreateRoundParams struct {
	GameID      int64
	Letter      string
	DurationSec int
	StartsAt    time.Time
	EndsAt      time.Time
}

// RoundDescriptor is broadcast as round:started
type RoundDescriptor struct {
	RoundID     int64             `json:"roundId"`
	GameID      int64             `json:"gameId"`
	RoundNumber int               `json:"roundNumber"`
	Letter      string            `json:"letter"`
	DurationSec int               `json:"durationSec"`
	StartsAt    time.Time         `json:"startsAt"`
	EndsAt      time.Time         `json:"endsAt"`
	Categories  []models.Category `json:"categories"`
}

// SubmitRequest is one player's answer batch for a round
type SubmitRequest struct {
	RoundID  int64           `json:"roundId"`
	PlayerID int64           `json:"playerId"`
	Answers  []models.Answer `json:"answers"`
}

// SubmitResult is returned by SubmitAnswers
type SubmitResult struct {
	RoundID   int64  `json:"roundId"`
	GameID    int64  `json:"gameId"`
	Inserted  int    `json:"inserted"`
	Valid     int    `json:"valid"`
	Qualifies bool   `json:"qualifies"`
	Warning   string `json:"warning,omitempty"`
}

// Progress reports how close a round is to an early close
type Progress struct {
	RoundID      int64 `json:"roundId"`
	Submitted    int   `json:"submitted"`
	Needed       int   `json:"needed"`
	TotalPlayers int   `json:"totalPlayers"`
}

// Reached reports whether enough players submitted to close the round.
func (p Progress) Reached() bool {
	return p.TotalPlayers > 0 && p.Submitted >= p.Needed
}

// PlayerResult is the canonical per-player score row of a finished round
type PlayerResult struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	RoundPoints int    `json:"roundPoints"`
	Total       int    `json:"total"`
}

// Results is the scored outcome of a round. It is stored with the round so
// late readers get the same answer.
type Results struct {
	RoundID    int64               `json:"roundId"`
	GameID     int64               `json:"gameId"`
	Letter     string              `json:"letter"`
	Scores     []PlayerResult      `json:"scores"`
	Duplicates []scoring.Duplicate `json:"duplicates"`
}

// FinalizeResult is returned by FinalizeRound. Claimed is false when the round
// had already been finalized by someone else; Results is nil in that case.
type FinalizeResult struct {
	Claimed bool
	Results *Results
}

// ExpiredRound is an unfinished round whose deadline has passed
type ExpiredRound struct {
	RoundID  int64
	GameID   int64
	GameCode string
	EndsAt   time.Time
}

// ScoreFunc scores a round's submissions. players lists every member of the
// game at finalize time.
type ScoreFunc func(ctx context.Context, subs []models.Submission, players []int64) (scoring.Result, error)
