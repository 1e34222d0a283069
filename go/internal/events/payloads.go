package events

import (
	"github.com/mcdev12/basta/go/internal/models"
	"github.com/mcdev12/basta/go/internal/rounds"
	"github.com/mcdev12/basta/go/internal/scoring"
)

// Round close reasons.
const (
	ReasonTimeout = "timeout"
	ReasonQuorum  = "quorum"
	ReasonBasta   = "basta"
)

// PlayerPayload is the payload of player:joined and player:left
type PlayerPayload struct {
	Player  *models.Player  `json:"player"`
	Players []models.Player `json:"players"`
	HostID  *int64          `json:"hostId"`
}

// LobbyLockPayload is the payload of lobby:lock
type LobbyLockPayload struct {
	Locked bool `json:"locked"`
}

// GameStartingPayload is the payload of game:starting
type GameStartingPayload struct {
	TMinus int `json:"tMinus"`
}

// GameStartedPayload is the payload of game:started
type GameStartedPayload struct {
	GameID int64 `json:"gameId"`
}

// RoundCountdownPayload is the payload of round:countdown
type RoundCountdownPayload struct {
	RoundID  int64 `json:"roundId"`
	TimeLeft int   `json:"timeLeft"`
}

// AnswersSubmittedPayload is the payload of answers:submitted
type AnswersSubmittedPayload struct {
	RoundID  int64 `json:"roundId"`
	PlayerID int64 `json:"playerId"`
	Count    int   `json:"count"`
	Valid    int   `json:"valid"`
}

// RoundEndedPayload is the payload of round:ended
type RoundEndedPayload struct {
	RoundID    int64                 `json:"roundId"`
	Letter     string                `json:"letter"`
	Reason     string                `json:"reason"`
	Scores     []rounds.PlayerResult `json:"scores"`
	Duplicates []scoring.Duplicate   `json:"duplicates"`
}

// GameFinishedPayload is the payload of game:finished
type GameFinishedPayload struct {
	Winner       *models.Score  `json:"winner"`
	Reason       string         `json:"reason"`
	RoundsPlayed int            `json:"roundsPlayed"`
	Scores       []models.Score `json:"scores"`
}

// GameDeletedPayload is the payload of game:deleted
type GameDeletedPayload struct {
	Code string `json:"code"`
}
