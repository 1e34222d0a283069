package orchestrator

import (
	"github.com/mcdev12/basta/go/internal/models"
	"github.com/mcdev12/basta/go/internal/rounds"
)

// InGame is the snapshot a client loads when it (re)enters a running game.
type InGame struct {
	Game         *models.Game            `json:"game"`
	Round        *rounds.RoundDescriptor `json:"round"`
	Left         int                     `json:"left"`
	Categories   []models.Category       `json:"categories"`
	Scores       []models.Score          `json:"scores"`
	RoundsPlayed int                     `json:"roundsPlayed"`
	CurrentRound int                     `json:"currentRound"`
}
