package games

import "github.com/mcdev12/basta/go/internal/models"

// Game end reasons.
const (
	ReasonRoundLimit = "round_limit"
	ReasonPointLimit = "point_limit"
)

// Defaults holds the settings applied when a request leaves them out.
type Defaults struct {
	DurationSec int
	PointLimit  int
	RoundLimit  int
}

// DefaultSettings mirrors the classic table rules.
func DefaultSettings() Defaults {
	return Defaults{DurationSec: 60, PointLimit: 1500, RoundLimit: 7}
}

// CreateGameRequest contains all data needed to create a game with its host
type CreateGameRequest struct {
	HostName    string `json:"hostName"`
	DurationSec *int   `json:"durationSec,omitempty"`
	PointLimit  *int   `json:"pointLimit,omitempty"`
	RoundLimit  *int   `json:"roundLimit,omitempty"`
}

// UpdateSettingsRequest contains the mutable match limits
type UpdateSettingsRequest struct {
	PointLimit  *int `json:"pointLimit,omitempty"`
	RoundLimit  *int `json:"roundLimit,omitempty"`
	DurationSec *int `json:"durationSec,omitempty"`
}

// CreateGameResult is returned by CreateGameWithHost.
type CreateGameResult struct {
	Game       *models.Game      `json:"game"`
	Host       *models.Player    `json:"host"`
	Players    []models.Player   `json:"players"`
	Categories []models.Category `json:"categories"`
}

// JoinResult is returned by JoinGame.
type JoinResult struct {
	Game    *models.Game    `json:"game"`
	Player  *models.Player  `json:"player"`
	Players []models.Player `json:"players"`
	// Created is false when the name already belonged to a player of the game.
	Created bool `json:"-"`
}

// Lobby is the membership snapshot broadcast as lobby:update.
type Lobby struct {
	Game    *models.Game    `json:"game"`
	Players []models.Player `json:"players"`
	HostID  *int64          `json:"hostId"`
}

// GameEnd is the outcome of CheckGameEnd.
type GameEnd struct {
	Finished     bool          `json:"finished"`
	Reason       string        `json:"reason,omitempty"`
	Winner       *models.Score `json:"winner,omitempty"`
	RoundsPlayed int           `json:"roundsPlayed"`
}

// LeaveResult is returned by Leave.
type LeaveResult struct {
	Lobby   *Lobby `json:"lobby"`
	Removed bool   `json:"removed"`
}

func hostOf(players []models.Player) *int64 {
	for i := range players {
		if players[i].IsHost {
			id := players[i].ID
			return &id
		}
	}
	return nil
}
