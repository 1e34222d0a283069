package models

import "time"

// GameStatus defines the status of a game.
type GameStatus string

const (
	GameStatusLobby    GameStatus = "lobby"
	GameStatusPlaying  GameStatus = "playing"
	GameStatusFinished GameStatus = "finished"
)

// Game represents a coded lobby and its match settings.
type Game struct {
	ID           int64      `json:"id"`
	Code         string     `json:"code"`
	Status       GameStatus `json:"status"`
	Locked       bool       `json:"locked"`
	PointLimit   int        `json:"pointLimit"`
	RoundLimit   int        `json:"roundLimit"`
	DurationSec  int        `json:"durationSec"`
	CurrentRound int        `json:"currentRound"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Player is a member of a game. Score only grows once the game starts.
type Player struct {
	ID        int64     `json:"id"`
	GameID    int64     `json:"gameId"`
	Name      string    `json:"name"`
	IsHost    bool      `json:"isHost"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"createdAt"`
}

// Score is the canonical score shape shared by every component and event.
type Score struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Total int    `json:"total"`
}
