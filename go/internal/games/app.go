package games

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mcdev12/basta/go/internal/apperrors"
	"github.com/mcdev12/basta/go/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	minNameLen = 2
	maxNameLen = 20

	minDurationSec = 15
	maxDurationSec = 300
	minPointLimit  = 100
	maxPointLimit  = 5000
	minRoundLimit  = 1
	maxRoundLimit  = 20

	maxCodeAttempts = 5
)

// GamesRepository defines what the app layer needs from the repository
type GamesRepository interface {
	CreateGame(ctx context.Context, p CreateGameParams) (*models.Game, *models.Player, []models.Category, error)
	GetGameByCode(ctx context.Context, code string) (*models.Game, error)
	GetGameByID(ctx context.Context, id int64) (*models.Game, error)
	AddPlayer(ctx context.Context, gameID int64, name string) (*models.Player, bool, error)
	RemovePlayer(ctx context.Context, gameID, playerID int64) (bool, error)
	ListPlayers(ctx context.Context, gameID int64) ([]models.Player, error)
	Scores(ctx context.Context, gameID int64) ([]models.Score, error)
	UpdateSettings(ctx context.Context, gameID int64, pointLimit, roundLimit, durationSec int) (*models.Game, error)
	SetLocked(ctx context.Context, gameID int64, locked bool) (*models.Game, error)
	SetStatus(ctx context.Context, gameID int64, status models.GameStatus) error
	CountFinishedRounds(ctx context.Context, gameID int64) (int, error)
	ListGameCategories(ctx context.Context, gameID int64) ([]models.Category, error)
	DeleteGame(ctx context.Context, gameID int64) error
}

// App is the game session manager: membership, settings and end-of-game rules.
type App struct {
	repo     GamesRepository
	registry *Registry
	defaults Defaults
	newCode  func() (string, error)
}

// NewApp creates a new games App
func NewApp(repo GamesRepository, registry *Registry, defaults Defaults) *App {
	return &App{
		repo:     repo,
		registry: registry,
		defaults: defaults,
		newCode:  GenerateCode,
	}
}

// Registry exposes the live session registry.
func (a *App) Registry() *Registry {
	return a.registry
}

// CreateGameWithHost creates a lobby, its host and attaches the default categories
func (a *App) CreateGameWithHost(ctx context.Context, req CreateGameRequest) (*CreateGameResult, error) {
	name, err := validateName(req.HostName)
	if err != nil {
		return nil, err
	}
	params := CreateGameParams{
		HostName:    name,
		DurationSec: pick(req.DurationSec, a.defaults.DurationSec),
		PointLimit:  pick(req.PointLimit, a.defaults.PointLimit),
		RoundLimit:  pick(req.RoundLimit, a.defaults.RoundLimit),
	}
	if err := validateSettings(params.PointLimit, params.RoundLimit, params.DurationSec); err != nil {
		return nil, err
	}

	var (
		game *models.Game
		host *models.Player
		cats []models.Category
	)
	for attempt := 1; ; attempt++ {
		params.Code, err = a.newCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate code: %w", err)
		}
		game, host, cats, err = a.repo.CreateGame(ctx, params)
		if err == nil {
			break
		}
		if !errors.Is(err, errCodeTaken) || attempt >= maxCodeAttempts {
			return nil, fmt.Errorf("failed to create game: %w", err)
		}
		log.Warn().Str("game_code", params.Code).Msg("collision on code, regenerating")
	}

	a.registry.Create(game.Code, game.ID)

	players, err := a.repo.ListPlayers(ctx, game.ID)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("game_code", game.Code).
		Int64("game_id", game.ID).
		Str("host", host.Name).
		Int("categories", len(cats)).
		Msg("game created")

	return &CreateGameResult{Game: game, Host: host, Players: players, Categories: cats}, nil
}

// JoinGame adds a player to a lobby. Joining twice with the same name returns
// the existing player.
func (a *App) JoinGame(ctx context.Context, code, playerName string) (*JoinResult, error) {
	name, err := validateName(playerName)
	if err != nil {
		return nil, err
	}
	game, err := a.GetGame(ctx, code)
	if err != nil {
		return nil, err
	}
	if game.Status == models.GameStatusFinished {
		return nil, apperrors.ErrGameFinished
	}

	var (
		player  *models.Player
		created bool
	)
	if game.Locked {
		// returning players may reconnect to a locked lobby, strangers may not
		player, err = a.findPlayerByName(ctx, game.ID, name)
		if err != nil {
			return nil, err
		}
		if player == nil {
			return nil, apperrors.ErrLobbyLocked
		}
	} else {
		player, created, err = a.repo.AddPlayer(ctx, game.ID, name)
		if err != nil {
			return nil, err
		}
	}

	players, err := a.repo.ListPlayers(ctx, game.ID)
	if err != nil {
		return nil, err
	}

	if created {
		log.Info().Str("game_code", game.Code).Int64("player_id", player.ID).Str("name", player.Name).Msg("player joined")
	}
	return &JoinResult{Game: game, Player: player, Players: players, Created: created}, nil
}

// Leave removes a player from the game. Points already awarded stay on the
// scoreboard of the remaining players; a running round keeps its timer.
func (a *App) Leave(ctx context.Context, code string, playerID int64) (*LeaveResult, error) {
	if playerID <= 0 {
		return nil, apperrors.ErrInvalidPlayerID
	}
	game, err := a.GetGame(ctx, code)
	if err != nil {
		return nil, err
	}

	removed, err := a.repo.RemovePlayer(ctx, game.ID, playerID)
	if err != nil {
		return nil, err
	}

	lobby, err := a.lobby(ctx, game)
	if err != nil {
		return nil, err
	}
	log.Info().Str("game_code", game.Code).Int64("player_id", playerID).Bool("removed", removed).Msg("player left")
	return &LeaveResult{Lobby: lobby, Removed: removed}, nil
}

// UpdateSettings changes the match limits of a game
func (a *App) UpdateSettings(ctx context.Context, code string, req UpdateSettingsRequest) (*Lobby, error) {
	game, err := a.GetGame(ctx, code)
	if err != nil {
		return nil, err
	}
	pointLimit := pick(req.PointLimit, game.PointLimit)
	roundLimit := pick(req.RoundLimit, game.RoundLimit)
	durationSec := pick(req.DurationSec, game.DurationSec)
	if err := validateSettings(pointLimit, roundLimit, durationSec); err != nil {
		return nil, err
	}

	game, err = a.repo.UpdateSettings(ctx, game.ID, pointLimit, roundLimit, durationSec)
	if err != nil {
		return nil, err
	}
	return a.lobby(ctx, game)
}

// SetLocked opens or closes the lobby to new players
func (a *App) SetLocked(ctx context.Context, code string, locked bool) (*Lobby, error) {
	game, err := a.GetGame(ctx, code)
	if err != nil {
		return nil, err
	}
	game, err = a.repo.SetLocked(ctx, game.ID, locked)
	if err != nil {
		return nil, err
	}
	log.Info().Str("game_code", game.Code).Bool("locked", locked).Msg("lobby lock changed")
	return a.lobby(ctx, game)
}

// GetLobby returns the membership snapshot of a game
func (a *App) GetLobby(ctx context.Context, code string) (*Lobby, error) {
	game, err := a.GetGame(ctx, code)
	if err != nil {
		return nil, err
	}
	return a.lobby(ctx, game)
}

// GetGame resolves a join code to its game and makes sure a session exists.
func (a *App) GetGame(ctx context.Context, code string) (*models.Game, error) {
	c, ok := NormalizeCode(code)
	if !ok {
		return nil, apperrors.ErrInvalidCode
	}
	game, err := a.repo.GetGameByCode(ctx, c)
	if err != nil {
		return nil, err
	}
	a.registry.Ensure(game.Code, game.ID)
	return game, nil
}

// Scores returns the scoreboard of a game, best first
func (a *App) Scores(ctx context.Context, gameID int64) ([]models.Score, error) {
	return a.repo.Scores(ctx, gameID)
}

// Categories lists the categories played in a game
func (a *App) Categories(ctx context.Context, gameID int64) ([]models.Category, error) {
	return a.repo.ListGameCategories(ctx, gameID)
}

// MarkPlaying moves a lobby into play and closes it to strangers.
func (a *App) MarkPlaying(ctx context.Context, gameID int64) error {
	if _, err := a.repo.SetLocked(ctx, gameID, true); err != nil {
		return err
	}
	return a.repo.SetStatus(ctx, gameID, models.GameStatusPlaying)
}

// FinishGame marks a game as finished
func (a *App) FinishGame(ctx context.Context, gameID int64) error {
	if err := a.repo.SetStatus(ctx, gameID, models.GameStatusFinished); err != nil {
		return fmt.Errorf("failed to finish game: %w", err)
	}
	return nil
}

// RoundsPlayed counts the finalized rounds of a game
func (a *App) RoundsPlayed(ctx context.Context, gameID int64) (int, error) {
	return a.repo.CountFinishedRounds(ctx, gameID)
}

// CheckGameEnd decides whether the game is over. The round limit is checked
// first; its winner is the top scorer. Otherwise the first player at or above
// the point limit wins.
func (a *App) CheckGameEnd(ctx context.Context, gameID int64) (*GameEnd, error) {
	game, err := a.repo.GetGameByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	roundsPlayed, err := a.repo.CountFinishedRounds(ctx, gameID)
	if err != nil {
		return nil, err
	}
	scores, err := a.repo.Scores(ctx, gameID)
	if err != nil {
		return nil, err
	}
	return evaluateEnd(game, roundsPlayed, scores), nil
}

func evaluateEnd(game *models.Game, roundsPlayed int, scores []models.Score) *GameEnd {
	end := &GameEnd{RoundsPlayed: roundsPlayed}

	if game.RoundLimit > 0 && roundsPlayed >= game.RoundLimit {
		end.Finished = true
		end.Reason = ReasonRoundLimit
		if len(scores) > 0 {
			w := scores[0]
			end.Winner = &w
		}
		return end
	}

	if game.PointLimit > 0 {
		for _, s := range scores {
			if s.Total >= game.PointLimit {
				w := s
				end.Finished = true
				end.Reason = ReasonPointLimit
				end.Winner = &w
				return end
			}
		}
	}
	return end
}

// DeleteGame removes a game with everything attached to it and drops its session
func (a *App) DeleteGame(ctx context.Context, code string) (*models.Game, error) {
	game, err := a.GetGame(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := a.repo.DeleteGame(ctx, game.ID); err != nil {
		return nil, err
	}
	a.registry.Remove(game.Code)

	log.Info().Str("game_code", game.Code).Int64("game_id", game.ID).Msg("game deleted")
	return game, nil
}

func (a *App) lobby(ctx context.Context, game *models.Game) (*Lobby, error) {
	players, err := a.repo.ListPlayers(ctx, game.ID)
	if err != nil {
		return nil, err
	}
	return &Lobby{Game: game, Players: players, HostID: hostOf(players)}, nil
}

func (a *App) findPlayerByName(ctx context.Context, gameID int64, name string) (*models.Player, error) {
	players, err := a.repo.ListPlayers(ctx, gameID)
	if err != nil {
		return nil, err
	}
	for i := range players {
		if players[i].Name == name {
			return &players[i], nil
		}
	}
	return nil, nil
}

func validateName(name string) (string, error) {
	n := strings.TrimSpace(name)
	l := utf8.RuneCountInString(n)
	if l < minNameLen || l > maxNameLen {
		return "", apperrors.Validation(apperrors.ErrInvalidName.Code,
			"name must be between %d and %d characters, got %d", minNameLen, maxNameLen, l)
	}
	return n, nil
}

func validateSettings(pointLimit, roundLimit, durationSec int) error {
	if pointLimit < minPointLimit || pointLimit > maxPointLimit {
		return apperrors.Validation(apperrors.ErrInvalidSettings.Code,
			"pointLimit must be between %d and %d", minPointLimit, maxPointLimit)
	}
	if roundLimit < minRoundLimit || roundLimit > maxRoundLimit {
		return apperrors.Validation(apperrors.ErrInvalidSettings.Code,
			"roundLimit must be between %d and %d", minRoundLimit, maxRoundLimit)
	}
	if durationSec < minDurationSec || durationSec > maxDurationSec {
		return apperrors.Validation(apperrors.ErrInvalidDuration.Code,
			"durationSec must be between %d and %d", minDurationSec, maxDurationSec)
	}
	return nil
}

func pick(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}
