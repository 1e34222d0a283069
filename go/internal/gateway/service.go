package gateway

import (
	"context"

	"github.com/mcdev12/basta/go/internal/games"
	"github.com/mcdev12/basta/go/internal/models"
	"github.com/mcdev12/basta/go/internal/orchestrator"
	"github.com/mcdev12/basta/go/internal/rounds"
)

// GameService is the game runtime the gateway drives
type GameService interface {
	Lobby(ctx context.Context, code string) (*games.Lobby, error)
	InGame(ctx context.Context, code string) (*orchestrator.InGame, error)
	JoinGame(ctx context.Context, code, name string) (*games.JoinResult, error)
	Leave(ctx context.Context, code string, playerID int64) (*games.LeaveResult, error)
	UpdateSettings(ctx context.Context, code string, req games.UpdateSettingsRequest) (*games.Lobby, error)
	SetLocked(ctx context.Context, code string, locked bool) (*games.Lobby, error)
	StartGame(ctx context.Context, code string, tMinus int) error
	StartRound(ctx context.Context, code, letter string, durationSec int) (*rounds.RoundDescriptor, error)
	SubmitAnswers(ctx context.Context, code string, roundID, playerID int64, answers []models.Answer) (*rounds.SubmitResult, error)
	Basta(ctx context.Context, code string) error
	DeleteGame(ctx context.Context, code string) error
}

// GameCreator creates new games. Creation has no room to notify yet.
type GameCreator interface {
	CreateGameWithHost(ctx context.Context, req games.CreateGameRequest) (*games.CreateGameResult, error)
}
