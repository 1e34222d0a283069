package orchestrator

import (
	"context"

	"github.com/mcdev12/basta/go/internal/events"
	"github.com/mcdev12/basta/go/internal/games"
	"github.com/mcdev12/basta/go/internal/models"
)

// JoinGame adds a player to a lobby and announces it.
func (o *Orchestrator) JoinGame(ctx context.Context, code, name string) (*games.JoinResult, error) {
	res, err := o.games.JoinGame(ctx, code, name)
	if err != nil {
		return nil, err
	}

	var hostID *int64
	for i := range res.Players {
		if res.Players[i].IsHost {
			id := res.Players[i].ID
			hostID = &id
		}
	}
	if res.Created {
		o.publish(ctx, res.Game.Code, events.TypePlayerJoined, events.PlayerPayload{
			Player:  res.Player,
			Players: res.Players,
			HostID:  hostID,
		})
	}
	o.publish(ctx, res.Game.Code, events.TypeLobbyUpdate, &games.Lobby{
		Game:    res.Game,
		Players: res.Players,
		HostID:  hostID,
	})
	return res, nil
}

// Leave removes a player from a game and announces it.
func (o *Orchestrator) Leave(ctx context.Context, code string, playerID int64) (*games.LeaveResult, error) {
	res, err := o.games.Leave(ctx, code, playerID)
	if err != nil {
		return nil, err
	}
	if !res.Removed {
		return res, nil
	}

	lobby := res.Lobby
	o.publish(ctx, lobby.Game.Code, events.TypePlayerLeft, events.PlayerPayload{
		Player:  &models.Player{ID: playerID, GameID: lobby.Game.ID},
		Players: lobby.Players,
		HostID:  lobby.HostID,
	})
	o.publish(ctx, lobby.Game.Code, events.TypeLobbyUpdate, lobby)
	return res, nil
}

// UpdateSettings changes the match limits and broadcasts the lobby.
func (o *Orchestrator) UpdateSettings(ctx context.Context, code string, req games.UpdateSettingsRequest) (*games.Lobby, error) {
	lobby, err := o.games.UpdateSettings(ctx, code, req)
	if err != nil {
		return nil, err
	}
	o.publish(ctx, lobby.Game.Code, events.TypeLobbyUpdate, lobby)
	return lobby, nil
}

// SetLocked toggles whether new players may join.
func (o *Orchestrator) SetLocked(ctx context.Context, code string, locked bool) (*games.Lobby, error) {
	lobby, err := o.games.SetLocked(ctx, code, locked)
	if err != nil {
		return nil, err
	}
	o.publish(ctx, lobby.Game.Code, events.TypeLobbyLock, events.LobbyLockPayload{Locked: locked})
	o.publish(ctx, lobby.Game.Code, events.TypeLobbyUpdate, lobby)
	return lobby, nil
}

// Lobby returns the membership snapshot of a game.
func (o *Orchestrator) Lobby(ctx context.Context, code string) (*games.Lobby, error) {
	return o.games.GetLobby(ctx, code)
}
