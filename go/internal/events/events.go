// Package events defines the room-scoped messages broadcast to the players of
// a game and the Publisher boundary they travel through.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type is the name clients switch on.
type Type string

const (
	TypeLobbyUpdate      Type = "lobby:update"
	TypeLobbyLock        Type = "lobby:lock"
	TypePlayerJoined     Type = "player:joined"
	TypePlayerLeft       Type = "player:left"
	TypeGameStarting     Type = "game:starting"
	TypeGameStarted      Type = "game:started"
	TypeRoundStarted     Type = "round:started"
	TypeRoundCountdown   Type = "round:countdown"
	TypeAnswersSubmitted Type = "answers:submitted"
	TypeRoundProgress    Type = "round:progress"
	TypeRoundEnded       Type = "round:ended"
	TypeGameFinished     Type = "game:finished"
	TypeGameDeleted      Type = "game:deleted"
)

// Event is the envelope of everything broadcast to a game room
type Event struct {
	ID        string          `json:"id"`
	GameCode  string          `json:"gameCode"`
	Type      Type            `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// New wraps payload in an envelope addressed to the room of code.
func New(code string, t Type, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Event{
		ID:        uuid.NewString(),
		GameCode:  code,
		Type:      t,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}

// Publisher delivers events to the room they are addressed to
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, e Event) error

func (f PublisherFunc) Publish(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Fanout publishes every event to all of its publishers.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
var Discard Publisher = PublisherFunc(func(context.Context, Event) error { return nil })
