package gateway

import (
	"encoding/json"

	"github.com/mcdev12/basta/go/internal/events"
	"github.com/mcdev12/basta/go/internal/models"
)

// Client message types.
const (
	MsgBasta   = "round:basta"
	MsgAnswers = "round:answers"
)

// Replies sent to a single socket.
const (
	TypeAnswersSaved events.Type = "answers:saved"
	TypeError        events.Type = "error"
)

// ClientMessage is the envelope of everything a client sends over its socket
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// AnswersMessage is the data of round:answers
type AnswersMessage struct {
	RoundID int64           `json:"roundId"`
	Answers []models.Answer `json:"answers"`
}

// AnswersSavedPayload acknowledges a round:answers message
type AnswersSavedPayload struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// ErrorBody is the error shape of every REST response and socket error reply
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
