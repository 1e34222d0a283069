package models

import "time"

// Round is one timed play unit with an assigned letter.
type Round struct {
	ID          int64      `json:"id"`
	GameID      int64      `json:"gameId"`
	Number      int        `json:"number"`
	Letter      string     `json:"letter"`
	StartsAt    time.Time  `json:"startsAt"`
	EndsAt      time.Time  `json:"endsAt"`
	DurationSec int        `json:"durationSec"`
	IsFinished  bool       `json:"isFinished"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
}

// Expired reports whether now is past the round's end.
func (r Round) Expired(now time.Time) bool {
	return now.After(r.EndsAt)
}

// SecondsLeft is the number of seconds until EndsAt, rounded up and never negative.
func (r Round) SecondsLeft(now time.Time) int {
	return SecondsUntil(r.EndsAt, now)
}

// SecondsUntil counts the seconds from now to t, rounding a started second up.
func SecondsUntil(t, now time.Time) int {
	d := t.Sub(now)
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

// SubmissionStatus is the dictionary verdict stored with an answer.
type SubmissionStatus string

const (
	SubmissionStatusValid   SubmissionStatus = "valid"
	SubmissionStatusInvalid SubmissionStatus = "invalid"
)

// Submission is one player's answer for one category in a round.
type Submission struct {
	ID                  int64            `json:"id"`
	RoundID             int64            `json:"roundId"`
	PlayerID            int64            `json:"playerId"`
	PlayerName          string           `json:"playerName,omitempty"`
	CategoryID          int64            `json:"categoryId"`
	CategorySlug        string           `json:"categorySlug,omitempty"`
	RawText             string           `json:"rawText"`
	NormalizedText      string           `json:"normalizedText"`
	IsValidLetter       bool             `json:"isValidLetter"`
	IsValidCategory     bool             `json:"isValidCategory"`
	Status              SubmissionStatus `json:"status"`
	RepetitionGroupHash string           `json:"repetitionGroupHash,omitempty"`
	CreatedAt           time.Time        `json:"createdAt"`
}

// Answer is a raw client answer before normalization.
type Answer struct {
	CategoryID int64  `json:"categoryId"`
	Text       string `json:"text"`
}
