package rounds

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mcdev12/basta/go/internal/models"
)

// QuorumPolicy decides which submitted batches count toward an early close.
type QuorumPolicy string

const (
	// QuorumHalfCategories counts a batch with real answers for at least half
	// of the round's categories.
	QuorumHalfCategories QuorumPolicy = "half_categories"
	// QuorumAnyValid counts a batch with at least one answer for a category
	// of the game.
	QuorumAnyValid QuorumPolicy = "any_valid"
)

const (
	maxQuorum       = 4
	minAnswerLength = 2
)

// ParseQuorumPolicy maps a config value to a policy; empty means the default.
func ParseQuorumPolicy(s string) (QuorumPolicy, error) {
	switch p := QuorumPolicy(strings.TrimSpace(s)); p {
	case "":
		return QuorumHalfCategories, nil
	case QuorumHalfCategories, QuorumAnyValid:
		return p, nil
	default:
		return "", fmt.Errorf("unknown quorum policy %q", s)
	}
}

// Needed is the number of qualifying players that closes a round early:
// min(4, ceil(players/2)), never below one.
func Needed(totalPlayers int) int {
	n := (totalPlayers + 1) / 2
	if n > maxQuorum {
		n = maxQuorum
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Qualifies reports whether one player's stored batch counts toward quorum.
func (p QuorumPolicy) Qualifies(subs []models.Submission, categoryCount int) bool {
	if p == QuorumAnyValid {
		for _, s := range subs {
			if s.IsValidCategory && s.CategoryID > 0 {
				return true
			}
		}
		return false
	}

	answered := 0
	for _, s := range subs {
		if s.CategoryID > 0 && utf8.RuneCountInString(strings.TrimSpace(s.RawText)) >= minAnswerLength {
			answered++
		}
	}
	return answered >= minAnswers(categoryCount)
}

func minAnswers(categoryCount int) int {
	n := (categoryCount + 1) / 2
	if n < 1 {
		n = 1
	}
	return n
}
