// Package scoring turns a round's submissions into per-player points.
//
// An answer is scoreable when it is non-empty, starts with the round letter,
// belongs to a valid category and is an approved dictionary word for that
// category. Scoreable answers are grouped by (category, normalized text): a
// group held by a single player is worth UniquePoints, a group shared by two
// or more players is worth DuplicatePoints to each of them. Everything else is
// worth nothing.
package scoring

import (
	"context"
	"fmt"
	"sort"

	"github.com/mcdev12/basta/go/internal/models"
)

const (
	UniquePoints    = 100
	DuplicatePoints = 50
)

// Lookup reports whether word is an approved entry for the category slug.
type Lookup func(ctx context.Context, categorySlug, word string) (bool, error)

// Duplicate describes an answer shared by more than one player.
type Duplicate struct {
	CategoryID int64   `json:"categoryId"`
	Text       string  `json:"text"`
	PlayerIDs  []int64 `json:"playerIds"`
}

// Result is the outcome of scoring one round.
type Result struct {
	// Points holds round points per player id, including players that scored 0.
	Points map[int64]int
	// Awards is aligned with the input submissions.
	Awards     []int
	Duplicates []Duplicate
}

type groupKey struct {
	categoryID int64
	text       string
}

type lookupKey struct {
	slug string
	text string
}

// Score computes the round points for subs. players lists every player that
// must appear in the result even without submissions.
func Score(ctx context.Context, subs []models.Submission, players []int64, lookup Lookup) (Result, error) {
	res := Result{
		Points: make(map[int64]int, len(players)),
		Awards: make([]int, len(subs)),
	}
	for _, id := range players {
		res.Points[id] = 0
	}

	cache := make(map[lookupKey]bool)
	scoreable := make([]bool, len(subs))
	groups := make(map[groupKey]map[int64]struct{})

	for i, s := range subs {
		if _, ok := res.Points[s.PlayerID]; !ok {
			res.Points[s.PlayerID] = 0
		}

		if s.NormalizedText == "" || !s.IsValidLetter || !s.IsValidCategory {
			continue
		}
		k := lookupKey{slug: s.CategorySlug, text: s.NormalizedText}
		ok, seen := cache[k]
		if !seen {
			var err error
			ok, err = lookup(ctx, s.CategorySlug, s.NormalizedText)
			if err != nil {
				return Result{}, fmt.Errorf("score submission for player %d: %w", s.PlayerID, err)
			}
			cache[k] = ok
		}
		if !ok {
			continue
		}

		scoreable[i] = true
		g := groupKey{categoryID: s.CategoryID, text: s.NormalizedText}
		if groups[g] == nil {
			groups[g] = make(map[int64]struct{})
		}
		groups[g][s.PlayerID] = struct{}{}
	}

	for i, s := range subs {
		if !scoreable[i] {
			continue
		}
		pts := UniquePoints
		if len(groups[groupKey{categoryID: s.CategoryID, text: s.NormalizedText}]) > 1 {
			pts = DuplicatePoints
		}
		res.Awards[i] = pts
		res.Points[s.PlayerID] += pts
	}

	for g, holders := range groups {
		if len(holders) < 2 {
			continue
		}
		ids := make([]int64, 0, len(holders))
		for id := range holders {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
		res.Duplicates = append(res.Duplicates, Duplicate{CategoryID: g.categoryID, Text: g.text, PlayerIDs: ids})
	}
	sort.Slice(res.Duplicates, func(a, b int) bool {
		if res.Duplicates[a].CategoryID != res.Duplicates[b].CategoryID {
			return res.Duplicates[a].CategoryID < res.Duplicates[b].CategoryID
		}
		return res.Duplicates[a].Text < res.Duplicates[b].Text
	})

	return res, nil
}
