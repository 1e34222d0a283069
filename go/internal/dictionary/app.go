// Package dictionary is the oracle for whether an answer is a real word of
// its category.
package dictionary

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mcdev12/basta/go/internal/textnorm"
)

// WordFinder defines what the validator needs from storage.
type WordFinder interface {
	FindWord(ctx context.Context, slug, word string) (bool, error)
}

// Validator checks answers against the approved word list.
type Validator struct {
	repo WordFinder
}

// NewValidator creates a new dictionary Validator
func NewValidator(repo WordFinder) *Validator {
	return &Validator{repo: repo}
}

// Exists normalizes rawWord and looks it up for categorySlug. An empty slug or
// an answer that normalizes to nothing is simply not found.
func (v *Validator) Exists(ctx context.Context, categorySlug, rawWord string) (bool, error) {
	slug := strings.TrimSpace(categorySlug)
	word := textnorm.Normalize(rawWord)
	if slug == "" || word == "" {
		return false, nil
	}

	ok, err := v.repo.FindWord(ctx, slug, word)
	if err != nil {
		return false, fmt.Errorf("dictionary lookup %s/%s: %w", slug, word, err)
	}
	return ok, nil
}

// ParseWordList reads one word per line, skipping blanks and '#' comments,
// and returns the normalized words de-duplicated in first-seen order.
func ParseWordList(r io.Reader) ([]string, error) {
	seen := make(map[string]struct{})
	var words []string

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		w := textnorm.Normalize(line)
		if w == "" {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		words = append(words, w)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read word list: %w", err)
	}
	return words, nil
}
