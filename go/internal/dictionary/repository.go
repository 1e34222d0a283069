package dictionary

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mcdev12/basta/go/internal/sqlutil"
)

const findApprovedWord = `
SELECT 1
FROM dictionary
WHERE category_slug = $1
  AND word = $2
  AND status = 'approved'
LIMIT 1`

// Repository reads the approved word list.
type Repository struct {
	db sqlutil.DBTX
}

// NewRepository creates a new dictionary repository
func NewRepository(db sqlutil.DBTX) *Repository {
	return &Repository{db: db}
}

// FindWord reports whether an approved entry exists for (slug, normalized word).
func (r *Repository) FindWord(ctx context.Context, slug, word string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, findApprovedWord, slug, word).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to find dictionary word: %w", err)
	}
	return true, nil
}
