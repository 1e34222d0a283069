package rounds

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/basta/go/internal/apperrors"
	"github.com/mcdev12/basta/go/internal/models"
	"github.com/mcdev12/basta/go/internal/scoring"
	"github.com/mcdev12/basta/go/internal/sqlutil"
	"github.com/sqlc-dev/pqtype"
)

const roundColumns = `id, game_id, number, letter, starts_at, ends_at, duration_sec, is_finished, finished_at`

const submissionColumns = `s.id, s.round_id, s.player_id, p.name, s.category_id, COALESCE(c.slug, ''),
	s.raw_text, s.normalized_text, s.is_valid_letter, s.is_valid_category, s.status,
	s.repetition_group_hash, s.created_at`

// Repository handles all round and submission database operations
type Repository struct {
	db *sql.DB
	q  *queries
}

// NewRepository creates a new round repository
func NewRepository(database *sql.DB) *Repository {
	return &Repository{db: database, q: newQueries(database)}
}

type queries struct {
	db sqlutil.DBTX
}

func newQueries(db sqlutil.DBTX) *queries {
	return &queries{db: db}
}

// CreateRound locks the game row, numbers the new round after the last one and
// moves the game into play.
func (r *Repository) CreateRound(ctx context.Context, p CreateRoundParams) (*models.Round, error) {
	var round *models.Round
	err := sqlutil.Run(ctx, r.db, newQueries, func(q *queries) error {
		var status string
		err := q.db.QueryRowContext(ctx, `SELECT status FROM game WHERE id = $1 FOR UPDATE`, p.GameID).Scan(&status)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperrors.ErrGameNotFound
			}
			return fmt.Errorf("lock game: %w", err)
		}
		if models.GameStatus(status) == models.GameStatusFinished {
			return apperrors.ErrGameFinished
		}

		var running int
		if err := q.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM round
			WHERE game_id = $1 AND NOT is_finished AND ends_at > $2`,
			p.GameID, p.StartsAt,
		).Scan(&running); err != nil {
			return fmt.Errorf("check running round: %w", err)
		}
		if running > 0 {
			return apperrors.ErrRoundInProgress
		}

		round, err = scanRound(q.db.QueryRowContext(ctx, `
			INSERT INTO round (game_id, number, letter, starts_at, ends_at, duration_sec)
			SELECT $1, COALESCE(MAX(number), 0) + 1, $2, $3, $4, $5
			FROM round WHERE game_id = $1
			RETURNING `+roundColumns,
			p.GameID, p.Letter, p.StartsAt, p.EndsAt, p.DurationSec,
		))
		if err != nil {
			return fmt.Errorf("insert round: %w", err)
		}

		if _, err := q.db.ExecContext(ctx, `
			UPDATE game
			SET current_round = current_round + 1, status = 'playing', updated_at = NOW()
			WHERE id = $1`, p.GameID,
		); err != nil {
			return fmt.Errorf("advance game: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return round, nil
}

// GetRound retrieves a round by ID
func (r *Repository) GetRound(ctx context.Context, id int64) (*models.Round, error) {
	round, err := scanRound(r.q.db.QueryRowContext(ctx, `SELECT `+roundColumns+` FROM round WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrRoundNotFound
		}
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	return round, nil
}

// GetActiveRound returns the latest unfinished round of a game
func (r *Repository) GetActiveRound(ctx context.Context, gameID int64) (*models.Round, error) {
	round, err := scanRound(r.q.db.QueryRowContext(ctx, `
		SELECT `+roundColumns+` FROM round
		WHERE game_id = $1 AND NOT is_finished
		ORDER BY number DESC LIMIT 1`, gameID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrRoundNotFound
		}
		return nil, fmt.Errorf("failed to get active round: %w", err)
	}
	return round, nil
}

// UsedLetters lists the letters already played in a game
func (r *Repository) UsedLetters(ctx context.Context, gameID int64) ([]string, error) {
	rows, err := r.q.db.QueryContext(ctx, `SELECT DISTINCT letter FROM round WHERE game_id = $1`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list used letters: %w", err)
	}
	defer rows.Close()

	var letters []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, fmt.Errorf("failed to scan letter: %w", err)
		}
		letters = append(letters, l)
	}
	return letters, rows.Err()
}

// CountPlayers counts the current members of a game
func (r *Repository) CountPlayers(ctx context.Context, gameID int64) (int, error) {
	var n int
	if err := r.q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM player WHERE game_id = $1`, gameID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count players: %w", err)
	}
	return n, nil
}

// PlayerInGame reports whether playerID belongs to gameID
func (r *Repository) PlayerInGame(ctx context.Context, gameID, playerID int64) (bool, error) {
	var one int
	err := r.q.db.QueryRowContext(ctx, `SELECT 1 FROM player WHERE id = $1 AND game_id = $2`, playerID, gameID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check player: %w", err)
	}
	return true, nil
}

// ListGameCategories lists the categories attached to a game in play order
func (r *Repository) ListGameCategories(ctx context.Context, gameID int64) ([]models.Category, error) {
	rows, err := r.q.db.QueryContext(ctx, `
		SELECT c.id, c.slug, c.name, c.is_default, c.enabled, gc.position
		FROM game_category gc
		JOIN category c ON c.id = gc.category_id
		WHERE gc.game_id = $1
		ORDER BY gc.position ASC`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var cats []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Slug, &c.Name, &c.IsDefault, &c.Enabled, &c.Position); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		c.Placeholder = c.DefaultPlaceholder()
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

// ReplaceSubmissions swaps a player's answers for a round in one transaction.
// The round row is share-locked so a concurrent finalize either sees the new
// rows or the writer sees the round finished.
func (r *Repository) ReplaceSubmissions(ctx context.Context, roundID, playerID int64, subs []models.Submission, now time.Time) error {
	return sqlutil.Run(ctx, r.db, newQueries, func(q *queries) error {
		var (
			finished bool
			endsAt   time.Time
		)
		err := q.db.QueryRowContext(ctx,
			`SELECT is_finished, ends_at FROM round WHERE id = $1 FOR SHARE`, roundID,
		).Scan(&finished, &endsAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperrors.ErrRoundNotFound
			}
			return fmt.Errorf("lock round: %w", err)
		}
		if finished {
			return apperrors.ErrRoundAlreadyFinished
		}
		if now.After(endsAt) {
			return apperrors.ErrRoundTimeExpired
		}

		if _, err := q.db.ExecContext(ctx,
			`DELETE FROM submission WHERE round_id = $1 AND player_id = $2`, roundID, playerID,
		); err != nil {
			return fmt.Errorf("delete previous submissions: %w", err)
		}

		for _, s := range subs {
			if _, err := q.db.ExecContext(ctx, `
				INSERT INTO submission (
					round_id, player_id, category_id, raw_text, normalized_text,
					is_valid_letter, is_valid_category, status, repetition_group_hash
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				roundID, playerID, s.CategoryID, s.RawText, s.NormalizedText,
				s.IsValidLetter, s.IsValidCategory, string(s.Status), sqlutil.ToSqlString(s.RepetitionGroupHash),
			); err != nil {
				return fmt.Errorf("insert submission for category %d: %w", s.CategoryID, err)
			}
		}
		return nil
	})
}

// ListSubmissions lists every stored answer of a round
func (r *Repository) ListSubmissions(ctx context.Context, roundID int64) ([]models.Submission, error) {
	return r.q.listSubmissions(ctx, roundID)
}

// FinalizeRound claims the round and scores it in a single transaction. The
// conditional update is the only gate: when it touches no row another caller
// already finalized the round and nothing else happens.
func (r *Repository) FinalizeRound(ctx context.Context, roundID int64, score ScoreFunc) (*FinalizeResult, error) {
	out := &FinalizeResult{}
	err := sqlutil.Run(ctx, r.db, newQueries, func(q *queries) error {
		var (
			gameID int64
			letter string
		)
		err := q.db.QueryRowContext(ctx, `
			UPDATE round SET is_finished = TRUE, finished_at = NOW()
			WHERE id = $1 AND is_finished = FALSE
			RETURNING game_id, letter`, roundID,
		).Scan(&gameID, &letter)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("claim round: %w", err)
		}
		out.Claimed = true

		subs, err := q.listSubmissions(ctx, roundID)
		if err != nil {
			return err
		}
		playerIDs, err := q.listPlayerIDs(ctx, gameID)
		if err != nil {
			return err
		}

		scored, err := score(ctx, subs, playerIDs)
		if err != nil {
			return fmt.Errorf("score round: %w", err)
		}

		for id, pts := range scored.Points {
			if pts <= 0 {
				continue
			}
			if _, err := q.db.ExecContext(ctx,
				`UPDATE player SET score = score + $2 WHERE id = $1 AND game_id = $3`, id, pts, gameID,
			); err != nil {
				return fmt.Errorf("add %d points to player %d: %w", pts, id, err)
			}
		}

		results := &Results{RoundID: roundID, GameID: gameID, Letter: letter, Duplicates: scored.Duplicates}
		if results.Duplicates == nil {
			results.Duplicates = []scoring.Duplicate{}
		}
		results.Scores, err = q.playerResults(ctx, gameID, scored.Points)
		if err != nil {
			return err
		}

		raw, err := json.Marshal(results)
		if err != nil {
			return fmt.Errorf("marshal results: %w", err)
		}
		if _, err := q.db.ExecContext(ctx,
			`UPDATE round SET results = $2 WHERE id = $1`,
			roundID, pqtype.NullRawMessage{RawMessage: raw, Valid: true},
		); err != nil {
			return fmt.Errorf("store results: %w", err)
		}
		out.Results = results
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to finalize round %d: %w", roundID, err)
	}
	return out, nil
}

// GetResults returns the stored outcome of a finished round
func (r *Repository) GetResults(ctx context.Context, roundID int64) (*Results, error) {
	var raw pqtype.NullRawMessage
	err := r.q.db.QueryRowContext(ctx, `SELECT results FROM round WHERE id = $1`, roundID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrRoundNotFound
		}
		return nil, fmt.Errorf("failed to get results: %w", err)
	}
	if !raw.Valid {
		return nil, apperrors.ErrRoundNotFound
	}
	var res Results
	if err := json.Unmarshal(raw.RawMessage, &res); err != nil {
		return nil, fmt.Errorf("failed to decode results: %w", err)
	}
	return &res, nil
}

// ListExpiredRounds finds unfinished rounds whose deadline is at or before now
func (r *Repository) ListExpiredRounds(ctx context.Context, now time.Time, limit int) ([]ExpiredRound, error) {
	rows, err := r.q.db.QueryContext(ctx, `
		SELECT r.id, r.game_id, g.code, r.ends_at
		FROM round r
		JOIN game g ON g.id = r.game_id
		WHERE NOT r.is_finished AND r.ends_at <= $1
		ORDER BY r.ends_at ASC
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired rounds: %w", err)
	}
	defer rows.Close()

	var out []ExpiredRound
	for rows.Next() {
		var e ExpiredRound
		if err := rows.Scan(&e.RoundID, &e.GameID, &e.GameCode, &e.EndsAt); err != nil {
			return nil, fmt.Errorf("failed to scan expired round: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (q *queries) listSubmissions(ctx context.Context, roundID int64) ([]models.Submission, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+submissionColumns+`
		FROM submission s
		JOIN player p ON p.id = s.player_id
		LEFT JOIN category c ON c.id = s.category_id
		WHERE s.round_id = $1
		ORDER BY s.player_id, s.category_id`, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	var subs []models.Submission
	for rows.Next() {
		var (
			s      models.Submission
			status string
			hash   sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.RoundID, &s.PlayerID, &s.PlayerName, &s.CategoryID, &s.CategorySlug,
			&s.RawText, &s.NormalizedText, &s.IsValidLetter, &s.IsValidCategory, &status,
			&hash, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		s.Status = models.SubmissionStatus(status)
		s.RepetitionGroupHash = sqlutil.FromSqlString(hash, "")
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

func (q *queries) listPlayerIDs(ctx context.Context, gameID int64) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id FROM player WHERE game_id = $1 ORDER BY id`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan player id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (q *queries) playerResults(ctx context.Context, gameID int64, points map[int64]int) ([]PlayerResult, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, name, score FROM player WHERE game_id = $1 ORDER BY score DESC, name ASC`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to load scores: %w", err)
	}
	defer rows.Close()

	out := []PlayerResult{}
	for rows.Next() {
		var pr PlayerResult
		if err := rows.Scan(&pr.ID, &pr.Name, &pr.Total); err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		pr.RoundPoints = points[pr.ID]
		out = append(out, pr)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRound(row rowScanner) (*models.Round, error) {
	var (
		rd         models.Round
		finishedAt sql.NullTime
	)
	if err := row.Scan(&rd.ID, &rd.GameID, &rd.Number, &rd.Letter, &rd.StartsAt, &rd.EndsAt,
		&rd.DurationSec, &rd.IsFinished, &finishedAt); err != nil {
		return nil, err
	}
	rd.FinishedAt = sqlutil.FromSqlTime(finishedAt)
	return &rd, nil
}
