package games

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mcdev12/basta/go/internal/apperrors"
	"github.com/mcdev12/basta/go/internal/models"
	"github.com/mcdev12/basta/go/internal/sqlutil"
)

// errCodeTaken is returned when a generated code collides with a live game.
var errCodeTaken = errors.New("game code already taken")

const gameColumns = `id, code, status, locked, point_limit, round_limit, duration_sec, current_round, created_at, updated_at`

const playerColumns = `id, game_id, name, is_host, score, created_at`

// Repository handles all game and player database operations
type Repository struct {
	db *sql.DB
	q  *queries
}

// NewRepository creates a new game repository
func NewRepository(database *sql.DB) *Repository {
	return &Repository{db: database, q: newQueries(database)}
}

type queries struct {
	db sqlutil.DBTX
}

func newQueries(db sqlutil.DBTX) *queries {
	return &queries{db: db}
}

// CreateGameParams contains the validated values of a new game
type CreateGameParams struct {
	Code        string
	HostName    string
	PointLimit  int
	RoundLimit  int
	DurationSec int
}

// CreateGame inserts the game, its host and the default categories in one transaction.
func (r *Repository) CreateGame(ctx context.Context, p CreateGameParams) (*models.Game, *models.Player, []models.Category, error) {
	var (
		game *models.Game
		host *models.Player
		cats []models.Category
	)
	err := sqlutil.Run(ctx, r.db, newQueries, func(q *queries) error {
		var err error
		game, err = scanGame(q.db.QueryRowContext(ctx, `
			INSERT INTO game (code, status, point_limit, round_limit, duration_sec, current_round)
			VALUES ($1, 'lobby', $2, $3, $4, 0)
			RETURNING `+gameColumns,
			p.Code, p.PointLimit, p.RoundLimit, p.DurationSec,
		))
		if err != nil {
			if sqlutil.IsUniqueViolation(err) {
				return errCodeTaken
			}
			return fmt.Errorf("insert game: %w", err)
		}

		host, err = scanPlayer(q.db.QueryRowContext(ctx, `
			INSERT INTO player (game_id, name, is_host)
			VALUES ($1, $2, TRUE)
			RETURNING `+playerColumns,
			game.ID, p.HostName,
		))
		if err != nil {
			return fmt.Errorf("insert host: %w", err)
		}

		if _, err := q.db.ExecContext(ctx, `
			INSERT INTO game_category (game_id, category_id, position)
			SELECT $1, id, ROW_NUMBER() OVER (ORDER BY id)
			FROM category
			WHERE is_default AND enabled`,
			game.ID,
		); err != nil {
			return fmt.Errorf("attach default categories: %w", err)
		}

		cats, err = q.listGameCategories(ctx, game.ID)
		return err
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return game, host, cats, nil
}

// GetGameByCode retrieves a game by its join code
func (r *Repository) GetGameByCode(ctx context.Context, code string) (*models.Game, error) {
	game, err := scanGame(r.q.db.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM game WHERE code = $1`, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrGameNotFound
		}
		return nil, fmt.Errorf("failed to get game by code: %w", err)
	}
	return game, nil
}

// GetGameByID retrieves a game by ID
func (r *Repository) GetGameByID(ctx context.Context, id int64) (*models.Game, error) {
	game, err := scanGame(r.q.db.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM game WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrGameNotFound
		}
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	return game, nil
}

// AddPlayer inserts a player unless one with the same name already exists in
// the game, in which case the existing player is returned with created=false.
func (r *Repository) AddPlayer(ctx context.Context, gameID int64, name string) (*models.Player, bool, error) {
	p, err := scanPlayer(r.q.db.QueryRowContext(ctx, `
		INSERT INTO player (game_id, name, is_host)
		VALUES ($1, $2, FALSE)
		ON CONFLICT (game_id, name) DO NOTHING
		RETURNING `+playerColumns,
		gameID, name,
	))
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to add player: %w", err)
	}

	p, err = scanPlayer(r.q.db.QueryRowContext(ctx,
		`SELECT `+playerColumns+` FROM player WHERE game_id = $1 AND name = $2`, gameID, name))
	if err != nil {
		return nil, false, fmt.Errorf("failed to load existing player: %w", err)
	}
	return p, false, nil
}

// RemovePlayer deletes a player and, when it was the host, promotes the
// earliest remaining player. Returns false when the player was not in the game.
func (r *Repository) RemovePlayer(ctx context.Context, gameID, playerID int64) (bool, error) {
	removed := false
	err := sqlutil.Run(ctx, r.db, newQueries, func(q *queries) error {
		var wasHost bool
		err := q.db.QueryRowContext(ctx,
			`DELETE FROM player WHERE id = $1 AND game_id = $2 RETURNING is_host`, playerID, gameID,
		).Scan(&wasHost)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("delete player: %w", err)
		}
		removed = true
		if !wasHost {
			return nil
		}
		if _, err := q.db.ExecContext(ctx, `
			UPDATE player SET is_host = TRUE
			WHERE id = (
				SELECT id FROM player WHERE game_id = $1 ORDER BY created_at, id LIMIT 1
			)`, gameID,
		); err != nil {
			return fmt.Errorf("promote host: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to remove player: %w", err)
	}
	return removed, nil
}

// ListPlayers lists the players of a game, host first then by name
func (r *Repository) ListPlayers(ctx context.Context, gameID int64) ([]models.Player, error) {
	rows, err := r.q.db.QueryContext(ctx,
		`SELECT `+playerColumns+` FROM player WHERE game_id = $1 ORDER BY is_host DESC, name ASC`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	defer rows.Close()

	var players []models.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan player: %w", err)
		}
		players = append(players, *p)
	}
	return players, rows.Err()
}

// Scores returns the canonical score rows, best first
func (r *Repository) Scores(ctx context.Context, gameID int64) ([]models.Score, error) {
	rows, err := r.q.db.QueryContext(ctx,
		`SELECT id, name, score FROM player WHERE game_id = $1 ORDER BY score DESC, name ASC`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to get scores: %w", err)
	}
	defer rows.Close()

	scores := []models.Score{}
	for rows.Next() {
		var s models.Score
		if err := rows.Scan(&s.ID, &s.Name, &s.Total); err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		scores = append(scores, s)
	}
	return scores, rows.Err()
}

// UpdateSettings stores new match limits
func (r *Repository) UpdateSettings(ctx context.Context, gameID int64, pointLimit, roundLimit, durationSec int) (*models.Game, error) {
	game, err := scanGame(r.q.db.QueryRowContext(ctx, `
		UPDATE game
		SET point_limit = $2, round_limit = $3, duration_sec = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING `+gameColumns,
		gameID, pointLimit, roundLimit, durationSec,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrGameNotFound
		}
		return nil, fmt.Errorf("failed to update settings: %w", err)
	}
	return game, nil
}

// SetLocked toggles whether new players may join
func (r *Repository) SetLocked(ctx context.Context, gameID int64, locked bool) (*models.Game, error) {
	game, err := scanGame(r.q.db.QueryRowContext(ctx,
		`UPDATE game SET locked = $2, updated_at = NOW() WHERE id = $1 RETURNING `+gameColumns, gameID, locked))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrGameNotFound
		}
		return nil, fmt.Errorf("failed to set lock: %w", err)
	}
	return game, nil
}

// SetStatus updates the game status
func (r *Repository) SetStatus(ctx context.Context, gameID int64, status models.GameStatus) error {
	res, err := r.q.db.ExecContext(ctx,
		`UPDATE game SET status = $2, updated_at = NOW() WHERE id = $1`, gameID, string(status))
	if err != nil {
		return fmt.Errorf("failed to set status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.ErrGameNotFound
	}
	return nil
}

// CountFinishedRounds counts the rounds of a game that have been finalized
func (r *Repository) CountFinishedRounds(ctx context.Context, gameID int64) (int, error) {
	var n int
	if err := r.q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM round WHERE game_id = $1 AND is_finished`, gameID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rounds: %w", err)
	}
	return n, nil
}

// ListGameCategories lists the categories attached to a game in play order
func (r *Repository) ListGameCategories(ctx context.Context, gameID int64) ([]models.Category, error) {
	return r.q.listGameCategories(ctx, gameID)
}

// DeleteGame removes a game; players, rounds and submissions cascade
func (r *Repository) DeleteGame(ctx context.Context, gameID int64) error {
	res, err := r.q.db.ExecContext(ctx, `DELETE FROM game WHERE id = $1`, gameID)
	if err != nil {
		return fmt.Errorf("failed to delete game: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.ErrGameNotFound
	}
	return nil
}

func (q *queries) listGameCategories(ctx context.Context, gameID int64) ([]models.Category, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT c.id, c.slug, c.name, c.is_default, c.enabled, gc.position
		FROM game_category gc
		JOIN category c ON c.id = gc.category_id
		WHERE gc.game_id = $1
		ORDER BY gc.position ASC`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list game categories: %w", err)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*models.Game, error) {
	var (
		g      models.Game
		status string
	)
	if err := row.Scan(&g.ID, &g.Code, &status, &g.Locked, &g.PointLimit, &g.RoundLimit,
		&g.DurationSec, &g.CurrentRound, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	g.Status = models.GameStatus(status)
	return &g, nil
}

func scanPlayer(row rowScanner) (*models.Player, error) {
	var p models.Player
	if err := row.Scan(&p.ID, &p.GameID, &p.Name, &p.IsHost, &p.Score, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
