// Package orchestrator drives live games: it owns the per-round timers,
// decides when a round closes, finalizes it and chains into the next round or
// the end of the game, publishing every transition to the game's room.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/basta/go/internal/events"
	"github.com/mcdev12/basta/go/internal/games"
	"github.com/mcdev12/basta/go/internal/models"
	"github.com/mcdev12/basta/go/internal/rounds"
	"github.com/rs/zerolog/log"
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) clockwork.Timer
	NewTicker(d time.Duration) clockwork.Ticker
}

// GamesApp defines what the orchestrator needs from the game session manager
type GamesApp interface {
	GetGame(ctx context.Context, code string) (*models.Game, error)
	GetLobby(ctx context.Context, code string) (*games.Lobby, error)
	JoinGame(ctx context.Context, code, playerName string) (*games.JoinResult, error)
	Leave(ctx context.Context, code string, playerID int64) (*games.LeaveResult, error)
	UpdateSettings(ctx context.Context, code string, req games.UpdateSettingsRequest) (*games.Lobby, error)
	SetLocked(ctx context.Context, code string, locked bool) (*games.Lobby, error)
	MarkPlaying(ctx context.Context, gameID int64) error
	CheckGameEnd(ctx context.Context, gameID int64) (*games.GameEnd, error)
	FinishGame(ctx context.Context, gameID int64) error
	Scores(ctx context.Context, gameID int64) ([]models.Score, error)
	RoundsPlayed(ctx context.Context, gameID int64) (int, error)
	Categories(ctx context.Context, gameID int64) ([]models.Category, error)
	DeleteGame(ctx context.Context, code string) (*models.Game, error)
	Registry() *games.Registry
}

// RoundsApp defines what the orchestrator needs from the round lifecycle
type RoundsApp interface {
	StartRound(ctx context.Context, req rounds.StartRoundRequest) (*rounds.RoundDescriptor, error)
	SubmitAnswers(ctx context.Context, req rounds.SubmitRequest) (*rounds.SubmitResult, error)
	Progress(ctx context.Context, roundID int64) (*rounds.Progress, error)
	FinalizeRound(ctx context.Context, roundID int64) (*rounds.FinalizeResult, error)
	GetRound(ctx context.Context, roundID int64) (*models.Round, error)
	ActiveRound(ctx context.Context, gameID int64) (*models.Round, error)
	Describe(ctx context.Context, round *models.Round) (*rounds.RoundDescriptor, error)
	ExpiredRounds(ctx context.Context, limit int) ([]rounds.ExpiredRound, error)
}

// Config tunes the orchestrator runtime
type Config struct {
	Workers           int
	CountdownInterval time.Duration
	FinalizeRetry     time.Duration
	RecoveryInterval  time.Duration
	RecoveryBatch     int
	NextRoundDelay    time.Duration
}

// DefaultConfig returns the default runtime settings
func DefaultConfig() Config {
	return Config{
		Workers:           4,
		CountdownInterval: time.Second,
		FinalizeRetry:     2 * time.Second,
		RecoveryInterval:  15 * time.Second,
		RecoveryBatch:     50,
	}
}

type closeRequest struct {
	roundID int64
	code    string
	reason  string
}

// Orchestrator is the round lifecycle controller of this process
type Orchestrator struct {
	games      GamesApp
	rounds     RoundsApp
	pub        events.Publisher
	clock      Clock
	cfg        Config
	instanceID string

	// ctx outlives requests; timer goroutines and deferred starts run on it.
	ctx    context.Context
	cancel context.CancelFunc

	workCh chan closeRequest

	// Track in-flight closes to prevent duplicate processing
	inFlight   map[int64]bool
	inFlightMu sync.Mutex

	timers   map[int64]*roundTimer
	timersMu sync.Mutex
}

// New creates a new Orchestrator
func New(gamesApp GamesApp, roundsApp RoundsApp, pub events.Publisher, clock Clock, cfg Config) *Orchestrator {
	if pub == nil {
		pub = events.Discard
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RecoveryBatch <= 0 {
		cfg.RecoveryBatch = 50
	}
	if cfg.FinalizeRetry <= 0 {
		cfg.FinalizeRetry = DefaultConfig().FinalizeRetry
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		games:      gamesApp,
		rounds:     roundsApp,
		pub:        pub,
		clock:      clock,
		cfg:        cfg,
		instanceID: uuid.New().String()[:8],
		ctx:        ctx,
		cancel:     cancel,
		workCh:     make(chan closeRequest, cfg.Workers*8),
		inFlight:   make(map[int64]bool),
		timers:     make(map[int64]*roundTimer),
	}
}

// publish broadcasts to a room. Delivery failures are logged, never returned:
// the state change already happened.
func (o *Orchestrator) publish(ctx context.Context, code string, t events.Type, payload any) {
	e, err := events.New(code, t, payload)
	if err != nil {
		log.Error().Err(err).Str("game_code", code).Str("event_type", string(t)).Msg("failed to build event")
		return
	}
	if err := o.pub.Publish(ctx, e); err != nil {
		log.Error().Err(err).Str("game_code", code).Str("event_type", string(t)).Msg("failed to publish event")
	}
}

// tryBegin marks a round as being closed by this process.
func (o *Orchestrator) tryBegin(roundID int64) bool {
	o.inFlightMu.Lock()
	defer o.inFlightMu.Unlock()
	if o.inFlight[roundID] {
		return false
	}
	o.inFlight[roundID] = true
	return true
}

func (o *Orchestrator) end(roundID int64) {
	o.inFlightMu.Lock()
	delete(o.inFlight, roundID)
	o.inFlightMu.Unlock()
}

// enqueue hands a due round to the worker pool unless it is already being closed.
func (o *Orchestrator) enqueue(req closeRequest) {
	if !o.tryBegin(req.roundID) {
		log.Debug().Int64("round_id", req.roundID).Msg("skipping round already in flight")
		return
	}
	select {
	case o.workCh <- req:
		log.Debug().Int64("round_id", req.roundID).Str("reason", req.reason).Msg("queued round close")
	default:
		// the recovery sweep will pick it up
		o.end(req.roundID)
		log.Warn().Int64("round_id", req.roundID).Msg("work channel full, round close deferred")
	}
}
