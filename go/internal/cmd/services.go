package main

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/basta/go/internal/config"
	"github.com/mcdev12/basta/go/internal/dictionary"
	"github.com/mcdev12/basta/go/internal/events"
	"github.com/mcdev12/basta/go/internal/events/natsbus"
	"github.com/mcdev12/basta/go/internal/games"
	"github.com/mcdev12/basta/go/internal/gateway"
	"github.com/mcdev12/basta/go/internal/orchestrator"
	"github.com/mcdev12/basta/go/internal/rounds"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Games        *games.App
	Rounds       *rounds.App
	Orchestrator *orchestrator.Orchestrator
	Connections  *gateway.ConnectionManager
	Bus          *natsbus.Bus

	wg sync.WaitGroup
}

func setupServices(ctx context.Context, database *sql.DB, cfg *config.Config) (*Services, error) {
	// Wire up dependency injection chain
	// Database layer → Repository layer → App layer → Orchestrator → Gateway
	clock := clockwork.NewRealClock()

	policy, err := rounds.ParseQuorumPolicy(cfg.Game.QuorumPolicy)
	if err != nil {
		return nil, err
	}

	// Dictionary
	dict := dictionary.NewValidator(dictionary.NewRepository(database))

	// Games
	gamesApp := games.NewApp(games.NewRepository(database), games.NewRegistry(), games.Defaults{
		DurationSec: cfg.Game.DurationSec,
		PointLimit:  cfg.Game.PointLimit,
		RoundLimit:  cfg.Game.RoundLimit,
	})

	// Rounds
	roundsApp := rounds.NewApp(rounds.NewRepository(database), dict, clock, policy)

	// Realtime
	connections := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())

	s := &Services{
		Games:       gamesApp,
		Rounds:      roundsApp,
		Connections: connections,
	}

	// With NATS every instance publishes to the stream and relays it back to
	// its own sockets; without it events go straight to the local rooms.
	var transport events.Publisher = connections
	if cfg.NATSURL != "" {
		busCfg := natsbus.DefaultConfig()
		busCfg.URL = cfg.NATSURL
		bus, err := natsbus.Connect(ctx, busCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect event bus: %w", err)
		}
		s.Bus = bus
		transport = bus
	}
	pub := events.Fanout{transport, events.PublisherFunc(traceEvent)}

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.Workers = cfg.Workers
	orchCfg.CountdownInterval = cfg.Game.CountdownInterval
	orchCfg.FinalizeRetry = cfg.Game.FinalizeRetry
	orchCfg.RecoveryInterval = cfg.Game.RecoveryInterval
	orchCfg.NextRoundDelay = cfg.Game.NextRoundDelay
	s.Orchestrator = orchestrator.New(gamesApp, roundsApp, pub, clock, orchCfg)

	return s, nil
}

func traceEvent(_ context.Context, e events.Event) error {
	log.Debug().
		Str("game_code", e.GameCode).
		Str("event_type", string(e.Type)).
		Str("event_id", e.ID).
		Msg("event published")
	return nil
}

// Start runs the background loops until ctx is done.
func (s *Services) Start(ctx context.Context) {
	s.run(func() { s.Connections.Start(ctx) })
	s.run(func() {
		if err := s.Orchestrator.Run(ctx); err != nil {
			log.Error().Err(err).Msg("orchestrator failed")
		}
	})
	if s.Bus != nil {
		s.run(func() {
			if err := s.Bus.Relay(ctx, s.Connections); err != nil {
				log.Error().Err(err).Msg("event relay failed")
			}
		})
	}
}

func (s *Services) run(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// Wait blocks until every background loop returned.
func (s *Services) Wait() {
	s.wg.Wait()
}

func (s *Services) Close() {
	if s.Bus != nil {
		if err := s.Bus.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close event bus")
		}
	}
}
