// Package natsbus carries room events over NATS JetStream so several server
// instances can share the same games.
package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mcdev12/basta/go/internal/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Config holds the JetStream connection and stream settings
type Config struct {
	URL             string
	StreamName      string
	SubjectPrefix   string
	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration
	DuplicateWindow time.Duration
}

// DefaultConfig returns the default JetStream configuration
func DefaultConfig() Config {
	return Config{
		URL:             nats.DefaultURL,
		StreamName:      "BASTA_EVENTS",
		SubjectPrefix:   "basta.events",
		MaxReconnects:   -1,
		ReconnectWait:   2 * time.Second,
		MaxAge:          time.Hour,
		DuplicateWindow: 2 * time.Minute,
	}
}

// Subject is where an event for a game is published.
func (c Config) Subject(code string, t events.Type) string {
	return fmt.Sprintf("%s.%s.%s", c.SubjectPrefix, code, t)
}

func (c Config) filter() string {
	return c.SubjectPrefix + ".>"
}

// Bus is a JetStream connection with the event stream in place
type Bus struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config Config
}

// Connect dials NATS and makes sure the event stream exists.
func Connect(ctx context.Context, cfg Config) (*Bus, error) {
	opts := []nats.Option{
		nats.Name("basta"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	b := &Bus{nc: nc, js: js, config: cfg}
	if err := b.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return b, nil
}

func (b *Bus) streamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        b.config.StreamName,
		Description: "Basta room events",
		Subjects:    []string{b.config.filter()},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      b.config.MaxAge,
		Storage:     jetstream.MemoryStorage,
		Replicas:    1,
		Duplicates:  b.config.DuplicateWindow,
	}
}

func (b *Bus) ensureStream(ctx context.Context) error {
	sc := b.streamConfig()

	stream, err := b.js.Stream(ctx, b.config.StreamName)
	if err != nil {
		if _, err = b.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().Str("stream", b.config.StreamName).Msg("created JetStream stream")
		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	if !isStreamConfigEqual(info.Config, sc) {
		if _, err = b.js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		log.Info().Str("stream", b.config.StreamName).Msg("updated JetStream stream")
	}
	return nil
}

// Publish implements events.Publisher.
func (b *Bus) Publish(ctx context.Context, e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := b.config.Subject(e.GameCode, e.Type)

	ack, err := b.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{string(e.Type)},
			"Game-Code":  []string{e.GameCode},
			"Event-ID":   []string{e.ID},
		},
	},
		jetstream.WithMsgID(e.ID),
		jetstream.WithExpectStream(b.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", subject).
		Str("event_id", e.ID).
		Uint64("sequence", ack.Sequence).
		Msg("published to JetStream")
	return nil
}

// Relay consumes every new event of the stream and hands it to sink until ctx
// is done. Each instance gets its own ordered consumer, so every instance sees
// every event.
func (b *Bus) Relay(ctx context.Context, sink events.Publisher) error {
	consumer, err := b.js.OrderedConsumer(ctx, b.config.StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{b.config.filter()},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create ordered consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		e, err := decode(msg.Data())
		if err != nil {
			log.Error().Err(err).Str("subject", msg.Subject()).Msg("dropping undecodable event")
			return
		}
		if err := sink.Publish(ctx, e); err != nil {
			log.Error().Err(err).Str("event_id", e.ID).Str("game_code", e.GameCode).Msg("failed to relay event")
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer cc.Stop()

	log.Info().Str("stream", b.config.StreamName).Msg("relaying JetStream events")
	<-ctx.Done()
	log.Info().Msg("event relay shutting down")
	return nil
}

// Close drains the connection
func (b *Bus) Close() error {
	if b.nc == nil {
		return nil
	}
	return b.nc.Drain()
}

func decode(data []byte) (events.Event, error) {
	var e events.Event
	if err := json.Unmarshal(data, &e); err != nil {
		return events.Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	if strings.TrimSpace(e.GameCode) == "" || e.Type == "" {
		return events.Event{}, fmt.Errorf("event %q has no room or type", e.ID)
	}
	return e, nil
}

func isStreamConfigEqual(a, b jetstream.StreamConfig) bool {
	return a.Name == b.Name &&
		a.MaxAge == b.MaxAge &&
		a.Storage == b.Storage &&
		a.Replicas == b.Replicas &&
		a.Duplicates == b.Duplicates
}
