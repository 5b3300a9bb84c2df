// Package transport connects the scoring operator to NATS JetStream: a pull
// consumer that acks or naks each event, and a publisher for scored records.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"truck-event-scorer/internal/scoring"
)

const (
	defaultBatchSize  = 50
	defaultPullExpiry = 30 * time.Second
	defaultAckWait    = 30 * time.Second
	fetchRetryDelay   = time.Second
)

// Handler processes one payload and signals its outcome on ack
type Handler interface {
	Handle(ctx context.Context, payload []byte, ack scoring.Acknowledger) error
}

// message is the subset of jetstream.Msg the consumer uses
type message interface {
	Data() []byte
	Subject() string
	Ack() error
	Nak() error
}

type fetcher interface {
	Fetch(batch int, opts ...jetstream.FetchOpt) (jetstream.MessageBatch, error)
}

// ConsumerConfig describes the durable pull consumer
type ConsumerConfig struct {
	Stream     string
	Consumer   string
	Subject    string
	MaxDeliver int
	AckWait    time.Duration
	BatchSize  int
	Workers    int
}

// Consumer wraps a JetStream pull consumer and a pool of workers
type Consumer struct {
	streamName   string
	consumerName string
	consumer     fetcher
	batchSize    int
	workers      int
	pullExpiry   time.Duration
	logger       zerolog.Logger
}

// EnsureStream returns the named stream, creating it for subjects if missing
func EnsureStream(ctx context.Context, js jetstream.JetStream, name string, subjects ...string) (jetstream.Stream, error) {
	stream, err := js.Stream(ctx, name)
	if errors.Is(err, jetstream.ErrStreamNotFound) {
		stream, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{Name: name, Subjects: subjects})
		if err != nil {
			return nil, fmt.Errorf("failed to create stream %s: %w", name, err)
		}
		return stream, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stream %s: %w", name, err)
	}
	return stream, nil
}

// NewConsumer creates or retrieves a durable pull consumer with explicit acks
func NewConsumer(ctx context.Context, js jetstream.JetStream, cfg ConsumerConfig, logger zerolog.Logger) (*Consumer, error) {
	logger = logger.With().Str("component", "consumer").Logger()
	logger.Info().Str("stream", cfg.Stream).Str("consumer", cfg.Consumer).Msg("Creating/getting pull consumer")

	consumer, err := js.Consumer(ctx, cfg.Stream, cfg.Consumer)
	if err != nil {
		ackWait := cfg.AckWait
		if ackWait <= 0 {
			ackWait = defaultAckWait
		}

		cc := jetstream.ConsumerConfig{
			Durable:       cfg.Consumer,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       ackWait,
			MaxDeliver:    cfg.MaxDeliver,
			MaxAckPending: 1000,
			FilterSubject: cfg.Subject,
		}

		consumer, err = js.CreateConsumer(ctx, cfg.Stream, cc)
		if err != nil {
			return nil, fmt.Errorf("failed to create consumer: %w", err)
		}
	}

	return newConsumer(cfg, consumer, logger), nil
}

func newConsumer(cfg ConsumerConfig, f fetcher, logger zerolog.Logger) *Consumer {
	c := &Consumer{
		streamName:   cfg.Stream,
		consumerName: cfg.Consumer,
		consumer:     f,
		batchSize:    cfg.BatchSize,
		workers:      cfg.Workers,
		pullExpiry:   defaultPullExpiry,
		logger:       logger,
	}
	if c.batchSize <= 0 {
		c.batchSize = defaultBatchSize
	}
	if c.workers <= 0 {
		c.workers = 1
	}
	return c
}

// Run fetches and processes messages until ctx is canceled. It returns an
// error only when the connection is gone for good.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	c.logger.Info().
		Str("stream", c.streamName).
		Str("consumer", c.consumerName).
		Int("workers", c.workers).
		Msg("Starting pull consumer")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("Stopping message processing due to context cancellation")
			return nil
		default:
		}

		msgs, err := c.consumer.Fetch(c.batchSize, jetstream.FetchMaxWait(c.pullExpiry))
		if err != nil {
			if isFatal(err) {
				return err
			}
			c.logger.Warn().Err(err).Msg("Failed to fetch messages")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(fetchRetryDelay):
			}
			continue
		}

		batch := make([]message, 0, c.batchSize)
		for msg := range msgs.Messages() {
			batch = append(batch, msg)
		}

		c.dispatch(ctx, batch, h)

		if fetchErr := msgs.Error(); fetchErr != nil && !errors.Is(fetchErr, nats.ErrTimeout) {
			c.logger.Debug().Err(fetchErr).Msg("Fetch ended with error")
		}
	}
}

// dispatch processes a batch on up to c.workers goroutines
func (c *Consumer) dispatch(ctx context.Context, batch []message, h Handler) {
	if len(batch) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(c.workers)

	for _, msg := range batch {
		msg := msg
		g.Go(func() error {
			c.handleMessage(ctx, msg, h)
			return nil
		})
	}

	_ = g.Wait()
}

func (c *Consumer) handleMessage(ctx context.Context, msg message, h Handler) {
	if err := h.Handle(ctx, msg.Data(), msg); err != nil {
		c.logger.Debug().Err(err).Str("subject", msg.Subject()).Msg("Message failed")
		return
	}
	c.logger.Debug().Str("subject", msg.Subject()).Msg("Message processed successfully")
}

func isFatal(err error) bool {
	return errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, jetstream.ErrConsumerDeleted)
}
