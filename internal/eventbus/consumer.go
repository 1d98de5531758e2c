package eventbus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/errs"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/events"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/metrics"
)

// Message is one stream entry handed to a Handler.
type Message struct {
	ID      string
	Stream  string
	Key     string
	Kind    string
	Payload []byte
}

// Handler processes a message. Returning an error marked with
// events.ErrMalformed dead-letters the message; any other error leaves it
// pending so it is redelivered after the claim idle period.
type Handler func(ctx context.Context, msg Message) error

type streamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	XAutoClaim(ctx context.Context, a *redis.XAutoClaimArgs) *redis.XAutoClaimCmd
	XPendingExt(ctx context.Context, a *redis.XPendingExtArgs) *redis.XPendingExtCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

type ConsumerOptions struct {
	Stream        string
	Group         string
	Consumer      string
	Block         time.Duration
	BatchSize     int64
	ClaimIdle     time.Duration
	MaxDeliveries int64
	// HandlerTimeout bounds a single handler invocation.
	HandlerTimeout time.Duration
}

type Consumer struct {
	client  streamClient
	opts    ConsumerOptions
	handler Handler
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewConsumer(client streamClient, opts ConsumerOptions, h Handler, logger zerolog.Logger, m *metrics.Metrics) *Consumer {
	if opts.Block <= 0 {
		opts.Block = 5 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 16
	}
	if opts.ClaimIdle <= 0 {
		opts.ClaimIdle = time.Minute
	}
	if opts.MaxDeliveries <= 0 {
		opts.MaxDeliveries = 5
	}
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = 30 * time.Second
	}

	return &Consumer{
		client:  client,
		opts:    opts,
		handler: h,
		logger: logger.With().
			Str("component", "consumer").
			Str("stream", opts.Stream).
			Str("group", opts.Group).
			Str("consumer", opts.Consumer).
			Logger(),
		metrics: m,
	}
}

func DeadLetterStream(stream string) string {
	return stream + ".dlq"
}

// EnsureGroup creates the stream and consumer group when missing.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.opts.Stream, c.opts.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s on %s: %w", c.opts.Group, c.opts.Stream, err)
	}
	return nil
}

// Run reads until ctx is cancelled. The batch in flight when ctx is
// cancelled is finished before Run returns.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}

	c.logger.Info().Msg("consumer started")
	defer c.logger.Info().Msg("consumer stopped")

	lastClaim := time.Time{}
	for ctx.Err() == nil {
		if time.Since(lastClaim) >= c.opts.ClaimIdle/2 {
			c.reclaim(ctx)
			lastClaim = time.Now()
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.opts.Group,
			Consumer: c.opts.Consumer,
			Streams:  []string{c.opts.Stream, ">"},
			Count:    c.opts.BatchSize,
			Block:    c.opts.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error().Err(err).Msg("read group failed")
			sleep(ctx, time.Second)
			continue
		}

		for _, s := range streams {
			for _, xm := range s.Messages {
				c.process(ctx, xm)
			}
		}
	}
	return nil
}

// reclaim takes over entries another consumer (or this one) left pending
// longer than ClaimIdle and either retries or dead-letters them.
func (c *Consumer) reclaim(ctx context.Context) {
	start := "0-0"
	for {
		msgs, next, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   c.opts.Stream,
			Group:    c.opts.Group,
			Consumer: c.opts.Consumer,
			MinIdle:  c.opts.ClaimIdle,
			Start:    start,
			Count:    c.opts.BatchSize,
		}).Result()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, redis.Nil) {
				c.logger.Error().Err(err).Msg("auto claim failed")
			}
			return
		}

		for _, xm := range msgs {
			deliveries := c.deliveries(ctx, xm.ID)
			if deliveries > c.opts.MaxDeliveries {
				c.deadLetter(ctx, xm, fmt.Sprintf("exceeded %d deliveries", c.opts.MaxDeliveries))
				continue
			}
			c.process(ctx, xm)
		}

		if next == "" || next == "0-0" || len(msgs) == 0 {
			return
		}
		start = next
	}
}

func (c *Consumer) deliveries(ctx context.Context, id string) int64 {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.opts.Stream,
		Group:  c.opts.Group,
		Start:  id,
		End:    id,
		Count:  1,
	}).Result()
	if err != nil || len(pending) == 0 {
		return 0
	}
	return pending[0].RetryCount
}

func (c *Consumer) process(ctx context.Context, xm redis.XMessage) {
	msg, ok := toMessage(c.opts.Stream, xm)
	if !ok {
		c.deadLetter(ctx, xm, "missing payload")
		return
	}

	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.HandlerTimeout)
	defer cancel()

	err := c.handler(hctx, msg)
	switch {
	case err == nil:
		c.ack(ctx, xm.ID)
		c.metrics.ConsumerOutcome(c.opts.Stream, c.opts.Group, "ack")
	case errs.Is(err, events.ErrMalformed):
		c.logger.Warn().Err(err).Str("entry_id", xm.ID).Str("key", msg.Key).Msg("malformed message")
		c.deadLetter(ctx, xm, err.Error())
	default:
		c.metrics.ConsumerOutcome(c.opts.Stream, c.opts.Group, "retry")
		c.logger.Warn().Err(err).Str("entry_id", xm.ID).Str("key", msg.Key).Msg("handler failed, leaving pending")
	}
}

func (c *Consumer) deadLetter(ctx context.Context, xm redis.XMessage, reason string) {
	wctx := context.WithoutCancel(ctx)

	values := map[string]any{
		"original_id": xm.ID,
		"group":       c.opts.Group,
		"error":       reason,
	}
	for k, v := range xm.Values {
		values[k] = v
	}

	if err := c.client.XAdd(wctx, &redis.XAddArgs{
		Stream: DeadLetterStream(c.opts.Stream),
		Values: values,
	}).Err(); err != nil {
		// leave pending; the next reclaim will try again
		c.logger.Error().Err(err).Str("entry_id", xm.ID).Msg("dead-letter append failed")
		return
	}

	c.ack(wctx, xm.ID)
	c.metrics.ConsumerOutcome(c.opts.Stream, c.opts.Group, "dead_letter")
	c.logger.Warn().Str("entry_id", xm.ID).Str("reason", reason).Msg("message dead-lettered")
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.client.XAck(context.WithoutCancel(ctx), c.opts.Stream, c.opts.Group, id).Err(); err != nil {
		c.logger.Error().Err(err).Str("entry_id", id).Msg("ack failed")
	}
}

func toMessage(stream string, xm redis.XMessage) (Message, bool) {
	payload, ok := xm.Values[FieldPayload].(string)
	if !ok || payload == "" {
		return Message{}, false
	}
	key, _ := xm.Values[FieldKey].(string)
	kind, _ := xm.Values[FieldKind].(string)
	return Message{
		ID:      xm.ID,
		Stream:  stream,
		Key:     key,
		Kind:    kind,
		Payload: []byte(payload),
	}, true
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
