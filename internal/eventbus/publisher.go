// Package eventbus carries events over Redis Streams: an asynchronous
// fire-and-forget publisher and consumer-group readers with dead-lettering.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/metrics"
)

// Stream entry field names.
const (
	FieldKey     = "key"
	FieldKind    = "kind"
	FieldPayload = "payload"
)

// Event is anything that can be keyed and serialized to JSON.
type Event interface {
	Key() string
	Kind() string
}

//go:generate mockgen -source=publisher.go -destination=../mocks/publisher.go -package=mocks Publisher

// Publisher never blocks the caller and never reports failures to it.
type Publisher interface {
	Publish(ctx context.Context, stream string, ev Event)
}

type appender interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

type envelope struct {
	stream  string
	key     string
	kind    string
	payload []byte
}

type StreamPublisher struct {
	client      appender
	maxLen      int64
	sendTimeout time.Duration
	queue       chan envelope
	stop        chan struct{}
	done        chan struct{}
	// mu orders enqueues before Close so nothing lands after the drain
	mu          sync.RWMutex
	closed      bool
	closeOnce   sync.Once
	logger      zerolog.Logger
	metrics     *metrics.Metrics
}

type PublisherOptions struct {
	MaxLen      int64
	Buffer      int
	SendTimeout time.Duration
}

func NewStreamPublisher(client appender, opts PublisherOptions, logger zerolog.Logger, m *metrics.Metrics) *StreamPublisher {
	if opts.Buffer <= 0 {
		opts.Buffer = 1024
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 2 * time.Second
	}

	p := &StreamPublisher{
		client:      client,
		maxLen:      opts.MaxLen,
		sendTimeout: opts.SendTimeout,
		queue:       make(chan envelope, opts.Buffer),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		logger:      logger.With().Str("component", "publisher").Logger(),
		metrics:     m,
	}
	go p.run()
	return p
}

func (p *StreamPublisher) Publish(_ context.Context, stream string, ev Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.drop(stream, ev.Key(), "closed", nil)
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		p.drop(stream, ev.Key(), "encode", err)
		return
	}

	env := envelope{stream: stream, key: ev.Key(), kind: ev.Kind(), payload: payload}
	select {
	case p.queue <- env:
	default:
		p.drop(stream, env.key, "buffer_full", nil)
	}
}

func (p *StreamPublisher) run() {
	defer close(p.done)
	for {
		select {
		case env := <-p.queue:
			p.send(env)
		case <-p.stop:
			p.drain()
			return
		}
	}
}

func (p *StreamPublisher) drain() {
	for {
		select {
		case env := <-p.queue:
			p.send(env)
		default:
			return
		}
	}
}

func (p *StreamPublisher) send(env envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), p.sendTimeout)
	defer cancel()

	args := &redis.XAddArgs{
		Stream: env.stream,
		Values: map[string]any{
			FieldKey:     env.key,
			FieldKind:    env.kind,
			FieldPayload: string(env.payload),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		p.drop(env.stream, env.key, "transport", err)
		return
	}

	p.metrics.EventPublished(env.stream, env.kind)
	p.logger.Debug().
		Str("stream", env.stream).
		Str("key", env.key).
		Str("kind", env.kind).
		Str("entry_id", id).
		Msg("event published")
}

func (p *StreamPublisher) drop(stream, key, reason string, err error) {
	p.metrics.EventDropped(stream, reason)
	p.logger.Error().
		Err(err).
		Str("stream", stream).
		Str("key", key).
		Str("reason", reason).
		Msg("event dropped")
}

// Close stops accepting events and flushes what is buffered. It returns
// ctx.Err() if the buffer could not be flushed before ctx expired.
func (p *StreamPublisher) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.stop)
	})

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		remaining := len(p.queue)
		p.logger.Warn().Int("remaining", remaining).Msg("publisher drain deadline exceeded")
		return errors.Join(ctx.Err(), errDrainIncomplete)
	}
}

var errDrainIncomplete = errors.New("publisher buffer not fully drained")
