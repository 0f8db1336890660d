package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	fernctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// MessageHandler syncs one lifecycle event. A returned error leaves the
// message uncommitted.
type MessageHandler func(ctx context.Context, msg *IncomingMessage) error

// reader is the part of *kafka.Reader the consumer drives
type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
	// MaxWait bounds how long a fetch waits to fill a batch. Defaults to 500ms.
	MaxWait time.Duration
	// RetryBackoff is the pause after a failed fetch, doubling per consecutive
	// failure up to MaxRetryBackoff. Defaults to 250ms and 10s.
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
}

// Consumer feeds host lifecycle events to a MessageHandler, one at a time,
// committing offsets as it goes
type Consumer struct {
	topic   string
	group   string
	reader  reader
	logger  ectologger.Logger
	handler MessageHandler

	retryBackoff    time.Duration
	maxRetryBackoff time.Duration

	stop context.CancelFunc
	done sync.WaitGroup
}

func NewConsumer(cfg ConsumerConfig, logger ectologger.Logger, handler MessageHandler) *Consumer {
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 500 * time.Millisecond
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       1,
		MaxBytes:       10 << 20,
		MaxWait:        cfg.MaxWait,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})
	return newConsumer(cfg, r, logger, handler)
}

func newConsumer(cfg ConsumerConfig, r reader, logger ectologger.Logger, handler MessageHandler) *Consumer {
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 250 * time.Millisecond
	}
	if cfg.MaxRetryBackoff < cfg.RetryBackoff {
		cfg.MaxRetryBackoff = max(10*time.Second, cfg.RetryBackoff)
	}

	return &Consumer{
		topic:           cfg.Topic,
		group:           cfg.ConsumerGroup,
		reader:          r,
		logger:          logger,
		handler:         handler,
		retryBackoff:    cfg.RetryBackoff,
		maxRetryBackoff: cfg.MaxRetryBackoff,
	}
}

// Start launches the fetch loop and returns immediately
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.stop = context.WithCancel(context.WithoutCancel(ctx))

	c.done.Add(1)
	go func() {
		defer c.done.Done()
		c.run(ctx)
	}()

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic": c.topic,
		"group": c.group,
	}).Info("Lifecycle consumer started")
	return nil
}

// Stop cancels the loop, waits for the in-flight message and closes the reader
func (c *Consumer) Stop() error {
	if c.stop != nil {
		c.stop()
	}
	c.done.Wait()
	return c.reader.Close()
}

func (c *Consumer) run(ctx context.Context) {
	wait := c.retryBackoff
	for ctx.Err() == nil {
		msg, err := c.reader.FetchMessage(ctx)
		switch {
		case err == nil:
			wait = c.retryBackoff
			c.handle(ctx, msg)
		case errors.Is(err, context.Canceled), errors.Is(err, io.EOF):
			return
		default:
			c.logger.WithContext(ctx).WithError(err).WithField("retry_in", wait.String()).Error("Failed to fetch lifecycle message")
			select {
			case <-ctx.Done():
			case <-time.After(wait):
			}
			wait = min(wait*2, c.maxRetryBackoff)
		}
	}
	c.logger.WithContext(ctx).Info("Lifecycle consumer stopped")
}

// handle syncs one message. Unparseable payloads are committed and counted
// as invalid so they cannot block the partition.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	incoming := ToIncomingMessage(msg)

	ctx = tracing.ContextWithRemoteParent(ctx, incoming.TraceParent, incoming.TraceState)
	ctx = fernctx.SetSource(ctx, fernctx.SourceKafka)
	ctx = fernctx.SetRequestID(ctx, incoming.Headers[HeaderRequestID])
	ctx, span := tracing.StartSpan(ctx, "kafka.Consumer.handle")
	defer span.End()

	fields := map[string]any{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	}

	status := metrics.StatusSuccess
	if err := incoming.ParseLifecycleEvent(); err != nil {
		c.logger.WithContext(ctx).WithError(err).WithFields(fields).Error("Dropping unparseable lifecycle message")
		status = metrics.StatusInvalid
	} else {
		ctx = fernctx.SetDocumentID(ctx, incoming.GetDocumentID())
		if err := c.handler(ctx, incoming); err != nil {
			c.logger.WithContext(ctx).WithError(err).WithFields(fields).Error("Lifecycle message left uncommitted")
			metrics.LifecycleMessagesTotal.WithLabelValues(metrics.StatusFailure).Inc()
			return
		}
	}

	metrics.LifecycleMessagesTotal.WithLabelValues(status).Inc()
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.WithContext(ctx).WithError(err).WithFields(fields).Error("Failed to commit lifecycle message")
	}
}

// ToIncomingMessage copies a fetched message and flattens its headers
func ToIncomingMessage(msg kafka.Message) *IncomingMessage {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}

	return &IncomingMessage{
		Key:         string(msg.Key),
		Value:       msg.Value,
		Headers:     headers,
		Partition:   msg.Partition,
		Offset:      msg.Offset,
		Timestamp:   msg.Time,
		Topic:       msg.Topic,
		TraceParent: headers[HeaderTraceParent],
		TraceState:  headers[HeaderTraceState],
	}
}
