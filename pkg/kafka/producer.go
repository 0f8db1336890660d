package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	fernctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const HeaderSchemaVersion = "schema_version"

type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	// Compression is gzip, lz4, zstd, none or snappy (the default)
	Compression string
}

// Producer publishes sync outcome events keyed by document id, so every
// event for one document lands on the same partition in order
type Producer struct {
	topic  string
	writer *kafka.Writer
	logger ectologger.Logger
}

func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	return &Producer{
		topic:  cfg.Topic,
		logger: logger,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.Hash{},
			BatchSize:              cfg.BatchSize,
			BatchTimeout:           cfg.BatchTimeout,
			RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
			Compression:            compressionCodec(cfg.Compression),
			AllowAutoTopicCreation: true,
		},
	}
}

var codecs = map[string]kafka.Compression{
	"gzip": kafka.Gzip,
	"lz4":  kafka.Lz4,
	"zstd": kafka.Zstd,
	"none": 0,
}

func compressionCodec(name string) kafka.Compression {
	if codec, ok := codecs[name]; ok {
		return codec
	}
	return kafka.Snappy
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// DocumentEvent reports the graph outcome of one document sync
type DocumentEvent struct {
	EventType     string    `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	EventID       string    `json:"event_id"`
	DocumentID    string    `json:"document_id"`
	DocumentType  string    `json:"document_type"`
	Labels        []string  `json:"labels,omitempty"`
	IsNew         bool      `json:"is_new,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// BuildDocumentMessage encodes event with routing, trace and request headers.
// Empty header values are left out.
func (p *Producer) BuildDocumentMessage(ctx context.Context, event *DocumentEvent) (kafka.Message, error) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode %s event: %w", event.EventType, err)
	}

	traceParent, traceState := tracing.Propagation(ctx)
	var headers []kafka.Header
	for _, h := range [][2]string{
		{HeaderEventType, event.EventType},
		{HeaderDocumentID, event.DocumentID},
		{HeaderDocType, event.DocumentType},
		{HeaderSchemaVersion, event.SchemaVersion},
		{HeaderTraceParent, traceParent},
		{HeaderTraceState, traceState},
		{HeaderRequestID, fernctx.GetRequestID(ctx)},
	} {
		if h[1] != "" {
			headers = append(headers, kafka.Header{Key: h[0], Value: []byte(h[1])})
		}
	}

	return kafka.Message{
		Topic:   p.topic,
		Key:     []byte(event.DocumentID),
		Value:   body,
		Headers: headers,
	}, nil
}

func (p *Producer) PublishDocumentEvent(ctx context.Context, event *DocumentEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishDocumentEvent")
	defer span.End()

	msg, err := p.BuildDocumentMessage(ctx, event)
	if err != nil {
		return tracing.RecordError(span, err)
	}

	fields := map[string]any{
		"event_type":    event.EventType,
		"document_id":   event.DocumentID,
		"document_type": event.DocumentType,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(fields).Error("Failed to publish document event")
		return tracing.RecordError(span, fmt.Errorf("failed to publish document event: %w", err))
	}

	p.logger.WithContext(ctx).WithFields(fields).Debug("Published document event")
	return nil
}
