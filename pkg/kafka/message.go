package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

const (
	HeaderEventType   = "event_type"
	HeaderDocumentID  = "document_id"
	HeaderDocType     = "document_type"
	HeaderTraceParent = "traceparent"
	HeaderTraceState  = "tracestate"
	HeaderRequestID   = "request_id"
)

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Trace context (extracted from Kafka headers)
	TraceParent string
	TraceState  string

	// Parsed content
	Lifecycle *models.LifecycleEvent
}

// ParseLifecycleEvent parses the message value as a host lifecycle event.
// The event_type header fills in an event name missing from the body.
func (m *IncomingMessage) ParseLifecycleEvent() error {
	var evt models.LifecycleEvent
	if err := json.Unmarshal(m.Value, &evt); err != nil {
		return fmt.Errorf("failed to decode lifecycle event: %w", err)
	}
	if evt.Event == "" {
		evt.Event = models.LifecycleEventType(m.Headers[HeaderEventType])
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = m.Timestamp
	}
	m.Lifecycle = &evt
	return nil
}

// GetDocumentID returns the document id from the parsed event, falling back
// to the header and then the message key
func (m *IncomingMessage) GetDocumentID() string {
	if m.Lifecycle != nil && m.Lifecycle.Document.ID != "" {
		return m.Lifecycle.Document.ID
	}
	if id := m.Headers[HeaderDocumentID]; id != "" {
		return id
	}
	return m.Key
}

// GetEventType returns the lifecycle event name
func (m *IncomingMessage) GetEventType() models.LifecycleEventType {
	if m.Lifecycle != nil && m.Lifecycle.Event != "" {
		return m.Lifecycle.Event
	}
	return models.LifecycleEventType(m.Headers[HeaderEventType])
}
