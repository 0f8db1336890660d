// Package events emits graph sync outcomes for downstream consumers
package events

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Publisher writes document events to the outcome topic
type Publisher interface {
	PublishDocumentEvent(ctx context.Context, event *kafka.DocumentEvent) error
}

// Emitter handles event emission for fern
type Emitter struct {
	producer Publisher
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitDocumentSynced emits a document synced event
func (e *Emitter) EmitDocumentSynced(ctx context.Context, doc *models.Document, node *models.GraphNode, isNew bool) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitDocumentSynced")
	defer span.End()

	event := newDocumentEvent(EventTypeDocumentSynced, doc)
	event.IsNew = isNew
	if node != nil {
		event.Labels = node.Labels
	}

	if err := e.producer.PublishDocumentEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit document.synced event")
		return err
	}

	return nil
}

// EmitDocumentRemoved emits a document removed event
func (e *Emitter) EmitDocumentRemoved(ctx context.Context, doc *models.Document) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitDocumentRemoved")
	defer span.End()

	if err := e.producer.PublishDocumentEvent(ctx, newDocumentEvent(EventTypeDocumentRemoved, doc)); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit document.removed event")
		return err
	}

	return nil
}

func newDocumentEvent(eventType EventType, doc *models.Document) *kafka.DocumentEvent {
	return &kafka.DocumentEvent{
		EventType:     string(eventType),
		SchemaVersion: SchemaVersion,
		EventID:       uuid.New().String(),
		DocumentID:    doc.ID,
		DocumentType:  doc.Type,
	}
}
