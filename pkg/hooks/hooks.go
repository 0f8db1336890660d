// Package hooks dispatches host document lifecycle notifications to the
// indexer. After-hooks never fail the host's write: sync errors are logged
// and counted, and the graph is repaired by a later reindex.
package hooks

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/schema"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Synchronizer is the part of the indexer the hooks drive
type Synchronizer interface {
	Create(ctx context.Context, doc *models.Document, schemaMap schema.PointerMap) (*models.GraphNode, error)
	Update(ctx context.Context, doc *models.Document, schemaMap schema.PointerMap, includeExternal bool) (*models.GraphNode, error)
	Delete(ctx context.Context, doc *models.Document) error
	EnsureNoInboundReferences(ctx context.Context, doc *models.Document) error
	SchemaMapFor(ctx context.Context, doc *models.Document) (schema.PointerMap, error)
}

// Notifier announces completed syncs. Optional.
type Notifier interface {
	EmitDocumentSynced(ctx context.Context, doc *models.Document, node *models.GraphNode, isNew bool) error
	EmitDocumentRemoved(ctx context.Context, doc *models.Document) error
}

// Hooks handles lifecycle notifications
type Hooks struct {
	sync     Synchronizer
	notifier Notifier
	logger   ectologger.Logger
}

// New creates lifecycle hooks. notifier may be nil.
func New(sync Synchronizer, notifier Notifier, logger ectologger.Logger) *Hooks {
	return &Hooks{
		sync:     sync,
		notifier: notifier,
		logger:   logger,
	}
}

// AfterCreateOrUpdate mirrors a written document. New documents are created,
// existing ones fully replaced. A nil schemaMap is computed from the type
// schema.
func (h *Hooks) AfterCreateOrUpdate(ctx context.Context, doc *models.Document, isNew bool, schemaMap schema.PointerMap) {
	ctx, span := tracing.StartSpan(ctx, "hooks.Hooks.AfterCreateOrUpdate")
	defer span.End()

	log := h.logger.WithContext(ctx).WithFields(map[string]any{
		"document_id":   doc.ID,
		"document_type": doc.Type,
		"is_new":        isNew,
	})

	pointerMap, err := h.pointerMap(ctx, doc, schemaMap)
	if err != nil {
		log.WithError(err).Error("Failed to compute schema map, graph not updated")
		metrics.HookFailuresTotal.WithLabelValues(string(models.LifecycleAfterCreateOrUpdate)).Inc()
		return
	}

	var node *models.GraphNode
	if isNew {
		node, err = h.sync.Create(ctx, doc, pointerMap)
	} else {
		node, err = h.sync.Update(ctx, doc, pointerMap, true)
	}
	if err != nil {
		log.WithError(err).Error("Failed to sync document to graph, reindex required")
		metrics.HookFailuresTotal.WithLabelValues(string(models.LifecycleAfterCreateOrUpdate)).Inc()
		return
	}
	if node == nil || h.notifier == nil {
		return
	}

	if err := h.notifier.EmitDocumentSynced(ctx, doc, node, isNew); err != nil {
		log.WithError(err).Warn("Failed to announce document sync")
	}
}

// BeforeDelete rejects deleting a document other documents still reference
func (h *Hooks) BeforeDelete(ctx context.Context, doc *models.Document) error {
	ctx, span := tracing.StartSpan(ctx, "hooks.Hooks.BeforeDelete")
	defer span.End()

	return h.sync.EnsureNoInboundReferences(ctx, doc)
}

// AfterDelete removes a deleted document from the graph
func (h *Hooks) AfterDelete(ctx context.Context, doc *models.Document) {
	ctx, span := tracing.StartSpan(ctx, "hooks.Hooks.AfterDelete")
	defer span.End()

	log := h.logger.WithContext(ctx).WithFields(map[string]any{
		"document_id":   doc.ID,
		"document_type": doc.Type,
	})

	if err := h.sync.Delete(ctx, doc); err != nil {
		log.WithError(err).Error("Failed to delete document from graph, reindex required")
		metrics.HookFailuresTotal.WithLabelValues(string(models.LifecycleAfterDelete)).Inc()
		return
	}
	if h.notifier == nil {
		return
	}

	if err := h.notifier.EmitDocumentRemoved(ctx, doc); err != nil {
		log.WithError(err).Warn("Failed to announce document removal")
	}
}

// HandleMessage dispatches a consumed lifecycle event. Malformed events are
// dropped; only cancellation is returned so the message is redelivered.
func (h *Hooks) HandleMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "hooks.Hooks.HandleMessage")
	defer span.End()

	evt := msg.Lifecycle
	if evt == nil {
		if err := msg.ParseLifecycleEvent(); err != nil {
			h.logger.WithContext(ctx).WithError(err).Error("Dropping unreadable lifecycle event")
			return nil
		}
		evt = msg.Lifecycle
	}

	if err := validate.Struct(evt); err != nil {
		h.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"document_id": msg.GetDocumentID(),
			"event":       evt.Event,
		}).Error("Dropping invalid lifecycle event")
		return nil
	}

	switch evt.Event {
	case models.LifecycleAfterCreateOrUpdate:
		h.AfterCreateOrUpdate(ctx, &evt.Document, evt.IsNew, evt.SchemaMap)
	case models.LifecycleAfterDelete:
		h.AfterDelete(ctx, &evt.Document)
	}

	return ctx.Err()
}

func (h *Hooks) pointerMap(ctx context.Context, doc *models.Document, provided schema.PointerMap) (schema.PointerMap, error) {
	if provided != nil {
		return provided, nil
	}
	m, err := h.sync.SchemaMapFor(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to compute schema map: %w", err)
	}
	return m, nil
}
