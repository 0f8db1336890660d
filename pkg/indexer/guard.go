package indexer

import (
	"context"
	"fmt"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// EnsureNoInboundReferences fails with an IntegrityError when any other
// document still references doc. A document referencing itself does not
// block its own deletion.
func (i *Indexer) EnsureNoInboundReferences(ctx context.Context, doc *models.Document) error {
	ctx, span := tracing.StartSpan(ctx, "indexer.Indexer.EnsureNoInboundReferences")
	defer span.End()

	cursor, err := i.repository.SearchIDs(ctx, PointsAtQuery(doc.ID))
	if err != nil {
		return fmt.Errorf("failed to search referencing documents: %w", err)
	}
	defer cursor.Close()

	var referrers []string
	for cursor.Next() {
		id, err := cursor.ID()
		if err != nil {
			return fmt.Errorf("failed to read referencing document id: %w", err)
		}
		if id != doc.ID {
			referrers = append(referrers, id)
		}
	}
	if err := cursor.Err(); err != nil {
		return fmt.Errorf("failed to iterate referencing documents: %w", err)
	}

	if len(referrers) > 0 {
		i.logger.WithContext(ctx).WithFields(map[string]any{
			"document_id": doc.ID,
			"referrers":   referrers,
		}).Warn("Refusing delete of referenced document")
		return &IntegrityError{DocumentID: doc.ID, Referrers: referrers}
	}
	return nil
}
