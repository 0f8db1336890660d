package indexer

import (
	"context"
	"errors"
	"fmt"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const reindexLogInterval = 1000

// ReindexAll re-syncs every host document
func (i *Indexer) ReindexAll(ctx context.Context, includeExternal bool) (*models.ReindexResult, error) {
	return i.ReindexQueryResults(ctx, MatchAllQuery, includeExternal)
}

// ReindexAllTwoPass re-syncs every host document twice: first without
// external references, then with them
func (i *Indexer) ReindexAllTwoPass(ctx context.Context) (*models.ReindexResult, error) {
	return i.ReindexQueryResultsTwoPass(ctx, MatchAllQuery)
}

// ReindexQueryResults updates each document the host search returns, one
// transaction per document, in cursor order
func (i *Indexer) ReindexQueryResults(ctx context.Context, query string, includeExternal bool) (*models.ReindexResult, error) {
	ctx, span := tracing.StartSpan(ctx, "indexer.Indexer.ReindexQueryResults")
	defer span.End()

	var result *models.ReindexResult
	err := i.withReindexLock(ctx, func(ctx context.Context) error {
		var err error
		result, err = i.reindexQuery(ctx, query, includeExternal, "single")
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReindexQueryResultsTwoPass runs the query twice under one lock. The first
// pass rebuilds every internal subtree, so the second pass links references
// to roots that already exist. The second pass's count is returned.
func (i *Indexer) ReindexQueryResultsTwoPass(ctx context.Context, query string) (*models.ReindexResult, error) {
	ctx, span := tracing.StartSpan(ctx, "indexer.Indexer.ReindexQueryResultsTwoPass")
	defer span.End()

	var result *models.ReindexResult
	err := i.withReindexLock(ctx, func(ctx context.Context) error {
		if _, err := i.reindexQuery(ctx, query, false, "first"); err != nil {
			return err
		}
		var err error
		result, err = i.reindexQuery(ctx, query, true, "second")
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReindexID re-syncs one document. The count is zero when its type is not
// indexed.
func (i *Indexer) ReindexID(ctx context.Context, id string, includeExternal bool) (*models.ReindexResult, error) {
	ctx, span := tracing.StartSpan(ctx, "indexer.Indexer.ReindexID")
	defer span.End()

	doc, err := i.get(ctx, id)
	if err != nil {
		return nil, err
	}
	synced, err := i.reindexOne(ctx, doc, includeExternal)
	if err != nil {
		return nil, err
	}

	result := &models.ReindexResult{}
	if synced {
		result.Count = 1
	}
	return result, nil
}

func (i *Indexer) reindexQuery(ctx context.Context, query string, includeExternal bool, pass string) (*models.ReindexResult, error) {
	log := i.logger.WithContext(ctx).WithFields(map[string]any{
		"query":            query,
		"include_external": includeExternal,
		"pass":             pass,
	})

	if _, err := i.current(); err != nil {
		return nil, err
	}

	cursor, err := i.repository.Search(ctx, query)
	if err != nil {
		log.WithError(err).Error("Failed to search documents for reindex")
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	defer cursor.Close()

	result := &models.ReindexResult{}
	for cursor.Next() {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		doc, err := cursor.Document()
		if err != nil {
			return result, fmt.Errorf("failed to read document: %w", err)
		}

		synced, err := i.reindexOne(ctx, doc, includeExternal)
		if err != nil {
			log.WithError(err).WithField("reindexed", result.Count).Error("Reindex aborted")
			return result, err
		}
		if !synced {
			continue
		}

		result.Count++
		metrics.ReindexDocumentsTotal.WithLabelValues(pass).Inc()
		if result.Count%reindexLogInterval == 0 {
			log.WithField("reindexed", result.Count).Info("Reindex progress")
		}
	}
	if err := cursor.Err(); err != nil {
		return result, fmt.Errorf("failed to iterate documents: %w", err)
	}

	log.WithField("reindexed", result.Count).Info("Reindex pass complete")
	return result, nil
}

func (i *Indexer) reindexOne(ctx context.Context, doc *models.Document, includeExternal bool) (bool, error) {
	cfg, err := i.current()
	if err != nil {
		return false, err
	}
	if !cfg.ShouldIndexType(doc.Type) {
		return false, nil
	}

	schemaMap, err := i.SchemaMapFor(ctx, doc)
	if err != nil {
		return false, fmt.Errorf("failed to compute schema map for %s: %w", doc.ID, err)
	}

	node, err := i.Update(ctx, doc, schemaMap, includeExternal)
	if err != nil {
		return false, err
	}
	return node != nil, nil
}

func (i *Indexer) withReindexLock(ctx context.Context, fn func(ctx context.Context) error) error {
	if i.locker == nil {
		return fn(ctx)
	}

	err := i.locker.WithLock(ctx, ReindexLockKey, i.lockTTL, fn)
	if errors.Is(err, redis.ErrLockNotAcquired) {
		return ErrReindexInProgress
	}
	return err
}
