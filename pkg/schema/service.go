package schema

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/denest"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// TypeSchemaGetter fetches the registered schema for a document type
type TypeSchemaGetter interface {
	GetByType(ctx context.Context, docType string) (*models.TypeSchema, error)
}

// PointerMapService computes pointer maps for documents whose lifecycle
// event did not carry one
type PointerMapService struct {
	getter TypeSchemaGetter
	logger ectologger.Logger
	cache  sync.Map // map[type:version]*Compiled
}

// NewPointerMapService creates a new pointer map service
func NewPointerMapService(getter TypeSchemaGetter, logger ectologger.Logger) *PointerMapService {
	return &PointerMapService{
		getter: getter,
		logger: logger,
	}
}

// PointerMap returns the pointer map for doc. A type with no registered
// schema yields an empty map, so the document syncs without overrides.
func (s *PointerMapService) PointerMap(ctx context.Context, doc *models.Document) (PointerMap, error) {
	ctx, span := tracing.StartSpan(ctx, "schema.PointerMapService.PointerMap")
	defer span.End()

	ts, err := s.getter.GetByType(ctx, doc.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to get type schema: %w", err)
	}
	if ts == nil {
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"document_id":   doc.ID,
			"document_type": doc.Type,
		}).Debug("no schema registered for document type")
		return PointerMap{}, nil
	}

	content, err := denest.Decode(doc.Content)
	if err != nil {
		return nil, err
	}

	compiled, err := s.compiled(ts)
	if err != nil {
		return nil, err
	}
	return compiled.PointerMap(content)
}

// compiled returns a cached compiled schema or compiles a new one
func (s *PointerMapService) compiled(ts *models.TypeSchema) (*Compiled, error) {
	cacheKey := fmt.Sprintf("%s:%d", ts.Type, ts.Version)
	if cached, ok := s.cache.Load(cacheKey); ok {
		return cached.(*Compiled), nil
	}

	compiled, err := Compile(ts.Schema)
	if err != nil {
		return nil, err
	}
	s.cache.Store(cacheKey, compiled)
	return compiled, nil
}

// InvalidateCache drops every cached version of docType
func (s *PointerMapService) InvalidateCache(docType string) {
	prefix := docType + ":"
	s.cache.Range(func(key, _ any) bool {
		if strings.HasPrefix(key.(string), prefix) {
			s.cache.Delete(key)
		}
		return true
	})
}
