// Package indexer synchronizes host documents into the graph store. Each
// create, update or delete becomes one full-replace mutation applied in a
// single write transaction.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Ramsey-B/fern/pkg/denest"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/schema"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	DefaultConfigObjectID    = "design"
	DefaultConfigPayloadName = "graphConfig"
	DefaultLockTTL           = 5 * time.Minute
	ReindexLockKey           = "reindex"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Store applies mutations to the graph
type Store interface {
	Configure(ctx context.Context, s graph.Settings) error
	Close(ctx context.Context) error
	VerifyConnectivity(ctx context.Context) error
	Apply(ctx context.Context, m *graph.Mutation) (*models.GraphNode, error)
	DeleteAll(ctx context.Context) error
}

// Searcher runs read queries against the graph
type Searcher interface {
	ExecuteQuery(ctx context.Context, cypher string, params map[string]any) (*graph.QueryResult, error)
}

// Repository is the host document repository. Get and GetPayload return
// nil with no error when nothing is stored.
type Repository interface {
	Get(ctx context.Context, id string) (*models.Document, error)
	Search(ctx context.Context, query string) (models.DocumentCursor, error)
	SearchIDs(ctx context.Context, query string) (models.IDCursor, error)
	GetPayload(ctx context.Context, id, name string) ([]byte, error)
}

// SchemaProvider computes the pointer map for documents that arrive without one
type SchemaProvider interface {
	PointerMap(ctx context.Context, doc *models.Document) (schema.PointerMap, error)
}

// Locker serializes bulk reindex runs across replicas
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// Config wires the indexer's collaborators. Locker and Schemas are optional.
type Config struct {
	Store      Store
	Searcher   Searcher
	Repository Repository
	Schemas    SchemaProvider
	Locker     Locker
	Logger     ectologger.Logger

	// ConfigObjectID and ConfigPayloadName locate the sync configuration
	// on the host
	ConfigObjectID    string
	ConfigPayloadName string
	// Fallback is used when the host stores no configuration
	Fallback *models.GraphConfig
	LockTTL  time.Duration
}

// Indexer is the graph synchronizer
type Indexer struct {
	store      Store
	searcher   Searcher
	repository Repository
	schemas    SchemaProvider
	locker     Locker
	logger     ectologger.Logger

	configObjectID    string
	configPayloadName string
	fallback          models.GraphConfig
	lockTTL           time.Duration

	reloadMu sync.Mutex
	config   atomic.Pointer[models.GraphConfig]
}

// New creates an indexer. It refuses work until a configuration is loaded.
func New(cfg Config) *Indexer {
	i := &Indexer{
		store:             cfg.Store,
		searcher:          cfg.Searcher,
		repository:        cfg.Repository,
		schemas:           cfg.Schemas,
		locker:            cfg.Locker,
		logger:            cfg.Logger,
		configObjectID:    cfg.ConfigObjectID,
		configPayloadName: cfg.ConfigPayloadName,
		fallback:          models.DefaultGraphConfig(),
		lockTTL:           cfg.LockTTL,
	}
	if i.configObjectID == "" {
		i.configObjectID = DefaultConfigObjectID
	}
	if i.configPayloadName == "" {
		i.configPayloadName = DefaultConfigPayloadName
	}
	if cfg.Fallback != nil {
		i.fallback = *cfg.Fallback
	}
	if i.lockTTL <= 0 {
		i.lockTTL = DefaultLockTTL
	}
	return i
}

// LoadConfig reads the configuration payload from the host and reconfigures
// the graph connection. Without a payload the fallback configuration is used.
func (i *Indexer) LoadConfig(ctx context.Context) (*models.GraphConfig, error) {
	ctx, span := tracing.StartSpan(ctx, "indexer.Indexer.LoadConfig")
	defer span.End()

	log := i.logger.WithContext(ctx).WithFields(map[string]any{
		"config_object":  i.configObjectID,
		"config_payload": i.configPayloadName,
	})

	raw, err := i.repository.GetPayload(ctx, i.configObjectID, i.configPayloadName)
	if err != nil {
		log.WithError(err).Error("Failed to read graph configuration")
		return nil, fmt.Errorf("failed to read graph configuration: %w", err)
	}

	cfg := i.fallback
	if len(raw) == 0 {
		log.Info("No graph configuration stored, using defaults")
	} else if err := json.Unmarshal(raw, &cfg); err != nil {
		log.WithError(err).Error("Failed to decode graph configuration")
		return nil, fmt.Errorf("failed to decode graph configuration: %w", err)
	}

	return i.ApplyConfig(ctx, cfg)
}

// ApplyConfig validates cfg, reconfigures the store and publishes cfg. The
// previous configuration stays active when any step fails.
func (i *Indexer) ApplyConfig(ctx context.Context, cfg models.GraphConfig) (*models.GraphConfig, error) {
	ctx, span := tracing.StartSpan(ctx, "indexer.Indexer.ApplyConfig")
	defer span.End()

	cfg = cfg.Normalize()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid graph configuration: %w", err)
	}
	dialect, err := graph.ParseDialect(cfg.Dialect)
	if err != nil {
		return nil, fmt.Errorf("invalid graph configuration: %w", err)
	}

	i.reloadMu.Lock()
	defer i.reloadMu.Unlock()

	err = i.store.Configure(ctx, graph.Settings{
		URI:          cfg.URI,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DatabaseName: cfg.DatabaseName,
		Dialect:      dialect,
		Verbose:      cfg.Verbose,
	})
	if err != nil {
		i.logger.WithContext(ctx).WithError(err).WithField("uri", cfg.URI).Error("Failed to configure graph connection")
		return nil, fmt.Errorf("failed to configure graph connection: %w", err)
	}

	i.config.Store(&cfg)
	i.logger.WithContext(ctx).WithFields(map[string]any{
		"uri":             cfg.URI,
		"database":        cfg.DatabaseName,
		"dialect":         dialect,
		"property_naming": cfg.PropertyNamingMode,
		"include_types":   cfg.IncludeTypes,
		"exclude_types":   cfg.ExcludeTypes,
	}).Info("Graph configuration applied")

	return &cfg, nil
}

// Config returns the active configuration, or nil before the first load
func (i *Indexer) Config() *models.GraphConfig {
	cfg := i.config.Load()
	if cfg == nil {
		return nil
	}
	c := *cfg
	return &c
}

// Ping verifies the graph store is reachable with the active configuration
func (i *Indexer) Ping(ctx context.Context) error {
	if _, err := i.current(); err != nil {
		return err
	}
	return i.store.VerifyConnectivity(ctx)
}

// Shutdown closes the graph connection. Safe to call more than once.
func (i *Indexer) Shutdown(ctx context.Context) error {
	i.reloadMu.Lock()
	defer i.reloadMu.Unlock()
	return i.store.Close(ctx)
}

func (i *Indexer) current() (models.GraphConfig, error) {
	cfg := i.config.Load()
	if cfg == nil {
		return models.GraphConfig{}, graph.ErrNotConfigured
	}
	return *cfg, nil
}

// SchemaMapFor computes the pointer map for doc from its type schema. Without
// a schema provider every document syncs with no overrides.
func (i *Indexer) SchemaMapFor(ctx context.Context, doc *models.Document) (schema.PointerMap, error) {
	if i.schemas == nil {
		return schema.PointerMap{}, nil
	}
	return i.schemas.PointerMap(ctx, doc)
}

// Create writes doc into the graph. A document whose type is filtered out
// returns a nil node and no error.
func (i *Indexer) Create(ctx context.Context, doc *models.Document, schemaMap schema.PointerMap) (*models.GraphNode, error) {
	ctx, span := tracing.StartSpan(ctx, "indexer.Indexer.Create", documentAttrs(doc)...)
	defer span.End()

	return i.upsert(ctx, graph.MutationCreate, doc, schemaMap, true)
}

// Update replaces doc's internal subtree and outbound references in the
// graph. With includeExternal false the references are cleared but not
// rebuilt.
func (i *Indexer) Update(ctx context.Context, doc *models.Document, schemaMap schema.PointerMap, includeExternal bool) (*models.GraphNode, error) {
	ctx, span := tracing.StartSpan(ctx, "indexer.Indexer.Update", documentAttrs(doc)...)
	defer span.End()

	return i.upsert(ctx, graph.MutationUpdate, doc, schemaMap, includeExternal)
}

func (i *Indexer) upsert(ctx context.Context, kind graph.MutationKind, doc *models.Document, schemaMap schema.PointerMap, includeExternal bool) (*models.GraphNode, error) {
	started := time.Now()
	operation := kind.String()

	log := i.logger.WithContext(ctx).WithFields(map[string]any{
		"document_id":   doc.ID,
		"document_type": doc.Type,
		"operation":     operation,
	})

	cfg, err := i.current()
	if err != nil {
		metrics.ObserveSync(operation, metrics.StatusFailure, started)
		return nil, err
	}
	if !cfg.ShouldIndexType(doc.Type) {
		log.Debug("Document type is not indexed, skipping")
		metrics.ObserveSync(operation, metrics.StatusFiltered, started)
		return nil, nil
	}

	m, err := i.mutationFor(kind, doc, schemaMap, cfg, includeExternal)
	if err != nil {
		log.WithError(err).Error("Failed to build graph mutation")
		metrics.ObserveSync(operation, metrics.StatusFailure, started)
		return nil, err
	}

	node, err := i.store.Apply(ctx, m)
	if err != nil {
		log.WithError(err).Error("Failed to sync document to graph")
		metrics.ObserveSync(operation, metrics.StatusFailure, started)
		return nil, fmt.Errorf("failed to %s document %s: %w", operation, doc.ID, err)
	}

	metrics.ObserveSync(operation, metrics.StatusSuccess, started)
	metrics.SyncNodesWritten.WithLabelValues(operation).Observe(float64(len(m.Children) + 1))
	log.WithFields(map[string]any{
		"nodes":            len(m.Children) + 1,
		"external_edges":   len(m.External),
		"containment":      len(m.Containment),
		"include_external": includeExternal,
	}).Debug("Document synced to graph")

	return node, nil
}

func (i *Indexer) mutationFor(kind graph.MutationKind, doc *models.Document, schemaMap schema.PointerMap, cfg models.GraphConfig, includeExternal bool) (*graph.Mutation, error) {
	if doc.ID == "" {
		return nil, fmt.Errorf("document id is required")
	}

	content, err := denest.Decode(doc.Content)
	if err != nil {
		return nil, err
	}

	res, err := schema.Resolve(schemaMap, cfg.SchemaExtensions)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve schema overrides: %w", err)
	}

	return BuildMutation(kind, doc, content, res, cfg, includeExternal), nil
}

// Delete removes doc's root and internal subtree. Nodes belonging to other
// documents, including placeholders doc referenced, are left in place.
func (i *Indexer) Delete(ctx context.Context, doc *models.Document) error {
	ctx, span := tracing.StartSpan(ctx, "indexer.Indexer.Delete", documentAttrs(doc)...)
	defer span.End()

	_, err := i.delete(ctx, doc)
	return err
}

func (i *Indexer) delete(ctx context.Context, doc *models.Document) (bool, error) {
	started := time.Now()
	operation := graph.MutationDelete.String()

	log := i.logger.WithContext(ctx).WithFields(map[string]any{
		"document_id":   doc.ID,
		"document_type": doc.Type,
	})

	cfg, err := i.current()
	if err != nil {
		metrics.ObserveSync(operation, metrics.StatusFailure, started)
		return false, err
	}
	if !cfg.ShouldIndexType(doc.Type) {
		log.Debug("Document type is not indexed, skipping delete")
		metrics.ObserveSync(operation, metrics.StatusFiltered, started)
		return false, nil
	}

	if _, err := i.store.Apply(ctx, &graph.Mutation{Kind: graph.MutationDelete, RootKey: doc.ID}); err != nil {
		log.WithError(err).Error("Failed to delete document from graph")
		metrics.ObserveSync(operation, metrics.StatusFailure, started)
		return false, fmt.Errorf("failed to delete document %s: %w", doc.ID, err)
	}

	metrics.ObserveSync(operation, metrics.StatusSuccess, started)
	log.Debug("Document deleted from graph")
	return true, nil
}

// DeleteAll removes every document and internal node from the graph
func (i *Indexer) DeleteAll(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "indexer.Indexer.DeleteAll")
	defer span.End()

	started := time.Now()
	operation := graph.MutationDeleteAll.String()

	if _, err := i.current(); err != nil {
		return err
	}
	if err := i.store.DeleteAll(ctx); err != nil {
		metrics.ObserveSync(operation, metrics.StatusFailure, started)
		return err
	}

	metrics.ObserveSync(operation, metrics.StatusSuccess, started)
	i.logger.WithContext(ctx).Info("Deleted all documents from graph")
	return nil
}

// DeleteQueryResults deletes every document the host search returns and
// reports how many were removed
func (i *Indexer) DeleteQueryResults(ctx context.Context, query string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "indexer.Indexer.DeleteQueryResults")
	defer span.End()

	if _, err := i.current(); err != nil {
		return 0, err
	}

	cursor, err := i.repository.Search(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to search documents: %w", err)
	}
	defer cursor.Close()

	var count int64
	for cursor.Next() {
		doc, err := cursor.Document()
		if err != nil {
			return count, fmt.Errorf("failed to read document: %w", err)
		}
		deleted, err := i.delete(ctx, doc)
		if err != nil {
			return count, err
		}
		if deleted {
			count++
		}
	}
	if err := cursor.Err(); err != nil {
		return count, fmt.Errorf("failed to iterate documents: %w", err)
	}

	i.logger.WithContext(ctx).WithFields(map[string]any{
		"query": query,
		"count": count,
	}).Info("Deleted query results from graph")
	return count, nil
}

// DeleteByID deletes the host document with the given id from the graph
func (i *Indexer) DeleteByID(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "indexer.Indexer.DeleteByID")
	defer span.End()

	doc, err := i.get(ctx, id)
	if err != nil {
		return err
	}
	_, err = i.delete(ctx, doc)
	return err
}

// Search runs a read-only Cypher query against the graph
func (i *Indexer) Search(ctx context.Context, cypher string, params map[string]any) (*graph.QueryResult, error) {
	ctx, span := tracing.StartSpan(ctx, "indexer.Indexer.Search")
	defer span.End()

	if _, err := i.current(); err != nil {
		return nil, err
	}
	return i.searcher.ExecuteQuery(ctx, cypher, params)
}

func (i *Indexer) get(ctx context.Context, id string) (*models.Document, error) {
	doc, err := i.repository.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	return doc, nil
}

func documentAttrs(doc *models.Document) []attribute.KeyValue {
	if doc == nil {
		return nil
	}
	return []attribute.KeyValue{
		attribute.String("document.id", doc.ID),
		attribute.String("document.type", doc.Type),
	}
}
