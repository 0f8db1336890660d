package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	documentsTable  = "documents"
	payloadsTable   = "document_payloads"
	referencesTable = "document_references"
)

var documentColumns = []string{"id", "type", "content", "created_at", "updated_at"}

type documentRow struct {
	ID        string                          `db:"id"`
	Type      string                          `db:"type"`
	Content   database.JSONB[json.RawMessage] `db:"content"`
	CreatedAt time.Time                       `db:"created_at"`
	UpdatedAt time.Time                       `db:"updated_at"`
}

func (r *documentRow) toModel() *models.Document {
	return &models.Document{
		ID:        r.ID,
		Type:      r.Type,
		Content:   r.Content.GetValue(),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// Repository reads host documents from PostgreSQL
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new document repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Get returns the document with id, or nil when none exists
func (r *Repository) Get(ctx context.Context, id string) (*models.Document, error) {
	ctx, span := tracing.StartSpan(ctx, "DocumentRepository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(documentColumns...)
	sb.From(documentsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()

	var row documentRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("document_id", id).Error("failed to get document")
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return row.toModel(), nil
}

// Search streams the documents matching query. The cursor must be closed.
func (r *Repository) Search(ctx context.Context, query string) (models.DocumentCursor, error) {
	ctx, span := tracing.StartSpan(ctx, "DocumentRepository.Search")
	defer span.End()

	rows, err := r.query(ctx, query, documentColumns...)
	if err != nil {
		return nil, err
	}
	return &documentCursor{rows: rows}, nil
}

// SearchIDs streams the ids of the documents matching query
func (r *Repository) SearchIDs(ctx context.Context, query string) (models.IDCursor, error) {
	ctx, span := tracing.StartSpan(ctx, "DocumentRepository.SearchIDs")
	defer span.End()

	rows, err := r.query(ctx, query, "id")
	if err != nil {
		return nil, err
	}
	return &idCursor{rows: rows}, nil
}

func (r *Repository) query(ctx context.Context, query string, columns ...string) (*sqlx.Rows, error) {
	stmt, args, err := buildSearch(query, columns...)
	if err != nil {
		return nil, fmt.Errorf("invalid search query: %w", err)
	}

	rows, err := r.db.QueryxContext(ctx, stmt, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("query", query).Error("failed to search documents")
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	return rows, nil
}

// GetPayload returns the raw JSON payload stored under name on document id,
// or nil when none exists
func (r *Repository) GetPayload(ctx context.Context, id, name string) ([]byte, error) {
	ctx, span := tracing.StartSpan(ctx, "DocumentRepository.GetPayload")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("data")
	sb.From(payloadsTable)
	sb.Where(
		sb.Equal("document_id", id),
		sb.Equal("name", name),
	)

	query, args := sb.Build()

	var data database.JSONB[json.RawMessage]
	if err := r.db.GetContext(ctx, &data, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"document_id": id,
			"payload":     name,
		}).Error("failed to get payload")
		return nil, fmt.Errorf("failed to get payload: %w", err)
	}
	return data.GetValue(), nil
}

type documentCursor struct {
	rows *sqlx.Rows
}

func (c *documentCursor) Next() bool {
	return c.rows.Next()
}

func (c *documentCursor) Document() (*models.Document, error) {
	var row documentRow
	if err := c.rows.StructScan(&row); err != nil {
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}
	return row.toModel(), nil
}

func (c *documentCursor) Err() error {
	return c.rows.Err()
}

func (c *documentCursor) Close() error {
	return c.rows.Close()
}

type idCursor struct {
	rows *sqlx.Rows
}

func (c *idCursor) Next() bool {
	return c.rows.Next()
}

func (c *idCursor) ID() (string, error) {
	var id string
	if err := c.rows.Scan(&id); err != nil {
		return "", fmt.Errorf("failed to scan document id: %w", err)
	}
	return id, nil
}

func (c *idCursor) Err() error {
	return c.rows.Err()
}

func (c *idCursor) Close() error {
	return c.rows.Close()
}
