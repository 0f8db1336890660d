package graphsync

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/indexer"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Service is the indexer surface exposed over HTTP
type Service interface {
	LoadConfig(ctx context.Context) (*models.GraphConfig, error)
	DeleteAll(ctx context.Context) error
	DeleteQueryResults(ctx context.Context, query string) (int64, error)
	DeleteByID(ctx context.Context, id string) error
	Search(ctx context.Context, cypher string, params map[string]any) (*graph.QueryResult, error)
	ReindexAll(ctx context.Context, includeExternal bool) (*models.ReindexResult, error)
	ReindexAllTwoPass(ctx context.Context) (*models.ReindexResult, error)
	ReindexQueryResults(ctx context.Context, query string, includeExternal bool) (*models.ReindexResult, error)
	ReindexQueryResultsTwoPass(ctx context.Context, query string) (*models.ReindexResult, error)
	ReindexID(ctx context.Context, id string, includeExternal bool) (*models.ReindexResult, error)
}

// Handler handles graph sync API endpoints. A nil service or logger is
// resolved per request from the active dependency container.
type Handler struct {
	service Service
	logger  ectologger.Logger
}

func NewHandler(service Service, logger ectologger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

var discard = ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

func (h *Handler) requireService(c echo.Context) (Service, error) {
	if h.service != nil {
		return h.service, nil
	}

	_, svc, err := ectoinject.GetContext[Service](c.Request().Context())
	if err != nil || svc == nil {
		return nil, httperror.NewHTTPError(http.StatusServiceUnavailable, "graph sync service unavailable")
	}
	return svc, nil
}

func (h *Handler) requireLogger(c echo.Context) ectologger.Logger {
	if h.logger != nil {
		return h.logger
	}
	if _, logger, err := ectoinject.GetContext[ectologger.Logger](c.Request().Context()); err == nil && logger != nil {
		return logger
	}
	return discard
}

// documentID reads the :id route parameter. Host ids contain slashes, so
// clients send them escaped.
func documentID(c echo.Context) (string, error) {
	id, err := url.PathUnescape(c.Param("id"))
	if err != nil {
		return "", httperror.NewHTTPError(http.StatusBadRequest, "invalid document id")
	}
	if id == "" {
		return "", httperror.NewHTTPError(http.StatusBadRequest, "document id is required")
	}
	return id, nil
}

// Register registers the graph sync routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/config/reload", h.ReloadConfig)
	g.DELETE("/documents", h.DeleteDocuments)
	g.DELETE("/documents/:id", h.DeleteDocument)
	g.POST("/search", h.Search)
	g.POST("/reindex", h.ReindexAll)
	g.POST("/reindex/query", h.ReindexQuery)
	g.POST("/reindex/:id", h.ReindexID)
}

// SearchRequest is the request body for a read-only Cypher query
type SearchRequest struct {
	Query  string         `json:"query" validate:"required"`
	Params map[string]any `json:"params,omitempty"`
}

// ReindexRequest is the request body for the reindex endpoints.
// IncludeRelationships defaults to true.
type ReindexRequest struct {
	Query                string `json:"query,omitempty"`
	IncludeRelationships *bool  `json:"includeRelationships,omitempty"`
	TwoPass              bool   `json:"twoPass,omitempty"`
}

func (r *ReindexRequest) includeExternal() bool {
	return r.IncludeRelationships == nil || *r.IncludeRelationships
}

// DeleteResponse reports how many documents a delete removed
type DeleteResponse struct {
	Deleted int64 `json:"deleted"`
}

// ReloadConfig re-reads the graph configuration from the host
// @Summary Reload graph configuration
// @Tags Graph
// @Produce json
// @Success 200 {object} models.GraphConfig
// @Failure 503 {object} httperror.HTTPError
// @Router /api/v1/graph/config/reload [post]
func (h *Handler) ReloadConfig(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "graphsync_handler.ReloadConfig")
	defer span.End()

	service, err := h.requireService(c)
	if err != nil {
		return err
	}

	cfg, err := service.LoadConfig(ctx)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, cfg.Redacted())
}

// DeleteDocuments clears the graph, or only documents of one type when
// ?type= is given
// @Summary Delete graph documents
// @Tags Graph
// @Param type query string false "Document type"
// @Success 200 {object} DeleteResponse
// @Success 204
// @Router /api/v1/graph/documents [delete]
func (h *Handler) DeleteDocuments(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "graphsync_handler.DeleteDocuments")
	defer span.End()

	service, err := h.requireService(c)
	if err != nil {
		return err
	}

	if docType := c.QueryParam("type"); docType != "" {
		n, err := service.DeleteQueryResults(ctx, indexer.TypeQuery(docType))
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(http.StatusOK, DeleteResponse{Deleted: n})
	}

	if err := service.DeleteAll(ctx); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteDocument removes one document's subgraph
// @Summary Delete a graph document
// @Tags Graph
// @Param id path string true "Document ID"
// @Success 204
// @Failure 404 {object} httperror.HTTPError
// @Router /api/v1/graph/documents/{id} [delete]
func (h *Handler) DeleteDocument(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "graphsync_handler.DeleteDocument")
	defer span.End()

	service, err := h.requireService(c)
	if err != nil {
		return err
	}

	id, err := documentID(c)
	if err != nil {
		return err
	}

	if err := service.DeleteByID(ctx, id); err != nil {
		return toHTTPError(err)
	}
	h.requireLogger(c).WithContext(ctx).WithField("document_id", id).Info("Removed document from graph")
	return c.NoContent(http.StatusNoContent)
}

// Search runs a read-only Cypher query
// @Summary Search the graph
// @Tags Graph
// @Accept json
// @Produce json
// @Param body body SearchRequest true "Query request"
// @Success 200 {object} graph.QueryResult
// @Failure 400 {object} httperror.HTTPError
// @Router /api/v1/graph/search [post]
func (h *Handler) Search(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "graphsync_handler.Search")
	defer span.End()

	service, err := h.requireService(c)
	if err != nil {
		return err
	}

	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := service.Search(ctx, req.Query, req.Params)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// ReindexAll rebuilds every document's subgraph
// @Summary Reindex all documents
// @Tags Graph
// @Accept json
// @Produce json
// @Param body body ReindexRequest false "Reindex options"
// @Success 200 {object} models.ReindexResult
// @Failure 409 {object} httperror.HTTPError
// @Router /api/v1/graph/reindex [post]
func (h *Handler) ReindexAll(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "graphsync_handler.ReindexAll")
	defer span.End()

	service, err := h.requireService(c)
	if err != nil {
		return err
	}

	req, err := bindReindex(c)
	if err != nil {
		return err
	}

	var result *models.ReindexResult
	if req.TwoPass {
		result, err = service.ReindexAllTwoPass(ctx)
	} else {
		result, err = service.ReindexAll(ctx, req.includeExternal())
	}
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// ReindexQuery rebuilds the subgraphs of documents matching a host query
// @Summary Reindex documents matching a query
// @Tags Graph
// @Accept json
// @Produce json
// @Param body body ReindexRequest true "Reindex options"
// @Success 200 {object} models.ReindexResult
// @Failure 400 {object} httperror.HTTPError
// @Failure 409 {object} httperror.HTTPError
// @Router /api/v1/graph/reindex/query [post]
func (h *Handler) ReindexQuery(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "graphsync_handler.ReindexQuery")
	defer span.End()

	service, err := h.requireService(c)
	if err != nil {
		return err
	}

	req, err := bindReindex(c)
	if err != nil {
		return err
	}
	if req.Query == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "query is required")
	}

	var result *models.ReindexResult
	if req.TwoPass {
		result, err = service.ReindexQueryResultsTwoPass(ctx, req.Query)
	} else {
		result, err = service.ReindexQueryResults(ctx, req.Query, req.includeExternal())
	}
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// ReindexID rebuilds one document's subgraph
// @Summary Reindex a document
// @Tags Graph
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param body body ReindexRequest false "Reindex options"
// @Success 200 {object} models.ReindexResult
// @Failure 404 {object} httperror.HTTPError
// @Router /api/v1/graph/reindex/{id} [post]
func (h *Handler) ReindexID(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "graphsync_handler.ReindexID")
	defer span.End()

	service, err := h.requireService(c)
	if err != nil {
		return err
	}

	id, err := documentID(c)
	if err != nil {
		return err
	}
	req, err := bindReindex(c)
	if err != nil {
		return err
	}

	result, err := service.ReindexID(ctx, id, req.includeExternal())
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func bindReindex(c echo.Context) (*ReindexRequest, error) {
	var req ReindexRequest
	if c.Request().ContentLength == 0 {
		return &req, nil
	}
	if err := c.Bind(&req); err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return &req, nil
}

// toHTTPError maps indexer failures onto status codes. Unknown errors pass
// through to the error handler as 500s.
func toHTTPError(err error) error {
	var integrityErr *indexer.IntegrityError
	switch {
	case errors.As(err, &integrityErr):
		return integrityErr.ToHTTPError()
	case errors.Is(err, indexer.ErrDocumentNotFound):
		return httperror.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, indexer.ErrReindexInProgress):
		return httperror.NewHTTPError(http.StatusConflict, err.Error())
	case graph.IsUnavailable(err):
		return httperror.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return err
}
