package hooks

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Guard vetoes deletes that would leave dangling references
type Guard interface {
	BeforeDelete(ctx context.Context, doc *models.Document) error
}

// Handler serves the synchronous lifecycle hooks. Without an explicit guard
// it resolves one from the request's dependency container.
type Handler struct {
	guard Guard
}

func NewHandler(guard Guard) *Handler {
	return &Handler{guard: guard}
}

func (h *Handler) requireGuard(c echo.Context) (Guard, error) {
	if h.guard != nil {
		return h.guard, nil
	}

	_, guard, err := ectoinject.GetContext[Guard](c.Request().Context())
	if err != nil || guard == nil {
		return nil, httperror.NewHTTPError(http.StatusServiceUnavailable, "lifecycle hooks unavailable")
	}
	return guard, nil
}

// Register registers the hook routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/before-delete", h.BeforeDelete)
}

// BeforeDeleteRequest is the request body for the before-delete hook
type BeforeDeleteRequest struct {
	Document models.Document `json:"document" validate:"required"`
}

// BeforeDelete answers 204 when the document may be deleted and 400 when
// other documents still point at it
// @Summary Check a pending delete
// @Tags Hooks
// @Accept json
// @Param body body BeforeDeleteRequest true "Document about to be deleted"
// @Success 204
// @Failure 400 {object} httperror.HTTPError
// @Router /api/v1/hooks/before-delete [post]
func (h *Handler) BeforeDelete(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "hooks_handler.BeforeDelete")
	defer span.End()

	guard, err := h.requireGuard(c)
	if err != nil {
		return err
	}

	var req BeforeDeleteRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := guard.BeforeDelete(ctx, &req.Document); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
