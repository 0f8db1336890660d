package middleware

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// HTTPErrorer is implemented by domain errors that carry their own response
type HTTPErrorer interface {
	ToHTTPError() *httperror.HTTPError
}

type ErrorResponse struct {
	Message   string         `json:"message"`
	RequestID string         `json:"request_id"`
	TraceID   string         `json:"trace_id"`
	Meta      map[string]any `json:"meta"`
}

// Error renders every handler error as an ErrorResponse. Anything that is
// not an echo, httperror or HTTPErrorer error becomes an opaque 500.
func Error(logger ectologger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		ctx := c.Request().Context()
		code, message, meta := describe(err)

		log := logger.WithContext(ctx).WithError(err).WithFields(context.LogFields(ctx))
		if code >= http.StatusInternalServerError {
			log.Error("Returning server error")
		} else {
			log.Debug("Returning client error")
		}

		_ = c.JSON(code, ErrorResponse{
			Message:   message,
			RequestID: context.GetRequestID(ctx),
			TraceID:   tracing.GetTraceID(ctx),
			Meta:      meta,
		})
	}
}

func describe(err error) (int, string, map[string]any) {
	var domainErr HTTPErrorer
	if errors.As(err, &domainErr) {
		err = domainErr.ToHTTPError()
	}

	if httperror.IsHTTPError(err) {
		httpErr := httperror.ToHTTPError(err)
		return httperror.GetStatusCode(err), httpErr.Error(), httpErr.Meta
	}

	var echoErr *echo.HTTPError
	if errors.As(err, &echoErr) {
		message, ok := echoErr.Message.(string)
		if !ok {
			message = http.StatusText(echoErr.Code)
		}
		return echoErr.Code, message, map[string]any{}
	}

	return http.StatusInternalServerError, "Internal Server Error", map[string]any{}
}
