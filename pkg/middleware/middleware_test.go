package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/context"
)

type conflictError struct{}

func (conflictError) Error() string { return "lock held" }

func (conflictError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusConflict, "reindex already running")
}

func newEcho() *echo.Echo {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	e := echo.New()
	e.HTTPErrorHandler = Error(logger)
	e.Use(Context())
	e.Use(Logger(logger))
	return e
}

func TestContext(t *testing.T) {
	e := newEcho()

	var requestID, caller, route string
	e.GET("/ping", func(c echo.Context) error {
		ctx := c.Request().Context()
		requestID = context.GetRequestID(ctx)
		caller = context.GetCaller(ctx)
		route = context.GetRoute(ctx)
		return c.NoContent(http.StatusNoContent)
	})

	t.Run("generates request id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.NotEmpty(t, requestID)
		assert.Equal(t, requestID, rec.Header().Get(echo.HeaderXRequestID))
		assert.Equal(t, "/ping", route)
		assert.Empty(t, caller)
	})

	t.Run("keeps incoming request id and caller", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(echo.HeaderXRequestID, "req-1")
		req.Header.Set(HeaderCaller, "host-scheduler")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, "req-1", requestID)
		assert.Equal(t, "req-1", rec.Header().Get(echo.HeaderXRequestID))
		assert.Equal(t, "host-scheduler", caller)
	})
}

func TestError(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		expectedCode int
		expectedMsg  string
	}{
		{
			name:         "echo error",
			err:          echo.NewHTTPError(http.StatusNotFound, "no such route"),
			expectedCode: http.StatusNotFound,
			expectedMsg:  "no such route",
		},
		{
			name:         "plain error",
			err:          errors.New("boom"),
			expectedCode: http.StatusInternalServerError,
			expectedMsg:  "Internal Server Error",
		},
		{
			name:         "domain error",
			err:          conflictError{},
			expectedCode: http.StatusConflict,
			expectedMsg:  "reindex already running",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEcho()
			e.GET("/fail", func(c echo.Context) error { return tt.err })

			req := httptest.NewRequest(http.MethodGet, "/fail", nil)
			req.Header.Set(echo.HeaderXRequestID, "req-2")
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedCode, rec.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Contains(t, body.Message, tt.expectedMsg)
			assert.Equal(t, "req-2", body.RequestID)
		})
	}
}
