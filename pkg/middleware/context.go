package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/context"
)

// HeaderCaller names the service or operator invoking an operation
const HeaderCaller = "X-Caller"

// Context stamps every request with a request id, echoed back in the
// response, and the caller metadata the handlers log with. The document id
// route parameter is recorded once routing has matched.
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			ctx := context.SetSource(req.Context(), context.SourceHTTP)
			ctx = context.SetRequestID(ctx, requestID)
			ctx = context.SetRoute(ctx, req.URL.Path)
			ctx = context.SetRemoteIP(ctx, c.RealIP())
			ctx = context.SetCaller(ctx, req.Header.Get(HeaderCaller))
			ctx = context.SetDocumentID(ctx, c.Param("id"))

			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
