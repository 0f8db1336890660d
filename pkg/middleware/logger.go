package middleware

import (
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/context"
)

// Logger writes one line per request. Server errors log at error level so a
// failed reindex stands out from routine traffic.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			ctx := req.Context()

			fields := context.LogFields(ctx)
			fields["method"] = req.Method
			fields["path"] = c.Path()
			fields["status"] = res.Status
			fields["latency"] = time.Since(start).String()
			fields["bytes_out"] = res.Size
			fields["remote_ip"] = c.RealIP()

			log := logger.WithContext(ctx).WithFields(fields)
			switch {
			case res.Status >= 500:
				log.Error("Request failed")
			case res.Status >= 400:
				log.Warn("Request rejected")
			default:
				log.Info("Request")
			}
			return nil
		}
	}
}
