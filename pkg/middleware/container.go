package middleware

import (
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"
)

// Container makes the dependency container registered under id the active
// one for the request, so handlers can resolve services from the context.
// An unknown id leaves the request on the default container.
func Container(id string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if ctx, err := ectoinject.SetActiveContainer(req.Context(), id); err == nil {
				c.SetRequest(req.WithContext(ctx))
			}
			return next(c)
		}
	}
}
