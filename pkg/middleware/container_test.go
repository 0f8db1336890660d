package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectoinject/ectocontainer"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greeter interface {
	Greet() string
}

type staticGreeter string

func (g staticGreeter) Greet() string { return string(g) }

func TestContainer(t *testing.T) {
	container, err := ectoinject.NewDIContainer(ectocontainer.DIContainerConfig{
		ID:                       "middleware-test-" + uuid.NewString(),
		AllowMissingDependencies: true,
	})
	require.NoError(t, err)
	require.NoError(t, ectoinject.RegisterInstance[greeter](container, staticGreeter("hello")))

	t.Run("activates the container", func(t *testing.T) {
		e := newEcho()
		e.Use(Container(container.GetContainerID()))

		var greeting string
		e.GET("/greet", func(c echo.Context) error {
			_, g, err := ectoinject.GetContext[greeter](c.Request().Context())
			if err != nil {
				return err
			}
			greeting = g.Greet()
			return c.NoContent(http.StatusOK)
		})

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/greet", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "hello", greeting)
	})

	t.Run("unknown container leaves request untouched", func(t *testing.T) {
		e := newEcho()
		e.Use(Container("missing-" + uuid.NewString()))

		called := false
		e.GET("/greet", func(c echo.Context) error {
			called = true
			return c.NoContent(http.StatusOK)
		})

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/greet", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, called)
	})
}
