package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"

	checkTimeout = 5 * time.Second
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// component is one checked dependency. A failing optional component degrades
// the report; a failing required one makes it unhealthy.
type component struct {
	name     string
	pinger   Pinger
	required bool
}

// Checker serves liveness, readiness and dependency health
type Checker struct {
	components []component
	version    string
	started    time.Time
	ready      atomic.Bool
}

// NewChecker checks the document store (required), the graph store
// (optional, hooks keep accepting writes without it) and redis (required
// when configured, nil otherwise).
func NewChecker(database, graph, redis Pinger, version string) *Checker {
	components := []component{{name: "database", pinger: database, required: true}}
	if redis != nil {
		components = append(components, component{name: "redis", pinger: redis, required: true})
	}
	if graph != nil {
		components = append(components, component{name: "graph", pinger: graph})
	}

	return &Checker{
		components: components,
		version:    version,
		started:    time.Now(),
	}
}

func (c *Checker) SetReady(ready bool) {
	c.ready.Store(ready)
}

func (c *Checker) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/v1/health", c.Health)
	e.GET("/api/v1/health/live", c.Live)
	e.GET("/api/v1/health/ready", c.Ready)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

type HealthStatus struct {
	Status     string                  `json:"status"`
	Version    string                  `json:"version"`
	Uptime     string                  `json:"uptime"`
	Checks     map[string]*CheckResult `json:"checks"`
	ReportedAt time.Time               `json:"reported_at"`
}

type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Health pings every component concurrently
func (c *Checker) Health(ctx echo.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx.Request().Context(), checkTimeout)
	defer cancel()

	results := make([]*CheckResult, len(c.components))
	var wg sync.WaitGroup
	for i, comp := range c.components {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = pingComponent(reqCtx, comp.pinger)
		}()
	}
	wg.Wait()

	report := &HealthStatus{
		Status:     StatusHealthy,
		Version:    c.version,
		Uptime:     time.Since(c.started).Round(time.Second).String(),
		Checks:     make(map[string]*CheckResult, len(c.components)),
		ReportedAt: time.Now(),
	}
	for i, comp := range c.components {
		report.Checks[comp.name] = results[i]
		if results[i].Status == StatusHealthy {
			continue
		}
		if comp.required {
			report.Status = StatusUnhealthy
		} else if report.Status == StatusHealthy {
			report.Status = StatusDegraded
		}
	}

	code := http.StatusOK
	if report.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	return ctx.JSON(code, report)
}

func pingComponent(ctx context.Context, p Pinger) *CheckResult {
	if p == nil {
		return &CheckResult{Status: StatusUnhealthy, Message: "not configured"}
	}

	start := time.Now()
	if err := p.Ping(ctx); err != nil {
		return &CheckResult{Status: StatusUnhealthy, Message: err.Error()}
	}
	return &CheckResult{Status: StatusHealthy, Latency: time.Since(start).String()}
}

func (c *Checker) Live(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "alive"})
}

// Ready flips to 200 once startup completes and back to 503 on shutdown
func (c *Checker) Ready(ctx echo.Context) error {
	if !c.ready.Load() {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ready"})
}
