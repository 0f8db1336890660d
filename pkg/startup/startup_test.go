package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStartup(maxAttempts int) *Startup {
	s := NewStartup(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}), maxAttempts)
	s.backoffUnit = time.Millisecond
	return s
}

func recorder(events *[]string, name string, startErrs ...error) *Dependency {
	calls := 0
	return &Dependency{
		Name: name,
		StartFunc: func(context.Context) error {
			calls++
			if calls <= len(startErrs) {
				return startErrs[calls-1]
			}
			*events = append(*events, "start "+name)
			return nil
		},
		StopFunc: func(context.Context) error {
			*events = append(*events, "stop "+name)
			return nil
		},
	}
}

func TestStartup_Order(t *testing.T) {
	var events []string
	s := newTestStartup(1)

	api := recorder(&events, "api")
	api.Requires = []string{"graph", "database"}
	s.AddDependency(api)
	s.AddDependency(recorder(&events, "database"))
	s.AddDependency(recorder(&events, "graph"))

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))

	assert.Equal(t, []string{
		"start graph", "start database", "start api",
		"stop api", "stop database", "stop graph",
	}, events)
	assert.Equal(t, StartupStatusStopped, s.Status("api"))
}

func TestStartup_Retries(t *testing.T) {
	var events []string
	s := newTestStartup(3)
	s.AddDependency(recorder(&events, "database"))
	s.AddDependency(recorder(&events, "graph", errors.New("connection refused")))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"start database", "start graph"}, events)
}

func TestStartup_GivesUp(t *testing.T) {
	var events []string
	s := newTestStartup(2)
	refused := errors.New("connection refused")
	s.AddDependency(recorder(&events, "graph", refused, refused, refused))

	err := s.Start(context.Background())
	assert.ErrorIs(t, err, refused)
	assert.Equal(t, StartupStatusFailed, s.Status("graph"))
}

func TestStartup_UnknownAndCyclicDependencies(t *testing.T) {
	var events []string

	s := newTestStartup(1)
	d := recorder(&events, "api")
	d.Requires = []string{"missing"}
	s.AddDependency(d)
	assert.Error(t, s.Start(context.Background()))

	s = newTestStartup(1)
	a := recorder(&events, "a")
	a.Requires = []string{"b"}
	b := recorder(&events, "b")
	b.Requires = []string{"a"}
	s.AddDependency(a)
	s.AddDependency(b)
	assert.Error(t, s.Start(context.Background()))
	assert.Empty(t, events)
}
