package graph

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDriver implements only what the client calls outside of sessions
type fakeDriver struct {
	neo4j.DriverWithContext
	uri    string
	mu     sync.Mutex
	closes int
}

func (d *fakeDriver) Close(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes++
	return nil
}

func (d *fakeDriver) VerifyConnectivity(_ context.Context) error {
	return nil
}

func (d *fakeDriver) closeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}

func newTestClient() (*Client, *[]*fakeDriver) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	drivers := &[]*fakeDriver{}
	var mu sync.Mutex
	client := NewClientWithDriverFactory(logger, func(uri string, _ neo4j.AuthToken) (neo4j.DriverWithContext, error) {
		if uri == "bad://uri" {
			return nil, errors.New("unsupported scheme")
		}
		mu.Lock()
		defer mu.Unlock()
		d := &fakeDriver{uri: uri}
		*drivers = append(*drivers, d)
		return d, nil
	})
	return client, drivers
}

func TestClient_Lifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("unconfigured client refuses work", func(t *testing.T) {
		client, _ := newTestClient()
		assert.ErrorIs(t, client.VerifyConnectivity(ctx), ErrNotConfigured)
		_, err := client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) { return nil, nil })
		assert.ErrorIs(t, err, ErrNotConfigured)
		assert.True(t, IsUnavailable(err))
	})

	t.Run("configure swaps and closes the previous driver", func(t *testing.T) {
		client, drivers := newTestClient()
		require.NoError(t, client.Configure(ctx, Settings{URI: "bolt://one:7687"}))
		require.NoError(t, client.Configure(ctx, Settings{URI: "bolt://two:7687", Username: "neo4j", Password: "secret"}))

		require.Len(t, *drivers, 2)
		assert.Equal(t, 1, (*drivers)[0].closeCount())
		assert.Equal(t, 0, (*drivers)[1].closeCount())
		assert.NoError(t, client.VerifyConnectivity(ctx))
	})

	t.Run("failed configure keeps the active driver", func(t *testing.T) {
		client, drivers := newTestClient()
		require.NoError(t, client.Configure(ctx, Settings{URI: "bolt://one:7687"}))
		assert.Error(t, client.Configure(ctx, Settings{URI: "bad://uri"}))
		assert.Equal(t, 0, (*drivers)[0].closeCount())
		assert.NoError(t, client.VerifyConnectivity(ctx))
	})

	t.Run("dialect follows settings", func(t *testing.T) {
		client, _ := newTestClient()
		assert.Equal(t, DialectNeo4j, client.Dialect())
		require.NoError(t, client.Configure(ctx, Settings{URI: "bolt://one:7687", Dialect: DialectMemgraph}))
		assert.Equal(t, DialectMemgraph, client.Dialect())
	})

	t.Run("close is idempotent", func(t *testing.T) {
		client, drivers := newTestClient()
		require.NoError(t, client.Configure(ctx, Settings{URI: "bolt://one:7687"}))
		require.NoError(t, client.Close(ctx))
		require.NoError(t, client.Close(ctx))
		assert.Equal(t, 1, (*drivers)[0].closeCount())

		assert.ErrorIs(t, client.VerifyConnectivity(ctx), ErrClientClosed)
		assert.ErrorIs(t, client.Configure(ctx, Settings{URI: "bolt://two:7687"}), ErrClientClosed)
		assert.Equal(t, 1, (*drivers)[1].closeCount())
	})

	t.Run("concurrent reconfiguration", func(t *testing.T) {
		client, drivers := newTestClient()
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, client.Configure(ctx, Settings{URI: "bolt://graph:7687"}))
			}()
		}
		wg.Wait()

		open := 0
		for _, d := range *drivers {
			if d.closeCount() == 0 {
				open++
			}
		}
		assert.Equal(t, 1, open)
	})
}
