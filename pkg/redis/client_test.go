package redis

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Addr(t *testing.T) {
	assert.Equal(t, "localhost:6379", Config{Host: "localhost", Port: 6379}.Addr())
	assert.Equal(t, "[::1]:6380", Config{Host: "::1", Port: 6380}.Addr())
}

func TestNewClient(t *testing.T) {
	ctx := context.Background()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	t.Run("connects", func(t *testing.T) {
		mr := miniredis.RunT(t)
		host, port := mr.Host(), mustPort(t, mr)

		client, err := NewClient(ctx, Config{Host: host, Port: port}, logger)
		require.NoError(t, err)
		defer client.Close()

		assert.NoError(t, client.Ping(ctx))
	})

	t.Run("unreachable server fails", func(t *testing.T) {
		mr := miniredis.RunT(t)
		host, port := mr.Host(), mustPort(t, mr)
		mr.Close()

		_, err := NewClient(ctx, Config{Host: host, Port: port, DialTimeout: 200 * time.Millisecond}, logger)
		assert.ErrorContains(t, err, "failed to connect to redis")
	})
}

func mustPort(t *testing.T, mr *miniredis.Miniredis) int {
	t.Helper()
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	return port
}
