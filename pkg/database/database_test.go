package database

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONB_Scan(t *testing.T) {
	t.Run("bytes", func(t *testing.T) {
		src := []byte(`{"a":1}`)
		var v JSONB[json.RawMessage]
		require.NoError(t, v.Scan(src))

		// the scanned value must not alias the driver buffer
		copy(src, `{"b":2}`)
		assert.JSONEq(t, `{"a":1}`, string(v.GetValue()))
	})

	t.Run("string", func(t *testing.T) {
		var v JSONB[map[string]any]
		require.NoError(t, v.Scan(`{"a":"x"}`))
		assert.Equal(t, "x", v.GetValue()["a"])
	})

	t.Run("null resets to zero value", func(t *testing.T) {
		v := JSONB[map[string]any]{Data: map[string]any{"stale": true}}
		require.NoError(t, v.Scan(nil))
		assert.Nil(t, v.GetValue())
	})

	t.Run("unsupported", func(t *testing.T) {
		var v JSONB[json.RawMessage]
		assert.Error(t, v.Scan(42))
	})
}

func TestLatestVersion(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"000001_init.up.sql", "000001_init.down.sql", "000003_refs.up.sql", "000002_x.up.sql", "README.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o600))
	}

	version, err := LatestVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, version)

	_, err = LatestVersion(t.TempDir())
	assert.Error(t, err)
}

func TestLatestVersion_Repository(t *testing.T) {
	version, err := LatestVersion(filepath.Join("..", "..", "db", "pg"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, version, 1)
}
