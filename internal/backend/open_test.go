package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"order-store/config"
	"order-store/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_Memory(t *testing.T) {
	b, err := Open(context.Background(), &config.Config{Backend: config.BackendMemory})
	require.NoError(t, err)
	assert.Equal(t, "memory", b.Name())
}

func TestOpen_UnknownBackend(t *testing.T) {
	b, err := Open(context.Background(), &config.Config{Backend: "cassandra"})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	assert.True(t, b == nil)
}

func TestOpen_FailureReturnsNilInterface(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	pebbleCfg := &config.Config{Backend: config.BackendPebble}
	pebbleCfg.Pebble.Dir = filepath.Join(file, "db")

	postgresCfg := &config.Config{Backend: config.BackendPostgres}
	postgresCfg.Database.URL = "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1"

	for name, cfg := range map[string]*config.Config{"pebble": pebbleCfg, "postgres": postgresCfg} {
		t.Run(name, func(t *testing.T) {
			b, err := Open(context.Background(), cfg)
			assert.ErrorIs(t, err, models.ErrBackendUnavailable)
			// a typed nil pointer inside the interface would compare non-nil here
			assert.True(t, b == nil)
		})
	}
}
