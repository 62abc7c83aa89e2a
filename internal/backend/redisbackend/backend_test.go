package redisbackend

import (
	"os"
	"testing"

	"order-store/internal/backend/backendtest"
	"order-store/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestContract(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("Integration test - requires TEST_REDIS_ADDR")
	}

	backendtest.Run(t, func(t *testing.T) store.Backend {
		// fresh prefix per subtest so schema markers start empty
		b, err := Open(addr, "", 0, "test:"+uuid.NewString()+":")
		require.NoError(t, err)
		return b
	})
}
