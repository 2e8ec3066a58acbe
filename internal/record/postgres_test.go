package record

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresBackendRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	dsn := os.Getenv("CRAWLER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CRAWLER_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	backend, err := NewPostgresBackend(ctx, dsn, "test-"+uuid.NewString())
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	defer backend.Close()

	s, err := Open(ctx, backend, nil)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, sampleRecord("pg_collection", "mars"), false))

	reopened, err := Open(ctx, backend, nil)
	require.NoError(t, err)
	got, err := reopened.Get("pg_collection")
	require.NoError(t, err)
	assert.Equal(t, "mars", got.Target)
}
