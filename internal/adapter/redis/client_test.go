package redis

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_RejectsBadURL(t *testing.T) {
	_, err := NewClient(context.Background(), "not-a-redis-url", nil)
	assert.ErrorContains(t, err, "failed to parse redis URL")
}

func TestNewClient_ConnectsWithHooks(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	m := newTestMetrics()
	client, err := NewClient(context.Background(), testRedisURL, m)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Set(context.Background(), "tv:probe", "1", 0).Err())
	assert.Positive(t, testutil.CollectAndCount(m.OpDuration))
}
