package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_RequiresEndpoint(t *testing.T) {
	_, err := Init(context.Background(), Options{ServiceName: "weldflow-api"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint")
}

func TestInit_UnreachableCollectorDoesNotBlock(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p, err := Init(ctx, Options{
		ServiceName:   "weldflow-api-test",
		Environment:   "test",
		Endpoint:      "127.0.0.1:1",
		SamplingRatio: 1,
	})
	require.NoError(t, err)
	require.NotNil(t, p.Metrics)
	assert.NotNil(t, p.Metrics.RateLimitRejections)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancelShutdown()
	// the flush may fail against a closed port; the call must still return
	_ = p.Shutdown(shutdownCtx)
}
