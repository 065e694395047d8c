package tracing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/opscore/internal/config"
	"github.com/gyaneshwarpardhi/opscore/internal/tracing"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := tracing.Init(context.Background(), config.ServiceConf{Name: "opscore"}, config.TracingConf{})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestInitWithEndpoint(t *testing.T) {
	// The gRPC exporter connects lazily, so no collector is needed here.
	shutdown, err := tracing.Init(context.Background(),
		config.ServiceConf{Name: "opscore", Env: "test"},
		config.TracingConf{Endpoint: "127.0.0.1:4317", Insecure: true, SampleRatio: 1})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}
