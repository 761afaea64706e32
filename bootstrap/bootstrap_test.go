package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/fangoost/config"
)

func TestInitialize_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	b, err := Initialize(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, b.Logger)
	assert.NotNil(t, b.Metrics)
	assert.NotNil(t, b.Metrics.BuildInfo)
	assert.Equal(t, "fangoost", b.ServiceName)

	b.Shutdown(context.Background())
}

func TestLogConfig(t *testing.T) {
	lc := LogConfig("svc", "pricing", config.LogConfig{Level: "debug", Format: "text", File: "/tmp/x.log", Stdout: true})
	assert.Equal(t, "svc", lc.Service)
	assert.Equal(t, "pricing", lc.Module)
	assert.Equal(t, "debug", lc.Level)
	assert.True(t, lc.Stdout)
}
