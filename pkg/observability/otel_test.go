package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitOTel_Disabled(t *testing.T) {
	providers, err := InitOTel(context.Background(), OTelConfig{Enabled: false}, NewNopLogger())
	require.NoError(t, err)
	assert.Nil(t, providers)
	assert.NoError(t, ShutdownOTel(context.Background(), providers, NewNopLogger()))
}

func TestSampler(t *testing.T) {
	assert.Equal(t, "AlwaysOnSampler", sampler(0).Description())
	assert.Equal(t, "AlwaysOnSampler", sampler(1).Description())
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
}

func TestWithTraceContext_NoSpan(t *testing.T) {
	logger := NewNopLogger()
	assert.Same(t, logger, WithTraceContext(context.Background(), logger))
}
