package observability_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dividis/progress-engine/internal/infrastructure/observability"
)

func TestSetup_DisabledIsNoop(t *testing.T) {
	tests := []struct {
		name string
		cfg  observability.Config
	}{
		{"disabled", observability.Config{Endpoint: "http://localhost:4318"}},
		{"no endpoint", observability.Config{Enabled: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shutdown, err := observability.Setup(context.Background(), tt.cfg)
			require.NoError(t, err)
			require.NotNil(t, shutdown)
			assert.NoError(t, shutdown(context.Background()))
		})
	}
}

func TestSampler(t *testing.T) {
	assert.Contains(t, observability.Sampler(0).Description(), "root:AlwaysOnSampler")
	assert.Contains(t, observability.Sampler(1).Description(), "root:AlwaysOnSampler")
	assert.Contains(t, observability.Sampler(0.25).Description(), "root:TraceIDRatioBased{0.25}")
}
