package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestConfig_ResourceAttributes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Namespace = "assistants"
	cfg.ResourceAttributes["deployment.environment"] = "dev"

	attrs := cfg.toResourceAttributes()

	assert.Contains(t, attrs, attribute.String("service.name", "ai-virtual-assistant"))
	assert.Contains(t, attrs, attribute.String("k8s.namespace.name", "assistants"))
	assert.Contains(t, attrs, attribute.String("deployment.environment", "dev"))
	for _, kv := range attrs {
		assert.NotEqual(t, attribute.Key("service.version"), kv.Key)
	}
}

func TestSamplerFor(t *testing.T) {
	assert.Equal(t, sdktrace.NeverSample().Description(), samplerFor(0).Description())
	assert.Equal(t, sdktrace.AlwaysSample().Description(), samplerFor(1).Description())
	assert.Equal(t, sdktrace.TraceIDRatioBased(0.5).Description(), samplerFor(0.5).Description())
}

func TestInitTracer_DisabledReturnsNoop(t *testing.T) {
	tr, err := InitTracer(DefaultConfig())
	assert.NoError(t, err)
	assert.NotNil(t, tr)
}

func TestNewExporter_Schemes(t *testing.T) {
	ctx := context.Background()

	for _, endpoint := range []string{"grpc://collector:4317", "http://collector:4318/v1/traces"} {
		cfg := DefaultConfig()
		cfg.EndpointURL = endpoint
		exp, err := newExporter(ctx, cfg)
		require.NoError(t, err, endpoint)
		require.NoError(t, exp.Shutdown(ctx))
	}

	cfg := DefaultConfig()
	cfg.EndpointURL = "udp://collector:4317"
	_, err := newExporter(ctx, cfg)
	assert.ErrorIs(t, err, ErrUnsupportedEndpoint)
}

func TestShutdown_WithoutProviderIsNoop(t *testing.T) {
	assert.NoError(t, Shutdown(context.Background()))
}
