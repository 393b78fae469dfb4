package telemetry

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.False(t, tel.IsEnabled())
	assert.True(t, tel.Health().Healthy)
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = ""

	tel, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, tel)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"disabled skips checks", func(c *Config) { c.Endpoint = "" }, false},
		{"enabled local", func(c *Config) { c.Enabled = true }, false},
		{"insecure remote", func(c *Config) {
			c.Enabled = true
			c.Endpoint = "otel.example.com:4317"
		}, true},
		{"secure remote", func(c *Config) {
			c.Enabled = true
			c.Insecure = false
			c.Endpoint = "https://otel.example.com:4318"
			c.Protocol = "http/protobuf"
		}, false},
		{"bad protocol", func(c *Config) {
			c.Enabled = true
			c.Protocol = "thrift"
		}, true},
		{"bad sample rate", func(c *Config) {
			c.Enabled = true
			c.SampleRate = 1.5
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFromConfig(t *testing.T) {
	c := config.Default().Telemetry
	c.Enabled = true
	c.SampleRate = 0.25

	cfg := FromConfig(c, "1.2.3")
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "ragd", cfg.ServiceName)
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)
	assert.Equal(t, 0.25, cfg.SampleRate)
	assert.NoError(t, cfg.Validate())
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry
	assert.NotPanics(t, func() {
		_ = tel.Tracer("test")
		_ = tel.Meter("test")
		_ = tel.LoggerProvider()
		_ = tel.IsEnabled()
		_ = tel.Shutdown(context.Background())
		_ = tel.ForceFlush(context.Background())
	})
	assert.True(t, tel.Health().Degraded)
}

func TestTestTelemetry_RecordsSpansAndMetrics(t *testing.T) {
	tel := NewTestTelemetry()
	ctx := context.Background()

	_, span := tel.Tracer("test").Start(ctx, "pipeline.Ingest")
	span.SetAttributes(attribute.String("dataset.id", "ds1"), attribute.Int("files", 2))
	span.End()

	counter, err := tel.Meter("test").Int64Counter("ragd.test.counter")
	require.NoError(t, err)
	counter.Add(ctx, 1)

	tel.AssertSpanExists(t, "pipeline.Ingest")
	tel.AssertSpanAttribute(t, "pipeline.Ingest", "dataset.id", "ds1")
	tel.AssertSpanAttribute(t, "pipeline.Ingest", "files", int64(2))

	names, err := tel.MetricNames(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "ragd.test.counter")
}

func TestStripScheme(t *testing.T) {
	assert.Equal(t, "otel:4318", stripScheme("https://otel:4318"))
	assert.Equal(t, "otel:4318", stripScheme("http://otel:4318"))
	assert.Equal(t, "otel:4317", stripScheme("otel:4317"))
}
