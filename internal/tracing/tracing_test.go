package tracing

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.False(t, cfg.Enabled)
	require.Equal(t, ExporterStdout, cfg.Exporter)
	require.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	require.InDelta(t, 1.0, cfg.SampleRate, 0)
	require.Equal(t, "palette", cfg.ServiceName)
}

func TestNewProviderDisabled(t *testing.T) {
	ctx := context.Background()
	p, err := NewProvider(ctx, Config{})
	require.NoError(t, err)
	require.False(t, p.Enabled())

	_, span := p.TracerProvider().Tracer("test").Start(ctx, "span")
	require.False(t, span.SpanContext().IsValid(), "disabled tracing shouldn't record spans")
	span.End()
	require.NoError(t, p.Shutdown(ctx))
}

func TestNewProviderFileExporter(t *testing.T) {
	ctx := context.Background()
	out := filepath.Join(t.TempDir(), "traces.json")
	p, err := NewProvider(ctx, Config{
		Enabled:  true,
		Exporter: ExporterFile,
		FilePath: out,
	})
	require.NoError(t, err)
	require.True(t, p.Enabled())

	_, span := p.TracerProvider().Tracer("test").Start(ctx, "palette.Render")
	require.True(t, span.SpanContext().IsValid())
	span.End()
	require.NoError(t, p.Shutdown(ctx))

	contents, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Contains(t, string(contents), "palette.Render")
}

func TestNewProviderErrors(t *testing.T) {
	ctx := context.Background()
	_, err := NewProvider(ctx, Config{Enabled: true, Exporter: ExporterFile})
	require.Error(t, err, "file exporter needs a path")

	_, err = NewProvider(ctx, Config{Enabled: true, Exporter: "carrier-pigeon"})
	require.Error(t, err)
}

func TestNewProviderWithoutExporter(t *testing.T) {
	ctx := context.Background()
	p, err := NewProvider(ctx, Config{Enabled: true, Exporter: ExporterNone})
	require.NoError(t, err)
	_, span := p.TracerProvider().Tracer("test").Start(ctx, "span")
	require.True(t, span.SpanContext().IsValid())
	span.End()
	require.NoError(t, p.Shutdown(ctx))
}
