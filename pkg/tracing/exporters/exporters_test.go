package exporters

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestConsoleExporter(t *testing.T) {
	start := time.Now()
	spans := tracetest.SpanStubs{
		{Name: "indexer.Indexer.Create", StartTime: start, EndTime: start.Add(time.Millisecond)},
	}.Snapshots()

	exporter := &ConsoleExporter{Logger: ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})}
	require.NoError(t, exporter.ExportSpans(context.Background(), spans))
	require.NoError(t, exporter.Shutdown(context.Background()))

	silent := &ConsoleExporter{}
	assert.NoError(t, silent.ExportSpans(context.Background(), spans))
}

func TestNewOTLPExporter_UnsupportedProtocol(t *testing.T) {
	cfg := DefaultOTLPConfig()
	cfg.Protocol = "udp"
	_, err := NewOTLPExporter(context.Background(), cfg)
	assert.Error(t, err)
}

func TestOptions(t *testing.T) {
	cfg := DefaultOTLPConfig()
	cfg.Headers = map[string]string{"x-api-key": "k"}
	assert.Len(t, grpcOptions(cfg), 5)

	cfg.Protocol = "http"
	cfg.URLPath = "/otlp/v1/traces"
	assert.Len(t, httpOptions(cfg), 5)
}

func TestOTLPConfig_Endpoint(t *testing.T) {
	cfg := DefaultOTLPConfig()
	assert.Equal(t, "localhost:4317", cfg.endpoint())

	cfg.Protocol = ProtocolHTTP
	assert.Equal(t, "localhost:4318", cfg.endpoint())

	cfg.Endpoint = "collector:4318"
	assert.Equal(t, "collector:4318", cfg.endpoint())
}
