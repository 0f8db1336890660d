package exporters

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"
)

// OTLPConfig points the exporter at a collector
type OTLPConfig struct {
	// Endpoint is the collector host:port. Empty picks localhost on the
	// protocol's standard port.
	Endpoint string
	Protocol string
	// URLPath replaces /v1/traces for HTTP collectors behind a prefix
	URLPath  string
	Insecure bool
	Headers  map[string]string
	Timeout  time.Duration
}

func DefaultOTLPConfig() OTLPConfig {
	return OTLPConfig{
		Protocol: ProtocolGRPC,
		Insecure: true,
		Timeout:  10 * time.Second,
	}
}

func (c OTLPConfig) endpoint() string {
	switch {
	case c.Endpoint != "":
		return c.Endpoint
	case c.Protocol == ProtocolHTTP:
		return "localhost:4318"
	default:
		return "localhost:4317"
	}
}

func NewOTLPExporter(ctx context.Context, cfg OTLPConfig) (*otlptrace.Exporter, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultOTLPConfig().Timeout
	}

	switch cfg.Protocol {
	case ProtocolGRPC, "":
		return otlptracegrpc.New(ctx, grpcOptions(cfg)...)
	case ProtocolHTTP:
		return otlptracehttp.New(ctx, httpOptions(cfg)...)
	}
	return nil, fmt.Errorf("unsupported OTLP protocol %q", cfg.Protocol)
}

func grpcOptions(cfg OTLPConfig) []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.endpoint()),
		otlptracegrpc.WithTimeout(cfg.Timeout),
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}
	if !cfg.Insecure {
		return opts
	}
	return append(opts,
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
}

func httpOptions(cfg OTLPConfig) []otlptracehttp.Option {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.endpoint()),
		otlptracehttp.WithTimeout(cfg.Timeout),
	}
	if cfg.URLPath != "" {
		opts = append(opts, otlptracehttp.WithURLPath(cfg.URLPath))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return opts
}
