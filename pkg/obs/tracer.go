package obs

import (
	"context"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ragcore/ragcore/pkg/apperr"
)

const component = "obs"

// TracerConfig configures span export. When Enabled is false,
// InitTracer returns a no-op provider and installs nothing globally.
type TracerConfig struct {
	Enabled      bool
	ServiceName  string
	SamplingRate float64 // 0..1, default 1.0
}

func (c *TracerConfig) setDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "ragcore"
	}
	if c.SamplingRate == 0 {
		c.SamplingRate = 1.0
	}
}

// InitTracer installs a TracerProvider and returns a shutdown func.
// Spans are written to stderr: there is no sidecar OTLP collector in
// this deployment, so stdouttrace is the closer fit for a
// single-process backend.
func InitTracer(cfg TracerConfig) (trace.TracerProvider, func(context.Context) error, error) {
	if !cfg.Enabled {
		tp := noop.NewTracerProvider()
		return tp, func(context.Context) error { return nil }, nil
	}
	cfg.setDefaults()

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	if err != nil {
		return nil, nil, apperr.New(apperr.Permanent, component, "InitTracer", "create stdout exporter", err)
	}

	res, err := resource.New(context.Background(), resource.WithAttributes(attribute.String("service.name", cfg.ServiceName)))
	if err != nil {
		return nil, nil, apperr.New(apperr.Permanent, component, "InitTracer", "build resource", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRate)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, tp.Shutdown, nil
}

// Tracer returns a named tracer from the globally installed provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
