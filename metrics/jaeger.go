package metrics

import (
	logging "github.com/ipfs/go-log/v2"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.7.0"
)

var log = logging.Logger("escrowdex/metrics")

// NewJaegerTraceProvider returns a TracerProvider that batches spans to a Jaeger collector. A sampleRatio of 1
// samples every trace, a ratio between 0 and 1 samples that fraction of root traces and anything else disables
// sampling.
func NewJaegerTraceProvider(serviceName, collectorEndpoint string, sampleRatio float64) (*tracesdk.TracerProvider, error) {
	log.Infow("creating jaeger trace provider", "serviceName", serviceName, "ratio", sampleRatio, "endpoint", collectorEndpoint)
	var sampler tracesdk.Sampler
	switch {
	case sampleRatio == 1:
		sampler = tracesdk.AlwaysSample()
	case sampleRatio > 0 && sampleRatio < 1:
		sampler = tracesdk.ParentBased(tracesdk.TraceIDRatioBased(sampleRatio))
	default:
		sampler = tracesdk.NeverSample()
	}

	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(collectorEndpoint)))
	if err != nil {
		return nil, err
	}
	return tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithSampler(sampler),
		tracesdk.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		)),
	), nil
}
