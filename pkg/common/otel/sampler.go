package otel

import (
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// endpointExcluder drops traces for configured http endpoints (health and
// readiness probes) and applies probability sampling to everything else.
type endpointExcluder struct {
	endpoints   map[string]struct{}
	probability sdktrace.Sampler
}

func newEndpointExcluder(endpoints map[string]struct{}, probability float64) endpointExcluder {
	return endpointExcluder{
		endpoints:   endpoints,
		probability: sdktrace.TraceIDRatioBased(probability),
	}
}

// ShouldSample implements sdktrace.Sampler.
func (e endpointExcluder) ShouldSample(params sdktrace.SamplingParameters) sdktrace.SamplingResult {
	for _, attr := range params.Attributes {
		if attr.Key == semconv.HTTPTargetKey {
			if _, exists := e.endpoints[attr.Value.AsString()]; exists {
				return sdktrace.SamplingResult{Decision: sdktrace.Drop}
			}
		}
	}

	return e.probability.ShouldSample(params)
}

func (endpointExcluder) Description() string { return "endpointExcluder" }
