// Package telemetry provides observability instrumentation for cdevd:
// structured logging with zerolog, Prometheus metrics over an HTTP
// endpoint, and OpenTelemetry tracing with OTLP and stdout exporters.
//
// Initialize once at startup:
//
//	tel, err := telemetry.New(telemetry.DefaultConfig())
//	if err != nil {
//	    ...
//	}
//	defer tel.Shutdown(context.Background())
//
// Components receive a zerolog.Logger from tel.Logger.Component(name) and
// record event metrics through tel.Metrics.
package telemetry
