// Package metric provides Prometheus-based metrics collection and the HTTP
// server exposing them.
//
// Components accept an optional *MetricsRegistry; a nil registry disables
// metrics entirely (nil input = nil feature pattern). When a registry is
// provided, components build their own metric structs and register them under
// a component-scoped name so duplicate registrations are caught early.
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//	go func() {
//	    if err := server.Start(); err != nil {
//	        slog.Error("metrics server failed", "error", err)
//	    }
//	}()
//
// The server exposes Prometheus-formatted metrics on the configured path and
// a plain health check at /health.
package metric
