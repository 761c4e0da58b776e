// Package metric provides the Prometheus registry and HTTP endpoint shared by
// every ringkit component.
//
// MetricsRegistry wraps a private prometheus.Registry. It pre-registers the
// core ring metrics (channel fill level and eviction, flush throughput and
// failures, mailbox depth) together with the Go runtime collectors, and lets
// components add their own metrics under an owner name:
//
//	registry := metric.NewMetricsRegistry()
//	buf, err := buffer.NewCircularBuffer[ipc.Frame](64,
//		buffer.WithMetrics[ipc.Frame](registry, "mailbox_requests"))
//
// Registering the same owner.metricName twice returns an invalid-class error.
// UnregisterOwner removes everything an owner registered, which lets a
// runtime rebuilt after a config reload register again under the same names.
//
// Server exposes the registry at the configured path (default /metrics) and a
// plain-text /health endpoint:
//
//	server := metric.NewServer(9090, "/metrics", registry)
//	go func() { _ = server.Start() }()
//	defer server.Stop(context.Background())
package metric
