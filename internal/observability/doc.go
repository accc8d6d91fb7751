// Package observability provides structured logging and Prometheus metrics
// for the institution-sync tools.
//
// # Logging
//
// NewLogger builds a zerolog.Logger from LoggingConfig. The CLIs log
// human-readable console lines to stderr by default; set format to "json"
// for machine-readable output in CI.
//
//	logger := observability.NewLogger(observability.DefaultLoggingConfig())
//	logger = observability.WithRunContext(logger, runID, ror)
//
// # Metrics
//
// NewMetrics registers counters and histograms on a caller-supplied registry.
// The fetcher is one-shot, so metrics are exported with WriteTextfile at the
// end of a run instead of being served over HTTP.
package observability
