// Package telemetry provides logging, tracing and metrics for geobuild.
//
// # Logging
//
// Logs are zerolog JSON or console output on stderr. Packages take a zerolog.Logger
// and derive a component logger from it; a pass adds its pass_id:
//
//	logger := tel.Logger.NewComponentLogger("engine").WithPassID(passID)
//	logger.Info("Pass started")
//
// # Tracing
//
// Each pass is one OpenTelemetry trace with a span per stage. The exporter is "stdout"
// (pretty-printed to stderr), "otlp" (gRPC) or "none". Tracing is off by default.
//
// # Metrics
//
// Counters and histograms live in a private Prometheus registry. A one-shot pass
// writes them to MetricsConfig.TextfilePath for the node_exporter textfile collector;
// long-running commands can serve them over HTTP with Metrics.Serve.
//
// # Stages
//
// StartStage ties the three together:
//
//	st := telemetry.StartStage(ctx, "render")
//	err := render(st.Ctx)
//	st.End(err)
package telemetry
