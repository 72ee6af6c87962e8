/*
Package monitoring provides Prometheus metrics for the render engine.

# Overview

Metrics live on a private registry so several engines (and tests) can run
in one process. A nil *Metrics records nothing, which lets providers take
metrics as an optional dependency.

# Metrics

- Gateway HTTP requests (latency, throughput, size)
- Renders by outcome and duration, failures by stage
- Teardown errors by resource
- Dangling timers detected after teardown
- Script downloads by cache provenance, retries

# Usage

	metrics := monitoring.NewMetrics()
	defer metrics.Close()

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics)
	// ... render ...
	timer.Stop("success")
*/
package monitoring
