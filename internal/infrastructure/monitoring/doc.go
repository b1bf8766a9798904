/*
Package monitoring provides Prometheus metrics for the realtime client, the
generation sessions and the development server.

# Overview

Collectors are registered against a caller-supplied prometheus.Registerer so
that several clients (and tests) can coexist in one process. All recorder
methods are safe on a nil *Metrics.

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	client := realtime.New(base, tenant, token, realtime.WithMetrics(metrics))

	// Dev server
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
*/
package monitoring
