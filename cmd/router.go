package main

import (
	"net/http"

	"github.com/angeloszaimis/scope/internal/api"
	"github.com/angeloszaimis/scope/internal/metrics"
)

func setupRouter(controlPlane *api.API, metricsCollector *metrics.Collector) *http.ServeMux {
	mux := http.NewServeMux()

	controlPlane.Register(mux)
	mux.HandleFunc("GET /metrics", metricsCollector.Handler())

	return mux
}
