package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voicebridge/gateway/internal/callsession"
)

// registerRoutes wires the gateway's entire HTTP surface: the PBX call
// socket, a liveness probe and Prometheus metrics. Per spec.md §1's
// Non-goals, there is no admin/stats surface beyond these three.
func registerRoutes(mux *http.ServeMux, handler *callsession.Handler) {
	mux.Handle("/ws/call", handler)
	mux.HandleFunc("/health", handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
