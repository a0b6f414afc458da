// Package common holds small shared utilities: the health endpoint server,
// the prometheus metrics endpoint, and a dynamically adjustable rate limiter.
package common

import (
	"net/http"
	"sync/atomic"
	"time"
)

// HealthServer exposes liveness and readiness probes on a dedicated listener
// so orchestration platforms can gate traffic on service state.
type HealthServer struct {
	server *http.Server
	ready  *atomic.Bool
}

// NewHealthServer starts an HTTP server serving /v1/health and /v1/readiness.
// Readiness reports 503 until the provided flag is set.
func NewHealthServer(ready *atomic.Bool) *HealthServer {
	mux := http.NewServeMux()

	hs := &HealthServer{
		server: &http.Server{
			Addr:              ":8081",
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ready: ready,
	}

	mux.HandleFunc("/v1/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/v1/readiness", func(w http.ResponseWriter, r *http.Request) {
		if !hs.ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	go func() { _ = hs.server.ListenAndServe() }()

	return hs
}

// Server returns the underlying http server for graceful shutdown.
func (hs *HealthServer) Server() *http.Server { return hs.server }
