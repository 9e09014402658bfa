package service

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/log"
	"github.com/rs/cors"
)

// Health is the healthz response body. The last-run fields stay empty until a
// run has completed.
type Health struct {
	Status        string `json:"status"`
	Version       string `json:"version,omitempty"`
	LastRunID     string `json:"last_run_id,omitempty"`
	LastRunResult string `json:"last_run_result,omitempty"`
}

// HealthzServer serves liveness probes, enriched with the most recent run's
// outcome when a status source is wired in.
type HealthzServer struct {
	ctx    context.Context
	server *http.Server
	status func() Health
}

func (h *HealthzServer) Start(ctx context.Context, addr string) error {
	hdlr := http.NewServeMux()
	hdlr.HandleFunc("/healthz", h.Handle)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	server := &http.Server{
		Handler: c.Handler(hdlr),
		Addr:    addr,
	}
	h.server = server
	h.ctx = ctx
	return h.server.ListenAndServe()
}

func (h *HealthzServer) Shutdown() error {
	return h.server.Shutdown(h.ctx)
}

func (h *HealthzServer) Handle(w http.ResponseWriter, r *http.Request) {
	log.Debug("Received health check request", "path", r.URL.Path)
	health := Health{Status: "ok"}
	if h.status != nil {
		health = h.status()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health) //nolint:errcheck
}
