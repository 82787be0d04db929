package httpapi

import (
	"net/http"
	"time"

	"pwsrelay/internal/config"
	"pwsrelay/internal/metrics"
)

func NewServer(cfg config.Config, mux *http.ServeMux, m *metrics.Collector) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           requestLogger(mux, m),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
