package httpapi

import (
	"net/http"

	"github.com/jmoiron/sqlx"

	"pwsrelay/internal/metrics"
)

func NewMux(db *sqlx.DB, broker BrokerStatus, m *metrics.Collector) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, db, broker)
	mux.Handle("GET /metrics", m.Handler())
	return mux
}
