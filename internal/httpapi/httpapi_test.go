package httpapi

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"pwsrelay/internal/config"
	"pwsrelay/internal/metrics"
)

type fakeBroker bool

func (b fakeBroker) IsConnected() bool { return bool(b) }

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestHealthz(t *testing.T) {
	tests := []struct {
		name     string
		broker   BrokerStatus
		wantMQTT string
	}{
		{"broker connected", fakeBroker(true), "connected"},
		{"broker down", fakeBroker(false), "disconnected"},
		{"no broker", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := NewMux(openTestDB(t), tt.broker, metrics.NewCollector("test"))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["status"] != "ok" || body["mqtt"] != tt.wantMQTT {
				t.Errorf("body = %v", body)
			}
		})
	}
}

func TestHealthz_databaseDown(t *testing.T) {
	db := openTestDB(t)
	_ = db.Close()

	mux := NewMux(db, nil, metrics.NewCollector("test"))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d; want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.NewCollector("pwsrelay")
	m.RecordReading("home", "mqtt")
	mux := NewMux(openTestDB(t), nil, m)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `pwsrelay_readings_processed_total{source="mqtt",station="home"} 1`) {
		t.Errorf("metrics output missing readings counter:\n%s", rec.Body.String())
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	m := metrics.NewCollector("test")
	h := requestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}), m)

	for _, path := range []string{"/api/v1/stations", "/missing", "/healthz"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	out := buf.String()
	if !strings.Contains(out, `"path":"/api/v1/stations"`) || !strings.Contains(out, `"status":404`) {
		t.Errorf("log output = %s", out)
	}
	if strings.Contains(out, `"path":"/healthz"`) {
		t.Errorf("healthz should log at debug; output = %s", out)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "OK")); got != 2 {
		t.Errorf("http_requests_total{GET,OK} = %v; want 2", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "Not Found")); got != 1 {
		t.Errorf("http_requests_total{GET,Not Found} = %v; want 1", got)
	}
}

func TestNewServer(t *testing.T) {
	srv := NewServer(config.Config{HTTPAddr: "127.0.0.1:0"}, http.NewServeMux(), nil)
	if srv.Addr != "127.0.0.1:0" {
		t.Errorf("Addr = %q", srv.Addr)
	}
	if srv.Handler == nil || srv.ReadHeaderTimeout == 0 {
		t.Errorf("server not fully configured: %+v", srv)
	}
}
