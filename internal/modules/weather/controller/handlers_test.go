package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pwsrelay/internal/modules/weather/engine"
	"pwsrelay/internal/modules/weather/service"
	"pwsrelay/internal/modules/weather/types"
	"pwsrelay/internal/modules/weather/views"
)

type mockRepo struct {
	stations        []types.Station
	stationsErr     error
	latest          []types.Observation
	latestErr       error
	observations    []types.Observation
	observationsErr error
	count           int
	countErr        error
	uploads         []types.Upload
	uploadsErr      error

	gotFrom, gotTo time.Time
	gotLimit       int
	gotOffset      int
}

func (m *mockRepo) UpsertStation(ctx context.Context, stationID string, seen time.Time) error {
	return nil
}

func (m *mockRepo) GetStations(ctx context.Context) ([]types.Station, error) {
	return m.stations, m.stationsErr
}

func (m *mockRepo) InsertObservation(ctx context.Context, obs types.Observation) error {
	return nil
}

func (m *mockRepo) GetLatestObservations(ctx context.Context, stationID string, limit int) ([]types.Observation, error) {
	m.gotLimit = limit
	return m.latest, m.latestErr
}

func (m *mockRepo) GetObservations(ctx context.Context, stationID string, from, to time.Time, limit, offset int) ([]types.Observation, error) {
	m.gotFrom, m.gotTo, m.gotLimit, m.gotOffset = from, to, limit, offset
	return m.observations, m.observationsErr
}

func (m *mockRepo) CountObservations(ctx context.Context, stationID string, from, to time.Time) (int, error) {
	return m.count, m.countErr
}

func (m *mockRepo) DeleteObservationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (m *mockRepo) RecordUpload(ctx context.Context, u types.Upload) error {
	return nil
}

func (m *mockRepo) GetUploads(ctx context.Context, stationID string, limit int) ([]types.Upload, error) {
	m.gotLimit = limit
	return m.uploads, m.uploadsErr
}

type mockIngester struct {
	obs       types.Observation
	err       error
	gotID     string
	gotSource string
	gotDir    string
}

func (m *mockIngester) HandleReading(ctx context.Context, stationID, source string, p types.RawReadingPayload) (types.Observation, error) {
	m.gotID, m.gotSource, m.gotDir = stationID, source, p.WindDirection
	return m.obs, m.err
}

func newCtrl(repo *mockRepo, ing *mockIngester) *weatherControllerImpl {
	if ing == nil {
		ing = &mockIngester{}
	}
	return NewWeatherController(repo, ing).(*weatherControllerImpl)
}

var obsTime = time.Date(2025, 2, 3, 12, 0, 0, 0, time.UTC)

func sampleObs(station string, tempF float64) types.Observation {
	return types.Observation{
		StationID:      station,
		ObservedAt:     obsTime,
		DateUTC:        obsTime.Format(types.DateUTCLayout),
		TemperatureF:   tempF,
		WindDirDegrees: 90,
	}
}

func Test_handleDashboard(t *testing.T) {
	t.Run("returns 404 when path is not /", func(t *testing.T) {
		ctrl := newCtrl(&mockRepo{}, nil)
		req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
		rec := httptest.NewRecorder()

		ctrl.handleDashboard(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusNotFound)
		}
	})

	t.Run("returns 500 when stations fail", func(t *testing.T) {
		ctrl := newCtrl(&mockRepo{stationsErr: errors.New("db error")}, nil)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		ctrl.handleDashboard(rec, req)

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusInternalServerError)
		}
	})

	t.Run("returns 500 when latest lookup fails", func(t *testing.T) {
		ctrl := newCtrl(&mockRepo{
			stations:  []types.Station{{ID: "home"}},
			latestErr: errors.New("db error"),
		}, nil)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		ctrl.handleDashboard(rec, req)

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusInternalServerError)
		}
		if !strings.Contains(rec.Body.String(), "failed to load observations") {
			t.Errorf("body = %q", rec.Body.String())
		}
	})

	t.Run("renders HTML with every station", func(t *testing.T) {
		if err := views.LoadTemplates(); err != nil {
			t.Fatalf("LoadTemplates: %v", err)
		}
		ctrl := newCtrl(&mockRepo{
			stations: []types.Station{{ID: "home"}, {ID: "shed"}},
			latest:   []types.Observation{sampleObs("home", 71.5)},
		}, nil)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		ctrl.handleDashboard(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
			t.Errorf("Content-Type = %q; want text/html; charset=utf-8", ct)
		}
		body := rec.Body.String()
		for _, want := range []string{"<!DOCTYPE html>", "home", "shed", "71.5"} {
			if !strings.Contains(body, want) {
				t.Errorf("body missing %q", want)
			}
		}
	})
}

func Test_handleConditionsPartial(t *testing.T) {
	if err := views.LoadTemplates(); err != nil {
		t.Fatalf("LoadTemplates: %v", err)
	}
	stations := []types.Station{{ID: "home"}}

	t.Run("renders the station card", func(t *testing.T) {
		ctrl := newCtrl(&mockRepo{stations: stations, latest: []types.Observation{sampleObs("home", 60)}}, nil)
		req := httptest.NewRequest(http.MethodGet, "/partials/conditions?station_id=home", nil)
		rec := httptest.NewRecorder()

		ctrl.handleConditionsPartial(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
		}
		body := rec.Body.String()
		if strings.Contains(body, "<!DOCTYPE") || !strings.Contains(body, "60.0") {
			t.Errorf("body = %q; want a card with 60.0", body)
		}
	})

	t.Run("no recent observation", func(t *testing.T) {
		ctrl := newCtrl(&mockRepo{stations: stations}, nil)
		req := httptest.NewRequest(http.MethodGet, "/partials/conditions?station_id=home", nil)
		rec := httptest.NewRecorder()

		ctrl.handleConditionsPartial(rec, req)

		if !strings.Contains(rec.Body.String(), "No recent observation") {
			t.Errorf("body = %q", rec.Body.String())
		}
	})

	t.Run("400 without station_id", func(t *testing.T) {
		ctrl := newCtrl(&mockRepo{stations: stations}, nil)
		req := httptest.NewRequest(http.MethodGet, "/partials/conditions", nil)
		rec := httptest.NewRecorder()

		ctrl.handleConditionsPartial(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("404 for unknown station", func(t *testing.T) {
		ctrl := newCtrl(&mockRepo{stations: stations}, nil)
		req := httptest.NewRequest(http.MethodGet, "/partials/conditions?station_id=ghost", nil)
		rec := httptest.NewRecorder()

		ctrl.handleConditionsPartial(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusNotFound)
		}
	})
}

func Test_handleStations(t *testing.T) {
	t.Run("returns stations on success", func(t *testing.T) {
		stations := []types.Station{
			{ID: "home", CreatedAt: obsTime},
			{ID: "shed", CreatedAt: obsTime},
		}
		ctrl := newCtrl(&mockRepo{stations: stations}, nil)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/stations", nil)
		rec := httptest.NewRecorder()

		ctrl.handleStations(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusOK)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
			t.Errorf("Content-Type = %q; want application/json", ct)
		}
		var got []types.Station
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(got) != 2 || got[0].ID != "home" {
			t.Errorf("stations = %+v", got)
		}
		if strings.Contains(rec.Body.String(), "lastSeen") {
			t.Errorf("zero lastSeen should be omitted; body = %q", rec.Body.String())
		}
	})

	t.Run("returns 500 when repository fails", func(t *testing.T) {
		ctrl := newCtrl(&mockRepo{stationsErr: errors.New("db error")}, nil)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/stations", nil)
		rec := httptest.NewRecorder()

		ctrl.handleStations(rec, req)

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusInternalServerError)
		}
		body := rec.Body.String()
		if !strings.Contains(body, "error") || !strings.Contains(body, "db error") {
			t.Errorf("body = %q; expected error JSON", body)
		}
	})
}

func Test_handleLatest(t *testing.T) {
	t.Run("returns latest observations on success", func(t *testing.T) {
		repo := &mockRepo{latest: []types.Observation{sampleObs("home", 12.5)}}
		ctrl := newCtrl(repo, nil)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/stations/home/latest?limit=5", nil)
		req.SetPathValue("id", "home")
		rec := httptest.NewRecorder()

		ctrl.handleLatest(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusOK)
		}
		body := rec.Body.String()
		if !strings.Contains(body, `"stationId":"home"`) || !strings.Contains(body, "12.5") {
			t.Errorf("body = %q; expected observations JSON", body)
		}
		if repo.gotLimit != 5 {
			t.Errorf("limit = %d; want 5", repo.gotLimit)
		}
	})

	t.Run("returns 400 when station id is missing", func(t *testing.T) {
		ctrl := newCtrl(&mockRepo{}, nil)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/stations//latest", nil)
		req.SetPathValue("id", "")
		rec := httptest.NewRecorder()

		ctrl.handleLatest(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusBadRequest)
		}
		if !strings.Contains(rec.Body.String(), "missing station id") {
			t.Errorf("body = %q; expected missing station id", rec.Body.String())
		}
	})

	t.Run("returns 500 when repository fails", func(t *testing.T) {
		ctrl := newCtrl(&mockRepo{latestErr: errors.New("db error")}, nil)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/stations/home/latest", nil)
		req.SetPathValue("id", "home")
		rec := httptest.NewRecorder()

		ctrl.handleLatest(rec, req)

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusInternalServerError)
		}
	})

	t.Run("returns 400 when limit is invalid", func(t *testing.T) {
		ctrl := newCtrl(&mockRepo{}, nil)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/stations/home/latest?limit=abc", nil)
		req.SetPathValue("id", "home")
		rec := httptest.NewRecorder()

		ctrl.handleLatest(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusBadRequest)
		}
	})
}

func Test_handleObservations(t *testing.T) {
	t.Run("returns observations with total count", func(t *testing.T) {
		repo := &mockRepo{observations: []types.Observation{sampleObs("home", 10)}, count: 42}
		ctrl := newCtrl(repo, nil)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/stations/home/observations?from=2025-01-01T00:00:00Z&to=2025-01-02T00:00:00Z&limit=10&page=3", nil)
		req.SetPathValue("id", "home")
		rec := httptest.NewRecorder()

		ctrl.handleObservations(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
		}
		if got := rec.Header().Get("X-Total-Count"); got != "42" {
			t.Errorf("X-Total-Count = %q; want 42", got)
		}
		if repo.gotLimit != 10 || repo.gotOffset != 20 {
			t.Errorf("limit/offset = %d/%d; want 10/20", repo.gotLimit, repo.gotOffset)
		}
		if !repo.gotFrom.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("from = %v", repo.gotFrom)
		}
	})

	tests := []struct {
		name   string
		id     string
		query  string
		repo   *mockRepo
		status int
	}{
		{"missing station id", "", "", &mockRepo{}, http.StatusBadRequest},
		{"invalid from", "home", "?from=not-a-date", &mockRepo{}, http.StatusBadRequest},
		{"invalid to", "home", "?to=not-a-date", &mockRepo{}, http.StatusBadRequest},
		{"from after to", "home", "?from=2025-01-02T00:00:00Z&to=2025-01-01T00:00:00Z", &mockRepo{}, http.StatusBadRequest},
		{"invalid range", "home", "?range=2w", &mockRepo{}, http.StatusBadRequest},
		{"invalid limit", "home", "?limit=abc", &mockRepo{}, http.StatusBadRequest},
		{"count fails", "home", "", &mockRepo{countErr: errors.New("db error")}, http.StatusInternalServerError},
		{"list fails", "home", "", &mockRepo{observationsErr: errors.New("db error")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newCtrl(tt.repo, nil)
			req := httptest.NewRequest(http.MethodGet, "/api/v1/stations/x/observations"+tt.query, nil)
			req.SetPathValue("id", tt.id)
			rec := httptest.NewRecorder()

			ctrl.handleObservations(rec, req)

			if rec.Code != tt.status {
				t.Errorf("status = %d; want %d (body %q)", rec.Code, tt.status, rec.Body.String())
			}
		})
	}
}

func Test_handleUploads(t *testing.T) {
	t.Run("returns uploads", func(t *testing.T) {
		repo := &mockRepo{uploads: []types.Upload{{StationID: "home", ObservedAt: obsTime, UploadedAt: obsTime, Status: types.UploadOK}}}
		ctrl := newCtrl(repo, nil)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/stations/home/uploads?limit=3", nil)
		req.SetPathValue("id", "home")
		rec := httptest.NewRecorder()

		ctrl.handleUploads(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
		}
		if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
			t.Errorf("body = %q", rec.Body.String())
		}
		if repo.gotLimit != 3 {
			t.Errorf("limit = %d; want 3", repo.gotLimit)
		}
	})

	t.Run("returns 500 when repository fails", func(t *testing.T) {
		ctrl := newCtrl(&mockRepo{uploadsErr: errors.New("db error")}, nil)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/stations/home/uploads", nil)
		req.SetPathValue("id", "home")
		rec := httptest.NewRecorder()

		ctrl.handleUploads(rec, req)

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusInternalServerError)
		}
	})
}

func Test_handleIngest(t *testing.T) {
	body := `{"temperature_c":20,"humidity_pct":50,"wind_ave_mph":3,"wind_gust_mph":6,"wind_dir":"E","total_rain_mm":0,"pressure_hpa":1013.25}`

	t.Run("returns 201 with the observation", func(t *testing.T) {
		ing := &mockIngester{obs: sampleObs("home", 68)}
		ctrl := newCtrl(&mockRepo{}, ing)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/stations/home/readings", strings.NewReader(body))
		req.SetPathValue("id", "home")
		rec := httptest.NewRecorder()

		ctrl.handleIngest(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d; want %d (body %q)", rec.Code, http.StatusCreated, rec.Body.String())
		}
		var got types.Observation
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.TemperatureF != 68 {
			t.Errorf("TemperatureF = %v; want 68", got.TemperatureF)
		}
		if ing.gotID != "home" || ing.gotSource != service.SourceHTTP || ing.gotDir != "E" {
			t.Errorf("ingester got %q/%q/%q", ing.gotID, ing.gotSource, ing.gotDir)
		}
	})

	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"malformed json", `{"temperature_c":`, nil, http.StatusBadRequest},
		{"unknown wind direction", body, &engine.InputError{Field: "wind_dir", Value: "X", Err: engine.ErrInvalidWindDirection}, http.StatusBadRequest},
		{"numeric input", body, &engine.InputError{Field: "humidity_pct", Value: 0.0, Err: engine.ErrInvalidNumericInput}, http.StatusBadRequest},
		{"validation", body, fmt.Errorf("%w: pressure_hpa required", service.ErrInvalidPayload), http.StatusBadRequest},
		{"duplicate reading", body, fmt.Errorf("%w: station \"home\"", service.ErrDuplicateReading), http.StatusConflict},
		{"storage failure", body, errors.New("disk full"), http.StatusInternalServerError},
		{"too large", `{"wind_dir":"` + strings.Repeat("N", maxReadingBytes) + `"}`, nil, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newCtrl(&mockRepo{}, &mockIngester{err: tt.err})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/stations/home/readings", strings.NewReader(tt.body))
			req.SetPathValue("id", "home")
			rec := httptest.NewRecorder()

			ctrl.handleIngest(rec, req)

			if rec.Code != tt.status {
				t.Errorf("status = %d; want %d (body %q)", rec.Code, tt.status, rec.Body.String())
			}
		})
	}
}

func TestRegisterRoutes(t *testing.T) {
	if err := views.LoadTemplates(); err != nil {
		t.Fatalf("LoadTemplates: %v", err)
	}
	mux := http.NewServeMux()
	newCtrl(&mockRepo{stations: []types.Station{{ID: "home"}}}, &mockIngester{}).RegisterRoutes(mux)

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/nope", http.StatusNotFound},
		{http.MethodGet, "/api/v1/stations", http.StatusOK},
		{http.MethodGet, "/api/v1/stations/home/latest", http.StatusOK},
		{http.MethodGet, "/api/v1/stations/home/observations", http.StatusOK},
		{http.MethodGet, "/api/v1/stations/home/uploads", http.StatusOK},
		{http.MethodGet, "/api/v1/stations/home/readings", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.status {
				t.Errorf("status = %d; want %d", rec.Code, tt.status)
			}
		})
	}
}
