package controller

import (
	"context"
	"net/http"

	"pwsrelay/internal/modules/weather/repository"
	"pwsrelay/internal/modules/weather/types"
)

type WeatherController interface {
	RegisterRoutes(mux *http.ServeMux)
}

// Ingester turns a posted reading into a stored observation.
type Ingester interface {
	HandleReading(ctx context.Context, stationID, source string, p types.RawReadingPayload) (types.Observation, error)
}

type weatherControllerImpl struct {
	repository repository.WeatherRepository
	ingester   Ingester
}

func NewWeatherController(repository repository.WeatherRepository, ingester Ingester) WeatherController {
	return &weatherControllerImpl{repository: repository, ingester: ingester}
}

func (c *weatherControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", c.handleDashboard)
	mux.HandleFunc("GET /partials/conditions", c.handleConditionsPartial)
	mux.HandleFunc("GET /api/v1/stations", c.handleStations)
	mux.HandleFunc("GET /api/v1/stations/{id}/latest", c.handleLatest)
	mux.HandleFunc("GET /api/v1/stations/{id}/observations", c.handleObservations)
	mux.HandleFunc("GET /api/v1/stations/{id}/uploads", c.handleUploads)
	mux.HandleFunc("POST /api/v1/stations/{id}/readings", c.handleIngest)
}
