package weather

import (
	"net/http"

	"github.com/jmoiron/sqlx"

	"pwsrelay/internal/config"
	"pwsrelay/internal/logging"
	"pwsrelay/internal/metrics"
	"pwsrelay/internal/modules/weather/controller"
	"pwsrelay/internal/modules/weather/repository"
	"pwsrelay/internal/modules/weather/service"
)

// Deps are the optional collaborators of the weather feature.
type Deps struct {
	Metrics   *metrics.Collector
	Publisher service.Publisher
	Uploader  service.Uploader
}

// Feature exposes the pieces other components need.
type Feature struct {
	Repository repository.WeatherRepository
	Service    *service.Service
}

func RegisterFeature(mux *http.ServeMux, db *sqlx.DB, cfg config.Config, deps Deps) (*Feature, error) {
	weatherRepository := repository.NewRepository(db)
	weatherService, err := service.NewService(weatherRepository, service.Config{
		Engine:        cfg.Engine,
		Location:      cfg.Location,
		UploadStation: cfg.WUStation,
	}, deps.Metrics, logging.Component("weather"))
	if err != nil {
		return nil, err
	}
	if deps.Publisher != nil {
		weatherService.SetPublisher(deps.Publisher)
	}
	if deps.Uploader != nil {
		weatherService.SetUploader(deps.Uploader)
	}

	weatherController := controller.NewWeatherController(weatherRepository, weatherService)
	weatherController.RegisterRoutes(mux)

	return &Feature{Repository: weatherRepository, Service: weatherService}, nil
}
