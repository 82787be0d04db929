package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"pwsrelay/internal/metrics"
	"pwsrelay/internal/modules/weather/engine"
	"pwsrelay/internal/modules/weather/repository"
	"pwsrelay/internal/modules/weather/types"
	"pwsrelay/internal/wunderground"
)

// Reading sources, used as a metrics label.
const (
	SourceMQTT = "mqtt"
	SourceHTTP = "http"
)

var (
	ErrInvalidPayload = errors.New("invalid reading payload")
	// ErrDuplicateReading means an observation for the same station and
	// instant is already stored. The engine is not fed the reading again.
	ErrDuplicateReading = errors.New("reading already stored")
)

// IsRejected reports whether err means the reading itself was bad, as
// opposed to a storage or transport failure.
func IsRejected(err error) bool {
	return errors.Is(err, ErrInvalidPayload) || engine.IsInputError(err)
}

type Publisher interface {
	Publish(ctx context.Context, obs types.Observation) error
}

type Uploader interface {
	Upload(ctx context.Context, obs types.Observation) error
}

type Config struct {
	Engine   engine.Config
	Location *time.Location
	// UploadStation is the only station forwarded to the Uploader.
	UploadStation string
}

type Service struct {
	repository repository.WeatherRepository
	cfg        Config
	metrics    *metrics.Collector
	logger     *slog.Logger
	validate   *validator.Validate

	publisher Publisher
	uploader  Uploader

	now func() time.Time

	mu       sync.Mutex
	stations map[string]*station
}

// station serializes Build calls for one station's engine.
type station struct {
	mu     sync.Mutex
	engine *engine.Engine
}

func NewService(repo repository.WeatherRepository, cfg Config, m *metrics.Collector, logger *slog.Logger) (*Service, error) {
	if err := cfg.Engine.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repository: repo,
		cfg:        cfg,
		metrics:    m,
		logger:     logger,
		validate:   newValidator(),
		now:        time.Now,
		stations:   make(map[string]*station),
	}, nil
}

// SetPublisher makes the service publish every stored observation.
func (s *Service) SetPublisher(p Publisher) {
	s.publisher = p
}

// SetUploader makes the service forward UploadStation's observations.
func (s *Service) SetUploader(u Uploader) {
	s.uploader = u
}

// HandleMQTT adapts HandleReading to the MQTT subscriber callback. QoS 1
// redeliveries of a stored reading are not errors.
func (s *Service) HandleMQTT(ctx context.Context, stationID string, p types.RawReadingPayload) error {
	_, err := s.HandleReading(ctx, stationID, SourceMQTT, p)
	if errors.Is(err, ErrDuplicateReading) {
		s.logger.Debug("duplicate mqtt reading ignored", "station_id", stationID)
		return nil
	}
	return err
}

// HandleReading validates p, turns it into an observation with the station's
// engine and stores it. Publishing and uploading are best effort; their
// failures are logged and do not fail the reading.
func (s *Service) HandleReading(ctx context.Context, stationID, source string, p types.RawReadingPayload) (types.Observation, error) {
	if err := s.validate.Var(stationID, "required,max=64,printascii,excludesall=/+# "); err != nil {
		s.reject("station_id")
		return types.Observation{}, fmt.Errorf("%w: station id %q", ErrInvalidPayload, stationID)
	}
	if err := s.validate.Struct(p); err != nil {
		s.reject("validation")
		return types.Observation{}, fmt.Errorf("%w: %s", ErrInvalidPayload, describe(err))
	}

	at := s.now()
	if p.Timestamp != nil {
		at = *p.Timestamp
	}
	at = at.UTC().Truncate(time.Microsecond)

	obs, err := s.build(ctx, stationID, p.Reading(), at)
	if err != nil {
		return types.Observation{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordReading(stationID, source)
	}
	s.logger.Debug("observation stored",
		"station_id", stationID,
		"source", source,
		"temperature_f", obs.TemperatureF,
		"wind_dir_degrees", obs.WindDirDegrees,
		"rain_hour_in", obs.RainHourIn,
	)

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, obs); err != nil {
			s.logger.Warn("publish observation failed", "station_id", stationID, "error", err)
		}
	}
	if s.uploader != nil && stationID == s.cfg.UploadStation {
		s.upload(ctx, obs)
	}
	return obs, nil
}

func (s *Service) build(ctx context.Context, stationID string, raw types.RawReading, at time.Time) (types.Observation, error) {
	st, err := s.station(stationID)
	if err != nil {
		return types.Observation{}, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	n, err := s.repository.CountObservations(ctx, stationID, at, at)
	if err != nil {
		return types.Observation{}, err
	}
	if n > 0 {
		s.reject("duplicate")
		return types.Observation{}, fmt.Errorf("%w: station %q at %s", ErrDuplicateReading, stationID, at.Format(time.RFC3339Nano))
	}

	// A reading that fails to store must not count, so a retry sees the
	// same aggregator state.
	prev := st.engine.Clone()
	obs, err := st.engine.Build(raw, at, engine.LocalDay(at, s.cfg.Location))
	if err != nil {
		if errors.Is(err, engine.ErrInvalidWindDirection) {
			s.reject("wind_direction")
		} else {
			s.reject("numeric")
		}
		return types.Observation{}, err
	}
	obs.StationID = stationID

	if err := s.repository.UpsertStation(ctx, stationID, at); err != nil {
		st.engine = prev
		return types.Observation{}, err
	}
	if err := s.repository.InsertObservation(ctx, obs); err != nil {
		st.engine = prev
		return types.Observation{}, err
	}
	return obs, nil
}

// station returns the engine state for id, creating it on first use.
func (s *Service) station(id string) (*station, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.stations[id]; ok {
		return st, nil
	}
	e, err := engine.New(s.cfg.Engine)
	if err != nil {
		return nil, err
	}
	st := &station{engine: e}
	s.stations[id] = st
	return st, nil
}

func (s *Service) upload(ctx context.Context, obs types.Observation) {
	start := time.Now()
	err := s.uploader.Upload(ctx, obs)
	elapsed := time.Since(start)

	rec := types.Upload{
		StationID:  obs.StationID,
		ObservedAt: obs.ObservedAt,
		UploadedAt: s.now().UTC(),
		Status:     types.UploadOK,
	}
	switch {
	case errors.Is(err, wunderground.ErrCircuitOpen):
		rec.Status = types.UploadSkipped
		rec.Detail = err.Error()
		s.logger.Debug("upload skipped", "station_id", obs.StationID, "error", err)
	case err != nil:
		rec.Status = types.UploadFailed
		rec.Detail = err.Error()
		s.logger.Warn("upload failed", "station_id", obs.StationID, "error", err)
	}
	if s.metrics != nil {
		s.metrics.RecordUpload(rec.Status, elapsed)
	}
	if err := s.repository.RecordUpload(ctx, rec); err != nil {
		s.logger.Error("record upload failed", "station_id", obs.StationID, "error", err)
	}
}

func (s *Service) reject(reason string) {
	if s.metrics != nil {
		s.metrics.RecordRejected(reason)
	}
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// describe flattens validator errors into "field rule" pairs.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	var b strings.Builder
	for i, fe := range verrs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(fe.Field())
		b.WriteString(" ")
		b.WriteString(fe.Tag())
		if fe.Param() != "" {
			b.WriteString("=" + fe.Param())
		}
	}
	return b.String()
}
