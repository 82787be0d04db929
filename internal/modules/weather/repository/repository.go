package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"pwsrelay/internal/modules/weather/engine"
	"pwsrelay/internal/modules/weather/types"
)

//go:embed sql/upsert-station.sql
var upsertStationSQL string

//go:embed sql/get-stations.sql
var getStationsSQL string

//go:embed sql/insert-observation.sql
var insertObservationSQL string

//go:embed sql/get-latest-observations.sql
var getLatestObservationsSQL string

//go:embed sql/get-observations.sql
var getObservationsSQL string

//go:embed sql/count-observations.sql
var countObservationsSQL string

//go:embed sql/delete-observations-before.sql
var deleteObservationsBeforeSQL string

//go:embed sql/delete-uploads-before.sql
var deleteUploadsBeforeSQL string

//go:embed sql/upsert-upload.sql
var upsertUploadSQL string

//go:embed sql/get-uploads.sql
var getUploadsSQL string

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000Z"

var (
	minTime = time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)
	maxTime = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
)

type WeatherRepository interface {
	UpsertStation(ctx context.Context, stationID string, seen time.Time) error
	GetStations(ctx context.Context) ([]types.Station, error)
	InsertObservation(ctx context.Context, obs types.Observation) error
	GetLatestObservations(ctx context.Context, stationID string, limit int) ([]types.Observation, error)
	GetObservations(ctx context.Context, stationID string, from time.Time, to time.Time, limit int, offset int) ([]types.Observation, error)
	CountObservations(ctx context.Context, stationID string, from time.Time, to time.Time) (int, error)
	DeleteObservationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	RecordUpload(ctx context.Context, u types.Upload) error
	GetUploads(ctx context.Context, stationID string, limit int) ([]types.Upload, error)
}

type repositoryImpl struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) WeatherRepository {
	return &repositoryImpl{db: db}
}

type stationRow struct {
	ID        string         `db:"id"`
	CreatedAt string         `db:"created_at"`
	LastSeen  sql.NullString `db:"last_seen"`
}

type observationRow struct {
	StationID      string  `db:"station_id"`
	ObservedAt     string  `db:"observed_at"`
	DateUTC        string  `db:"date_utc"`
	TemperatureF   float64 `db:"temperature_f"`
	DewPointF      float64 `db:"dew_point_f"`
	HumidityPct    float64 `db:"humidity_pct"`
	WindSpeedMph   float64 `db:"wind_speed_mph"`
	WindGustMph    float64 `db:"wind_gust_mph"`
	WindDirDegrees float64 `db:"wind_dir_degrees"`
	PressureInHg   float64 `db:"pressure_inhg"`
	RainHourMm     float64 `db:"rain_hour_mm"`
	RainTodayMm    float64 `db:"rain_today_mm"`
}

type uploadRow struct {
	StationID  string `db:"station_id"`
	ObservedAt string `db:"observed_at"`
	UploadedAt string `db:"uploaded_at"`
	Status     string `db:"status"`
	Detail     string `db:"detail"`
}

func (r *repositoryImpl) UpsertStation(ctx context.Context, stationID string, seen time.Time) error {
	ts := formatTime(seen)
	_, err := r.db.ExecContext(ctx, r.db.Rebind(upsertStationSQL), stationID, ts, ts)
	if err != nil {
		return fmt.Errorf("upsert station %q: %w", stationID, err)
	}
	return nil
}

func (r *repositoryImpl) GetStations(ctx context.Context) ([]types.Station, error) {
	var rows []stationRow
	if err := r.db.SelectContext(ctx, &rows, getStationsSQL); err != nil {
		return nil, err
	}
	out := make([]types.Station, 0, len(rows))
	for _, row := range rows {
		created, err := parseTime(row.CreatedAt)
		if err != nil {
			return nil, err
		}
		s := types.Station{ID: row.ID, CreatedAt: created}
		if row.LastSeen.Valid {
			if s.LastSeen, err = parseTime(row.LastSeen.String); err != nil {
				return nil, err
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// InsertObservation stores obs. A second observation for the same station
// and instant is ignored.
func (r *repositoryImpl) InsertObservation(ctx context.Context, obs types.Observation) error {
	row := observationRow{
		StationID:      obs.StationID,
		ObservedAt:     formatTime(obs.ObservedAt),
		DateUTC:        obs.DateUTC,
		TemperatureF:   obs.TemperatureF,
		DewPointF:      obs.DewPointF,
		HumidityPct:    obs.HumidityPct,
		WindSpeedMph:   obs.WindSpeedMph,
		WindGustMph:    obs.WindGustMph,
		WindDirDegrees: obs.WindDirDegrees,
		PressureInHg:   obs.PressureInHg,
		RainHourMm:     obs.RainHourMm,
		RainTodayMm:    obs.RainTodayMm,
	}
	if _, err := r.db.NamedExecContext(ctx, insertObservationSQL, row); err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

func (r *repositoryImpl) GetLatestObservations(ctx context.Context, stationID string, limit int) ([]types.Observation, error) {
	var rows []observationRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(getLatestObservationsSQL), stationID, limit); err != nil {
		return nil, err
	}
	return toObservations(rows)
}

// GetObservations returns observations in [from, to], newest first. A zero
// from or to leaves that end open.
func (r *repositoryImpl) GetObservations(ctx context.Context, stationID string, from time.Time, to time.Time, limit int, offset int) ([]types.Observation, error) {
	lo, hi := bounds(from, to)
	var rows []observationRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(getObservationsSQL), stationID, lo, hi, limit, offset); err != nil {
		return nil, err
	}
	return toObservations(rows)
}

func (r *repositoryImpl) CountObservations(ctx context.Context, stationID string, from time.Time, to time.Time) (int, error) {
	lo, hi := bounds(from, to)
	var n int
	err := r.db.GetContext(ctx, &n, r.db.Rebind(countObservationsSQL), stationID, lo, hi)
	return n, err
}

// DeleteObservationsBefore removes observations and upload records older
// than cutoff and returns the number of observations removed.
func (r *repositoryImpl) DeleteObservationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ts := formatTime(cutoff)
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, tx.Rebind(deleteUploadsBeforeSQL), ts); err != nil {
		return 0, fmt.Errorf("delete uploads: %w", err)
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(deleteObservationsBeforeSQL), ts)
	if err != nil {
		return 0, fmt.Errorf("delete observations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

func (r *repositoryImpl) RecordUpload(ctx context.Context, u types.Upload) error {
	row := uploadRow{
		StationID:  u.StationID,
		ObservedAt: formatTime(u.ObservedAt),
		UploadedAt: formatTime(u.UploadedAt),
		Status:     u.Status,
		Detail:     u.Detail,
	}
	if _, err := r.db.NamedExecContext(ctx, upsertUploadSQL, row); err != nil {
		return fmt.Errorf("record upload: %w", err)
	}
	return nil
}

func (r *repositoryImpl) GetUploads(ctx context.Context, stationID string, limit int) ([]types.Upload, error) {
	var rows []uploadRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(getUploadsSQL), stationID, limit); err != nil {
		return nil, err
	}
	out := make([]types.Upload, 0, len(rows))
	for _, row := range rows {
		observed, err := parseTime(row.ObservedAt)
		if err != nil {
			return nil, err
		}
		uploaded, err := parseTime(row.UploadedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, types.Upload{
			StationID:  row.StationID,
			ObservedAt: observed,
			UploadedAt: uploaded,
			Status:     row.Status,
			Detail:     row.Detail,
		})
	}
	return out, nil
}

func toObservations(rows []observationRow) ([]types.Observation, error) {
	out := make([]types.Observation, 0, len(rows))
	for _, row := range rows {
		observed, err := parseTime(row.ObservedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, types.Observation{
			StationID:      row.StationID,
			ObservedAt:     observed,
			DateUTC:        row.DateUTC,
			TemperatureF:   row.TemperatureF,
			DewPointF:      row.DewPointF,
			HumidityPct:    row.HumidityPct,
			WindSpeedMph:   row.WindSpeedMph,
			WindGustMph:    row.WindGustMph,
			WindDirDegrees: row.WindDirDegrees,
			PressureInHg:   row.PressureInHg,
			RainHourMm:     row.RainHourMm,
			RainHourIn:     engine.MmToInches(row.RainHourMm),
			RainTodayMm:    row.RainTodayMm,
			RainTodayIn:    engine.MmToInches(row.RainTodayMm),
		})
	}
	return out, nil
}

func bounds(from, to time.Time) (string, string) {
	if from.IsZero() {
		from = minTime
	}
	if to.IsZero() {
		to = maxTime
	}
	return formatTime(from), formatTime(to)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		var err2 error
		t, err2 = time.Parse(time.RFC3339Nano, s)
		if err2 != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q: %w; RFC3339Nano: %w", s, err, err2)
		}
	}
	return t.UTC(), nil
}
