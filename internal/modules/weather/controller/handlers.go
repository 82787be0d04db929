package controller

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"pwsrelay/internal/modules/weather/service"
	"pwsrelay/internal/modules/weather/types"
	"pwsrelay/internal/modules/weather/views"
	"pwsrelay/internal/utils"
)

const maxReadingBytes = 64 << 10

func (c *weatherControllerImpl) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	stations, err := c.repository.GetStations(r.Context())
	if err != nil {
		slog.Error("dashboard: get stations failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load stations")
		return
	}

	data := views.DashboardData{
		Stations:    make([]views.StationConditions, 0, len(stations)),
		GeneratedAt: time.Now().UTC(),
	}
	for _, s := range stations {
		cond, err := c.conditions(r, s)
		if err != nil {
			slog.Error("dashboard: get latest failed", "station_id", s.ID, "error", err)
			utils.WriteError(w, http.StatusInternalServerError, "failed to load observations")
			return
		}
		data.Stations = append(data.Stations, cond)
	}

	err = utils.WriteHTML(w, func(out io.Writer) error {
		return views.RenderDashboard(out, &data)
	})
	if err != nil {
		slog.Error("dashboard template render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render page")
	}
}

func (c *weatherControllerImpl) handleConditionsPartial(w http.ResponseWriter, r *http.Request) {
	stationID := r.URL.Query().Get("station_id")
	if stationID == "" {
		utils.WriteError(w, http.StatusBadRequest, "missing station_id")
		return
	}
	stations, err := c.repository.GetStations(r.Context())
	if err != nil {
		slog.Error("conditions: get stations failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load stations")
		return
	}
	var station *types.Station
	for i := range stations {
		if stations[i].ID == stationID {
			station = &stations[i]
			break
		}
	}
	if station == nil {
		utils.WriteError(w, http.StatusNotFound, fmt.Sprintf("unknown station %q", stationID))
		return
	}

	cond, err := c.conditions(r, *station)
	if err != nil {
		slog.Error("conditions: get latest failed", "station_id", stationID, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load observation")
		return
	}
	err = utils.WriteHTML(w, func(out io.Writer) error {
		return views.RenderConditionsPartial(out, &cond)
	})
	if err != nil {
		slog.Error("conditions partial render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render")
	}
}

func (c *weatherControllerImpl) conditions(r *http.Request, s types.Station) (views.StationConditions, error) {
	cond := views.StationConditions{StationID: s.ID, LastSeen: s.LastSeen}
	latest, err := c.repository.GetLatestObservations(r.Context(), s.ID, 1)
	if err != nil {
		return cond, err
	}
	if len(latest) > 0 {
		cond.Observation = &latest[0]
	}
	return cond, nil
}

func (c *weatherControllerImpl) handleStations(w http.ResponseWriter, r *http.Request) {
	stations, err := c.repository.GetStations(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.WriteJSON(w, http.StatusOK, stations)
}

func (c *weatherControllerImpl) handleLatest(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		utils.WriteError(w, http.StatusBadRequest, "missing station id")
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	latest, err := c.repository.GetLatestObservations(r.Context(), id, limit)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.WriteJSON(w, http.StatusOK, latest)
}

// handleObservations lists observations newest first. The total matching
// count is returned in X-Total-Count for paging.
func (c *weatherControllerImpl) handleObservations(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		utils.WriteError(w, http.StatusBadRequest, "missing station id")
		return
	}

	q, err := parseObservationsQuery(r, time.Now())
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	total, err := c.repository.CountObservations(r.Context(), id, q.from, q.to)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	observations, err := c.repository.GetObservations(r.Context(), id, q.from, q.to, q.limit, q.offset)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.WriteList(w, total, observations)
}

func (c *weatherControllerImpl) handleUploads(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		utils.WriteError(w, http.StatusBadRequest, "missing station id")
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	uploads, err := c.repository.GetUploads(r.Context(), id, limit)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.WriteJSON(w, http.StatusOK, uploads)
}

// handleIngest accepts the same JSON reading as the MQTT topic.
func (c *weatherControllerImpl) handleIngest(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		utils.WriteError(w, http.StatusBadRequest, "missing station id")
		return
	}

	var p types.RawReadingPayload
	if err := utils.DecodeJSON(w, r, maxReadingBytes, &p); err != nil {
		if errors.Is(err, utils.ErrBodyTooLarge) {
			utils.WriteError(w, http.StatusRequestEntityTooLarge, "reading too large")
			return
		}
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	obs, err := c.ingester.HandleReading(r.Context(), id, service.SourceHTTP, p)
	if err != nil {
		if service.IsRejected(err) {
			utils.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		if errors.Is(err, service.ErrDuplicateReading) {
			utils.WriteError(w, http.StatusConflict, err.Error())
			return
		}
		slog.Error("ingest: handle reading failed", "station_id", id, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to store reading")
		return
	}
	utils.WriteJSON(w, http.StatusCreated, obs)
}
