package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/afd-analytics/stationdist/internal/incident"
	"github.com/afd-analytics/stationdist/internal/routing"
	"github.com/afd-analytics/stationdist/internal/station"
	"github.com/afd-analytics/stationdist/internal/store"
)

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"stations": s.engine.Registry().Len(),
	})
}

// StationResponse is one registry entry.
type StationResponse struct {
	ID         string  `json:"id"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	HasEMS     bool    `json:"has_ems"`
	HasFire    bool    `json:"has_fire"`
	ActiveFrom string  `json:"active_from,omitempty"`
}

func (s *Server) listStations(w http.ResponseWriter, _ *http.Request) {
	all := s.engine.Registry().All()
	out := make([]StationResponse, len(all))
	for i, st := range all {
		out[i] = StationResponse{
			ID:      st.ID,
			Lat:     st.Lat,
			Lon:     st.Lon,
			HasEMS:  st.HasEMS,
			HasFire: st.HasFire,
		}
		if !st.ActiveFrom.IsZero() {
			out[i].ActiveFrom = st.ActiveFrom.Format(station.DateLayout)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"stations": out, "count": len(out)})
}

// DistanceEntry is one station's answer to a point query.
type DistanceEntry struct {
	Station string   `json:"station"`
	Status  string   `json:"status"`
	Reason  string   `json:"reason,omitempty"`
	Miles   *float64 `json:"miles"`
}

// DistanceResponse answers GET /v1/distance.
type DistanceResponse struct {
	Node      *int64          `json:"node"`
	Distances []DistanceEntry `json:"distances"`
	Closest   *string         `json:"closest_station"`
	MinMiles  *float64        `json:"min_miles"`
	IsWalkup  bool            `json:"is_walkup"`
}

func (s *Server) distance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err := parseFloatParam(q.Get("lat"), "lat")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	lon, err := parseFloatParam(q.Get("lon"), "lon")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var bucket station.Bucket
	if raw := strings.TrimSpace(q.Get("bucket")); raw != "" {
		b, ok := station.ParseBucket(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "bucket must be MED or ENG")
			return
		}
		bucket = b
	}

	var at time.Time
	if raw := q.Get("time"); raw != "" {
		t, ok := incident.ParseTime(raw, time.RFC3339)
		if !ok {
			writeError(w, http.StatusBadRequest, "time is not a recognized timestamp")
			return
		}
		at = t
	}

	res, err := s.engine.PointQuery(r.Context(), lon, lat, bucket, at)
	if err != nil {
		zap.L().Error("api: point query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "distance query failed")
		return
	}

	resp := DistanceResponse{
		Distances: make([]DistanceEntry, len(res.Distances)),
		Closest:   res.Selection.Closest,
		MinMiles:  res.Selection.MinMiles,
		IsWalkup:  res.Selection.IsWalkup,
	}
	if res.Node.Valid {
		id := res.Node.ID
		resp.Node = &id
	}
	for i, d := range res.Distances {
		resp.Distances[i] = entry(d)
	}
	writeJSON(w, http.StatusOK, resp)
}

func entry(d routing.StationDistance) DistanceEntry {
	e := DistanceEntry{Station: d.StationID, Miles: d.Result.Value()}
	switch d.Result.Kind() {
	case routing.KindDistance:
		e.Status = "distance"
	case routing.KindIneligible:
		e.Status = "ineligible"
		e.Reason = d.Result.Reason().String()
	default:
		e.Status = "unreachable"
	}
	return e
}

func parseFloatParam(raw, name string) (float64, error) {
	if raw == "" {
		return 0, eris.Errorf("%s is required", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, eris.Errorf("%s must be a number", name)
	}
	return v, nil
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{Status: store.RunStatus(q.Get("status"))}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil {
		filter.Offset = v
	}

	runs, err := s.runs.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")
	run, err := s.runs.GetRun(r.Context(), id)
	if eris.Is(err, store.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		zap.L().Error("api: get run failed", zap.String("run_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}
