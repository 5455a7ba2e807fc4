// Package httpapi exposes the one read-side HTTP endpoint:
// GET /timeline?start_time=ISO8601&end_time=ISO8601 returns a state
// snapshot at start_time plus the compact event timeline between it and
// end_time. Routing follows the chi idiom; error responses follow the
// {"error": "..."} JSON shape other_examples' router handlers use
// (pelican-dev-wings/router/router_server_sse.go).
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/patallen/floorcast"
)

// timelineResponse is the response shape for GET /timeline.
type timelineResponse struct {
	Snapshot floorcast.ReconstructedState `json:"snapshot"`
	Events   []floorcast.CompactEvent     `json:"events"`
}

// Handler serves the timeline endpoint against a StateReconstructor and
// an EventLogStore.
type Handler struct {
	recon  floorcast.StateReconstructor
	events floorcast.EventLogStore
	log    zerolog.Logger
}

// NewRouter builds a chi.Router exposing GET /timeline.
func NewRouter(recon floorcast.StateReconstructor, events floorcast.EventLogStore, log zerolog.Logger) chi.Router {
	h := &Handler{recon: recon, events: events, log: log.With().Str("component", "httpapi").Logger()}

	r := chi.NewRouter()
	r.Get("/timeline", h.getTimeline)
	return r
}

func (h *Handler) getTimeline(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	startTime, err := parseRequiredTime(query, "start_time")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	endTime := time.Now().UTC()
	if raw := query.Get("end_time"); raw != "" {
		endTime, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "end_time must be ISO8601: "+err.Error())
			return
		}
	}

	snapshot, err := h.recon.GetStateAt(r.Context(), startTime)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to reconstruct state for timeline request")
		writeError(w, http.StatusInternalServerError, "failed to compute snapshot")
		return
	}

	var afterSerial int64
	if snapshot.LastEventID != nil {
		afterSerial = *snapshot.LastEventID
	}

	events, err := h.events.GetTimelineBetween(r.Context(), afterSerial, endTime)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to load timeline events")
		writeError(w, http.StatusInternalServerError, "failed to load timeline")
		return
	}

	writeJSON(w, http.StatusOK, timelineResponse{Snapshot: snapshot, Events: events})
}

func parseRequiredTime(query map[string][]string, key string) (time.Time, error) {
	values, ok := query[key]
	if !ok || len(values) == 0 || values[0] == "" {
		return time.Time{}, errMissingParam(key)
	}
	return time.Parse(time.RFC3339Nano, values[0])
}

type errMissingParam string

func (e errMissingParam) Error() string { return string(e) + " is required" }

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
