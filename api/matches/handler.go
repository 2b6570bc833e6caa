// Package matches exposes the read-side query API: candidate previews,
// match state, hub lookups and demand estimates. Mutations go through the
// optimizer and the reservation manager, never through this package.
package matches

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/haulnet/relay/core/candidate"
	"github.com/haulnet/relay/core/forecast"
	"github.com/haulnet/relay/core/hubs"
	"github.com/haulnet/relay/core/model"
	"github.com/haulnet/relay/core/optimize"
	"github.com/haulnet/relay/core/reserve"
	"github.com/haulnet/relay/core/score"
	"github.com/haulnet/relay/core/snapshot"
)

// Deps collects everything the query handlers read from.
type Deps struct {
	Snapshot  *snapshot.Store
	Hubs      *hubs.Store
	Generator *candidate.Generator
	Usage     candidate.HubUsage
	Scorer    func() score.Scorer
	Reserve   *reserve.Manager
	Optimizer *optimize.Optimizer
	Forecast  forecast.Forecaster
}

// NewMux wires all query routes onto a fresh ServeMux.
func NewMux(d Deps) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/api/loads/candidates", NewCandidatesHandler(d))
	mux.Handle("/api/matches", NewMatchHandler(d))
	mux.Handle("/api/matches/accept", NewTransitionHandler(d, "accept"))
	mux.Handle("/api/matches/release", NewTransitionHandler(d, "release"))
	mux.Handle("/api/hubs", NewHubsHandler(d))
	mux.Handle("/api/forecast", NewForecastHandler(d))
	return mux
}

// NewCandidatesHandler previews the top scored candidates for a load via
// GET /api/loads/candidates?load_id=...&n=5. It never places holds.
func NewCandidatesHandler(d Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		loadID := r.URL.Query().Get("load_id")
		l, ok := d.Snapshot.Load(loadID)
		if !ok {
			http.Error(w, "unknown load", http.StatusNotFound)
			return
		}
		n := 5
		if s := r.URL.Query().Get("n"); s != "" {
			if v, err := strconv.Atoi(s); err == nil && v > 0 {
				n = v
			}
		}
		now := time.Now()
		view := d.Snapshot.View(now)
		cands, err := d.Generator.Generate(l, view.Vehicles, d.Hubs.List(), d.Usage, now)
		if err != nil && !errors.Is(err, candidate.ErrInfeasible) {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		scorer := d.Scorer()
		for i := range cands {
			cands[i].Score = scorer.Score(cands[i], l)
		}
		sort.Slice(cands, func(i, j int) bool {
			if cands[i].Score != cands[j].Score {
				return cands[i].Score > cands[j].Score
			}
			return cands[i].ID < cands[j].ID
		})
		if len(cands) > n {
			cands = cands[:n]
		}
		writeJSON(w, cands)
	})
}

// NewMatchHandler serves match state via GET /api/matches?load_id=... or
// ?vehicle_id=... or ?match_id=..., and triggers the on-demand match path
// via POST /api/matches?load_id=....
func NewMatchHandler(d Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			var m model.Match
			var ok bool
			q := r.URL.Query()
			switch {
			case q.Get("match_id") != "":
				m, ok = d.Reserve.Get(q.Get("match_id"))
			case q.Get("load_id") != "":
				m, ok = d.Reserve.ByLoad(q.Get("load_id"))
			case q.Get("vehicle_id") != "":
				m, ok = d.Reserve.ByVehicle(q.Get("vehicle_id"))
			default:
				http.Error(w, "match_id, load_id or vehicle_id required", http.StatusBadRequest)
				return
			}
			if !ok {
				http.Error(w, "no match", http.StatusNotFound)
				return
			}
			writeJSON(w, m)
		case http.MethodPost:
			loadID := r.URL.Query().Get("load_id")
			if loadID == "" {
				http.Error(w, "load_id required", http.StatusBadRequest)
				return
			}
			m, err := d.Optimizer.MatchOnDemand(loadID, time.Now())
			if err != nil {
				status := http.StatusConflict
				if errors.Is(err, candidate.ErrInfeasible) {
					status = http.StatusUnprocessableEntity
				}
				http.Error(w, err.Error(), status)
				return
			}
			writeJSON(w, m)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

// NewTransitionHandler applies accept/release transitions via
// POST /api/matches/{accept,release}?match_id=....
func NewTransitionHandler(d Deps, action string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		matchID := r.URL.Query().Get("match_id")
		if matchID == "" {
			http.Error(w, "match_id required", http.StatusBadRequest)
			return
		}
		var (
			m   model.Match
			err error
		)
		switch action {
		case "accept":
			m, err = d.Reserve.Accept(matchID)
		case "release":
			err = d.Reserve.Release(matchID)
			if err == nil {
				m, _ = d.Reserve.Get(matchID)
			}
		}
		if err != nil {
			status := http.StatusConflict
			switch {
			case errors.Is(err, reserve.ErrNotFound):
				status = http.StatusNotFound
			case errors.Is(err, reserve.ErrExpired):
				status = http.StatusGone
			}
			http.Error(w, err.Error(), status)
			return
		}
		writeJSON(w, m)
	})
}

// NewHubsHandler lists smart hubs via GET /api/hubs, optionally filtered by
// ?lat=..&lon=..&radius_km=...
func NewHubsHandler(d Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		q := r.URL.Query()
		if q.Get("lat") != "" || q.Get("lon") != "" {
			lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
			lon, err2 := strconv.ParseFloat(q.Get("lon"), 64)
			if err1 != nil || err2 != nil {
				http.Error(w, "invalid lat/lon", http.StatusBadRequest)
				return
			}
			radius := 100.0
			if s := q.Get("radius_km"); s != "" {
				if v, err := strconv.ParseFloat(s, 64); err == nil && v > 0 {
					radius = v
				}
			}
			writeJSON(w, d.Hubs.Near(model.GeoPoint{Lat: lat, Lon: lon}, radius))
			return
		}
		writeJSON(w, d.Hubs.List())
	})
}

// NewForecastHandler serves the demand estimate for a location via
// GET /api/forecast?lat=..&lon=..&cell_deg=1.
func NewForecastHandler(d Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		q := r.URL.Query()
		lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
		lon, err2 := strconv.ParseFloat(q.Get("lon"), 64)
		if err1 != nil || err2 != nil {
			http.Error(w, "invalid lat/lon", http.StatusBadRequest)
			return
		}
		cellDeg := 1.0
		if s := q.Get("cell_deg"); s != "" {
			if v, err := strconv.ParseFloat(s, 64); err == nil && v > 0 {
				cellDeg = v
			}
		}
		cell := model.GeoPoint{Lat: lat, Lon: lon}.CellID(cellDeg)
		writeJSON(w, d.Forecast.Forecast(cell, time.Now()))
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
