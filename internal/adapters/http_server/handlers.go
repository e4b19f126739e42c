package httpserver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"citydistance/internal/app"
	"citydistance/internal/domain"
)

// Pinger is the slice of *sql.DB the health check needs.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handlers struct {
	Svc     *app.CityService
	Syncer  *app.Syncer
	DB      Pinger
	Version string

	AuthUser string
	AuthPass string
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

type cityJSON struct {
	ID    string            `json:"id"`
	Name  string            `json:"name"`
	Names map[string]string `json:"names,omitempty"`
	Lat   float64           `json:"lat"`
	Lon   float64           `json:"lon"`
}

type cityInput struct {
	ID   string  `json:"id,omitempty"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

type distanceRequest struct {
	City1 string `json:"city1"`
	City2 string `json:"city2"`
}

type distanceResponse struct {
	City1   cityJSON `json:"city1"`
	City2   cityJSON `json:"city2"`
	Km      float64  `json:"km"`
	Bearing float64  `json:"bearing"`
	Compass string   `json:"compass"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Get("/db_health_check", h.dbHealth)
	s.mux.Get("/version", h.version)

	s.mux.Get("/v1/search/{name}", h.search)
	s.mux.Get("/v1/find/{name}", h.find)
	s.mux.Post("/v1/distance", h.distance)
	s.mux.Post("/v1/sync", h.triggerSync)

	s.mux.Group(func(g chi.Router) {
		g.Use(BasicAuth(h.AuthUser, h.AuthPass))
		g.Get("/v1/cities/{id}", h.getCity)
		g.Post("/v1/cities", h.addCity)
		g.Put("/v1/cities", h.updateCity)
		g.Delete("/v1/cities/{id}", h.deleteCity)
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

func toCityJSON(c domain.City) cityJSON {
	return cityJSON{ID: c.ID, Name: c.Name, Names: c.Names, Lat: c.Coords.Lat, Lon: c.Coords.Lon}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func (h *Handlers) dbHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.DB.PingContext(r.Context()); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Unavailable", "database unreachable")
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handlers) version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": h.Version})
}

func (h *Handlers) search(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	limit := 10
	if ls := r.URL.Query().Get("limit"); ls != "" {
		l, err := strconv.Atoi(ls)
		if err != nil || l <= 0 || l > 50 {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 50")
			return
		}
		limit = l
	}

	names, err := h.Svc.Suggest(r.Context(), name, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "suggestion lookup failed")
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": name, "suggestions": names})
}

func (h *Handlers) find(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	c, err := h.Svc.ResolveByName(r.Context(), name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Not Found", "no city matches "+strconv.Quote(name))
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "city lookup failed")
		return
	}

	etag, body := calcETagAndBody(toCityJSON(c))
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write find body")
	}
}

func (h *Handlers) distance(w http.ResponseWriter, r *http.Request) {
	var req distanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.City1 == "" || req.City2 == "" {
		writeProblem(w, http.StatusBadRequest, "Invalid Request", "body must be {\"city1\": ..., \"city2\": ...}")
		return
	}

	res, err := h.Svc.Distance(r.Context(), req.City1, req.City2)
	if err != nil {
		var ue *domain.UnresolvedError
		if errors.As(err, &ue) {
			writeProblem(w, http.StatusNotFound, "Not Found", "city "+strconv.Quote(ue.Name)+" could not be resolved")
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "distance computation failed")
		return
	}

	writeJSON(w, http.StatusOK, distanceResponse{
		City1:   toCityJSON(res.From),
		City2:   toCityJSON(res.To),
		Km:      round2(res.Km),
		Bearing: round2(res.Bearing),
		Compass: res.Compass,
	})
}

func (h *Handlers) triggerSync(w http.ResponseWriter, r *http.Request) {
	n, err := h.Syncer.Run(r.Context())
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Sync Failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"inserted": n})
}

func (h *Handlers) getCity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Not Found", "no city with id "+strconv.Quote(id))
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "city lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, toCityJSON(c))
}

func (h *Handlers) addCity(w http.ResponseWriter, r *http.Request) {
	var in cityInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	coords := domain.Coordinates{Lat: in.Lat, Lon: in.Lon}
	if in.Name == "" || !coords.Valid() {
		writeProblem(w, http.StatusBadRequest, "Invalid Request", "name and in-range lat/lon are required")
		return
	}

	c, err := h.Svc.Add(r.Context(), in.Name, coords)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "could not store city")
		return
	}
	writeJSON(w, http.StatusCreated, toCityJSON(c))
}

func (h *Handlers) updateCity(w http.ResponseWriter, r *http.Request) {
	var in cityInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	coords := domain.Coordinates{Lat: in.Lat, Lon: in.Lon}
	if in.ID == "" || in.Name == "" || !coords.Valid() {
		writeProblem(w, http.StatusBadRequest, "Invalid Request", "id, name, and in-range lat/lon are required")
		return
	}

	c, err := h.Svc.Update(r.Context(), domain.City{ID: in.ID, Name: in.Name, Coords: coords})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Not Found", "no city with id "+strconv.Quote(in.ID))
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "could not update city")
		return
	}
	writeJSON(w, http.StatusOK, toCityJSON(c))
}

func (h *Handlers) deleteCity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := h.Svc.Delete(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Not Found", "no city with id "+strconv.Quote(id))
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "could not delete city")
		return
	}
	writeJSON(w, http.StatusOK, toCityJSON(c))
}
