package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"fleetops/internal/apperr"
	"fleetops/internal/model"
	"fleetops/internal/query"
	"fleetops/internal/service"
)

// resource is the CRUD surface every entity service offers.
type resource[In, Out any] interface {
	Get(ctx context.Context, id int64) (Out, error)
	List(ctx context.Context, p service.ListParams) (model.Page[Out], error)
	Create(ctx context.Context, in In) (Out, error)
	Update(ctx context.Context, id int64, in In) (Out, error)
	Delete(ctx context.Context, id int64) error
}

// mountResource registers GET/POST /api/<plural> and GET/PUT/DELETE
// /api/<plural>/{id}.
func mountResource[In, Out any](mux *http.ServeMux, s *Server, plural string, res resource[In, Out]) {
	base := "/api/" + plural

	mux.HandleFunc("GET "+base, func(w http.ResponseWriter, r *http.Request) {
		page, err := res.List(r.Context(), listParams(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	})
	mux.HandleFunc("POST "+base, func(w http.ResponseWriter, r *http.Request) {
		var in In
		if err := decodeJSON(w, r, &in); err != nil {
			s.writeError(w, r, err)
			return
		}
		out, err := res.Create(r.Context(), in)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	})
	mux.HandleFunc("GET "+base+"/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.pathID(w, r)
		if !ok {
			return
		}
		out, err := res.Get(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})
	mux.HandleFunc("PUT "+base+"/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.pathID(w, r)
		if !ok {
			return
		}
		var in In
		if err := decodeJSON(w, r, &in); err != nil {
			s.writeError(w, r, err)
			return
		}
		out, err := res.Update(r.Context(), id, in)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})
	mux.HandleFunc("DELETE "+base+"/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.pathID(w, r)
		if !ok {
			return
		}
		if err := res.Delete(r.Context(), id); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// pathID parses the {id} segment. Anything but an integer is reported as a
// missing resource.
func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, r, apperr.NotFound("", nil))
		return 0, false
	}
	return id, true
}

// listParams collects filters in request order plus page, size and sort.
// Unparseable page or size values fall back to the defaults.
func listParams(r *http.Request) service.ListParams {
	q := r.URL.Query()
	return service.ListParams{
		Filters: query.ParseParams(r.URL.RawQuery),
		Page:    optInt(q.Get("page")),
		Size:    optInt(q.Get("size")),
		Sort:    q["sort"],
	}
}

func optInt(raw string) *int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &n
}

func requiredInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, apperr.BadRequest("Missing required parameter '%s'", name)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.BadRequest("Parameter '%s' must be an integer", name)
	}
	return n, nil
}

func requiredTime(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, apperr.BadRequest("Missing required parameter '%s'", name)
	}
	t, ok := query.ParseTime(raw)
	if !ok {
		return time.Time{}, apperr.BadRequest("Parameter '%s' must be an ISO-8601 date-time", name)
	}
	return t, nil
}

// NearestHandler handles GET /api/retail-points/{id}/nearest?limit=
func (s *Server) NearestHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	limit, err := requiredInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.Svc.RetailPoints.Nearest(r.Context(), id, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// AverageMileageHandler handles GET /api/routes/average-mileage
func (s *Server) AverageMileageHandler(w http.ResponseWriter, r *http.Request) {
	avg, err := s.Svc.Routes.AverageMileage(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, avg)
}

// WithinPeriodHandler handles GET /api/routes/within-period?periodStart=&periodEnd=
func (s *Server) WithinPeriodHandler(w http.ResponseWriter, r *http.Request) {
	start, err := requiredTime(r, "periodStart")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	end, err := requiredTime(r, "periodEnd")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.Svc.Routes.WithinPeriod(r.Context(), start, end)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// RoutesByRetailPointHandler handles GET /api/routes/retail-point/{id}
func (s *Server) RoutesByRetailPointHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	out, err := s.Svc.Routes.ByRetailPoint(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// TopRetailPointsHandler handles GET /api/route-points/top-retail-points?limit=
func (s *Server) TopRetailPointsHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := requiredInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.Svc.RoutePoints.TopRetailPoints(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler checks the store and, when it can be pinged, the event bus.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	checks := map[string]string{"store": "ok"}
	ready := true
	if err := s.Svc.Ping(ctx); err != nil {
		checks["store"] = err.Error()
		ready = false
	}
	if p, ok := s.Bus.(pinger); ok {
		checks["bus"] = "ok"
		if err := p.Ping(ctx); err != nil {
			checks["bus"] = err.Error()
			ready = false
		}
	}
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"ready": ready, "checks": checks})
}
