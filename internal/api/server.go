// Package api exposes the fleet services over HTTP and a WebSocket change feed.
package api

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleetops/internal/events"
	"fleetops/internal/logging"
	"fleetops/internal/metrics"
	"fleetops/internal/model"
	"fleetops/internal/service"
)

// Options configure the HTTP surface. Zero values disable rate limiting and
// allow every origin.
type Options struct {
	AllowedOrigins []string
	RateRPS        float64
	RateBurst      int
	// Info is reported by /debug/info next to the build metadata.
	Info map[string]any
}

type Server struct {
	Svc  *service.Service
	Bus  events.Bus
	Log  logging.Logger
	opts Options
}

func NewServer(svc *service.Service, bus events.Bus, log logging.Logger, opts Options) *Server {
	if log == nil {
		log = logging.Nop()
	}
	return &Server{Svc: svc, Bus: bus, Log: log, opts: opts}
}

// Handler returns the routed API wrapped in its middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mountResource[model.DriverIn, model.Driver](mux, s, "drivers", s.Svc.Drivers)
	mountResource[model.VehicleIn, model.VehicleView](mux, s, "vehicles", s.Svc.Vehicles)
	mountResource[model.OrderIn, model.Order](mux, s, "orders", s.Svc.Orders)
	mountResource[model.RetailPointIn, model.RetailPoint](mux, s, "retail-points", s.Svc.RetailPoints)
	mountResource[model.RouteIn, model.RouteView](mux, s, "routes", s.Svc.Routes)
	mountResource[model.RoutePointIn, model.RoutePointView](mux, s, "route-points", s.Svc.RoutePoints)

	mux.HandleFunc("GET /api/retail-points/{id}/nearest", s.NearestHandler)
	mux.HandleFunc("GET /api/routes/average-mileage", s.AverageMileageHandler)
	mux.HandleFunc("GET /api/routes/within-period", s.WithinPeriodHandler)
	mux.HandleFunc("GET /api/routes/retail-point/{id}", s.RoutesByRetailPointHandler)
	mux.HandleFunc("GET /api/route-points/top-retail-points", s.TopRetailPointsHandler)

	mux.HandleFunc("GET /ws", s.ChangeFeedHandler)

	mux.HandleFunc("GET /healthz", s.HealthHandler)
	mux.HandleFunc("GET /readyz", s.ReadyHandler)
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /debug/info", s.DebugJSON)
	mux.HandleFunc("GET /openapi.yaml", s.OpenAPIHandler)
	mux.HandleFunc("GET /openapi.json", s.OpenAPIJSONHandler)
	mux.HandleFunc("GET /docs", s.DocsHandler)

	var h http.Handler = mux
	h = s.rateLimit(h)
	h = s.instrument(h)
	return s.cors(h)
}

type pinger interface {
	Ping(ctx context.Context) error
}
