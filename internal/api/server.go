package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"orderdesk/internal/config"
	"orderdesk/internal/metrics"
	"orderdesk/internal/pipeline"
	"orderdesk/internal/storage"
)

type Server struct {
	db      *storage.DB
	cfg     config.Config
	intake  *pipeline.IntakeService
	metrics *metrics.Registry
	logger  *slog.Logger
}

// NewServer wires the HTTP handlers. intake and m should share one metrics
// registry so /metrics reports parse counters.
func NewServer(db *storage.DB, cfg config.Config, intake *pipeline.IntakeService, m *metrics.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewRegistry()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return &Server{db: db, cfg: cfg, intake: intake, metrics: m, logger: logger}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{s.cfg.CORSAllowedOrigin},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/orders", func(r chi.Router) {
		r.Get("/", s.listOrders)
		r.Post("/", s.createOrder)
		r.Post("/parse", s.parseOrders)
		r.Post("/intake", s.intakeOrders)
		r.Get("/search", s.searchOrders)
		r.Get("/export", s.exportOrders)
		r.Post("/batch-delete", s.batchDeleteOrders)
		r.Get("/{id}", s.getOrder)
		r.Put("/{id}", s.updateOrder)
	})

	r.Route("/api/customers", func(r chi.Router) {
		r.Get("/", s.listCustomers)
		r.Post("/", s.createCustomer)
		r.Post("/import", s.importCustomers)
		r.Get("/export", s.exportCustomers)
		r.Put("/{id}", s.updateCustomer)
		r.Delete("/{id}", s.deleteCustomer)
	})

	r.Get("/api/settings", s.getSettings)
	r.Put("/api/settings", s.updateSettings)

	return r
}
