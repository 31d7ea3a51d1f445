package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/camden-git/mediasysintegrity/config"
	"github.com/camden-git/mediasysintegrity/realtime"
)

// Router groups the handlers mounted by NewRouter.
type Router struct {
	Integrity   *IntegrityHandler
	People      *PersonHandler
	Consistency *ConsistencyHandler
	Hub         *realtime.Hub
}

// NewRouter builds the HTTP surface of the service.
func NewRouter(cfg config.Config, h Router) http.Handler {
	r := chi.NewRouter()

	corsOptions := cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	corsHandler := cors.New(corsOptions)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsHandler.Handler)

	if h.Hub != nil {
		r.Get("/ws", h.Hub.ServeWS)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(10 * time.Minute))

		r.Route("/integrity", func(r chi.Router) {
			r.Get("/audit", h.Integrity.GetAudit)
			r.Get("/categories", h.Integrity.ListCategories)
			r.Get("/policy", h.Integrity.GetPolicy)
			r.Post("/repair", h.Integrity.RepairAll)
			r.Post("/repair/{category}", h.Integrity.RepairCategory)
		})

		r.Route("/people", func(r chi.Router) {
			r.Get("/duplicates", h.People.ListDuplicates)
			r.Post("/merge", h.People.MergePeople)
			r.Route("/{person_id}", func(r chi.Router) {
				r.Delete("/", h.People.DeletePerson)
				r.Route("/consistency", func(r chi.Router) {
					r.Get("/", h.Consistency.GetConsistency)
					r.Post("/exclude", h.Consistency.ExcludeLinks)
					r.Post("/restore", h.Consistency.RestoreLinks)
					r.Post("/clear", h.Consistency.ClearLinks)
				})
			})
		})

		r.Post("/consistency/audit", h.Consistency.AuditAll)
	})

	return r
}
