package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/keremavci/engram/internal/engine"
)

func NewRouter(eng *engine.Engine) *chi.Mux {
	h := NewHandlers(eng)

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/records", h.StoreRecord)
		r.Get("/records/{id}", h.GetRecord)
		r.Delete("/records/{id}", h.ForgetRecord)

		r.Post("/records/recall", h.Recall)
		r.Post("/records/fused", h.Fused)

		r.Post("/records/{id}/promote", h.PromoteRecord)
		r.Get("/records/{id}/related", h.RelatedRecords)
		r.Get("/records/{id}/history", h.RecordHistory)

		r.Post("/retrievals/{id}/feedback", h.Feedback)

		r.Post("/consolidate", h.Consolidate)
		r.Post("/evolve", h.Evolve)

		r.Get("/peek/{scope}", h.Peek)
		r.Get("/stats", h.Stats)
		r.Get("/tuning", h.Tuning)
		r.Get("/tuning/changes", h.TuningChanges)
	})

	return r
}
