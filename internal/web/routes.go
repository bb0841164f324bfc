package web

import (
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/face-attendance/internal/web/handlers"
	"github.com/kozaktomas/face-attendance/internal/web/middleware"
	"github.com/kozaktomas/face-attendance/internal/web/static"
)

// requestTimeout bounds every endpoint except the event stream.
const requestTimeout = 30 * time.Second

func (s *Server) setupRoutes() {
	h := s.attendance

	// Health check
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(requestTimeout))

			// Enrollment
			r.Post("/enrollment", h.StartEnrollment)
			r.Delete("/enrollment", h.CancelEnrollment)

			// Recognition
			r.Post("/recognition", h.StartRecognition)
			r.Delete("/recognition", h.StopRecognition)

			// Training
			r.Post("/training", h.Train)

			// Attendance
			r.Get("/attendance/today", h.Today)
			r.Delete("/attendance/today", h.ClearToday)

			r.Get("/stats", h.Stats)
			r.Get("/people", h.People)
			r.Get("/events", h.Events)
		})

		// SSE endpoint
		r.Get("/events/stream", h.StreamEvents)
	})

	// Kiosk dashboard
	s.router.With(middleware.SecurityHeaders()).Get("/*", static.Handler().ServeHTTP)
}
