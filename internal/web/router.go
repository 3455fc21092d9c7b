package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lojf/formdesk/internal/auth"
	"github.com/lojf/formdesk/internal/handlers"
	"github.com/lojf/formdesk/internal/logger"
)

func Router(env *handlers.Env, gate *auth.Gate) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(env.Log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handlers.Health)

	// Public form delivery and intake
	r.Route("/api/forms/public", func(pr chi.Router) {
		pr.Get("/", env.PublicForms)
		pr.Get("/submissions/{ref}", env.SubmissionReceipt)
		pr.Get("/submissions/{ref}/qr.png", env.ReceiptQR)
		pr.Get("/{slug}", env.PublicForm)
		pr.Post("/{slug}/resolve", env.ResolveForm)
		pr.Post("/{slug}/submit", env.SubmitForm)
	})

	r.Route("/api/admin", func(ar chi.Router) {
		ar.Use(gate.Require(auth.RoleAdmin))

		// Forms
		ar.Get("/forms", env.ListForms)
		ar.Post("/forms", env.CreateForm)
		ar.Get("/forms/{id}", env.GetForm)
		ar.Put("/forms/{id}", env.UpdateForm)
		ar.Get("/forms/{id}/lint", env.LintForm)

		// Fields & options
		ar.Get("/forms/{id}/fields", env.ListFields)
		ar.Post("/forms/{id}/fields", env.CreateField)
		ar.Put("/forms/{id}/fields/order", env.ReorderFields)
		ar.Put("/fields/{id}", env.UpdateField)
		ar.Delete("/fields/{id}", env.DeleteField)
		ar.Get("/fields/{id}/options", env.ListOptions)
		ar.Post("/fields/{id}/options", env.CreateOption)
		ar.Put("/options/{id}", env.UpdateOption)
		ar.Delete("/options/{id}", env.DeleteOption)

		// Submissions
		ar.Get("/forms/{id}/submissions", env.ListSubmissions)
		ar.Get("/forms/{id}/submissions/summary", env.SubmissionSummary)
		ar.Get("/forms/{id}/submissions.csv", env.SubmissionsCSV)
		ar.Get("/submissions/{id}", env.GetSubmission)
		ar.Put("/submissions/{id}/status", env.UpdateSubmissionStatus)

		ar.Get("/audit", env.AuditTrail)

		// Destructive operations
		ar.Group(func(sr chi.Router) {
			sr.Use(gate.Require(auth.RoleSuperAdmin))
			sr.Delete("/forms/{id}", env.DeleteForm)
			sr.Delete("/submissions/{id}", env.DeleteSubmission)
			sr.Post("/fields/cleanup", env.CleanupOrphans)
		})
	})

	return r
}

// requestLogger writes one access log line per request.
func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			path := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				path = rc.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []interface{}{
				"method", strings.ToUpper(r.Method),
				"path", path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if id := middleware.GetReqID(r.Context()); id != "" {
				fields = append(fields, "request_id", id)
			}

			switch {
			case status >= 500:
				log.Error("HTTP request", fields...)
			case status >= 400:
				log.Warn("HTTP request", fields...)
			default:
				log.Info("HTTP request", fields...)
			}
		})
	}
}
