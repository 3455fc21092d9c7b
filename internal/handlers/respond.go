package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lojf/formdesk/internal/audit"
	"github.com/lojf/formdesk/internal/auth"
	"github.com/lojf/formdesk/internal/formengine"
	"github.com/lojf/formdesk/internal/logger"
	"github.com/lojf/formdesk/internal/services"
)

// maxBody caps request documents. Form definitions are the largest.
const maxBody = 1 << 20

// Env carries what every handler needs.
type Env struct {
	Forms       *services.Forms
	Submissions *services.Submissions
	Audit       *audit.DBSink
	Log         *logger.Logger
}

// envelope is the body of every JSON response.
type envelope struct {
	Success      bool                        `json:"success"`
	Data         any                         `json:"data,omitempty"`
	Message      string                      `json:"message,omitempty"`
	Pagination   *services.Pagination        `json:"pagination,omitempty"`
	Warnings     formengine.ConfigErrors     `json:"warnings,omitempty"`
	Errors       formengine.ValidationErrors `json:"errors,omitempty"`
	ConfigErrors formengine.ConfigErrors     `json:"config_errors,omitempty"`
}

var okText = map[int]string{
	http.StatusCreated: "Created.",
}

var errText = map[int]string{
	http.StatusBadRequest:          "Invalid request.",
	http.StatusNotFound:            "Not found.",
	http.StatusConflict:            "Conflict.",
	http.StatusUnprocessableEntity: "Validation failed.",
	http.StatusInternalServerError: "Internal server error.",
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	if body.Success && body.Message == "" {
		body.Message = okText[status]
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func success(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

// fail maps a service or engine error onto a status code. Unexpected errors
// are logged and answered with a generic message.
func (e *Env) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve formengine.ValidationErrors
		ce formengine.ConfigErrors
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, envelope{Message: errText[http.StatusUnprocessableEntity], Errors: ve})
	case errors.As(err, &ce):
		writeJSON(w, http.StatusUnprocessableEntity, envelope{Message: "Form configuration is invalid.", ConfigErrors: ce})
	case errors.Is(err, services.ErrNotFound):
		writeJSON(w, http.StatusNotFound, envelope{Message: err.Error()})
	case errors.Is(err, services.ErrConflict):
		writeJSON(w, http.StatusConflict, envelope{Message: err.Error()})
	case errors.Is(err, services.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, envelope{Message: err.Error()})
	default:
		e.Log.Error("request failed", "method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{Message: errText[http.StatusInternalServerError]})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	if msg == "" {
		msg = errText[http.StatusBadRequest]
	}
	writeJSON(w, http.StatusBadRequest, envelope{Message: msg})
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func idParam(r *http.Request, name string) (uint, bool) {
	n, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

func pageParam(r *http.Request) services.Page {
	q := r.URL.Query()
	p, _ := strconv.Atoi(q.Get("page"))
	l, _ := strconv.Atoi(q.Get("limit"))
	return services.Page{Page: p, Limit: l}
}

func requestContext(r *http.Request) audit.RequestContext {
	return audit.RequestContext{
		RequestID: middleware.GetReqID(r.Context()),
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
}

// actor is the authenticated caller of an admin request.
func actor(r *http.Request) audit.Actor {
	a := audit.Actor{Request: requestContext(r)}
	if c, ok := auth.FromContext(r.Context()); ok {
		a.ID = c.Subject
	}
	return a
}
