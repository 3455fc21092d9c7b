package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"github.com/lojf/formdesk/internal/services"
)

// GET /api/admin/forms/{id}/submissions?status=&page=&limit=
func (e *Env) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		badRequest(w, "invalid form id")
		return
	}
	page := pageParam(r)
	rows, total, err := e.Submissions.List(r.Context(), id, r.URL.Query().Get("status"), page)
	if err != nil {
		e.fail(w, r, err)
		return
	}
	p := services.NewPagination(page, total)
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: rows, Pagination: &p})
}

// GET /api/admin/forms/{id}/submissions/summary
func (e *Env) SubmissionSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		badRequest(w, "invalid form id")
		return
	}
	counts, err := e.Submissions.Counts(r.Context(), id)
	if err != nil {
		e.fail(w, r, err)
		return
	}
	success(w, counts)
}

// GET /api/admin/forms/{id}/submissions.csv?status=
func (e *Env) SubmissionsCSV(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		badRequest(w, "invalid form id")
		return
	}
	out, err := e.Submissions.Export(r.Context(), id, r.URL.Query().Get("status"))
	if err != nil {
		e.fail(w, r, err)
		return
	}

	filename := fmt.Sprintf("submissions-%d-%s.csv", id, time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)

	cw := csv.NewWriter(w)
	defer cw.Flush()

	_ = cw.Write(out.Header)
	for _, row := range out.Rows {
		_ = cw.Write(row)
	}
}

// GET /api/admin/submissions/{id}
func (e *Env) GetSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		badRequest(w, "invalid submission id")
		return
	}
	sub, err := e.Submissions.Get(r.Context(), id)
	if err != nil {
		e.fail(w, r, err)
		return
	}
	success(w, sub)
}

// PUT /api/admin/submissions/{id}/status
func (e *Env) UpdateSubmissionStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		badRequest(w, "invalid submission id")
		return
	}
	var u services.StatusUpdate
	if err := decode(w, r, &u); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	sub, err := e.Submissions.UpdateStatus(r.Context(), actor(r), id, u)
	if err != nil {
		e.fail(w, r, err)
		return
	}
	success(w, sub)
}

// DELETE /api/admin/submissions/{id}
func (e *Env) DeleteSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		badRequest(w, "invalid submission id")
		return
	}
	if err := e.Submissions.Delete(r.Context(), actor(r), id); err != nil {
		e.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Submission deleted."})
}
