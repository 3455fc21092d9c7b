package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/lojf/formdesk/internal/services"
)

// GET /api/admin/forms?page=&limit=
func (e *Env) ListForms(w http.ResponseWriter, r *http.Request) {
	page := pageParam(r)
	forms, total, err := e.Forms.List(r.Context(), page)
	if err != nil {
		e.fail(w, r, err)
		return
	}
	p := services.NewPagination(page, total)
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: forms, Pagination: &p})
}

// GET /api/admin/forms/{id}
func (e *Env) GetForm(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		badRequest(w, "invalid form id")
		return
	}
	form, err := e.Forms.Get(r.Context(), id)
	if err != nil {
		e.fail(w, r, err)
		return
	}
	success(w, form)
}

// POST /api/admin/forms
//
// Creating a form deletes every existing form and its submissions.
func (e *Env) CreateForm(w http.ResponseWriter, r *http.Request) {
	var in services.FormInput
	if err := decode(w, r, &in); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	form, warnings, err := e.Forms.Create(r.Context(), actor(r), in)
	if err != nil {
		e.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: form, Warnings: warnings})
}

// PUT /api/admin/forms/{id}
func (e *Env) UpdateForm(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		badRequest(w, "invalid form id")
		return
	}
	var p services.FormPatch
	if err := decode(w, r, &p); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	form, err := e.Forms.Update(r.Context(), actor(r), id, p)
	if err != nil {
		e.fail(w, r, err)
		return
	}
	success(w, form)
}

// DELETE /api/admin/forms/{id}
func (e *Env) DeleteForm(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		badRequest(w, "invalid form id")
		return
	}
	if err := e.Forms.Delete(r.Context(), actor(r), id); err != nil {
		e.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Form deleted."})
}

// GET /api/admin/forms/{id}/lint
func (e *Env) LintForm(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		badRequest(w, "invalid form id")
		return
	}
	issues, err := e.Forms.Lint(r.Context(), id)
	if err != nil {
		e.fail(w, r, err)
		return
	}
	success(w, issues)
}

// POST /api/admin/fields/cleanup
func (e *Env) CleanupOrphans(w http.ResponseWriter, r *http.Request) {
	n, err := e.Forms.CleanupOrphans(r.Context(), actor(r))
	if err != nil {
		e.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Data:    map[string]int64{"removed": n},
		Message: "Removed " + strconv.FormatInt(n, 10) + " orphaned field(s).",
	})
}

// GET /api/admin/audit?entity=form&entity_id=1&limit=50
func (e *Env) AuditTrail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entity := strings.TrimSpace(q.Get("entity"))
	id, err := strconv.ParseUint(q.Get("entity_id"), 10, 64)
	if entity == "" || err != nil {
		badRequest(w, "entity and entity_id are required")
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	logs, err := e.Audit.List(r.Context(), entity, uint(id), limit)
	if err != nil {
		e.fail(w, r, err)
		return
	}
	success(w, logs)
}
