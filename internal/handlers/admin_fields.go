package handlers

import (
	"net/http"

	"github.com/lojf/formdesk/internal/services"
)

// GET /api/admin/forms/{id}/fields
func (e *Env) ListFields(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		badRequest(w, "invalid form id")
		return
	}
	fields, err := e.Forms.ListFields(r.Context(), id)
	if err != nil {
		e.fail(w, r, err)
		return
	}
	success(w, fields)
}

// POST /api/admin/forms/{id}/fields
func (e *Env) CreateField(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		badRequest(w, "invalid form id")
		return
	}
	var in services.FieldInput
	if err := decode(w, r, &in); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	field, warnings, err := e.Forms.CreateField(r.Context(), actor(r), id, in)
	if err != nil {
		e.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: field, Warnings: warnings})
}

// PUT /api/admin/forms/{id}/fields/order
func (e *Env) ReorderFields(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		badRequest(w, "invalid form id")
		return
	}
	var order []services.FieldOrder
	if err := decode(w, r, &order); err != nil {
		badRequest(w, "expected a list of {id, display_order}")
		return
	}
	warnings, err := e.Forms.ReorderFields(r.Context(), actor(r), id, order)
	if err != nil {
		e.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Field order updated.", Warnings: warnings})
}

// PUT /api/admin/fields/{id}
func (e *Env) UpdateField(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		badRequest(w, "invalid field id")
		return
	}
	var p services.FieldPatch
	if err := decode(w, r, &p); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	field, warnings, err := e.Forms.UpdateField(r.Context(), actor(r), id, p)
	if err != nil {
		e.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: field, Warnings: warnings})
}

// DELETE /api/admin/fields/{id}
func (e *Env) DeleteField(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		badRequest(w, "invalid field id")
		return
	}
	if err := e.Forms.DeleteField(r.Context(), actor(r), id); err != nil {
		e.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Field deleted."})
}

// GET /api/admin/fields/{id}/options
func (e *Env) ListOptions(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		badRequest(w, "invalid field id")
		return
	}
	opts, err := e.Forms.ListOptions(r.Context(), id)
	if err != nil {
		e.fail(w, r, err)
		return
	}
	success(w, opts)
}

// POST /api/admin/fields/{id}/options
func (e *Env) CreateOption(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		badRequest(w, "invalid field id")
		return
	}
	var in services.OptionInput
	if err := decode(w, r, &in); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	opt, err := e.Forms.CreateOption(r.Context(), actor(r), id, in)
	if err != nil {
		e.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: opt})
}

// PUT /api/admin/options/{id}
func (e *Env) UpdateOption(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		badRequest(w, "invalid option id")
		return
	}
	var p services.OptionPatch
	if err := decode(w, r, &p); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	opt, err := e.Forms.UpdateOption(r.Context(), actor(r), id, p)
	if err != nil {
		e.fail(w, r, err)
		return
	}
	success(w, opt)
}

// DELETE /api/admin/options/{id}
func (e *Env) DeleteOption(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		badRequest(w, "invalid option id")
		return
	}
	if err := e.Forms.DeleteOption(r.Context(), actor(r), id); err != nil {
		e.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Option deleted."})
}
