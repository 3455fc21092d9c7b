package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lojf/formdesk/internal/formengine"
)

// answersBody is what clients post to resolve and submit.
type answersBody struct {
	Answers formengine.Answers `json:"answers"`
}

func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// GET /api/forms/public
func (e *Env) PublicForms(w http.ResponseWriter, r *http.Request) {
	list, err := e.Forms.PublicList(r.Context())
	if err != nil {
		e.fail(w, r, err)
		return
	}
	success(w, list)
}

// GET /api/forms/public/{slug}
func (e *Env) PublicForm(w http.ResponseWriter, r *http.Request) {
	doc, err := e.Forms.PublicSchema(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		e.fail(w, r, err)
		return
	}
	success(w, doc)
}

// POST /api/forms/public/{slug}/resolve
//
// Returns the visible field paths and offered options for partial answers.
func (e *Env) ResolveForm(w http.ResponseWriter, r *http.Request) {
	var body answersBody
	if err := decode(w, r, &body); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	res, err := e.Forms.Walk(r.Context(), chi.URLParam(r, "slug"), body.Answers)
	if err != nil {
		e.fail(w, r, err)
		return
	}
	success(w, res)
}

// POST /api/forms/public/{slug}/submit
func (e *Env) SubmitForm(w http.ResponseWriter, r *http.Request) {
	var body answersBody
	if err := decode(w, r, &body); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if body.Answers == nil {
		body.Answers = formengine.Answers{}
	}
	receipt, err := e.Submissions.Submit(r.Context(), chi.URLParam(r, "slug"), body.Answers, requestContext(r))
	if err != nil {
		e.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: receipt, Message: receipt.SuccessMessage})
}

// receiptView is what a submitter may see of their own submission.
type receiptView struct {
	Reference   string    `json:"reference"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// GET /api/forms/public/submissions/{ref}
func (e *Env) SubmissionReceipt(w http.ResponseWriter, r *http.Request) {
	sub, err := e.Submissions.ByReference(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		e.fail(w, r, err)
		return
	}
	success(w, receiptView{Reference: sub.Reference, Status: sub.Status, SubmittedAt: sub.CreatedAt})
}
