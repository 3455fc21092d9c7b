package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	qrcode "github.com/skip2/go-qrcode"
)

// GET /api/forms/public/submissions/{ref}/qr.png
func (e *Env) ReceiptQR(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	// ensure the submission exists
	if _, err := e.Submissions.ByReference(r.Context(), ref); err != nil {
		e.fail(w, r, err)
		return
	}

	// Encode the receipt URL so scanning opens the submission status
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	url := scheme + "://" + r.Host + "/api/forms/public/submissions/" + ref

	png, err := qrcode.Encode(url, qrcode.Medium, 256)
	if err != nil {
		e.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
