package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lojf/formdesk/internal/formengine"
	"github.com/lojf/formdesk/internal/logger"
	"github.com/lojf/formdesk/internal/services"
)

func TestFailStatus(t *testing.T) {
	env := &Env{Log: logger.Nop()}
	tests := []struct {
		name   string
		err    error
		status int
		key    string
	}{
		{"not found", fmt.Errorf("form: %w", services.ErrNotFound), http.StatusNotFound, "message"},
		{"conflict", fmt.Errorf("%w: slug taken", services.ErrConflict), http.StatusConflict, "message"},
		{"invalid", fmt.Errorf("%w: bad", services.ErrInvalidInput), http.StatusBadRequest, "message"},
		{"validation", formengine.ValidationErrors{{Field: "a", Kind: formengine.KindMissingRequired}}, http.StatusUnprocessableEntity, "errors"},
		{"config", formengine.ConfigErrors{{Field: "a", Reason: formengine.ConfigDuplicateName}}, http.StatusUnprocessableEntity, "config_errors"},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError, "message"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			env.fail(rec, httptest.NewRequest(http.MethodGet, "/x", nil), tt.err)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["success"] != false {
				t.Errorf("success = %v", body["success"])
			}
			if _, ok := body[tt.key]; !ok {
				t.Errorf("body lacks %q: %s", tt.key, rec.Body.String())
			}
			if tt.status == http.StatusInternalServerError && strings.Contains(rec.Body.String(), "disk") {
				t.Error("internal error text leaked")
			}
		})
	}
}

func TestDecode(t *testing.T) {
	var in struct {
		Answers formengine.Answers `json:"answers"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"answers":{"age":12345678901234567}}`))
	if err := decode(httptest.NewRecorder(), r, &in); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n, ok := in.Answers["age"].(json.Number); !ok || n.String() != "12345678901234567" {
		t.Errorf("age = %#v, want exact json.Number", in.Answers["age"])
	}

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	if err := decode(httptest.NewRecorder(), r, &in); err != nil {
		t.Errorf("empty body: %v", err)
	}
	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
	if err := decode(httptest.NewRecorder(), r, &in); err == nil {
		t.Error("truncated body accepted")
	}
}

func TestPageParam(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?page=3&limit=abc", nil)
	if p := pageParam(r); p.Page != 3 || p.Limit != 0 {
		t.Errorf("page = %+v", p)
	}
}
