package services

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/lojf/formdesk/internal/formengine"
	"github.com/lojf/formdesk/internal/models"
)

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Apply Now":               "apply-now",
		"  Hello,  World!! 2024 ": "hello-world-2024",
		"---":                     "",
		"Café au lait":            "caf-au-lait",
		"already-a-slug":          "already-a-slug",
	}
	for in, want := range tests {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCreate_DefaultsAndStructure(t *testing.T) {
	fx := newFixture(t)
	form := mustCreate(t, fx, countryInput())

	if form.Slug != "apply-now" || !form.IsActive {
		t.Errorf("form = %+v", form)
	}
	if form.SuccessMessage != DefaultSuccessMessage || form.SubmitLabel != DefaultSubmitLabel {
		t.Errorf("defaults not applied: %q %q", form.SuccessMessage, form.SubmitLabel)
	}
	if form.CreatedBy != "admin-1" {
		t.Errorf("created_by = %q", form.CreatedBy)
	}
	if len(form.Fields) != 4 {
		t.Fatalf("top-level fields = %d, want 4", len(form.Fields))
	}
	if form.Fields[0].Name != "country" || len(form.Fields[0].Options) != 2 {
		t.Errorf("first field = %+v", form.Fields[0])
	}
	addr := form.Fields[3]
	if len(addr.SubFields) != 2 || addr.SubFields[0].ParentID == nil || *addr.SubFields[0].ParentID != addr.ID {
		t.Errorf("address sub-fields = %+v", addr.SubFields)
	}

	untitled := mustCreate(t, fx, FormInput{})
	if untitled.Title != DefaultTitle || untitled.Slug != "untitled-form" {
		t.Errorf("untitled form = %q / %q", untitled.Title, untitled.Slug)
	}
}

func TestCreate_ReplacesEveryForm(t *testing.T) {
	fx := newFixture(t)
	first := mustCreate(t, fx, countryInput())
	if _, err := fx.subs.Submit(ctx, first.Slug, formengine.Answers{"country": "KE", "email": "a@b.co"}, admin.Request); err != nil {
		t.Fatalf("submit: %v", err)
	}

	second := mustCreate(t, fx, FormInput{Title: "Second", Fields: []FieldInput{{Name: "q", Type: "text"}}})

	if got := countRows(t, fx.db, &models.Form{}); got != 1 {
		t.Errorf("forms = %d, want 1", got)
	}
	if got := activeCount(t, fx.db); got != 1 {
		t.Errorf("active forms = %d, want 1", got)
	}
	if got := countRows(t, fx.db, &models.FormField{}); got != 1 {
		t.Errorf("fields = %d, want only the new form's field", got)
	}
	if got := countRows(t, fx.db, &models.FieldOption{}); got != 0 {
		t.Errorf("options = %d, want 0", got)
	}
	if got := countRows(t, fx.db, &models.FormSubmission{}); got != 0 {
		t.Errorf("submissions = %d, want 0", got)
	}
	if _, err := fx.forms.Get(ctx, first.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("old form still readable: %v", err)
	}
	if second.ID == first.ID {
		t.Error("new form reused the old id")
	}
}

func TestCreate_BlockingConfigRollsBack(t *testing.T) {
	fx := newFixture(t)
	existing := mustCreate(t, fx, countryInput())

	bad := FormInput{Title: "Bad", Fields: []FieldInput{
		{Name: "a", Type: "text"},
		{Name: "b", Type: "text", Visibility: raw(`{"conditions":[{"field":"a","operator":"like","value":"x"}]}`)},
	}}
	_, _, err := fx.forms.Create(ctx, admin, bad)
	ce, ok := IsConfigError(err)
	if !ok {
		t.Fatalf("expected configuration errors, got %v", err)
	}
	if len(ce.For("b")) != 1 || ce.For("b")[0].Reason != formengine.ConfigUnknownOperator {
		t.Errorf("config errors = %v", ce)
	}
	if _, err := fx.forms.Get(ctx, existing.ID); err != nil {
		t.Errorf("rejected create must not delete the live form: %v", err)
	}
}

func TestCreate_RejectsDuplicateNames(t *testing.T) {
	fx := newFixture(t)
	_, _, err := fx.forms.Create(ctx, admin, FormInput{Fields: []FieldInput{
		{Name: "x", Type: "text"}, {Name: "x", Type: "number"},
	}})
	if _, ok := IsConfigError(err); !ok {
		t.Fatalf("expected configuration errors, got %v", err)
	}
}

func TestCreate_WarnsOnDanglingReference(t *testing.T) {
	fx := newFixture(t)
	_, warnings, err := fx.forms.Create(ctx, admin, FormInput{Fields: []FieldInput{
		{Name: "a", Type: "text", Visibility: raw(`{"conditions":[{"field":"later","operator":"isNotEmpty"}]}`)},
		{Name: "later", Type: "text"},
	}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(warnings) != 1 || warnings[0].Reason != formengine.ConfigForwardReference {
		t.Errorf("warnings = %v", warnings)
	}
}

func TestCreate_RejectsBadInput(t *testing.T) {
	fx := newFixture(t)
	cases := []FieldInput{
		{Name: "a", Type: "colour"},
		{Name: "a", Type: "number", Rules: raw(`{"min":"ten"}`)},
		{Name: "a", Type: "text", Rules: raw(`{"min":5,"max_lenght":3}`)},
		{Name: "a", Type: "text", Visibility: raw(`[1]`)},
		{Name: "a", Type: "select", Options: []OptionInput{{Value: " "}}},
		{Name: "a", Type: "compound", SubFields: []FieldInput{
			{Name: "b", Type: "compound", SubFields: []FieldInput{{Name: "c", Type: "text"}}},
		}},
	}
	for i, in := range cases {
		_, _, err := fx.forms.Create(ctx, admin, FormInput{Fields: []FieldInput{in}})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("case %d: err = %v, want ErrInvalidInput", i, err)
		}
	}
}

func TestUpdate(t *testing.T) {
	fx := newFixture(t)
	form := mustCreate(t, fx, countryInput())

	title, slug := "Apply Today", "Apply Today!"
	got, err := fx.forms.Update(ctx, admin, form.ID, FormPatch{Title: &title, Slug: &slug})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Title != title || got.Slug != "apply-today" || got.UpdatedBy != "admin-1" {
		t.Errorf("updated form = %+v", got)
	}

	off := false
	if _, err := fx.forms.Update(ctx, admin, form.ID, FormPatch{IsActive: &off}); !errors.Is(err, ErrConflict) {
		t.Errorf("deactivate: err = %v, want ErrConflict", err)
	}
	if _, err := fx.forms.Update(ctx, admin, 999, FormPatch{Title: &title}); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing form: err = %v, want ErrNotFound", err)
	}
}

func TestUpdate_ActivateClearsOthers(t *testing.T) {
	fx := newFixture(t)
	live := mustCreate(t, fx, countryInput())

	// a second, inactive form left over from older data
	legacy := models.Form{Title: "Legacy", Slug: "legacy", IsActive: false}
	if err := fx.db.Create(&legacy).Error; err != nil {
		t.Fatalf("seed legacy form: %v", err)
	}

	slug := "legacy"
	if _, err := fx.forms.Update(ctx, admin, live.ID, FormPatch{Slug: &slug}); !errors.Is(err, ErrConflict) {
		t.Errorf("slug collision: err = %v, want ErrConflict", err)
	}

	on := true
	if _, err := fx.forms.Update(ctx, admin, legacy.ID, FormPatch{IsActive: &on}); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if got := activeCount(t, fx.db); got != 1 {
		t.Fatalf("active forms = %d, want 1", got)
	}
	var reloaded models.Form
	fx.db.First(&reloaded, live.ID)
	if reloaded.IsActive {
		t.Error("previously active form is still active")
	}
}

func TestDelete_Cascades(t *testing.T) {
	fx := newFixture(t)
	form := mustCreate(t, fx, countryInput())
	if _, err := fx.subs.Submit(ctx, form.Slug, formengine.Answers{"country": "KE", "email": "a@b.co"}, admin.Request); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := fx.forms.Delete(ctx, admin, form.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	for _, m := range []any{&models.Form{}, &models.FormField{}, &models.FieldOption{}, &models.FormSubmission{}} {
		if n := countRows(t, fx.db, m); n != 0 {
			t.Errorf("%T rows left: %d", m, n)
		}
	}
	if err := fx.forms.Delete(ctx, admin, form.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: err = %v, want ErrNotFound", err)
	}

	var logs []models.AuditLog
	fx.db.Where("entity = ? AND entity_id = ?", "form", form.ID).Order("id asc").Find(&logs)
	if len(logs) != 2 || logs[0].Action != "form.create" || logs[1].Action != "form.delete" {
		t.Errorf("audit trail = %+v", logs)
	}
}

func TestCleanupOrphans(t *testing.T) {
	// foreign keys off so orphans can exist, as in older databases
	fx := newFixtureDSN(t, "")
	form := mustCreate(t, fx, countryInput())
	if err := fx.db.Exec("DELETE FROM forms WHERE id = ?", form.ID).Error; err != nil {
		t.Fatalf("remove form row: %v", err)
	}

	n, err := fx.forms.CleanupOrphans(ctx, admin)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 6 {
		t.Errorf("removed = %d, want 6 (4 fields, 2 sub-fields)", n)
	}
	if got := countRows(t, fx.db, &models.FieldOption{}); got != 0 {
		t.Errorf("options left: %d", got)
	}
}

func TestPublicSchema(t *testing.T) {
	fx := newFixture(t)
	in := countryInput()
	off := false
	in.Fields[0].Options = append(in.Fields[0].Options, OptionInput{Value: "TZ", Label: "Tanzania", IsActive: &off})
	form := mustCreate(t, fx, in)

	doc, err := fx.forms.PublicSchema(ctx, "apply-now")
	if err != nil {
		t.Fatalf("public schema: %v", err)
	}
	var view struct {
		Fields []struct {
			Name    string `json:"name"`
			Options []struct {
				Value string `json:"value"`
			} `json:"options"`
			SubFields []struct {
				Name string `json:"name"`
			} `json:"sub_fields"`
		} `json:"fields"`
	}
	if err := json.Unmarshal(doc, &view); err != nil {
		t.Fatalf("decode schema: %v", err)
	}
	if len(view.Fields) != 4 || view.Fields[3].Name != "address" || len(view.Fields[3].SubFields) != 2 {
		t.Errorf("schema = %s", doc)
	}
	if len(view.Fields) > 0 {
		for _, o := range view.Fields[0].Options {
			if o.Value == "TZ" {
				t.Errorf("inactive option delivered: %s", doc)
			}
		}
		if len(view.Fields[0].Options) != 2 {
			t.Errorf("country options = %d, want 2", len(view.Fields[0].Options))
		}
	}
	if _, ok, _ := fx.cache.Get(ctx, schemaKey); !ok {
		t.Error("schema was not cached")
	}

	if _, err := fx.forms.PublicSchema(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown slug: err = %v, want ErrNotFound", err)
	}

	// deactivating a field drops it from the next delivery
	off = false
	if _, _, err := fx.forms.UpdateField(ctx, admin, form.Fields[2].ID, FieldPatch{IsActive: &off}); err != nil {
		t.Fatalf("deactivate field: %v", err)
	}
	if _, ok, _ := fx.cache.Get(ctx, schemaKey); ok {
		t.Error("authoring change did not invalidate the cache")
	}
	doc, _ = fx.forms.PublicSchema(ctx, "apply-now")
	view.Fields = nil
	if err := json.Unmarshal(doc, &view); err != nil {
		t.Fatalf("decode schema: %v", err)
	}
	for _, f := range view.Fields {
		if f.Name == "email" {
			t.Error("inactive field delivered")
		}
	}
}

func TestPublicSchema_StaleLoadNotCached(t *testing.T) {
	fx := newFixture(t)
	form := mustCreate(t, fx, countryInput())

	// a load that began before the edit below
	gen := fx.forms.gen.Load()
	title := "Apply Later"
	if _, err := fx.forms.Update(ctx, admin, form.ID, FormPatch{Title: &title}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := fx.forms.load(ctx, gen); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok, _ := fx.cache.Get(ctx, schemaKey); ok {
		t.Fatal("a load from before the edit was cached")
	}

	doc, err := fx.forms.PublicSchema(ctx, form.Slug)
	if err != nil {
		t.Fatalf("public schema: %v", err)
	}
	if !strings.Contains(string(doc), title) {
		t.Errorf("schema = %s, want title %q", doc, title)
	}
	if _, ok, _ := fx.cache.Get(ctx, schemaKey); !ok {
		t.Error("current schema was not cached")
	}
}

func TestPublicList(t *testing.T) {
	fx := newFixture(t)
	list, err := fx.forms.PublicList(ctx)
	if err != nil || len(list) != 0 {
		t.Fatalf("empty list = %v, %v", list, err)
	}
	mustCreate(t, fx, countryInput())
	list, _ = fx.forms.PublicList(ctx)
	if len(list) != 1 || list[0].Slug != "apply-now" {
		t.Errorf("list = %+v", list)
	}
}

func TestWalk(t *testing.T) {
	fx := newFixture(t)
	mustCreate(t, fx, countryInput())

	res, err := fx.forms.Walk(ctx, "apply-now", formengine.Answers{"country": "UG"})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	want := []string{"country", "district", "email", "address", "address.street", "address.city"}
	if len(res.Visible) != len(want) {
		t.Fatalf("visible = %v, want %v", res.Visible, want)
	}
	for i := range want {
		if res.Visible[i] != want[i] {
			t.Errorf("visible[%d] = %s, want %s", i, res.Visible[i], want[i])
		}
	}
	if opts := res.Options["district"]; len(opts) != 2 || opts[0].Value != "Kampala" {
		t.Errorf("district options = %+v", opts)
	}
}

func TestLint(t *testing.T) {
	fx := newFixture(t)
	_, _, err := fx.forms.Create(ctx, admin, FormInput{Fields: []FieldInput{
		{Name: "a", Type: "text", Visibility: raw(`{"conditions":[{"field":"ghost","operator":"isEmpty"}]}`)},
	}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var form models.Form
	fx.db.First(&form)
	issues, err := fx.forms.Lint(ctx, form.ID)
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	if len(issues) != 1 || issues[0].Reason != formengine.ConfigUnknownReference {
		t.Errorf("issues = %v", issues)
	}
}
