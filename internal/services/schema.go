package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/lojf/formdesk/internal/formengine"
	"github.com/lojf/formdesk/internal/models"
)

const schemaKey = "schema:active"

// publishedSchema is what the schema cache holds for the live form.
type publishedSchema struct {
	Slug string          `json:"slug"`
	Form json.RawMessage `json:"form"`
}

// FormSummary is the public listing entry of a live form.
type FormSummary struct {
	ID          uint   `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Slug        string `json:"slug"`
}

// ActiveSchema loads the live form from the database and checks it. It
// never goes through the cache, so a submission is always validated
// against the current definition.
func (f *Forms) ActiveSchema(ctx context.Context) (*formengine.Schema, error) {
	form, err := f.Active(ctx)
	if err != nil {
		return nil, err
	}
	ef, err := engineForm(form)
	if err != nil {
		return nil, fmt.Errorf("load active form: %w", err)
	}
	s := formengine.NewSchema(ef)
	if issues := s.Issues(); len(issues) > 0 {
		f.log.Warn("active form has configuration problems", "form_id", form.ID, "problems", len(issues))
	}
	return s, nil
}

// schemaFor returns the live schema when its slug matches.
func (f *Forms) schemaFor(ctx context.Context, slug string) (*formengine.Schema, error) {
	s, err := f.ActiveSchema(ctx)
	if err != nil {
		return nil, err
	}
	if s.Form().Slug != slug {
		return nil, fmt.Errorf("%w: form %q", ErrNotFound, slug)
	}
	return s, nil
}

// PublicSchema returns the JSON document of the live form with slug, as
// delivered to submitters: active fields and options only, broken fields
// left out, display order. Documents are cached until the next authoring
// change or the cache TTL.
func (f *Forms) PublicSchema(ctx context.Context, slug string) (json.RawMessage, error) {
	pub, err := f.published(ctx)
	if err != nil {
		return nil, err
	}
	if pub.Slug != slug {
		return nil, fmt.Errorf("%w: form %q", ErrNotFound, slug)
	}
	return pub.Form, nil
}

// PublicList lists the live forms: zero or one entry.
func (f *Forms) PublicList(ctx context.Context) ([]FormSummary, error) {
	var rows []models.Form
	if err := f.db.WithContext(ctx).Where("is_active = ?", true).Order("id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]FormSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, FormSummary{ID: r.ID, Title: r.Title, Description: r.Description, Slug: r.Slug})
	}
	return out, nil
}

// Walk evaluates partial answers against the live form with slug.
func (f *Forms) Walk(ctx context.Context, slug string, partial formengine.Answers) (formengine.WalkResult, error) {
	s, err := f.schemaFor(ctx, slug)
	if err != nil {
		return formengine.WalkResult{}, err
	}
	return s.Walk(partial), nil
}

// Lint reports every configuration problem of a form, blocking or not.
func (f *Forms) Lint(ctx context.Context, formID uint) (formengine.ConfigErrors, error) {
	form, err := f.Get(ctx, formID)
	if err != nil {
		return nil, err
	}
	ef, err := engineForm(form)
	if err != nil {
		return nil, invalidf("%v", err)
	}
	issues := formengine.Check(ef)
	if issues == nil {
		issues = formengine.ConfigErrors{}
	}
	return issues, nil
}

func (f *Forms) published(ctx context.Context) (publishedSchema, error) {
	if b, ok, err := f.cache.Get(ctx, schemaKey); err != nil {
		f.log.Warn("schema cache read failed", "error", err)
	} else if ok {
		var pub publishedSchema
		if err := json.Unmarshal(b, &pub); err == nil {
			return pub, nil
		}
		f.log.Warn("discarding unreadable cached schema")
	}

	gen := f.gen.Load()
	key := schemaKey + "#" + strconv.FormatUint(gen, 10)
	v, err, _ := f.group.Do(key, func() (interface{}, error) {
		// shared by every waiting caller, so it must outlive the first one
		return f.load(context.WithoutCancel(ctx), gen)
	})
	if err != nil {
		return publishedSchema{}, err
	}
	return v.(publishedSchema), nil
}

// load builds the public document of the live form and caches it, unless
// the schema was invalidated since generation gen was read.
func (f *Forms) load(ctx context.Context, gen uint64) (publishedSchema, error) {
	s, err := f.ActiveSchema(ctx)
	if err != nil {
		return publishedSchema{}, err
	}
	doc, err := json.Marshal(s.Public())
	if err != nil {
		return publishedSchema{}, err
	}
	pub := publishedSchema{Slug: s.Form().Slug, Form: doc}
	if f.gen.Load() != gen {
		return pub, nil
	}
	b, err := json.Marshal(pub)
	if err != nil {
		return pub, nil
	}
	if err := f.cache.Set(ctx, schemaKey, b, f.ttl); err != nil {
		f.log.Warn("schema cache write failed", "error", err)
	}
	// an invalidation that raced the write removes it again
	if f.gen.Load() != gen {
		if err := f.cache.Delete(ctx, schemaKey); err != nil {
			f.log.Warn("schema cache invalidation failed", "error", err)
		}
	}
	return pub, nil
}

func (f *Forms) invalidate(ctx context.Context) {
	f.gen.Add(1)
	if err := f.cache.Delete(ctx, schemaKey); err != nil {
		f.log.Warn("schema cache invalidation failed", "error", err)
	}
}
