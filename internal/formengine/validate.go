package formengine

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Validate checks a complete answer set. Fields are processed in display
// order; each field's visibility and options are computed from the cleaned
// answers of the fields before it. Answers for hidden or unknown fields are
// dropped without error.
//
// On success the cleaned answers are returned: hidden values removed, values
// coerced to their field type, compound answers nested under the compound's
// name. Otherwise the error is a ValidationErrors holding every problem.
func (s *Schema) Validate(raw Answers) (Answers, error) {
	clean, p := s.run(raw)
	if len(p.errs) > 0 {
		return nil, p.errs
	}
	return clean, nil
}

// Validate is shorthand for NewSchema(form).Validate(raw).
func Validate(form Form, raw Answers) (Answers, error) {
	return NewSchema(form).Validate(raw)
}

// WalkResult describes a submission in progress.
type WalkResult struct {
	Visible []string            `json:"visible"`
	Options map[string][]Option `json:"options"`
	Errors  ValidationErrors    `json:"errors,omitempty"`
}

// Walk evaluates partial answers the same way Validate does and reports which
// fields are currently visible, which options each visible selectable field
// offers and which of the supplied answers are already invalid. Missing
// required answers are not reported.
func (s *Schema) Walk(partial Answers) WalkResult {
	_, p := s.run(partial)
	res := WalkResult{Visible: p.visible, Options: p.offered}
	for _, fe := range p.errs {
		if fe.Kind != KindMissingRequired {
			res.Errors = append(res.Errors, fe)
		}
	}
	if res.Visible == nil {
		res.Visible = []string{}
	}
	return res
}

type pass struct {
	s       *Schema
	errs    ValidationErrors
	visible []string
	offered map[string][]Option
}

func (s *Schema) run(raw Answers) (Answers, *pass) {
	p := &pass{s: s, offered: make(map[string][]Option)}
	clean := Answers{}
	for _, f := range s.form.Fields {
		if s.broken[f.Name] || !evalVisibility(f.Visibility, clean) {
			continue
		}
		p.visible = append(p.visible, f.Name)
		if f.Type == TypeCompound {
			if group, ok := p.compound(f, raw); ok {
				clean[f.Name] = group
			}
			continue
		}
		if v, ok := p.field(f.Name, f.Input, raw[f.Name], clean); ok {
			clean[f.Name] = v
		}
	}
	return clean, p
}

// compound validates a compound field's sub-fields as a form of their own,
// scoped under the compound's name.
func (p *pass) compound(f Field, raw Answers) (map[string]any, bool) {
	group, ok := groupAnswers(raw, f.Name)
	if !ok {
		p.fail(f.Name, KindFieldValidation, ReasonNotObject, "%s must be an object", label(f.Input))
		return nil, false
	}
	// an optional compound left empty is skipped, but its sub-fields are
	// still reported as visible
	skip := !f.Required && isEmpty(group)

	before := len(p.errs)
	sub := Answers{}
	for _, in := range f.SubFields {
		path := SubPath(f.Name, in.Name)
		if p.s.broken[path] || !evalVisibility(in.Visibility, sub) {
			continue
		}
		p.visible = append(p.visible, path)
		if skip {
			if in.Type.Selectable() {
				p.offered[path] = ResolveOptions(in, sub)
			}
			continue
		}
		if v, ok := p.field(path, in, group[in.Name], sub); ok {
			sub[in.Name] = v
		}
	}
	if len(p.errs) > before {
		return nil, false
	}
	if len(sub) == 0 {
		if f.Required {
			p.fail(f.Name, KindMissingRequired, ReasonRequired, "%s is required", label(f.Input))
		}
		return nil, false
	}
	return map[string]any(sub), true
}

// field validates one answer. scope holds the cleaned answers visible to the
// field's rules: the whole form for top-level fields, the siblings for
// compound sub-fields.
func (p *pass) field(path string, in Input, value any, scope Answers) (any, bool) {
	var offered []Option
	if in.Type.Selectable() {
		offered = ResolveOptions(in, scope)
		p.offered[path] = offered
	}

	if in.Type == TypeCheckbox {
		return p.checkbox(path, in, value)
	}
	if isEmpty(value) {
		p.missing(path, in)
		return nil, false
	}

	v, reason := coerce(in.Type, value)
	if reason != "" {
		p.fail(path, KindFieldValidation, reason, "%s %s", label(in), reasonText(reason, in.Type))
		return nil, false
	}
	if sel, ok := v.([]string); ok && len(sel) == 0 {
		p.missing(path, in)
		return nil, false
	}

	before := len(p.errs)
	p.checkRules(path, in, v)
	if in.Type.Selectable() {
		allowed := optionValues(offered)
		for _, choice := range selections(v) {
			if !allowed[choice] {
				p.fail(path, KindInvalidOption, ReasonNotOffered, "%q is not an available option for %s", choice, label(in))
				break
			}
		}
	}
	if len(p.errs) > before {
		return nil, false
	}
	return v, true
}

func (p *pass) checkbox(path string, in Input, value any) (any, bool) {
	if value == nil {
		p.missing(path, in)
		return nil, false
	}
	b, ok := toBool(value)
	if !ok {
		p.fail(path, KindFieldValidation, ReasonInvalidBoolean, "%s must be true or false", label(in))
		return nil, false
	}
	if !b && in.Required {
		p.missing(path, in)
		return nil, false
	}
	return b, true
}

func (p *pass) missing(path string, in Input) {
	if in.Required {
		p.fail(path, KindMissingRequired, ReasonRequired, "%s is required", label(in))
	}
}

func (p *pass) fail(path string, kind ErrorKind, reason, format string, args ...any) {
	p.errs = append(p.errs, FieldError{
		Field:   path,
		Kind:    kind,
		Reason:  reason,
		Message: fmt.Sprintf(format, args...),
	})
}

func (p *pass) checkRules(path string, in Input, v any) {
	if !rulesMatch(in.Rules, in.Type) {
		return
	}
	lbl := label(in)
	switch r := in.Rules.(type) {
	case TextRules:
		s, _ := v.(string)
		n := utf8.RuneCountInString(s)
		if r.MinLength != nil && n < *r.MinLength {
			p.fail(path, KindFieldValidation, ReasonTooShort, "%s must be at least %d characters", lbl, *r.MinLength)
		}
		if r.MaxLength != nil && n > *r.MaxLength {
			p.fail(path, KindFieldValidation, ReasonTooLong, "%s must be at most %d characters", lbl, *r.MaxLength)
		}
		if re := p.s.patterns[path]; re != nil && !re.MatchString(s) {
			p.fail(path, KindFieldValidation, ReasonPattern, "%s has an invalid format", lbl)
		}
	case NumericRules:
		f, _ := v.(float64)
		if r.Integer && f != math.Trunc(f) {
			p.fail(path, KindFieldValidation, ReasonNotInteger, "%s must be a whole number", lbl)
		}
		if r.Min != nil && f < *r.Min {
			p.fail(path, KindFieldValidation, ReasonBelowMin, "%s must be at least %s", lbl, fmtNum(*r.Min))
		}
		if r.Max != nil && f > *r.Max {
			p.fail(path, KindFieldValidation, ReasonAboveMax, "%s must be at most %s", lbl, fmtNum(*r.Max))
		}
	case DateRules:
		s, _ := v.(string)
		day, ok := dayOf(s)
		if !ok {
			return
		}
		if lo, ok := dayOf(r.Min); ok && day.Before(lo) {
			p.fail(path, KindFieldValidation, ReasonDateTooEarly, "%s must be on or after %s", lbl, r.Min)
		}
		if hi, ok := dayOf(r.Max); ok && day.After(hi) {
			p.fail(path, KindFieldValidation, ReasonDateTooLate, "%s must be on or before %s", lbl, r.Max)
		}
	case SelectionRules:
		sel, ok := v.([]string)
		if !ok {
			return
		}
		if r.MinSelected != nil && len(sel) < *r.MinSelected {
			p.fail(path, KindFieldValidation, ReasonTooFew, "select at least %d for %s", *r.MinSelected, lbl)
		}
		if r.MaxSelected != nil && len(sel) > *r.MaxSelected {
			p.fail(path, KindFieldValidation, ReasonTooMany, "select at most %d for %s", *r.MaxSelected, lbl)
		}
	case FileRules:
		s, _ := v.(string)
		if len(r.Accept) == 0 {
			return
		}
		ext := strings.ToLower(filepath.Ext(s))
		for _, a := range r.Accept {
			if strings.ToLower(strings.TrimSpace(a)) == ext {
				return
			}
		}
		p.fail(path, KindFieldValidation, ReasonFileType, "%s must be one of %s", lbl, strings.Join(r.Accept, ", "))
	}
}

// groupAnswers collects a compound's answers from a nested object and from
// flat "parent.sub" keys. ok is false when the nested value is not an object.
func groupAnswers(raw Answers, name string) (map[string]any, bool) {
	group := make(map[string]any)
	switch t := raw[name].(type) {
	case nil:
	case map[string]any:
		for k, v := range t {
			group[k] = v
		}
	case Answers:
		for k, v := range t {
			group[k] = v
		}
	default:
		return nil, false
	}
	prefix := name + "."
	for k, v := range raw {
		if sub, ok := strings.CutPrefix(k, prefix); ok {
			if _, set := group[sub]; !set {
				group[sub] = v
			}
		}
	}
	return group, true
}

func groupOf(answers Answers, name string) Answers {
	g, ok := groupAnswers(answers, name)
	if !ok {
		return Answers{}
	}
	return Answers(g)
}

func selections(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []string:
		return t
	}
	return nil
}

func label(in Input) string {
	if in.Label != "" {
		return in.Label
	}
	return in.Name
}

func fmtNum(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func reasonText(reason string, t FieldType) string {
	switch reason {
	case ReasonInvalidEmail:
		return "must be a valid email address"
	case ReasonInvalidTel:
		return "must be a valid phone number"
	case ReasonInvalidNumber:
		return "must be a number"
	case ReasonInvalidDate:
		return "must be a date (YYYY-MM-DD)"
	case ReasonNotList:
		return "must be a list of values"
	}
	return fmt.Sprintf("has an invalid value for a %s field", t)
}
