package formengine

import (
	"fmt"
	"regexp"
)

// Schema is a checked, display-ordered snapshot of a Form. Fields whose
// configuration is broken (dangling or forward references, bad operators,
// nested compounds, unknown types) are kept out of evaluation: they are never
// visible and never required.
type Schema struct {
	form     Form
	issues   ConfigErrors
	broken   map[string]bool
	patterns map[string]*regexp.Regexp
}

// NewSchema orders and checks form. It never fails; problems are available
// from Issues.
func NewSchema(form Form) *Schema {
	s := &Schema{
		form:     form,
		broken:   make(map[string]bool),
		patterns: make(map[string]*regexp.Regexp),
	}
	s.form.Fields = sortedFields(form.Fields)
	s.check()
	return s
}

// Check reports the configuration problems of form.
func Check(form Form) ConfigErrors {
	return NewSchema(form).Issues()
}

func (s *Schema) Issues() ConfigErrors { return s.issues }

// Form returns the ordered form, broken fields included.
func (s *Schema) Form() Form { return s.form }

// Broken reports whether the field at path is excluded from evaluation.
func (s *Schema) Broken(path string) bool { return s.broken[path] }

// Public returns the form as it should be delivered to submitters: ordered,
// with broken fields and sub-fields left out so a client never renders a
// field the server would ignore, and with active options only.
func (s *Schema) Public() Form {
	out := s.form
	out.Fields = make([]Field, 0, len(s.form.Fields))
	for _, f := range s.form.Fields {
		if s.broken[f.Name] {
			continue
		}
		f.Input = publicInput(f.Input)
		if f.Type == TypeCompound {
			subs := make([]Input, 0, len(f.SubFields))
			for _, in := range f.SubFields {
				if !s.broken[SubPath(f.Name, in.Name)] {
					subs = append(subs, publicInput(in))
				}
			}
			f.SubFields = subs
		} else {
			f.SubFields = nil
		}
		out.Fields = append(out.Fields, f)
	}
	return out
}

// publicInput copies in with every option list reduced to its active
// options. The schema's own lists are left untouched.
func publicInput(in Input) Input {
	if len(in.Options) > 0 {
		in.Options = activeSorted(in.Options)
	}
	if src := in.OptionSource; src != nil {
		mapped := make(map[string][]Option, len(src.Options))
		for k, opts := range src.Options {
			mapped[k] = activeSorted(opts)
		}
		in.OptionSource = &OptionSourceRule{Source: src.Source, Options: mapped}
	}
	return in
}

// IsVisible reports whether the field at path ("name" or "parent.sub") is
// applicable given answers. A sub-field is only visible when its compound
// is, and its rule is evaluated against its siblings' answers.
func (s *Schema) IsVisible(path string, answers Answers) bool {
	f, sub, ok := s.lookup(path)
	if !ok || s.broken[f.Name] || !evalVisibility(f.Visibility, answers) {
		return false
	}
	if sub == nil {
		return true
	}
	if s.broken[path] {
		return false
	}
	return evalVisibility(sub.Visibility, groupOf(answers, f.Name))
}

// ResolveOptions is ResolveOptions for the field at path. Broken or unknown
// fields offer nothing.
func (s *Schema) ResolveOptions(path string, answers Answers) []Option {
	f, sub, ok := s.lookup(path)
	if !ok || s.broken[path] || s.broken[f.Name] {
		return []Option{}
	}
	if sub == nil {
		return ResolveOptions(f.Input, answers)
	}
	return ResolveOptions(*sub, groupOf(answers, f.Name))
}

func (s *Schema) lookup(path string) (Field, *Input, bool) {
	for _, f := range s.form.Fields {
		if f.Name == path {
			return f, nil, true
		}
		if f.Type != TypeCompound {
			continue
		}
		for i := range f.SubFields {
			if SubPath(f.Name, f.SubFields[i].Name) == path {
				in := f.SubFields[i]
				return f, &in, true
			}
		}
	}
	return Field{}, nil, false
}

func (s *Schema) report(path, reason, format string, args ...any) {
	s.issues = append(s.issues, ConfigError{Field: path, Reason: reason, Message: fmt.Sprintf(format, args...)})
}

func (s *Schema) check() {
	all := make(map[string]bool, len(s.form.Fields))
	for _, f := range s.form.Fields {
		all[f.Name] = true
	}
	seen := make(map[string]bool, len(s.form.Fields))
	for _, f := range s.form.Fields {
		path := f.Name
		if path == "" {
			s.report(path, ConfigMissingName, "field %q has no name", f.Label)
			s.broken[path] = true
			continue
		}
		if seen[path] {
			s.report(path, ConfigDuplicateName, "field name %q is used more than once", path)
			s.broken[path] = true
			continue
		}
		s.checkInput(path, f.Input, seen, all)
		seen[path] = true

		if f.Type != TypeCompound {
			if len(f.SubFields) > 0 {
				s.report(path, ConfigSubFieldsOnSimple, "only compound fields may have sub-fields")
			}
			continue
		}
		if len(f.SubFields) == 0 {
			s.report(path, ConfigEmptyCompound, "compound field has no sub-fields")
			s.broken[path] = true
			continue
		}
		s.checkCompound(f)
	}
}

func (s *Schema) checkCompound(f Field) {
	all := make(map[string]bool, len(f.SubFields))
	for _, in := range f.SubFields {
		all[in.Name] = true
	}
	seen := make(map[string]bool, len(f.SubFields))
	for _, in := range f.SubFields {
		path := SubPath(f.Name, in.Name)
		switch {
		case in.Name == "":
			s.report(path, ConfigMissingName, "sub-field %q has no name", in.Label)
			s.broken[path] = true
			continue
		case seen[in.Name]:
			s.report(path, ConfigDuplicateName, "sub-field name %q is used more than once", in.Name)
			s.broken[path] = true
			continue
		case in.Type == TypeCompound:
			s.report(path, ConfigNestedCompound, "compound fields cannot be nested")
			s.broken[path] = true
			seen[in.Name] = true
			continue
		}
		s.checkInput(path, in, seen, all)
		seen[in.Name] = true
	}
}

// checkInput validates one field against the names that precede it (seen)
// and every name in the same scope (all).
func (s *Schema) checkInput(path string, in Input, seen, all map[string]bool) {
	if !in.Type.Valid() {
		s.report(path, ConfigUnknownType, "unknown field type %q", in.Type)
		s.broken[path] = true
		return
	}
	if !rulesMatch(in.Rules, in.Type) {
		s.report(path, ConfigRulesMismatch, "validation rules do not apply to %s fields", in.Type)
	} else if tr, ok := in.Rules.(TextRules); ok && tr.Pattern != "" {
		re, err := regexp.Compile(tr.Pattern)
		if err != nil {
			s.report(path, ConfigInvalidPattern, "pattern does not compile: %v", err)
		} else {
			s.patterns[path] = re
		}
	}

	if r := in.Visibility; r != nil {
		if r.Join != JoinAll && r.Join != JoinAny {
			s.report(path, ConfigInvalidJoin, "join must be %q or %q", JoinAll, JoinAny)
			s.broken[path] = true
		}
		if len(r.Conditions) == 0 {
			s.report(path, ConfigEmptyRule, "visibility rule has no conditions")
		}
		for _, c := range r.Conditions {
			if !c.Operator.Valid() {
				s.report(path, ConfigUnknownOperator, "unknown operator %q", c.Operator)
				s.broken[path] = true
			}
			if !s.checkReference(path, in.Name, c.Field, seen, all) {
				s.broken[path] = true
			}
		}
	}

	if src := in.OptionSource; src != nil {
		if !in.Type.Selectable() {
			s.report(path, ConfigSourceOnSimple, "option source on a %s field", in.Type)
		} else if !s.checkReference(path, in.Name, src.Source, seen, all) {
			s.broken[path] = true
		}
	}
}

func (s *Schema) checkReference(path, self, ref string, seen, all map[string]bool) bool {
	switch {
	case ref == self:
		s.report(path, ConfigSelfReference, "rule refers to the field itself")
	case seen[ref]:
		return true
	case all[ref]:
		s.report(path, ConfigForwardReference, "rule refers to %q, which is displayed later", ref)
	default:
		s.report(path, ConfigUnknownReference, "rule refers to unknown field %q", ref)
	}
	return false
}
