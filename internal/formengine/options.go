package formengine

import (
	"encoding/json"
	"fmt"
	"sort"
)

// OptionSourceRule derives a field's option set from an earlier answer:
// Options[answers[Source]] is offered.
type OptionSourceRule struct {
	Source  string              `json:"source"`
	Options map[string][]Option `json:"options"`
}

// DecodeOptionSource parses a stored option source rule. Options without an
// explicit is_active are treated as active.
func DecodeOptionSource(raw []byte) (*OptionSourceRule, error) {
	if isNullJSON(raw) {
		return nil, nil
	}
	var wire struct {
		Source  string `json:"source"`
		Options map[string][]struct {
			Value       string `json:"value"`
			Label       string `json:"label"`
			Description string `json:"description"`
			Order       int    `json:"order"`
			IsDefault   bool   `json:"is_default"`
			IsActive    *bool  `json:"is_active"`
		} `json:"options"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("option source: %w", err)
	}
	r := &OptionSourceRule{Source: wire.Source, Options: make(map[string][]Option, len(wire.Options))}
	for key, list := range wire.Options {
		opts := make([]Option, 0, len(list))
		for _, o := range list {
			label := o.Label
			if label == "" {
				label = o.Value
			}
			opts = append(opts, Option{
				Value:       o.Value,
				Label:       label,
				Description: o.Description,
				Order:       o.Order,
				IsDefault:   o.IsDefault,
				IsActive:    o.IsActive == nil || *o.IsActive,
			})
		}
		r.Options[key] = opts
	}
	return r, nil
}

// ResolveOptions returns the options currently offered for f given the
// answers so far, active entries only, ordered by Order ascending.
//
// Without an option source the static options are returned. With one, the
// source answer selects the mapped set; an unanswered source or a value with
// no mapping yields an empty list. The result is a fresh slice: equal inputs
// always give equal, equally ordered output.
func ResolveOptions(f Input, answers Answers) []Option {
	if f.OptionSource == nil {
		return activeSorted(f.Options)
	}
	key, ok := scalarString(answers[f.OptionSource.Source])
	if !ok || key == "" {
		return []Option{}
	}
	return activeSorted(f.OptionSource.Options[key])
}

func activeSorted(in []Option) []Option {
	out := make([]Option, 0, len(in))
	for _, o := range in {
		if o.IsActive {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func optionValues(opts []Option) map[string]bool {
	m := make(map[string]bool, len(opts))
	for _, o := range opts {
		m[o.Value] = true
	}
	return m
}
