package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/lojf/formdesk/internal/formengine"
	"github.com/lojf/formdesk/internal/models"
)

// Export is a form's submissions laid out as a table: fixed columns, then
// one column per field path of the current definition. Answers for fields
// that no longer exist are collected in the trailing "Other" column.
type Export struct {
	Header []string
	Rows   [][]string
}

func (s *Submissions) Export(ctx context.Context, formID uint, status string) (*Export, error) {
	form, err := s.forms.Get(ctx, formID)
	if err != nil {
		return nil, err
	}
	if status != "" && !models.ValidStatus(status) {
		return nil, invalidf("unknown status %q", status)
	}

	type column struct{ path, label string }
	var cols []column
	for _, f := range form.Fields {
		if f.Type != string(formengine.TypeCompound) {
			cols = append(cols, column{f.Name, f.Label})
			continue
		}
		for _, sub := range f.SubFields {
			cols = append(cols, column{formengine.SubPath(f.Name, sub.Name), f.Label + " / " + sub.Label})
		}
	}

	q := s.db.WithContext(ctx).Where("form_id = ?", formID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var subs []models.FormSubmission
	if err := q.Order("created_at asc, id asc").Find(&subs).Error; err != nil {
		return nil, err
	}

	out := &Export{Header: []string{"Reference", "Submitted", "Status", "Reviewed By", "Admin Notes"}}
	for _, c := range cols {
		out.Header = append(out.Header, c.label)
	}
	out.Header = append(out.Header, "Other")

	known := make(map[string]bool, len(cols))
	for _, c := range cols {
		known[c.path] = true
	}
	for _, sub := range subs {
		flat := map[string]any{}
		var answers map[string]any
		if err := json.Unmarshal(sub.Answers, &answers); err != nil {
			return nil, fmt.Errorf("submission %d: %w", sub.ID, err)
		}
		flatten("", answers, flat)

		row := []string{
			sub.Reference,
			sub.CreatedAt.Format("2006-01-02 15:04"),
			sub.Status,
			sub.ReviewedBy,
			sub.AdminNotes,
		}
		for _, c := range cols {
			row = append(row, cell(flat[c.path]))
		}
		var other []string
		for k, v := range flat {
			if !known[k] {
				other = append(other, k+": "+cell(v))
			}
		}
		sort.Strings(other)
		row = append(row, strings.Join(other, " | "))
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

func flatten(prefix string, in map[string]any, out map[string]any) {
	for k, v := range in {
		path := k
		if prefix != "" {
			path = formengine.SubPath(prefix, k)
		}
		if m, ok := v.(map[string]any); ok && prefix == "" {
			flatten(k, m, out)
			continue
		}
		out[path] = v
	}
}

func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "yes"
		}
		return "no"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, cell(e))
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprint(v)
}
