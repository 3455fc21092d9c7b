package formengine

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var (
	reEmail = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	// Only allow digits, spaces, +, -, (, ) and dots
	reTelAllowed = regexp.MustCompile(`^[0-9+\-\s\(\)\.]+$`)
)

const dateLayout = "2006-01-02"

// coerce converts a non-empty raw answer into the stored representation for
// type t. A non-empty reason means the value has the wrong shape.
func coerce(t FieldType, v any) (any, string) {
	switch t {
	case TypeText, TypeTextarea:
		s, ok := scalarString(v)
		if !ok {
			return nil, ReasonNotString
		}
		return s, ""
	case TypeEmail:
		return normEmail(v)
	case TypeTel:
		return normTel(v)
	case TypeNumber:
		f, ok := toFloat(v)
		if !ok {
			return nil, ReasonInvalidNumber
		}
		return f, ""
	case TypeDate:
		s, ok := v.(string)
		if !ok {
			return nil, ReasonInvalidDate
		}
		d, ok := parseDate(s)
		if !ok {
			return nil, ReasonInvalidDate
		}
		return d, ""
	case TypeSelect, TypeRadio:
		s, ok := scalarString(v)
		if !ok {
			return nil, ReasonNotString
		}
		return s, ""
	case TypeCheckboxGroup:
		return toStringSet(v)
	case TypeCheckbox:
		b, ok := toBool(v)
		if !ok {
			return nil, ReasonInvalidBoolean
		}
		return b, ""
	case TypeFile:
		s, ok := v.(string)
		if !ok {
			return nil, ReasonNotString
		}
		return strings.TrimSpace(s), ""
	}
	return nil, ReasonNotString
}

func normEmail(v any) (any, string) {
	s, ok := v.(string)
	if !ok {
		return nil, ReasonNotString
	}
	e := strings.TrimSpace(strings.ToLower(s))
	if !reEmail.MatchString(e) {
		return nil, ReasonInvalidEmail
	}
	return e, ""
}

// normTel accepts numbers written with the usual separators and between 7
// and 15 digits. The trimmed input is kept as typed.
func normTel(v any) (any, string) {
	s, ok := v.(string)
	if !ok {
		return nil, ReasonNotString
	}
	s = strings.TrimSpace(s)
	if !reTelAllowed.MatchString(s) {
		return nil, ReasonInvalidTel
	}
	if strings.LastIndex(s, "+") > 0 {
		return nil, ReasonInvalidTel
	}
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	if n < 7 || n > 15 {
		return nil, ReasonInvalidTel
	}
	return s, ""
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "on", "yes", "1":
			return true, true
		case "false", "off", "no", "0", "":
			return false, true
		}
	case float64:
		if t == 0 || t == 1 {
			return t == 1, true
		}
	case json.Number:
		if f, err := t.Float64(); err == nil && (f == 0 || f == 1) {
			return f == 1, true
		}
	}
	return false, false
}

// toStringSet turns a checkbox group answer into its distinct values in
// submitted order. A lone scalar counts as a one-element selection.
func toStringSet(v any) (any, string) {
	list := asList(v)
	out := make([]string, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, item := range list {
		s, ok := scalarString(item)
		if !ok {
			return nil, ReasonNotList
		}
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out, ""
}

// parseDate accepts an ISO date or an RFC 3339 timestamp. Dates stay as
// given; timestamps are normalised to UTC.
func parseDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if d, err := time.Parse(dateLayout, s); err == nil {
		return d.Format(dateLayout), true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC().Format(time.RFC3339), true
	}
	return "", false
}

// dayOf returns the calendar day of a value produced by parseDate.
func dayOf(s string) (time.Time, bool) {
	if len(s) < len(dateLayout) {
		return time.Time{}, false
	}
	d, err := time.Parse(dateLayout, s[:len(dateLayout)])
	return d, err == nil
}
