package formengine

import (
	"fmt"
	"strings"
)

// ErrorKind classifies a rejected answer.
type ErrorKind string

const (
	KindMissingRequired ErrorKind = "missing_required_field"
	KindFieldValidation ErrorKind = "field_validation_error"
	KindInvalidOption   ErrorKind = "invalid_option_selected"
)

// Machine-readable reasons attached to a FieldError.
const (
	ReasonRequired       = "required"
	ReasonNotString      = "not_a_string"
	ReasonNotObject      = "not_an_object"
	ReasonNotList        = "not_a_list"
	ReasonInvalidEmail   = "invalid_email"
	ReasonInvalidTel     = "invalid_tel"
	ReasonInvalidNumber  = "invalid_number"
	ReasonNotInteger     = "not_integer"
	ReasonInvalidDate    = "invalid_date"
	ReasonInvalidBoolean = "invalid_boolean"
	ReasonTooShort       = "too_short"
	ReasonTooLong        = "too_long"
	ReasonBelowMin       = "below_min"
	ReasonAboveMax       = "above_max"
	ReasonDateTooEarly   = "date_too_early"
	ReasonDateTooLate    = "date_too_late"
	ReasonPattern        = "pattern_mismatch"
	ReasonTooFew         = "too_few_selected"
	ReasonTooMany        = "too_many_selected"
	ReasonFileType       = "file_type_not_allowed"
	ReasonNotOffered     = "option_not_offered"
)

// FieldError is one problem with one answer. Field is the field name, or
// "parent.sub" for compound sub-fields.
type FieldError struct {
	Field   string    `json:"field"`
	Kind    ErrorKind `json:"kind"`
	Reason  string    `json:"reason"`
	Message string    `json:"message"`
}

// ValidationErrors is returned by Validate when a submission is rejected. It
// always carries every problem found, in display order.
type ValidationErrors []FieldError

func (e ValidationErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.Field+": "+fe.Reason)
	}
	return fmt.Sprintf("%d invalid answer(s): %s", len(e), strings.Join(parts, ", "))
}

// Count returns how many errors have the given kind.
func (e ValidationErrors) Count(kind ErrorKind) int {
	n := 0
	for _, fe := range e {
		if fe.Kind == kind {
			n++
		}
	}
	return n
}

// Configuration problem reasons.
const (
	ConfigMissingName       = "missing_name"
	ConfigDuplicateName     = "duplicate_name"
	ConfigUnknownType       = "unknown_type"
	ConfigEmptyCompound     = "compound_without_subfields"
	ConfigSubFieldsOnSimple = "subfields_on_simple_field"
	ConfigNestedCompound    = "nested_compound"
	ConfigUnknownReference  = "unknown_reference"
	ConfigForwardReference  = "forward_reference"
	ConfigSelfReference     = "self_reference"
	ConfigUnknownOperator   = "unknown_operator"
	ConfigInvalidJoin       = "invalid_join"
	ConfigEmptyRule         = "empty_rule"
	ConfigSourceOnSimple    = "option_source_on_non_selectable"
	ConfigInvalidPattern    = "invalid_pattern"
	ConfigRulesMismatch     = "rules_type_mismatch"
)

// ConfigError describes a malformed field definition. It is meant for the
// authoring administrator, never for a public submitter.
type ConfigError struct {
	Field   string `json:"field"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type ConfigErrors []ConfigError

func (e ConfigErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, ce := range e {
		parts = append(parts, ce.Field+": "+ce.Message)
	}
	return "form configuration: " + strings.Join(parts, "; ")
}

// For returns the problems reported for one field path.
func (e ConfigErrors) For(path string) ConfigErrors {
	var out ConfigErrors
	for _, ce := range e {
		if ce.Field == path {
			out = append(out, ce)
		}
	}
	return out
}
