// Package coerce validates raw parameter values against a function
// descriptor and coerces them to their transport representation.
package coerce

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/morezero/callables-client/pkg/descriptor"
)

// Validation error messages. Callers and tests match on these literally.
const (
	ErrRequired        = "required"
	ErrNotAnInteger    = "not an integer"
	ErrNotAFloat       = "not a float"
	ErrInvalidJSON     = "invalid JSON"
	ErrNotAValidChoice = "not a valid choice"
)

// Result holds the outcome of ValidateAndCoerce. Errors maps parameter name
// to a message; an absent key means the parameter is fine. Coerced holds the
// transport-ready values for parameters that validated.
type Result struct {
	Coerced map[string]interface{}
	Errors  map[string]string
}

// OK reports whether validation produced no errors.
func (r *Result) OK() bool {
	return len(r.Errors) == 0
}

// ValidateAndCoerce checks every declared parameter of fn against raw and
// coerces present values to their wire form (ints and floats as numbers,
// complex types as parsed structures, everything else passed through).
// Each parameter is judged independently; there is no cross-field
// validation. The function never returns an error value: all failures land
// in Result.Errors.
func ValidateAndCoerce(fn *descriptor.Function, raw map[string]interface{}) *Result {
	res := &Result{
		Coerced: make(map[string]interface{}),
		Errors:  make(map[string]string),
	}

	for i := range fn.Parameters {
		p := &fn.Parameters[i]
		value, present := raw[p.Name]

		if isMissing(value, present) {
			// Booleans are exempt from required-ness: absent means false.
			if p.Required && p.Type != descriptor.TypeBool {
				res.Errors[p.Name] = ErrRequired
			}
			continue
		}

		coerced, msg := coerceValue(p, value)
		if msg != "" {
			res.Errors[p.Name] = msg
			continue
		}

		if len(p.Choices) > 0 && !matchesChoice(p.Choices, coerced) {
			res.Errors[p.Name] = ErrNotAValidChoice
			continue
		}

		res.Coerced[p.Name] = coerced
	}

	return res
}

// isMissing treats nil, absent, and empty/whitespace-only strings as "not
// provided".
func isMissing(value interface{}, present bool) bool {
	if !present || value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func coerceValue(p *descriptor.Parameter, value interface{}) (interface{}, string) {
	switch p.Type {
	case descriptor.TypeInt:
		return coerceInt(value)
	case descriptor.TypeFloat:
		return coerceFloat(value)
	case descriptor.TypeBool:
		return coerceBool(value), ""
	case descriptor.TypeDict, descriptor.TypeList:
		return coerceComplex(value)
	default:
		// string and anything unrecognized pass through untouched
		return value, ""
	}
}

// coerceInt accepts integral values only; "3.5" is a failure, not a
// truncation.
func coerceInt(value interface{}) (interface{}, string) {
	switch v := value.(type) {
	case int:
		return v, ""
	case int64:
		return v, ""
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
			return nil, ErrNotAnInteger
		}
		return int64(v), ""
	case json.Number:
		n, err := strconv.ParseInt(v.String(), 10, 64)
		if err != nil {
			return nil, ErrNotAnInteger
		}
		return n, ""
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, ErrNotAnInteger
		}
		return n, ""
	default:
		return nil, ErrNotAnInteger
	}
}

func coerceFloat(value interface{}) (interface{}, string) {
	switch v := value.(type) {
	case float64:
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return nil, ErrNotAFloat
		}
		return v, ""
	case int:
		return float64(v), ""
	case int64:
		return float64(v), ""
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, ErrNotAFloat
		}
		return f, ""
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, ErrNotAFloat
		}
		return f, ""
	default:
		return nil, ErrNotAFloat
	}
}

// coerceBool maps string spellings of truth to bool and everything else to
// its literal truthiness. A bool value can never fail validation.
func coerceBool(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "", "false", "0", "no", "off":
			return false
		default:
			return true
		}
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	default:
		return value != nil
	}
}

// coerceComplex parses string-borne JSON; structured values pass through
// without a parse attempt.
func coerceComplex(value interface{}) (interface{}, string) {
	s, ok := value.(string)
	if !ok {
		return value, ""
	}
	var parsed interface{}
	if err := json.Unmarshal([]byte(s), &parsed); err != nil {
		return nil, ErrInvalidJSON
	}
	return parsed, ""
}

// matchesChoice compares the coerced value against each listed choice by
// canonical JSON form, so 2 matches 2.0 and "a" matches "a" regardless of
// the numeric type either side arrived as.
func matchesChoice(choices []interface{}, value interface{}) bool {
	canon := canonical(value)
	for _, c := range choices {
		if canonical(c) == canon {
			return true
		}
	}
	return false
}

func canonical(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
