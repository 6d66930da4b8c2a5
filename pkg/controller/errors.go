package controller

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrVetoed is returned by Execute when a before-execute observer cancels
// the call. No controller state changes when this happens.
var ErrVetoed = errors.New("execution vetoed by observer")

// ValidationError reports parameters that failed required/type/choice
// checks. It is always locally recoverable by correcting input and never
// corresponds to a network call having been made.
type ValidationError struct {
	Function string
	Errors   map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Errors))
	for name := range e.Errors {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Errors[name]))
	}
	return fmt.Sprintf("validation failed for %s (%s)", e.Function, strings.Join(parts, ", "))
}
