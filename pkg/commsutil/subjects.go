package commsutil

import (
	"fmt"
	"strings"
)

// SubjectLifecycle is the default global subject all lifecycle events are
// mirrored to.
const SubjectLifecycle = "callables.lifecycle"

// BuildLifecycleSubject builds a granular lifecycle subject for one event
// of one function, e.g. "callables.lifecycle.after-execute.add".
func BuildLifecycleSubject(event, function string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectLifecycle, sanitizeToken(event), sanitizeToken(function))
}

// sanitizeToken makes a value safe for use as one COMMS subject token.
func sanitizeToken(s string) string {
	s = strings.ReplaceAll(s, ".", "_")
	s = strings.ReplaceAll(s, " ", "_")
	if s == "" {
		return "_"
	}
	return s
}
