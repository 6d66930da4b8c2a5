// Package envelope normalizes server responses. Some endpoints wrap their
// payload in a rich envelope {success, message, result}; others return the
// payload bare. Every call path goes through the one Interpret here, so the
// two shapes cannot drift apart between consumers.
package envelope

import "encoding/json"

// Local error envelope keys, synthesized when a call fails at the transport
// layer rather than inside the remote function.
const (
	KeyIsError = "_isError"
	KeyMessage = "_message"
)

// Interpreted is the normalized form of one response. Envelope is the raw
// decoded payload (rich or bare); Result is the payload a consumer actually
// wants; Success is nil when the envelope carried no success field.
type Interpreted struct {
	Envelope map[string]interface{}
	Result   interface{}
	Success  *bool
	Message  string
}

// IsError reports whether the envelope is a synthesized local error.
func (i *Interpreted) IsError() bool {
	if i == nil || i.Envelope == nil {
		return false
	}
	flag, _ := i.Envelope[KeyIsError].(bool)
	return flag
}

// Interpret decodes raw JSON and classifies it. A payload is a rich
// envelope iff it is a JSON object with its own "result" key; anything
// else — scalars, arrays, objects without "result" — is a bare result.
//
// Known ambiguity: a function whose bare result is itself an object
// containing a "result" key will be misclassified as rich. That is a wire
// protocol ambiguity, kept as-is rather than papered over with guessed
// semantics.
func Interpret(raw json.RawMessage) (*Interpreted, error) {
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}

	obj, isObject := decoded.(map[string]interface{})
	if !isObject {
		return &Interpreted{Result: decoded}, nil
	}

	result, hasResult := obj["result"]
	if !hasResult {
		return &Interpreted{Envelope: obj, Result: decoded}, nil
	}

	out := &Interpreted{Envelope: obj, Result: result}
	if s, ok := obj["success"].(bool); ok {
		out.Success = &s
	}
	if m, ok := obj["message"].(string); ok {
		out.Message = m
	}
	return out, nil
}

// NewErrorEnvelope builds the local error envelope stored on a controller
// when a call fails before a server response could be interpreted.
func NewErrorEnvelope(err error) *Interpreted {
	f := false
	return &Interpreted{
		Envelope: map[string]interface{}{
			KeyIsError: true,
			KeyMessage: "Error: " + err.Error(),
		},
		Success: &f,
		Message: "Error: " + err.Error(),
	}
}
