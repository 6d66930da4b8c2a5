// Package plan turns a function descriptor plus coerced parameters into a
// concrete request shape: method, path, and query-vs-body encoding. It is
// pure and performs no I/O.
package plan

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/morezero/callables-client/pkg/descriptor"
)

// Plan is the concrete shape of one invocation. Exactly one of Query and
// Body is populated: GET requests carry everything in the query string,
// every other verb carries a JSON body.
type Plan struct {
	Method string
	Path   string
	Query  url.Values
	Body   map[string]interface{}
}

// URL joins the plan onto a base URL, including the encoded query string
// when present.
func (p *Plan) URL(base string) string {
	u := strings.TrimRight(base, "/") + p.Path
	if len(p.Query) > 0 {
		u += "?" + p.Query.Encode()
	}
	return u
}

// Build derives the request plan for fn with the given coerced parameters.
// Method is the descriptor's first declared verb, upper-cased; path is
// "/" + name. Parameters whose coerced value is nil are omitted entirely —
// absence, not null, is the wire representation of "not provided".
func Build(fn *descriptor.Function, coerced map[string]interface{}) (*Plan, error) {
	if len(fn.HTTPMethods) == 0 {
		return nil, fmt.Errorf("function %q declares no http methods", fn.Name)
	}

	p := &Plan{
		Method: strings.ToUpper(fn.HTTPMethods[0]),
		Path:   "/" + fn.Name,
	}

	if p.Method == "GET" {
		p.Query = url.Values{}
		for name, value := range coerced {
			if value == nil {
				continue
			}
			s, err := queryValue(value)
			if err != nil {
				return nil, fmt.Errorf("function %q parameter %q: %w", fn.Name, name, err)
			}
			p.Query.Set(name, s)
		}
		return p, nil
	}

	p.Body = make(map[string]interface{}, len(coerced))
	for name, value := range coerced {
		if value == nil {
			continue
		}
		p.Body[name] = value
	}
	return p, nil
}

// queryValue renders one coerced value as a single query-string value.
// Structured values are JSON-stringified; primitives use their natural
// string form.
func queryValue(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("not serializable for query encoding: %w", err)
		}
		return string(data), nil
	}
}
