package client

import "fmt"

// DiscoveryError means the registry could not be fetched or understood, or
// a requested function name is absent from it.
type DiscoveryError struct {
	Message string
	Err     error
}

func (e *DiscoveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("discovery: %s: %v", e.Message, e.Err)
	}
	return "discovery: " + e.Message
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// TransportError means an invocation failed below the function itself:
// non-2xx HTTP, a connection failure, or a response body that is not JSON.
type TransportError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport: %s: %v", e.Message, e.Err)
	}
	return "transport: " + e.Message
}

func (e *TransportError) Unwrap() error { return e.Err }
