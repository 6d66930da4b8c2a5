// Package client is the I/O boundary of the callables system: it fetches
// function descriptors from the discovery endpoint and performs planned
// invocations over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/morezero/callables-client/pkg/descriptor"
	"github.com/morezero/callables-client/pkg/plan"
)

const logPrefix = "client:client"

// DefaultDiscoveryPath is where the registry document lives unless
// configured otherwise.
const DefaultDiscoveryPath = "/functions"

// Client talks to one callables server. The zero value is not usable; use
// New.
type Client struct {
	baseURL       string
	discoveryPath string
	httpClient    *http.Client
}

// Opts configures a Client. Zero values use defaults.
type Opts struct {
	// DiscoveryPath overrides the registry document path.
	DiscoveryPath string
	// HTTPClient overrides the transport, e.g. for tests.
	HTTPClient *http.Client
}

// New creates a Client for the given base URL. Pass nil opts for defaults.
func New(baseURL string, opts *Opts) *Client {
	c := &Client{
		baseURL:       baseURL,
		discoveryPath: DefaultDiscoveryPath,
		httpClient:    http.DefaultClient,
	}
	if opts != nil {
		if opts.DiscoveryPath != "" {
			c.discoveryPath = opts.DiscoveryPath
		}
		if opts.HTTPClient != nil {
			c.httpClient = opts.HTTPClient
		}
	}
	return c
}

// BaseURL returns the server base URL the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Discover fetches the registry document. Repeated calls are safe and have
// no side effects beyond returning data.
func (c *Client) Discover(ctx context.Context) (*descriptor.Document, error) {
	url := c.baseURL + c.discoveryPath
	slog.Debug(fmt.Sprintf("%s - Discover url=%s", logPrefix, url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &DiscoveryError{Message: "failed to build request", Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &DiscoveryError{Message: "registry fetch failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &DiscoveryError{Message: "failed to read registry response", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &DiscoveryError{Message: fmt.Sprintf("registry returned %s", resp.Status)}
	}

	doc, err := descriptor.ParseDocument(body)
	if err != nil {
		return nil, &DiscoveryError{Message: "malformed registry document", Err: err}
	}
	if err := checkCompatibility(doc); err != nil {
		return nil, err
	}

	slog.Info(fmt.Sprintf("%s - Discovered %d functions", logPrefix, len(doc.Functions)))
	return doc, nil
}

// Describe fetches the registry and returns the named descriptor.
func (c *Client) Describe(ctx context.Context, name string) (*descriptor.Function, error) {
	doc, err := c.Discover(ctx)
	if err != nil {
		return nil, err
	}
	fn, ok := doc.Functions[name]
	if !ok {
		return nil, &DiscoveryError{Message: fmt.Sprintf("function not found in registry: %s", name)}
	}
	return &fn, nil
}

// Invoke executes a planned request and returns the raw JSON response
// body. Non-2xx responses surface the server's structured "detail" field
// when one is present, falling back to the HTTP status text.
func (c *Client) Invoke(ctx context.Context, p *plan.Plan) (json.RawMessage, error) {
	url := p.URL(c.baseURL)
	slog.Debug(fmt.Sprintf("%s - Invoke %s %s", logPrefix, p.Method, url))

	var reqBody io.Reader
	if p.Body != nil {
		data, err := json.Marshal(p.Body)
		if err != nil {
			return nil, &TransportError{Message: "failed to encode request body", Err: err}
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, p.Method, url, reqBody)
	if err != nil {
		return nil, &TransportError{Message: "failed to build request", Err: err}
	}
	if p.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{StatusCode: resp.StatusCode, Message: "failed to read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{
			StatusCode: resp.StatusCode,
			Message:    errorDetail(body, resp.Status),
		}
	}

	if !json.Valid(body) {
		return nil, &TransportError{StatusCode: resp.StatusCode, Message: "response is not valid JSON"}
	}
	return json.RawMessage(body), nil
}

// errorDetail pulls the structured detail field out of an error body,
// falling back to the HTTP status text.
func errorDetail(body []byte, status string) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	return status
}
