// Package controller implements the stateful core of the callables client:
// one Controller per function descriptor, owning current parameter values,
// validation state, the last normalized response, and an execution state
// machine with lifecycle notifications. A Factory materializes one
// controller per registry entry.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/morezero/callables-client/pkg/client"
	"github.com/morezero/callables-client/pkg/coerce"
	"github.com/morezero/callables-client/pkg/descriptor"
	"github.com/morezero/callables-client/pkg/envelope"
	"github.com/morezero/callables-client/pkg/events"
	"github.com/morezero/callables-client/pkg/plan"
)

const logPrefix = "controller:controller"

// State is the controller's execution state.
type State string

// Execution states. A controller accepts a new Execute from any terminal
// state; result and error fields are simply overwritten.
const (
	StateIdle             State = "idle"
	StateValidating       State = "validating"
	StateInvoking         State = "invoking"
	StateSucceeded        State = "succeeded"
	StateFailed           State = "failed"
	StateFailedValidation State = "failed-validation"
)

// Observer receives lifecycle events in process. Returning veto=true from a
// before-execute event cancels the call; the return value is ignored for
// every other event.
type Observer func(event *events.LifecycleEvent) (veto bool)

// Controller owns one function descriptor and its call state.
type Controller struct {
	client   *client.Client
	notifier events.Notifier

	// settleMu serializes result assignment with its notification, so
	// overlapping executes settle one at a time: the last to settle wins
	// and notifications follow settle order, not issue order.
	settleMu sync.Mutex

	mu              sync.Mutex
	name            string
	fn              *descriptor.Function
	params          map[string]interface{}
	edited          map[string]bool
	errors          map[string]string
	last            *envelope.Interpreted
	state           State
	executing       bool
	defaultsApplied bool
	observers       []Observer
}

// Opts configures a Controller. Nil or zero values use defaults.
type Opts struct {
	// Descriptor pre-binds the function descriptor; without it the
	// controller fetches one lazily on first Connect/Execute.
	Descriptor *descriptor.Function
	// Notifier mirrors lifecycle events beyond in-process observers.
	Notifier events.Notifier
}

// New creates a Controller for the named function. Pass nil opts for
// defaults. When a descriptor is pre-bound, declared parameter defaults are
// populated immediately.
func New(cli *client.Client, name string, opts *Opts) *Controller {
	c := &Controller{
		client:   cli,
		notifier: &events.NoOpNotifier{},
		name:     name,
		params:   map[string]interface{}{},
		edited:   map[string]bool{},
		errors:   map[string]string{},
		state:    StateIdle,
	}
	if opts != nil {
		if opts.Notifier != nil {
			c.notifier = opts.Notifier
		}
		if opts.Descriptor != nil {
			c.fn = opts.Descriptor
			c.applyDefaultsLocked()
		}
	}
	return c
}

// Subscribe registers an in-process observer for lifecycle events.
func (c *Controller) Subscribe(obs Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, obs)
}

// Name returns the function name the controller is bound to.
func (c *Controller) Name() string {
	return c.name
}

// Descriptor returns the owned descriptor, or nil before first connection.
func (c *Controller) Descriptor() *descriptor.Function {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fn
}

// Connect ensures the controller holds a descriptor, fetching one from the
// registry when none was pre-bound, then applies declared defaults for
// parameters with no manual edits and emits function-connected.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.fn != nil {
		c.applyDefaultsLocked()
		c.mu.Unlock()
		return nil
	}
	name := c.name
	c.mu.Unlock()

	fn, err := c.client.Describe(ctx, name)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.fn == nil {
		c.fn = fn
	}
	c.applyDefaultsLocked()
	ev := c.eventLocked(events.EventFunctionConnected)
	c.mu.Unlock()

	c.emit(ctx, ev)
	return nil
}

// applyDefaultsLocked populates declared defaults once, skipping any
// parameter the consumer already set by hand.
func (c *Controller) applyDefaultsLocked() {
	if c.defaultsApplied || c.fn == nil {
		return
	}
	next := copyParams(c.params)
	for i := range c.fn.Parameters {
		p := &c.fn.Parameters[i]
		if p.Default == nil || c.edited[p.Name] {
			continue
		}
		if _, exists := next[p.Name]; !exists {
			next[p.Name] = p.Default
		}
	}
	c.params = next
	c.defaultsApplied = true
}

// SetParam sets one parameter value. The params map is replaced, never
// mutated in place, so observers relying on reference-equality change
// detection see a fresh map. Any existing validation error for the key is
// cleared, and params-changed is emitted with a snapshot.
func (c *Controller) SetParam(name string, value interface{}) {
	c.mu.Lock()
	next := copyParams(c.params)
	next[name] = value
	c.params = next
	c.edited[name] = true
	delete(c.errors, name)
	ev := c.eventLocked(events.EventParamsChanged)
	c.mu.Unlock()

	c.emit(context.Background(), ev)
}

// Param returns the current value of one parameter.
func (c *Controller) Param(name string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.params[name]
	return v, ok
}

// Params returns a deep-owned snapshot of the current parameter values.
func (c *Controller) Params() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return snapshotParams(c.params)
}

// Errors returns a copy of the current validation error map.
func (c *Controller) Errors() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.errors))
	for k, v := range c.errors {
		out[k] = v
	}
	return out
}

// State returns the current execution state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Result returns the last normalized result, or nil.
func (c *Controller) Result() interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return nil
	}
	return c.last.Result
}

// Envelope returns the last raw envelope, or nil. On transport failure this
// is the synthesized local error envelope.
func (c *Controller) Envelope() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return nil
	}
	return c.last.Envelope
}

// Success reports the last envelope's success field; false when the field
// was absent or no call has settled.
func (c *Controller) Success() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last != nil && c.last.Success != nil && *c.last.Success
}

// Message returns the last envelope's message, "" when absent.
func (c *Controller) Message() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return ""
	}
	return c.last.Message
}

// Validate runs the coercion engine against current params and stores the
// resulting error map wholesale. It is synchronous and performs no I/O; a
// controller that has not connected yet reports false.
func (c *Controller) Validate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fn == nil {
		return false
	}
	c.validateLocked()
	return len(c.errors) == 0
}

// validateLocked recomputes the error map and returns the coerced params
// when validation passes.
func (c *Controller) validateLocked() map[string]interface{} {
	if c.fn == nil {
		c.errors = map[string]string{}
		return nil
	}
	res := coerce.ValidateAndCoerce(c.fn, c.params)
	c.errors = res.Errors
	if !res.OK() {
		return nil
	}
	return res.Coerced
}

// Execute runs the full call path: cancelable before-execute, validation
// gate, invocation, envelope interpretation. Validation failure makes no
// network call and returns a *ValidationError; transport failure stores the
// local error envelope and returns the transport error. A success=false
// rich envelope is a completed execution, not an error. The last call to
// settle wins, and notifications follow settle order.
func (c *Controller) Execute(ctx context.Context) (interface{}, error) {
	if err := c.Connect(ctx); err != nil {
		c.settleError(ctx, err)
		return nil, err
	}

	before := c.snapshotEvent(events.EventBeforeExecute)
	if c.emit(ctx, before) {
		slog.Debug(fmt.Sprintf("%s - %s execution vetoed", logPrefix, c.name))
		return nil, ErrVetoed
	}

	c.mu.Lock()
	c.state = StateValidating
	coerced := c.validateLocked()
	if len(c.errors) > 0 {
		errs := make(map[string]string, len(c.errors))
		for k, v := range c.errors {
			errs[k] = v
		}
		c.state = StateFailedValidation
		c.executing = false
		name := c.name
		c.mu.Unlock()
		return nil, &ValidationError{Function: name, Errors: errs}
	}
	c.state = StateInvoking
	c.executing = true
	fn := c.fn
	c.mu.Unlock()

	p, err := plan.Build(fn, coerced)
	if err != nil {
		c.settleError(ctx, err)
		return nil, err
	}

	raw, err := c.client.Invoke(ctx, p)
	if err != nil {
		c.settleError(ctx, err)
		return nil, err
	}

	interpreted, err := envelope.Interpret(raw)
	if err != nil {
		terr := &client.TransportError{Message: "response is not valid JSON", Err: err}
		c.settleError(ctx, terr)
		return nil, terr
	}

	c.settleMu.Lock()
	c.mu.Lock()
	c.last = interpreted
	c.state = StateSucceeded
	c.executing = false
	ev := c.eventLocked(events.EventAfterExecute)
	ev.Result = interpreted.Result
	ev.Envelope = interpreted.Envelope
	c.mu.Unlock()
	c.emit(ctx, ev)
	c.settleMu.Unlock()

	return interpreted.Result, nil
}

// settleError records a discovery/plan/transport failure: the local error
// envelope replaces any previous result so the controller is never left in
// a stale "previous success" state, and execute-error is emitted.
func (c *Controller) settleError(ctx context.Context, err error) {
	c.settleMu.Lock()
	c.mu.Lock()
	c.last = envelope.NewErrorEnvelope(err)
	c.state = StateFailed
	c.executing = false
	ev := c.eventLocked(events.EventExecuteError)
	ev.Envelope = c.last.Envelope
	ev.Error = err.Error()
	c.mu.Unlock()
	c.emit(ctx, ev)
	c.settleMu.Unlock()
}

// snapshotEvent builds an event outside any held lock.
func (c *Controller) snapshotEvent(name string) *events.LifecycleEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eventLocked(name)
}

func (c *Controller) eventLocked(name string) *events.LifecycleEvent {
	return &events.LifecycleEvent{
		Event:     name,
		Function:  c.name,
		Params:    snapshotParams(c.params),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// emit delivers an event to in-process observers, then mirrors it through
// the notifier. It reports whether a before-execute observer vetoed.
func (c *Controller) emit(ctx context.Context, ev *events.LifecycleEvent) bool {
	c.mu.Lock()
	observers := make([]Observer, len(c.observers))
	copy(observers, c.observers)
	c.mu.Unlock()

	vetoed := false
	for _, obs := range observers {
		if obs(ev) && ev.Event == events.EventBeforeExecute {
			vetoed = true
		}
	}
	if vetoed {
		return true
	}

	if err := c.notifier.PublishLifecycle(ctx, ev); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to mirror %s for %s: %v", logPrefix, ev.Event, ev.Function, err))
	}
	return false
}

// copyParams makes a shallow copy for immutable map replacement.
func copyParams(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// snapshotParams deep-copies params for notification payloads, so observers
// can never mutate controller state through them.
func snapshotParams(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, inner := range t {
			out[k] = deepCopyValue(inner)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, inner := range t {
			out[i] = deepCopyValue(inner)
		}
		return out
	default:
		return v
	}
}
