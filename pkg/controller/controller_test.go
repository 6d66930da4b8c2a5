package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/morezero/callables-client/pkg/client"
	"github.com/morezero/callables-client/pkg/descriptor"
	"github.com/morezero/callables-client/pkg/events"
)

func addDescriptor() *descriptor.Function {
	return &descriptor.Function{
		Name: "add",
		Parameters: []descriptor.Parameter{
			{Name: "a", Type: descriptor.TypeInt, Required: true},
			{Name: "b", Type: descriptor.TypeInt, Required: true},
		},
		HTTPMethods: []string{"POST"},
	}
}

// stubServer answers /functions with a registry containing add, and /add
// with the given handler.
func stubServer(t *testing.T, addHandler http.HandlerFunc) (*httptest.Server, *client.Client) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/functions", func(w http.ResponseWriter, r *http.Request) {
		doc := map[string]interface{}{
			"functions": map[string]interface{}{"add": addDescriptor()},
		}
		json.NewEncoder(w).Encode(doc)
	})
	mux.HandleFunc("/add", addHandler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, client.New(srv.URL, nil)
}

func TestExecute_Success(t *testing.T) {
	_, cli := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		if body["a"] != 2.0 || body["b"] != 3.0 {
			t.Errorf("expected coerced ints in body, got %v", body)
		}
		w.Write([]byte(`{"success": true, "result": 5}`))
	})

	c := New(cli, "add", &Opts{Descriptor: addDescriptor()})
	c.SetParam("a", "2")
	c.SetParam("b", "3")

	result, err := c.Execute(context.Background())
	if err != nil {
		t.Fatalf("failed to execute: %v", err)
	}
	if result != 5.0 {
		t.Errorf("expected result 5, got %v", result)
	}
	if c.Result() != 5.0 {
		t.Errorf("expected stored result 5, got %v", c.Result())
	}
	if !c.Success() {
		t.Error("expected success=true")
	}
	if c.State() != StateSucceeded {
		t.Errorf("expected succeeded, got %s", c.State())
	}
}

func TestExecute_ValidationBlocksNetworkCall(t *testing.T) {
	var calls int32
	_, cli := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"result": 0}`))
	})

	c := New(cli, "add", &Opts{Descriptor: addDescriptor()})
	c.SetParam("a", "")
	c.SetParam("b", "3")

	_, err := c.Execute(context.Background())
	if err == nil {
		t.Fatal("expected validation error")
	}
	verr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if verr.Errors["a"] != "required" {
		t.Errorf("expected errors.a == required, got %q", verr.Errors["a"])
	}
	if c.Errors()["a"] != "required" {
		t.Errorf("controller errors must mirror the failure, got %v", c.Errors())
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Error("validation failure must not reach the network")
	}
	if c.State() != StateFailedValidation {
		t.Errorf("expected failed-validation, got %s", c.State())
	}
}

func TestExecute_ComplexInvalidJSON(t *testing.T) {
	fn := &descriptor.Function{
		Name: "submit",
		Parameters: []descriptor.Parameter{
			{Name: "payload", Type: descriptor.TypeDict, Required: true},
		},
		HTTPMethods: []string{"POST"},
	}
	c := New(nil, "submit", &Opts{Descriptor: fn})
	c.SetParam("payload", "{bad json")

	if c.Validate() {
		t.Fatal("expected validation to fail")
	}
	if c.Errors()["payload"] != "invalid JSON" {
		t.Errorf("expected invalid JSON, got %q", c.Errors()["payload"])
	}
}

func TestExecute_TransportFailure(t *testing.T) {
	_, cli := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail": "kaboom"}`))
	})

	c := New(cli, "add", &Opts{Descriptor: addDescriptor()})
	c.SetParam("a", "2")
	c.SetParam("b", "3")

	_, err := c.Execute(context.Background())
	if err == nil {
		t.Fatal("expected transport error")
	}
	if _, ok := err.(*client.TransportError); !ok {
		t.Fatalf("expected TransportError, got %T", err)
	}
	env := c.Envelope()
	if env == nil || env["_isError"] != true {
		t.Errorf("expected local error envelope, got %v", env)
	}
	if c.State() != StateFailed {
		t.Errorf("expected failed, got %s", c.State())
	}
	if c.Success() {
		t.Error("expected success=false after transport failure")
	}
}

func TestExecute_RemoteFailureIsCompleted(t *testing.T) {
	_, cli := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "message": "no such user", "result": null}`))
	})

	c := New(cli, "add", &Opts{Descriptor: addDescriptor()})
	c.SetParam("a", "1")
	c.SetParam("b", "1")

	_, err := c.Execute(context.Background())
	if err != nil {
		t.Fatalf("success=false must not surface as an error: %v", err)
	}
	if c.Success() {
		t.Error("expected success=false")
	}
	if c.Message() != "no such user" {
		t.Errorf("expected message populated, got %q", c.Message())
	}
	if c.State() != StateSucceeded {
		t.Errorf("remote failure still settles as succeeded, got %s", c.State())
	}
}

func TestExecute_BeforeExecuteVeto(t *testing.T) {
	var calls int32
	_, cli := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"result": 1}`))
	})

	c := New(cli, "add", &Opts{Descriptor: addDescriptor()})
	c.SetParam("a", "1")
	c.SetParam("b", "2")
	c.Subscribe(func(ev *events.LifecycleEvent) bool {
		return ev.Event == events.EventBeforeExecute
	})

	_, err := c.Execute(context.Background())
	if err != ErrVetoed {
		t.Fatalf("expected ErrVetoed, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Error("vetoed execution must not reach the network")
	}
	if c.State() != StateIdle {
		t.Errorf("veto must leave state untouched, got %s", c.State())
	}
}

func TestExecute_Notifications(t *testing.T) {
	_, cli := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "result": 4}`))
	})

	c := New(cli, "add", &Opts{Descriptor: addDescriptor()})
	var seen []string
	c.Subscribe(func(ev *events.LifecycleEvent) bool {
		seen = append(seen, ev.Event)
		return false
	})

	c.SetParam("a", "2")
	c.SetParam("b", "2")
	if _, err := c.Execute(context.Background()); err != nil {
		t.Fatalf("failed to execute: %v", err)
	}

	want := []string{
		events.EventParamsChanged,
		events.EventParamsChanged,
		events.EventBeforeExecute,
		events.EventAfterExecute,
	}
	if len(seen) != len(want) {
		t.Fatalf("expected %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, seen)
		}
	}
}

func TestSetParam_ImmutableReplaceAndSnapshot(t *testing.T) {
	c := New(nil, "add", &Opts{Descriptor: addDescriptor()})

	before := c.Params()
	var fromEvent map[string]interface{}
	c.Subscribe(func(ev *events.LifecycleEvent) bool {
		fromEvent = ev.Params
		return false
	})

	c.SetParam("a", "1")
	after := c.Params()

	if _, present := before["a"]; present {
		t.Error("earlier snapshot must not see later writes")
	}
	if after["a"] != "1" {
		t.Errorf("expected a=1, got %v", after["a"])
	}

	// Mutating the notification payload must not corrupt the controller.
	fromEvent["a"] = "corrupted"
	if v, _ := c.Param("a"); v != "1" {
		t.Errorf("observer mutated controller state: %v", v)
	}
}

func TestSetParam_ClearsError(t *testing.T) {
	c := New(nil, "add", &Opts{Descriptor: addDescriptor()})
	c.SetParam("a", "oops")
	c.SetParam("b", "3")
	if c.Validate() {
		t.Fatal("expected validation failure")
	}
	if c.Errors()["a"] != "not an integer" {
		t.Fatalf("expected not an integer, got %q", c.Errors()["a"])
	}

	c.SetParam("a", "2")
	if _, present := c.Errors()["a"]; present {
		t.Error("setting a parameter must clear its error immediately")
	}
}

func TestDefaults_AppliedOnceWithoutOverridingEdits(t *testing.T) {
	fn := &descriptor.Function{
		Name: "greet",
		Parameters: []descriptor.Parameter{
			{Name: "greeting", Type: descriptor.TypeString, Default: "hello"},
			{Name: "name", Type: descriptor.TypeString, Required: true},
		},
		HTTPMethods: []string{"POST"},
	}

	c := New(nil, "greet", &Opts{Descriptor: fn})
	if v, _ := c.Param("greeting"); v != "hello" {
		t.Errorf("expected default pre-populated, got %v", v)
	}

	// Manual edits beat later default application.
	c2 := New(nil, "greet", nil)
	c2.SetParam("greeting", "hi")
	c2.fn = fn
	c2.mu.Lock()
	c2.applyDefaultsLocked()
	c2.mu.Unlock()
	if v, _ := c2.Param("greeting"); v != "hi" {
		t.Errorf("default must not override a manual edit, got %v", v)
	}
}

func TestLazyConnect(t *testing.T) {
	_, cli := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result": 9}`))
	})

	c := New(cli, "add", nil)
	var connected bool
	c.Subscribe(func(ev *events.LifecycleEvent) bool {
		if ev.Event == events.EventFunctionConnected {
			connected = true
		}
		return false
	})

	c.SetParam("a", "4")
	c.SetParam("b", "5")
	result, err := c.Execute(context.Background())
	if err != nil {
		t.Fatalf("failed to execute: %v", err)
	}
	if result != 9.0 {
		t.Errorf("expected 9, got %v", result)
	}
	if !connected {
		t.Error("expected function-connected on lazy descriptor fetch")
	}
	if c.Descriptor() == nil {
		t.Error("expected descriptor bound after connect")
	}
}

func TestConnect_UnknownFunction(t *testing.T) {
	_, cli := stubServer(t, func(w http.ResponseWriter, r *http.Request) {})

	c := New(cli, "missing", nil)
	_, err := c.Execute(context.Background())
	if err == nil {
		t.Fatal("expected discovery error")
	}
	if _, ok := err.(*client.DiscoveryError); !ok {
		t.Fatalf("expected DiscoveryError, got %T", err)
	}
	// Discovery failure is mirrored into controller state for passive
	// observers.
	if c.State() != StateFailed {
		t.Errorf("expected failed, got %s", c.State())
	}
	if env := c.Envelope(); env == nil || env["_isError"] != true {
		t.Errorf("expected local error envelope, got %v", env)
	}
}

func TestExecuteFunction_OneShot(t *testing.T) {
	_, cli := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "result": 5}`))
	})

	result, err := ExecuteFunction(context.Background(), cli, "add", map[string]interface{}{
		"a": "2", "b": "3",
	})
	if err != nil {
		t.Fatalf("failed to execute: %v", err)
	}
	if result != 5.0 {
		t.Errorf("expected 5, got %v", result)
	}

	_, err = ExecuteFunction(context.Background(), cli, "add", map[string]interface{}{"a": "2"})
	if err == nil {
		t.Error("one-shot must surface validation failure as an error")
	}
}
