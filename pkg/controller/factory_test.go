package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/morezero/callables-client/pkg/client"
	"github.com/morezero/callables-client/pkg/descriptor"
)

func registryServer(t *testing.T) *client.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		doc := map[string]interface{}{
			"functions": map[string]interface{}{
				"add": &descriptor.Function{
					Name: "add",
					Parameters: []descriptor.Parameter{
						{Name: "a", Type: descriptor.TypeInt, Required: true},
					},
					HTTPMethods: []string{"POST"},
				},
				"greet": &descriptor.Function{
					Name: "greet",
					Parameters: []descriptor.Parameter{
						{Name: "greeting", Type: descriptor.TypeString, Default: "hello"},
					},
					HTTPMethods: []string{"GET"},
				},
			},
		}
		json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(srv.Close)
	return client.New(srv.URL, nil)
}

func TestMaterializeAll(t *testing.T) {
	f := NewFactory(registryServer(t), nil)

	controllers, err := f.MaterializeAll(context.Background())
	if err != nil {
		t.Fatalf("failed to materialize: %v", err)
	}
	if len(controllers) != 2 {
		t.Fatalf("expected 2 controllers, got %d", len(controllers))
	}

	// Descriptors are pre-bound and defaults pre-populated at construction.
	greet := controllers["greet"]
	if greet.Descriptor() == nil {
		t.Fatal("expected pre-bound descriptor")
	}
	if v, _ := greet.Param("greeting"); v != "hello" {
		t.Errorf("expected default pre-populated, got %v", v)
	}
}

func TestMaterializeAll_Idempotent(t *testing.T) {
	f := NewFactory(registryServer(t), nil)

	first, err := f.MaterializeAll(context.Background())
	if err != nil {
		t.Fatalf("failed to materialize: %v", err)
	}
	second, err := f.MaterializeAll(context.Background())
	if err != nil {
		t.Fatalf("failed to re-materialize: %v", err)
	}

	if len(second) != len(first) {
		t.Fatalf("expected same size, got %d vs %d", len(first), len(second))
	}
	for name, c := range first {
		if second[name] != c {
			t.Errorf("controller %s was reconstructed", name)
		}
	}
}

func TestFactoryGet(t *testing.T) {
	f := NewFactory(registryServer(t), nil)
	if _, ok := f.Get("add"); ok {
		t.Error("expected no controller before materialization")
	}
	if _, err := f.MaterializeAll(context.Background()); err != nil {
		t.Fatalf("failed to materialize: %v", err)
	}
	if _, ok := f.Get("add"); !ok {
		t.Error("expected add after materialization")
	}
	if f.Len() != 2 {
		t.Errorf("expected 2 controllers, got %d", f.Len())
	}
}
