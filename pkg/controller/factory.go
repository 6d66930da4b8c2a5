package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/morezero/callables-client/pkg/client"
	"github.com/morezero/callables-client/pkg/events"
)

const factoryLogPrefix = "controller:factory"

// Factory materializes one Controller per registry entry. It is purely
// additive: a name already materialized is never reconstructed, so calling
// MaterializeAll repeatedly against the same registry has no duplicate side
// effects. The factory is meant to be owned by the application's
// composition root and passed explicitly — there is no ambient global.
type Factory struct {
	client   *client.Client
	notifier events.Notifier

	mu          sync.Mutex
	controllers map[string]*Controller
}

// NewFactory creates a Factory. Pass nil notifier to disable the lifecycle
// mirror.
func NewFactory(cli *client.Client, notifier events.Notifier) *Factory {
	if notifier == nil {
		notifier = &events.NoOpNotifier{}
	}
	return &Factory{
		client:      cli,
		notifier:    notifier,
		controllers: make(map[string]*Controller),
	}
}

// MaterializeAll discovers the registry and builds a controller for every
// function not already materialized. Each controller gets its descriptor
// pre-bound and its declared defaults pre-populated at construction. The
// returned map is the factory's full current set, keyed by function name.
func (f *Factory) MaterializeAll(ctx context.Context) (map[string]*Controller, error) {
	doc, err := f.client.Discover(ctx)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	created := 0
	for name, fn := range doc.Functions {
		if _, exists := f.controllers[name]; exists {
			continue
		}
		fnCopy := fn
		f.controllers[name] = New(f.client, name, &Opts{
			Descriptor: &fnCopy,
			Notifier:   f.notifier,
		})
		created++
	}

	slog.Info(fmt.Sprintf("%s - Materialized %d new controllers (%d total)", factoryLogPrefix, created, len(f.controllers)))

	out := make(map[string]*Controller, len(f.controllers))
	for name, c := range f.controllers {
		out[name] = c
	}
	return out, nil
}

// Get returns the controller for a name, if materialized.
func (f *Factory) Get(name string) (*Controller, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.controllers[name]
	return c, ok
}

// Len returns the number of materialized controllers.
func (f *Factory) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.controllers)
}
