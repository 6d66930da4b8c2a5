// Package app is the composition root: it wires config, the COMMS
// lifecycle mirror, the result cache, the registry client, and the
// controller factory. Nothing here lives in a global; callers own the App
// and pass its factory around.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/callables-client/internal/config"
	"github.com/morezero/callables-client/pkg/cache"
	"github.com/morezero/callables-client/pkg/client"
	"github.com/morezero/callables-client/pkg/commsutil"
	"github.com/morezero/callables-client/pkg/controller"
	"github.com/morezero/callables-client/pkg/envelope"
	"github.com/morezero/callables-client/pkg/events"
)

const logPrefix = "app:app"

// App holds the wired components for one client process.
type App struct {
	Config  *config.Config
	Client  *client.Client
	Factory *controller.Factory
	Cache   *cache.Cache

	nc       *comms.Conn
	observed map[string]bool
}

// New loads config, sets up logging, and wires the optional COMMS mirror
// and result cache around a registry client and factory.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	setupLogging(cfg.LogLevel)

	if err := cfg.ValidateForCall(); err != nil {
		return nil, err
	}
	if err := cfg.ValidateForCache(); err != nil {
		return nil, err
	}

	a := &App{Config: cfg, observed: map[string]bool{}}

	var notifier events.Notifier = &events.NoOpNotifier{}
	if cfg.CommsURL != "" {
		nc, err := commsutil.Connect(cfg.CommsURL, cfg.CommsName)
		if err != nil {
			return nil, err
		}
		a.nc = nc
		opts := &events.CommsNotifierOpts{}
		if cfg.LifecycleSubject != "" {
			opts.GlobalSubject = cfg.LifecycleSubject
		}
		notifier = events.NewCommsNotifier(nc, opts)
	}

	if cfg.CacheEnabled {
		c, err := cache.Open(ctx, cfg.CacheDatabaseURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Cache = c
	}

	a.Client = client.New(cfg.RegistryBaseURL, &client.Opts{DiscoveryPath: cfg.DiscoveryPath})
	a.Factory = controller.NewFactory(a.Client, notifier)

	return a, nil
}

// Materialize discovers the registry and builds controllers for every
// entry, attaching the cache observer to each when the cache is enabled.
func (a *App) Materialize(ctx context.Context) (map[string]*controller.Controller, error) {
	controllers, err := a.Factory.MaterializeAll(ctx)
	if err != nil {
		return nil, err
	}
	if a.Cache != nil {
		for name, c := range controllers {
			if a.observed[name] {
				continue
			}
			a.observed[name] = true
			a.attachCacheObserver(c)
		}
	}
	return controllers, nil
}

// attachCacheObserver persists settled envelopes. Cache failures are logged
// and swallowed — the cache is best effort.
func (a *App) attachCacheObserver(c *controller.Controller) {
	name := c.Name()
	c.Subscribe(func(ev *events.LifecycleEvent) bool {
		if ev.Event != events.EventAfterExecute && ev.Event != events.EventExecuteError {
			return false
		}
		entry := &cache.Entry{
			Function: name,
			Envelope: ev.Envelope,
			Result:   ev.Result,
			Message:  ev.Error,
		}
		if ev.Envelope != nil {
			if s, ok := ev.Envelope["success"].(bool); ok {
				entry.Success = &s
			}
			if m, ok := ev.Envelope["message"].(string); ok && m != "" {
				entry.Message = m
			}
			if m, ok := ev.Envelope[envelope.KeyMessage].(string); ok && m != "" {
				entry.Message = m
			}
		}
		if err := a.Cache.Put(context.Background(), entry); err != nil {
			slog.Warn(fmt.Sprintf("%s - failed to cache result for %s: %v", logPrefix, name, err))
		}
		return false
	})
}

// Close tears down the COMMS connection and cache pool in order.
func (a *App) Close() {
	if a.nc != nil {
		a.nc.Drain()
		a.nc = nil
	}
	if a.Cache != nil {
		a.Cache.Close()
		a.Cache = nil
	}
}

func setupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}
