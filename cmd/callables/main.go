// Package main is the entrypoint for the callables CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/callables-client/internal/app"
	"github.com/morezero/callables-client/internal/config"
	"github.com/morezero/callables-client/pkg/commsutil"
	"github.com/morezero/callables-client/pkg/controller"
)

const usage = `Usage: callables [command]
       callables functions              List functions exposed by the registry.
       callables describe <name>        Show one function's parameters and methods.
       callables call <name> [k=v ...]  Execute a function; values are raw strings, coerced per the descriptor.
       callables cached <name>          Show the cached last result for a function (requires CACHE_ENABLED).
       callables watch                  Stream lifecycle events from the COMMS mirror.

Commands:
  functions        List the registry contents.
  describe <name>  Show the descriptor for one function.
  call <name>      One-shot execute with k=v parameters.
  cached <name>    Read the best-effort result cache.
  watch            Subscribe to the lifecycle subject and print events.

Environment: REGISTRY_BASE_URL, DISCOVERY_PATH, COMMS_URL (watch/mirror), CACHE_ENABLED, CACHE_DATABASE_URL, REQUEST_TIMEOUT, LOG_LEVEL. See README.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "functions":
		if err := runFunctions(); err != nil {
			log.Fatalf("callables functions: %v", err)
		}
		return
	case "describe":
		if len(args) < 2 {
			log.Fatalf("callables describe: require a function name")
		}
		if err := runDescribe(args[1]); err != nil {
			log.Fatalf("callables describe: %v", err)
		}
		return
	case "call":
		if len(args) < 2 {
			log.Fatalf("callables call: require a function name")
		}
		if err := runCall(args[1], args[2:]); err != nil {
			log.Fatalf("callables call: %v", err)
		}
		return
	case "cached":
		if len(args) < 2 {
			log.Fatalf("callables cached: require a function name")
		}
		if err := runCached(args[1]); err != nil {
			log.Fatalf("callables cached: %v", err)
		}
		return
	case "watch":
		if err := runWatch(); err != nil {
			log.Fatalf("callables watch: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}
}

func runFunctions() error {
	ctx := context.Background()
	a, err := app.New(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(ctx, a.Config.RequestTimeout)
	defer cancel()

	doc, err := a.Client.Discover(ctx)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(doc.Functions))
	for name := range doc.Functions {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fn := doc.Functions[name]
		fmt.Printf("%-24s %s\n", name, fn.Description)
	}
	return nil
}

func runDescribe(name string) error {
	ctx := context.Background()
	a, err := app.New(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(ctx, a.Config.RequestTimeout)
	defer cancel()

	fn, err := a.Client.Describe(ctx, name)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(fn, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runCall(name string, kvArgs []string) error {
	params, err := parseParams(kvArgs)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := app.New(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	callCtx, cancel := context.WithTimeout(ctx, a.Config.RequestTimeout)
	defer cancel()

	controllers, err := a.Materialize(callCtx)
	if err != nil {
		return err
	}
	c, ok := controllers[name]
	if !ok {
		return fmt.Errorf("function not found in registry: %s", name)
	}

	for k, v := range params {
		c.SetParam(k, v)
	}

	result, err := c.Execute(callCtx)
	if err != nil {
		if verr, ok := err.(*controller.ValidationError); ok {
			for param, msg := range verr.Errors {
				fmt.Fprintf(os.Stderr, "%s: %s\n", param, msg)
			}
		}
		return err
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))

	// A rich envelope with success=false completed; report it without
	// pretending the call itself failed.
	if env := c.Envelope(); env != nil {
		if s, ok := env["success"].(bool); ok && !s {
			fmt.Fprintf(os.Stderr, "remote reported failure: %s\n", c.Message())
			os.Exit(2)
		}
	}
	return nil
}

func runCached(name string) error {
	ctx := context.Background()
	a, err := app.New(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.Cache == nil {
		return fmt.Errorf("cache is not enabled (set CACHE_ENABLED and CACHE_DATABASE_URL)")
	}

	entry, err := a.Cache.Get(ctx, name)
	if err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("no cached result for %s", name)
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runWatch() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateForWatch(); err != nil {
		return err
	}

	nc, err := commsutil.Connect(cfg.CommsURL, cfg.CommsName)
	if err != nil {
		return err
	}
	defer nc.Drain()

	subject := cfg.LifecycleSubject
	if subject == "" {
		subject = commsutil.SubjectLifecycle
	}

	sub, err := nc.Subscribe(subject, func(msg *comms.Msg) {
		fmt.Println(string(msg.Data))
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	fmt.Fprintf(os.Stderr, "watching %s (ctrl-c to stop)\n", subject)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	return nil
}

// parseParams turns k=v arguments into a raw parameter map. Values stay
// strings; the coercion engine owns all interpretation.
func parseParams(args []string) (map[string]interface{}, error) {
	params := make(map[string]interface{}, len(args))
	for _, arg := range args {
		eq := strings.Index(arg, "=")
		if eq <= 0 {
			return nil, fmt.Errorf("parameter %q is not in k=v form", arg)
		}
		params[arg[:eq]] = arg[eq+1:]
	}
	return params, nil
}
