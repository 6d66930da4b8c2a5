package events

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/callables-client/pkg/commsutil"
)

const commsNotifierLogPrefix = "events:comms_publisher"

// CommsNotifierOpts configures CommsNotifier. Nil or zero values use
// defaults.
type CommsNotifierOpts struct {
	// GlobalSubject overrides the global lifecycle subject (e.g. from
	// LIFECYCLE_SUBJECT).
	GlobalSubject string
}

// CommsNotifier mirrors lifecycle events onto COMMS subjects so dashboards
// and other passive observers can watch executions without holding a
// controller.
type CommsNotifier struct {
	nc            *comms.Conn
	globalSubject string
}

// NewCommsNotifier creates a new CommsNotifier. Pass nil for opts to use
// defaults.
func NewCommsNotifier(nc *comms.Conn, opts *CommsNotifierOpts) *CommsNotifier {
	globalSubject := commsutil.SubjectLifecycle
	if opts != nil && opts.GlobalSubject != "" {
		globalSubject = opts.GlobalSubject
	}
	return &CommsNotifier{nc: nc, globalSubject: globalSubject}
}

// PublishLifecycle publishes a LifecycleEvent to both the granular and
// global lifecycle subjects.
func (n *CommsNotifier) PublishLifecycle(_ context.Context, event *LifecycleEvent) error {
	data, err := commsutil.EncodePayload(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsNotifierLogPrefix, err)
	}

	granularSubject := commsutil.BuildLifecycleSubject(event.Event, event.Function)
	if err := n.nc.Publish(granularSubject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsNotifierLogPrefix, granularSubject, err))
		return err
	}

	if err := n.nc.Publish(n.globalSubject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsNotifierLogPrefix, n.globalSubject, err))
		return err
	}

	slog.Debug(fmt.Sprintf("%s - Published %s for %s", commsNotifierLogPrefix, event.Event, event.Function))
	return nil
}
