package events

import "context"

// Notifier is the interface for delivering lifecycle events beyond the
// controller's in-process observers.
type Notifier interface {
	PublishLifecycle(ctx context.Context, event *LifecycleEvent) error
}

// NoOpNotifier is a Notifier that does nothing (for in-process usage
// without an event mirror).
type NoOpNotifier struct{}

// PublishLifecycle is a no-op.
func (n *NoOpNotifier) PublishLifecycle(_ context.Context, _ *LifecycleEvent) error {
	return nil
}

// CallbackNotifier is a Notifier that calls a callback function (for
// testing).
type CallbackNotifier struct {
	callback func(ctx context.Context, event *LifecycleEvent) error
}

// NewCallbackNotifier creates a new CallbackNotifier.
func NewCallbackNotifier(cb func(ctx context.Context, event *LifecycleEvent) error) *CallbackNotifier {
	return &CallbackNotifier{callback: cb}
}

// PublishLifecycle calls the callback.
func (n *CallbackNotifier) PublishLifecycle(ctx context.Context, event *LifecycleEvent) error {
	return n.callback(ctx, event)
}
