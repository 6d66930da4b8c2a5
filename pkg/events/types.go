// Package events defines controller lifecycle notifications and the
// notifier interfaces that deliver them to consumers.
package events

// Lifecycle event names, matching the notification contract consumers
// (forms, chat widgets, test harnesses) observe.
const (
	EventFunctionConnected = "function-connected"
	EventParamsChanged     = "params-changed"
	EventBeforeExecute     = "before-execute"
	EventAfterExecute      = "after-execute"
	EventExecuteError      = "execute-error"
)

// LifecycleEvent is one controller notification. Params is always a
// deep-owned snapshot: observers may keep it, they can never corrupt the
// controller's own state through it.
type LifecycleEvent struct {
	Event     string                 `json:"event"`
	Function  string                 `json:"function"`
	Params    map[string]interface{} `json:"params"`
	Result    interface{}            `json:"result,omitempty"`
	Envelope  map[string]interface{} `json:"envelope,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Timestamp string                 `json:"timestamp"`
}
