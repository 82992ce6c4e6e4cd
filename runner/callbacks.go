package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/edumesh/core"
	"github.com/hupe1980/edumesh/logging"
)

// CallbackType names the lifecycle point a callback is attached to.
//
// Callbacks hook into the run pipeline without modifying agents:
//   - BeforeAgent runs before the root agent starts; an error aborts the run
//   - AfterAgent runs once every event of the turn has been persisted and
//     before the event stream closes
//   - OnEvent runs for every persisted event
//   - OnStateChange runs before a state delta is applied; an error rejects it
//   - OnError runs when the run fails
type CallbackType string

const (
	CallbackBeforeAgent   CallbackType = "before_agent"
	CallbackAfterAgent    CallbackType = "after_agent"
	CallbackOnEvent       CallbackType = "on_event"
	CallbackOnStateChange CallbackType = "on_state_change"
	CallbackOnError       CallbackType = "on_error"
)

// CallbackContext carries the information available to a callback.
type CallbackContext struct {
	// RunContext of the run. Its SessionID and RunID identify the turn.
	RunContext *core.RunContext

	// Event being processed. Nil for agent lifecycle callbacks.
	Event *core.Event

	// AgentName is the root agent of the run.
	AgentName string

	CallbackType CallbackType

	// Err is the terminal error for CallbackOnError.
	Err error

	// Metadata is free-form data shared between callbacks of one run.
	Metadata map[string]any
}

// Callback is a run lifecycle hook.
//
// Callbacks run synchronously on the runner's goroutines and should be fast.
// Errors returned by BeforeAgent and OnStateChange callbacks terminate the
// run; errors of the remaining types are logged.
type Callback interface {
	Type() CallbackType
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a Callback.
//
// Example:
//
//	cb := NewFunctionCallback(CallbackAfterAgent, func(ctx context.Context, c *CallbackContext) error {
//	    log.Printf("turn %s finished", c.RunContext.RunID)
//	    return nil
//	})
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a function based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType { return c.callbackType }

// Execute calls the wrapped function.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager keeps callbacks per type and executes them in registration
// order. It is safe for concurrent use.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{callbacks: make(map[CallbackType][]Callback)}
}

// RegisterCallback adds a callback under its Type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks[callback.Type()] = append(cm.callbacks[callback.Type()], callback)
}

// ExecuteCallbacks runs every callback registered for callbackType and stops
// at the first error. A panicking callback is reported as an error.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	cm.mu.RLock()
	callbacks := append([]Callback(nil), cm.callbacks[callbackType]...)
	cm.mu.RUnlock()

	callbackCtx.CallbackType = callbackType

	for _, callback := range callbacks {
		if err := executeSafely(ctx, callback, callbackCtx); err != nil {
			return err
		}
	}

	return nil
}

func executeSafely(ctx context.Context, cb Callback, callbackCtx *CallbackContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s callback panicked: %v", cb.Type(), r)
		}
	}()
	return cb.Execute(ctx, callbackCtx)
}

// LoggingCallback writes a structured line per lifecycle point.
type LoggingCallback struct {
	callbackType CallbackType
	logger       logging.Logger
}

// NewLoggingCallback creates a logging callback for callbackType.
func NewLoggingCallback(callbackType CallbackType, logger logging.Logger) *LoggingCallback {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &LoggingCallback{callbackType: callbackType, logger: logger}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType { return c.callbackType }

// Execute logs the callback context.
func (c *LoggingCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	args := []any{"callback", string(c.callbackType), "agent", callbackCtx.AgentName}
	if rc := callbackCtx.RunContext; rc != nil {
		args = append(args, "session_id", rc.SessionID, "run_id", rc.RunID)
	}
	if ev := callbackCtx.Event; ev != nil {
		args = append(args, "event_id", ev.ID, "author", ev.Author)
	}
	if callbackCtx.Err != nil {
		args = append(args, "error", callbackCtx.Err)
	}
	c.logger.Debug("runner.callback", args...)
	return nil
}

// StateValidationCallback rejects state deltas that fail validation.
//
// Example:
//
//	cb := NewStateValidationCallback(func(delta map[string]any) error {
//	    if v, ok := delta["current_style"]; ok && v == "" {
//	        return errors.New("current_style must not be empty")
//	    }
//	    return nil
//	})
type StateValidationCallback struct {
	validator func(stateDelta map[string]any) error
}

// NewStateValidationCallback creates a state validation callback.
func NewStateValidationCallback(validator func(stateDelta map[string]any) error) *StateValidationCallback {
	return &StateValidationCallback{validator: validator}
}

// Type returns CallbackOnStateChange.
func (c *StateValidationCallback) Type() CallbackType { return CallbackOnStateChange }

// Execute validates the state delta of the event.
func (c *StateValidationCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	if c.validator == nil || callbackCtx.Event == nil || len(callbackCtx.Event.Actions.StateDelta) == 0 {
		return nil
	}
	return c.validator(callbackCtx.Event.Actions.StateDelta)
}
