package flow

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hupe1980/edumesh/core"
	"github.com/hupe1980/edumesh/tool"
)

// FunctionExecutor executes a batch of function calls and emits one function
// response event per call through emit. Implementations must:
//   - Respect runCtx.Context cancellation
//   - Never panic (recover internally and emit error responses)
//   - Apply ToolContext accumulated actions to emitted events
//   - Call emit from one goroutine at a time
type FunctionExecutor interface {
	Execute(runCtx *core.RunContext, agent FlowAgent, toolRegistry map[string]tool.Tool, fnCalls []core.FunctionCall, emit func(core.Event) error)
}

// FunctionExecutorConfig configures the default parallel executor.
type FunctionExecutorConfig struct {
	MaxParallel    int  // <1 => len(fnCalls)
	PreserveOrder  bool // buffer results and emit in call order
	LogStartEvents bool // log a start line per function
}

type parallelFunctionExecutor struct {
	cfg FunctionExecutorConfig
}

// NewParallelFunctionExecutor constructs a new executor with the given config.
func NewParallelFunctionExecutor(cfg FunctionExecutorConfig) FunctionExecutor {
	return &parallelFunctionExecutor{cfg: cfg}
}

func (e *parallelFunctionExecutor) Execute(
	runCtx *core.RunContext,
	agent FlowAgent,
	toolRegistry map[string]tool.Tool,
	fnCalls []core.FunctionCall,
	emit func(core.Event) error,
) {
	n := len(fnCalls)
	if n == 0 {
		return
	}

	if n == 1 {
		if err := emit(e.call(runCtx, agent, toolRegistry, fnCalls[0])); err != nil {
			runCtx.LogError("agent.function.emit.error", "function", fnCalls[0].Name, "error", err)
		}
		return
	}

	maxPar := e.cfg.MaxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	results := make([]*core.Event, n)

	var (
		mu sync.Mutex // serializes emit and results
		wg sync.WaitGroup
	)

	sem := make(chan struct{}, maxPar)
	batchStart := time.Now()

	for i, fc := range fnCalls {
		if runCtx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}

		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			if runCtx.Err() != nil {
				return
			}

			ev := e.call(runCtx, agent, toolRegistry, fc)

			mu.Lock()
			defer mu.Unlock()

			if e.cfg.PreserveOrder {
				results[i] = &ev
				return
			}

			if err := emit(ev); err != nil {
				runCtx.LogError("agent.function.emit.error", "function", fc.Name, "error", err)
			}
		}()
	}

	wg.Wait()

	if e.cfg.PreserveOrder {
		for i, ev := range results {
			if ev == nil {
				continue
			}
			if err := emit(*ev); err != nil {
				runCtx.LogError("agent.function.emit.error", "function", fnCalls[i].Name, "error", err)
				break
			}
		}
	}

	runCtx.LogDebug(
		"agent.functions.batch.complete",
		"agent", agent.GetName(),
		"count", n,
		"parallelism", maxPar,
		"preserve_order", e.cfg.PreserveOrder,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)
}

// call executes one function call and builds its response event.
func (e *parallelFunctionExecutor) call(
	runCtx *core.RunContext,
	agent FlowAgent,
	toolRegistry map[string]tool.Tool,
	fc core.FunctionCall,
) core.Event {
	toolCtx := core.NewToolContext(runCtx, fc.ID)

	if e.cfg.LogStartEvents {
		runCtx.LogInfo("agent.function.start", "agent", agent.GetName(), "function", fc.Name, "function_call_id", fc.ID)
	}

	start := time.Now()

	var (
		result any
		err    error
	)

	func() {
		defer func() {
			if r := recover(); r != nil {
				err = panicError(r)
				runCtx.LogError("agent.function.panic", "agent", agent.GetName(), "function", fc.Name, "recover", r, "stack", string(debug.Stack()))
			}
		}()
		result, err = executeTool(toolRegistry, toolCtx, fc.Name, fc.Arguments)
	}()

	runCtx.LogInfo(
		"agent.function.executed",
		"agent", agent.GetName(),
		"function", fc.Name,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil,
	)

	respEv := core.NewFunctionResponseEvent(agent.GetName(), fc.ID, fc.Name, result, err)
	respEv.InvocationID = runCtx.RunID
	toolCtx.InternalApplyActions(&respEv)

	return respEv
}

func panicError(r any) error { return fmt.Errorf("panic recovered: %v", r) }

// executeTool looks up and calls a tool with JSON decoded arguments.
func executeTool(toolRegistry map[string]tool.Tool, toolCtx *core.ToolContext, toolName, args string) (any, error) {
	impl, ok := toolRegistry[toolName]
	if !ok {
		return nil, fmt.Errorf("tool %s not found", toolName)
	}

	argMap := map[string]any{}
	if args != "" {
		if err := json.Unmarshal([]byte(args), &argMap); err != nil {
			return nil, fmt.Errorf("failed to unmarshal args: %w", err)
		}
	}

	return impl.Call(toolCtx, argMap)
}
