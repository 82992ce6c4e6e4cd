package tool

import (
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/edumesh/core"
	"github.com/hupe1980/edumesh/internal/util"
)

// Handler is the implementation behind a FunctionTool. args have already
// been validated against the tool's schema.
type Handler func(toolCtx *core.ToolContext, args map[string]any) (any, error)

// FunctionTool exposes a Go function as a tool.
//
// Call validates arguments against the declared schema before running the
// handler and reports failures as *ToolError: CodeValidation for schema
// mismatches and undecodable arguments, CodeExecution for handler errors.
// A *ToolError returned by the handler is passed through unchanged.
//
// A FunctionTool holds no mutable state and is safe for concurrent use.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          Handler
}

// NewFunctionTool creates a tool from an explicit JSON schema. Prefer
// NewTypedTool when the arguments fit a struct.
func NewFunctionTool(name, description string, parameters map[string]any, fn Handler) *FunctionTool {
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// NewTypedTool creates a tool whose arguments decode into T. The schema is
// reflected from T: fields use their json names, omitempty marks them
// optional and `jsonschema` tags add descriptions.
//
//	type styleArgs struct {
//		Style string `json:"style" jsonschema:"required,description=Explanation style"`
//	}
//
//	t := NewTypedTool("pick_style", "Pick a style", func(tc *core.ToolContext, args styleArgs) (any, error) {
//		return args.Style, nil
//	})
func NewTypedTool[T any](name, description string, fn func(toolCtx *core.ToolContext, args T) (any, error)) *FunctionTool {
	var zero T

	return NewFunctionTool(name, description, util.CreateSchema(zero), func(tc *core.ToolContext, raw map[string]any) (any, error) {
		var args T
		if err := util.DecodeArgs(raw, &args); err != nil {
			return nil, &ToolError{
				Tool:    name,
				Message: fmt.Sprintf("decode arguments: %v", err),
				Code:    CodeValidation,
				Details: err,
			}
		}
		return fn(tc, args)
	})
}

// Name implements Tool.
func (t *FunctionTool) Name() string { return t.name }

// Description implements Tool.
func (t *FunctionTool) Description() string { return t.description }

// Parameters implements Tool.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Call implements Tool.
func (t *FunctionTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	logger := toolCtx.Logger()
	start := time.Now()

	logger.Debug("tool.call.start", "tool", t.name, "fc_id", toolCtx.FunctionCallID())

	if err := util.ValidateParameters(args, t.parameters); err != nil {
		logger.Warn("tool.call.validation_failed", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	result, err := t.fn(toolCtx, args)
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			logger.Error("tool.call.error", "tool", t.name, "code", toolErr.Code, "error", toolErr.Message)
			return nil, toolErr
		}

		logger.Error("tool.call.error", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: err.Error(),
			Code:    CodeExecution,
		}
	}

	logger.Info("tool.call.success", "tool", t.name, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}
