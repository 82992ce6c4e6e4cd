package tool

import (
	"maps"

	"github.com/hupe1980/edumesh/core"
	"github.com/hupe1980/edumesh/statesync"
)

// LoadMemoryName is the name of the state inspection tool.
const LoadMemoryName = "load_memory"

const defaultMemoryLimit = 5

type loadMemoryArgs struct {
	Query string `json:"query,omitempty" jsonschema:"description=Optional text to recall earlier sessions of this student"`
	Limit int    `json:"limit,omitempty" jsonschema:"description=Maximum number of recalled memories (default 5)"`
}

// NewLoadMemoryTool returns the load_memory tool. It reports the tutoring
// state keys (rag_results, student_info, style_selected, current_style; nil
// when absent) including what the current turn will add once synced, and
// with a query the matching long-term memories of the student.
func NewLoadMemoryTool() *FunctionTool {
	return NewTypedTool(
		LoadMemoryName,
		"Load the remembered student context: board, grade, subject, question, retrieved textbook "+
			"summary and the chosen explanation style. Pass a query to recall earlier sessions.",
		loadMemory,
	)
}

func loadMemory(tc *core.ToolContext, args loadMemoryArgs) (any, error) {
	state := tc.State()
	out := statesync.Transition(state, tc.GetSessionHistory(), func(o *statesync.TransitionOptions) {
		o.Source = statesync.FromUser
	})
	maps.Copy(state, out.Delta)

	result := statesync.ReadState(state).AsMap()
	result["status"] = "success"

	if args.Query == "" {
		return result, nil
	}

	limit := args.Limit
	if limit <= 0 {
		limit = defaultMemoryLimit
	}

	memories, err := tc.SearchMemory(args.Query, limit)
	if err != nil {
		tc.Logger().Warn("tool.load_memory.search_failed", "error", err.Error())
		memories = []core.SearchResult{}
	}
	result["memories"] = memories

	return result, nil
}
