package statesync

import (
	"maps"

	"github.com/hupe1980/edumesh/core"
)

// TransitionOptions configures Transition.
type TransitionOptions struct {
	// Parser extracts student info from turn text. Defaults to NewRegexParser().
	Parser Parser
	// Retention selects summarized or raw retrieval retention. Defaults to RetainSummary.
	Retention RetentionMode
	// Source limits the events student info is extracted from. Nil means all events.
	Source EventFilter
}

// Outcome is the result of Transition.
type Outcome struct {
	// State is the new session state. The input state is never modified.
	State map[string]any
	// Delta holds exactly the keys added to State.
	Delta map[string]any
	// Steps records the extract, scan and merge stages.
	Steps []StepResult
}

var defaultParser Parser = NewRegexParser()

// Transition computes the session state that follows a turn. It is pure:
// old is not mutated and no I/O is performed.
//
// Keys are only ever added. Once both rag_results and student_info are
// present the transition is a no-op. When both are extracted from events,
// rag_results and student_info are set if absent and style_selected=false,
// current_style=nil are initialized if absent. When only a retrieval result
// is found and state already holds student_info, rag_results is set.
func Transition(old map[string]any, events []core.Event, optFns ...func(o *TransitionOptions)) Outcome {
	opts := TransitionOptions{
		Parser:    defaultParser,
		Retention: RetainSummary,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	out := Outcome{State: maps.Clone(old), Delta: map[string]any{}}
	if out.State == nil {
		out.State = map[string]any{}
	}

	_, hasRAG := old[KeyRAGResults]
	_, hasInfo := old[KeyStudentInfo]
	if hasRAG && hasInfo {
		const reason = "state already holds rag_results and student_info"
		out.Steps = []StepResult{
			skipped(StepExtractInfo, reason),
			skipped(StepScanRetrieval, reason),
			skipped(StepMergeState, reason),
		}
		return out
	}

	rag, ragFound := ScanRetrieval(events, opts.Retention)
	if ragFound {
		out.Steps = append(out.Steps, succeeded(StepScanRetrieval, "retrieval response found"))
	} else {
		out.Steps = append(out.Steps, skipped(StepScanRetrieval, "no retrieval response in events"))
	}

	info, infoFound := ExtractStudentInfo(opts.Parser, opts.Source.Filter(events))
	if infoFound {
		out.Steps = append(out.Steps, succeeded(StepExtractInfo, "student info matched"))
	} else {
		out.Steps = append(out.Steps, skipped(StepExtractInfo, "no text matched the student pattern"))
	}

	setIfAbsent := func(k string, v any) {
		if _, ok := out.State[k]; ok {
			return
		}
		out.State[k] = v
		out.Delta[k] = v
	}

	switch {
	case ragFound && infoFound:
		setIfAbsent(KeyRAGResults, rag)
		setIfAbsent(KeyStudentInfo, info.AsMap())
		setIfAbsent(KeyStyleSelected, false)
		setIfAbsent(KeyCurrentStyle, nil)
	case ragFound && hasInfo:
		setIfAbsent(KeyRAGResults, rag)
	}

	switch {
	case len(out.Delta) > 0:
		out.Steps = append(out.Steps, succeeded(StepMergeState, "state keys added"))
	case ragFound && !infoFound && !hasInfo:
		out.Steps = append(out.Steps, skipped(StepMergeState, "retrieval found without student info"))
	default:
		out.Steps = append(out.Steps, skipped(StepMergeState, "nothing new to merge"))
	}

	return out
}
