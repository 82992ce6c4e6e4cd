package tutor

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/hupe1980/edumesh/agent"
	"github.com/hupe1980/edumesh/core"
	"github.com/hupe1980/edumesh/explain"
	"github.com/hupe1980/edumesh/model"
	"github.com/hupe1980/edumesh/retrieval"
	"github.com/hupe1980/edumesh/statesync"
	"github.com/hupe1980/edumesh/tool"
)

// Orchestrator identity.
const (
	OrchestratorName = "explanation_main_agent"
	OutputKey        = "final_explanation"
	MaxReplyWords    = 300
)

// OrchestratorOptions configures NewOrchestrator.
type OrchestratorOptions struct {
	Parser            statesync.Parser
	Retention         statesync.RetentionMode
	DefaultCorpus     string
	TopK              int
	DistanceThreshold float64
	EnableStreaming   bool
}

const baseInstruction = `You are an educational explanation agent. Help students understand textbook concepts.

Use the conversation first. Call load_memory only when context is missing, at most once per turn.

EXPLANATION STYLES:
1. With Examples - practical examples, real-world scenarios
2. With Memory Technique - mnemonics, acronyms, memory aids
3. Using Story - narrative with characters
4. In Native Language - the student's preferred language

RULES:
- Base every explanation on the retrieved textbook passages.
- When the student picks a style, call generate_explanation with that style and write the explanation from the returned prompt.
- Call retrieve_education_textbooks only if no passages were retrieved for this session.
- Never ask for board, grade, subject or question when they are already known.
- Keep every reply under %d words.`

// NewOrchestrator creates the explanation_main_agent model agent.
func NewOrchestrator(llm model.Model, r retrieval.Retriever, optFns ...func(o *OrchestratorOptions)) *agent.ModelAgent {
	opts := OrchestratorOptions{
		Parser:            statesync.NewRegexParser(),
		Retention:         statesync.RetainSummary,
		DefaultCorpus:     retrieval.UnifiedCorpus,
		TopK:              retrieval.DefaultTopK,
		DistanceThreshold: retrieval.DefaultDistanceThreshold,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	turn := &turnInstruction{parser: opts.Parser, retention: opts.Retention}

	return agent.NewModelAgent(OrchestratorName, llm, func(o *agent.ModelAgentOptions) {
		o.Description = "Main orchestrator agent for student question explanations using textbook retrieval"
		o.Instruction = agent.Compose(
			agent.NewInstructionFromText(fmt.Sprintf(baseInstruction, MaxReplyWords)),
			agent.NewInstructionFromProvider(turn),
		)
		o.Tools = []tool.Tool{
			tool.NewLoadMemoryTool(),
			tool.NewExplanationTool(),
			tool.NewRetrievalTool(r, func(ro *tool.RetrievalToolOptions) {
				ro.DefaultCorpus = opts.DefaultCorpus
				ro.TopK = opts.TopK
				ro.DistanceThreshold = opts.DistanceThreshold
			}),
		}
		o.OutputKey = OutputKey
		o.EnableStreaming = opts.EnableStreaming
	})
}

// turnInstruction tells the model which step of the conversation it is in.
// It reads the state that the syncer will derive from this turn, so the
// first turn already sees the retrieved passages.
type turnInstruction struct {
	parser    statesync.Parser
	retention statesync.RetentionMode
}

func (ti *turnInstruction) Instruction(rc *core.RunContext) (string, error) {
	history := rc.GetSessionHistory()

	out := statesync.Transition(rc.State(), history, func(o *statesync.TransitionOptions) {
		o.Parser = ti.parser
		o.Retention = ti.retention
		o.Source = statesync.FromUser
	})
	st := statesync.ReadState(out.State)

	if st.StudentInfo == nil {
		// Without retrieval results the syncer records no student info yet.
		if info, ok := statesync.ExtractStudentInfo(ti.parser, statesync.UserEvents(history)); ok {
			st.StudentInfo = &info
		}
	}

	var b strings.Builder

	if st.StudentInfo == nil {
		b.WriteString("The student has not named a curriculum yet. Ask for it in the form " +
			"BOARD-grade-GRADE-SUBJECT. Question: QUESTION with the grade as a number.")
		return escapeTemplate(b.String()), nil
	}

	info := st.StudentInfo

	if isFirstTurn(rc, history) {
		fmt.Fprintf(&b, "FIRST MESSAGE. The student studies %s Board, Grade %s, %s and asks: %s\n",
			info.Board, info.Grade, info.Subject, info.Question)

		if texts := passages(history, st.RAGResults); len(texts) > 0 {
			b.WriteString("Combine these textbook passages into one text without duplicates, show it, then ask the student to choose a style:\n\n")
			b.WriteString(strings.Join(texts, "\n\n"))
			b.WriteString("\n\n")
			b.WriteString(explain.Menu())
		} else {
			b.WriteString("No textbook passages were found. Say so briefly and answer from general knowledge.")
		}

		return escapeTemplate(b.String()), nil
	}

	fmt.Fprintf(&b, "CONTINUATION. Start your reply with: \"I remember you're studying %s Board, Grade %s, %s. Your question was: %s\"\n",
		info.Board, info.Grade, info.Subject, info.Question)

	if style, lang := explain.ParseStyle(rc.UserText()); isStyleChoice(rc.UserText()) {
		fmt.Fprintf(&b, "The student chose the style %q", style)
		if lang != "" {
			fmt.Fprintf(&b, " in %s", lang)
		}
		b.WriteString(". Call generate_explanation with it.\n")
	} else if st.CurrentStyle != nil && *st.CurrentStyle != "" {
		fmt.Fprintf(&b, "Keep using the %q style for follow-up questions.\n", *st.CurrentStyle)
	} else {
		b.WriteString(explain.Menu())
	}

	return escapeTemplate(b.String()), nil
}

// isFirstTurn reports whether the passages are new to the student: nothing
// was retrieved before this run, or this run produced the retrieval.
func isFirstTurn(rc *core.RunContext, history []core.Event) bool {
	if _, ok := rc.State()[statesync.KeyRAGResults]; !ok {
		return true
	}
	return lo.ContainsBy(history, func(ev core.Event) bool {
		return ev.InvocationID == rc.RunID && lo.ContainsBy(ev.GetFunctionResponses(), func(fr core.FunctionResponse) bool {
			return fr.Name == tool.RetrieveTextbooksName
		})
	})
}

// isStyleChoice reports whether a message picks an explanation style rather
// than asking something else.
func isStyleChoice(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if len(t) == 1 && t[0] >= '1' && t[0] <= '4' {
		return true
	}
	for _, kw := range []string{"example", "memory", "mnemonic", "story", "narrative", "language"} {
		if strings.Contains(t, kw) {
			return true
		}
	}
	return false
}

// passages returns the retrieved texts of this session, raw results first,
// else the stored summary.
func passages(history []core.Event, stored any) []string {
	if raw, ok := statesync.ScanRetrieval(history, statesync.RetainRaw); ok {
		if texts := resultTexts(raw); len(texts) > 0 {
			return texts
		}
	}
	if s, err := statesync.DecodeRetrievalSummary(stored); err == nil && s.Summary != "" {
		return []string{s.Summary}
	}
	return nil
}

func resultTexts(raw any) []string {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	results, _ := m["results"].([]any)
	texts := make([]string, 0, len(results))
	for _, r := range results {
		if rm, ok := r.(map[string]any); ok {
			if text, _ := rm["text"].(string); text != "" {
				texts = append(texts, text)
			}
		}
	}
	return lo.Uniq(texts)
}

// escapeTemplate keeps student text from being parsed as template markup.
func escapeTemplate(s string) string {
	return strings.ReplaceAll(s, "{{", "{ {")
}
