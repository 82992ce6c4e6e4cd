package tutor

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/edumesh/agent"
	"github.com/hupe1980/edumesh/core"
	"github.com/hupe1980/edumesh/retrieval"
	"github.com/hupe1980/edumesh/statesync"
	"github.com/hupe1980/edumesh/tool"
)

// RetrievalAgentName is the author of retrieval events.
const RetrievalAgentName = "rag_agent"

// RetrievalAgentOptions configures a RetrievalAgent.
type RetrievalAgentOptions struct {
	// Parser reads student info from the message. Defaults to statesync.NewRegexParser().
	Parser statesync.Parser
	// DefaultCorpus is queried when the curriculum corpus does not exist.
	DefaultCorpus     string
	TopK              int
	DistanceThreshold float64
}

// RetrievalAgent queries the textbook corpus for the student's curriculum.
// It runs without a model: once per session, when the conversation names a
// curriculum and no retrieval has happened yet, it records the query as a
// retrieve_education_textbooks function call followed by its response.
type RetrievalAgent struct {
	agent.BaseAgent
	retriever retrieval.Retriever
	opts      RetrievalAgentOptions
}

// NewRetrievalAgent creates the rag_agent.
func NewRetrievalAgent(r retrieval.Retriever, optFns ...func(o *RetrievalAgentOptions)) *RetrievalAgent {
	opts := RetrievalAgentOptions{
		Parser:            statesync.NewRegexParser(),
		DefaultCorpus:     retrieval.UnifiedCorpus,
		TopK:              retrieval.DefaultTopK,
		DistanceThreshold: retrieval.DefaultDistanceThreshold,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	a := &RetrievalAgent{
		BaseAgent: agent.NewBaseAgent(RetrievalAgentName, "retrieval"),
		retriever: retrieval.WithFallback(r, opts.DefaultCorpus),
		opts:      opts,
	}
	a.SetDescription("Retrieves textbook passages for the student's question once per session")

	return a
}

// Run implements core.Agent.
func (a *RetrievalAgent) Run(runCtx *core.RunContext) error {
	if runCtx.SessionStore != nil {
		if err := runCtx.RefreshSession(); err != nil {
			return fmt.Errorf("refresh session: %w", err)
		}
	}

	info, ok := a.pending(runCtx)
	if !ok {
		return nil
	}

	q := retrieval.Query{
		Corpus:            retrieval.CorpusID(info.Board, info.Grade, info.Subject),
		Text:              info.Question,
		TopK:              a.opts.TopK,
		DistanceThreshold: a.opts.DistanceThreshold,
	}

	args, err := json.Marshal(map[string]any{
		"question": info.Question,
		"board":    info.Board,
		"grade":    info.Grade,
		"subject":  info.Subject,
		"corpus":   q.Corpus,
	})
	if err != nil {
		return err
	}

	callID := core.NewID()
	call := core.NewFunctionCallEvent(a.Name(), callID, tool.RetrieveTextbooksName, string(args))
	if err := emitAndWait(runCtx, call); err != nil {
		return err
	}

	resp, err := a.retriever.Retrieve(runCtx.Context, q)

	var result any
	if err != nil {
		// The tutor continues without passages; the failure is visible in the response.
		runCtx.LogWarn("tutor.retrieval.failed", "corpus", q.Corpus, "error", err)
		err = fmt.Errorf("retrieve from %s: %w", q.Corpus, err)
	} else {
		runCtx.LogInfo("tutor.retrieval.done", "corpus", resp.Corpus, "results", len(resp.Results))
		result = resp.AsMap()
	}

	return emitAndWait(runCtx, core.NewFunctionResponseEvent(a.Name(), callID, tool.RetrieveTextbooksName, result, err))
}

// pending returns the student info to retrieve for, or false when the session
// already holds retrieval results or names no curriculum.
func (a *RetrievalAgent) pending(runCtx *core.RunContext) (statesync.StudentInfo, bool) {
	if _, ok := runCtx.GetState(statesync.KeyRAGResults); ok {
		runCtx.LogDebug("tutor.retrieval.skipped", "reason", "rag_results in state")
		return statesync.StudentInfo{}, false
	}

	history := runCtx.GetSessionHistory()
	if _, ok := statesync.ScanRetrieval(history, statesync.RetainRaw); ok {
		runCtx.LogDebug("tutor.retrieval.skipped", "reason", "retrieval already in session")
		return statesync.StudentInfo{}, false
	}

	if info, ok := a.opts.Parser.Parse(runCtx.UserText()); ok {
		return info, true
	}

	if info, ok := statesync.ExtractStudentInfo(a.opts.Parser, statesync.UserEvents(history)); ok {
		return info, true
	}

	runCtx.LogDebug("tutor.retrieval.skipped", "reason", "no student info")

	return statesync.StudentInfo{}, false
}

func emitAndWait(runCtx *core.RunContext, ev core.Event) error {
	if err := runCtx.EmitEvent(ev); err != nil {
		return err
	}
	return runCtx.WaitForResume()
}
