package tool

import (
	"fmt"

	"github.com/hupe1980/edumesh/core"
	"github.com/hupe1980/edumesh/retrieval"
	"github.com/hupe1980/edumesh/statesync"
)

// RetrieveTextbooksName is the name of the textbook retrieval tool.
const RetrieveTextbooksName = "retrieve_education_textbooks"

type retrieveArgs struct {
	Question          string  `json:"question" jsonschema:"required,description=The student's question"`
	Board             string  `json:"board,omitempty" jsonschema:"description=Education board, e.g. CBSE"`
	Grade             string  `json:"grade,omitempty" jsonschema:"description=School grade, e.g. 10"`
	Subject           string  `json:"subject,omitempty" jsonschema:"description=Subject, e.g. Mathematics"`
	Corpus            string  `json:"corpus,omitempty" jsonschema:"description=Explicit corpus name"`
	TopK              int     `json:"top_k,omitempty" jsonschema:"description=Maximum number of passages (default 10)"`
	DistanceThreshold float64 `json:"distance_threshold,omitempty" jsonschema:"description=Maximum vector distance (default 0.6)"`
}

// RetrievalToolOptions configures the retrieval tool.
type RetrievalToolOptions struct {
	// DefaultCorpus is queried when no curriculum is known.
	DefaultCorpus string
	// TopK and DistanceThreshold apply when the call leaves them unset.
	TopK              int
	DistanceThreshold float64
}

// NewRetrievalTool returns the retrieve_education_textbooks tool. The corpus
// is taken from the call, else derived from the board, grade and subject in
// the call or in the remembered student info, else the default corpus.
// The result is the retrieval response mapping ({results, status, corpus}).
func NewRetrievalTool(r retrieval.Retriever, optFns ...func(o *RetrievalToolOptions)) *FunctionTool {
	opts := RetrievalToolOptions{
		DefaultCorpus:     retrieval.UnifiedCorpus,
		TopK:              retrieval.DefaultTopK,
		DistanceThreshold: retrieval.DefaultDistanceThreshold,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return NewTypedTool(
		RetrieveTextbooksName,
		"Retrieve educational content and textbook passages for a student question. "+
			"Provide the question; the corpus is chosen from the student's board, grade and subject.",
		func(tc *core.ToolContext, args retrieveArgs) (any, error) {
			q := retrieval.Query{
				Corpus:            corpusFor(tc, args, opts.DefaultCorpus),
				Text:              args.Question,
				TopK:              opts.TopK,
				DistanceThreshold: opts.DistanceThreshold,
			}
			if args.TopK > 0 {
				q.TopK = args.TopK
			}
			if args.DistanceThreshold > 0 {
				q.DistanceThreshold = args.DistanceThreshold
			}

			resp, err := r.Retrieve(tc.Context(), q)
			if err != nil {
				return nil, fmt.Errorf("retrieve from %s: %w", q.Corpus, err)
			}

			tc.Logger().Info("tool.retrieve.done", "corpus", resp.Corpus, "results", len(resp.Results))

			return resp.AsMap(), nil
		},
	)
}

func corpusFor(tc *core.ToolContext, args retrieveArgs, fallback string) string {
	if args.Corpus != "" {
		return args.Corpus
	}

	if args.Board != "" && args.Grade != "" && args.Subject != "" {
		return retrieval.CorpusID(args.Board, args.Grade, args.Subject)
	}

	if info, ok := studentInfo(tc); ok {
		return retrieval.CorpusID(info.Board, info.Grade, info.Subject)
	}

	return fallback
}

// studentInfo returns the remembered student info, falling back to parsing
// the student's messages when the state has not been synced yet.
func studentInfo(tc *core.ToolContext) (statesync.StudentInfo, bool) {
	if info := statesync.ReadState(tc.State()).StudentInfo; info != nil {
		return *info, true
	}
	history := statesync.UserEvents(tc.GetSessionHistory())
	return statesync.ExtractStudentInfo(statesync.NewRegexParser(), history)
}
