package tutor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/edumesh/agent"
	"github.com/hupe1980/edumesh/core"
	"github.com/hupe1980/edumesh/logging"
	"github.com/hupe1980/edumesh/model"
	"github.com/hupe1980/edumesh/retrieval"
	"github.com/hupe1980/edumesh/runner"
	"github.com/hupe1980/edumesh/session"
	"github.com/hupe1980/edumesh/statesync"
)

// ErrEmptyMessage is returned by Ask for blank student messages.
var ErrEmptyMessage = errors.New("empty message")

// Options configures New.
type Options struct {
	SessionStore core.SessionStore
	// MemoryStore receives every synced session and backs load_memory recall. Optional.
	MemoryStore core.MemoryStore
	Logger      logging.Logger
	Parser      statesync.Parser
	Retention   statesync.RetentionMode
	Observers   []statesync.Observer
	// Callbacks are registered on the runner after the syncer.
	Callbacks         []runner.Callback
	DefaultCorpus     string
	TopK              int
	DistanceThreshold float64
	MaxModelCalls     int
	EnableStreaming   bool
	DefaultUserID     string
}

// Tutor wires the pipeline, the runner and the syncer.
type Tutor struct {
	runner *runner.Runner
	syncer *statesync.Syncer
	store  core.SessionStore
	root   core.Agent
	logger logging.Logger
}

// Reply is the outcome of one student turn.
type Reply struct {
	SessionID string
	RunID     string
	Text      string
	State     statesync.SessionState
	Events    []core.Event
}

// New builds the tutoring pipeline on llm and r.
func New(llm model.Model, r retrieval.Retriever, optFns ...func(o *Options)) *Tutor {
	opts := Options{
		SessionStore:      session.NewInMemoryStore(),
		Logger:            logging.NoOpLogger{},
		Parser:            statesync.NewRegexParser(),
		Retention:         statesync.RetainSummary,
		DefaultCorpus:     retrieval.UnifiedCorpus,
		TopK:              retrieval.DefaultTopK,
		DistanceThreshold: retrieval.DefaultDistanceThreshold,
		MaxModelCalls:     20,
		DefaultUserID:     "anonymous",
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	rag := NewRetrievalAgent(r, func(o *RetrievalAgentOptions) {
		o.Parser = opts.Parser
		o.DefaultCorpus = opts.DefaultCorpus
		o.TopK = opts.TopK
		o.DistanceThreshold = opts.DistanceThreshold
	})

	orchestrator := NewOrchestrator(llm, r, func(o *OrchestratorOptions) {
		o.Parser = opts.Parser
		o.Retention = opts.Retention
		o.DefaultCorpus = opts.DefaultCorpus
		o.TopK = opts.TopK
		o.DistanceThreshold = opts.DistanceThreshold
		o.EnableStreaming = opts.EnableStreaming
	})

	root := agent.NewSequentialAgent("rag", rag, orchestrator)

	syncer := statesync.NewSyncer(opts.SessionStore, func(o *statesync.Options) {
		o.Parser = opts.Parser
		o.Retention = opts.Retention
		o.Source = statesync.FromUser
		o.MemoryStore = opts.MemoryStore
		o.Observers = opts.Observers
		o.Logger = opts.Logger
	})

	rn := runner.New(root, func(o *runner.Options) {
		o.SessionStore = opts.SessionStore
		o.MemoryStore = opts.MemoryStore
		o.Logger = opts.Logger
		o.MaxModelCalls = opts.MaxModelCalls
		o.DefaultUserID = opts.DefaultUserID
		o.Callbacks = append([]runner.Callback{syncer}, opts.Callbacks...)
	})

	return &Tutor{
		runner: rn,
		syncer: syncer,
		store:  opts.SessionStore,
		root:   root,
		logger: opts.Logger,
	}
}

// Runner returns the underlying runner.
func (t *Tutor) Runner() *runner.Runner { return t.runner }

// Syncer returns the state syncer registered on the runner.
func (t *Tutor) Syncer() *statesync.Syncer { return t.syncer }

// Agent returns the pipeline root agent.
func (t *Tutor) Agent() core.Agent { return t.root }

// CreateSession starts a new session for userID.
func (t *Tutor) CreateSession(ctx context.Context, userID string) (string, error) {
	id := core.NewID()
	if _, err := t.store.Create(ctx, id, userID); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

// Ask runs one student turn and returns the reply with the synced state.
// Unknown sessions are created on first use.
func (t *Tutor) Ask(ctx context.Context, sessionID, text string) (*Reply, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	runID, events, err := t.runner.RunSync(ctx, sessionID, core.NewTextContent(core.RoleUser, text))
	if err != nil {
		return nil, err
	}

	st, err := t.State(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return &Reply{
		SessionID: sessionID,
		RunID:     runID,
		Text:      replyText(events),
		State:     st,
		Events:    events,
	}, nil
}

// State returns the typed state of a session.
func (t *Tutor) State(ctx context.Context, sessionID string) (statesync.SessionState, error) {
	sess, err := t.store.Get(ctx, sessionID)
	if err != nil {
		return statesync.SessionState{}, err
	}
	return statesync.ReadState(sess.StateSnapshot()), nil
}

// replyText returns the text of the last final orchestrator event.
func replyText(events []core.Event) string {
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		if ev.Author != OrchestratorName || !ev.IsFinalResponse() {
			continue
		}
		if texts := ev.Texts(); len(texts) > 0 {
			return strings.Join(texts, "")
		}
	}
	return ""
}
