// Package edumesh assembles a ready-to-use tutor from a config.Config: the
// model provider, the textbook retriever, session and memory stores, logging
// and optional OpenTelemetry instrumentation. Most applications either call
// Open with a loaded config or build a tutor.Tutor directly when they bring
// their own components.
package edumesh

import (
	"context"
	"errors"
	"fmt"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/edumesh/config"
	"github.com/hupe1980/edumesh/core"
	"github.com/hupe1980/edumesh/logging"
	"github.com/hupe1980/edumesh/memory"
	memsqlite "github.com/hupe1980/edumesh/memory/sqlite"
	"github.com/hupe1980/edumesh/model"
	"github.com/hupe1980/edumesh/model/anthropic"
	"github.com/hupe1980/edumesh/model/gemini"
	"github.com/hupe1980/edumesh/model/openai"
	"github.com/hupe1980/edumesh/observer"
	"github.com/hupe1980/edumesh/retrieval"
	"github.com/hupe1980/edumesh/retrieval/local"
	"github.com/hupe1980/edumesh/retrieval/pinecone"
	"github.com/hupe1980/edumesh/runner"
	"github.com/hupe1980/edumesh/session"
	"github.com/hupe1980/edumesh/session/cache"
	"github.com/hupe1980/edumesh/session/redis"
	sesssqlite "github.com/hupe1980/edumesh/session/sqlite"
	"github.com/hupe1980/edumesh/statesync"
	"github.com/hupe1980/edumesh/tutor"
)

// Mesh holds the components built from a Config. It embeds the tutor, so
// CreateSession, Ask and State are available directly.
type Mesh struct {
	*tutor.Tutor

	cfg    config.Config
	logger logging.Logger

	closers []func() error
}

// Logger returns the configured logger.
func (m *Mesh) Logger() logging.Logger { return m.logger }

// Config returns the config the mesh was built from.
func (m *Mesh) Config() config.Config { return m.cfg }

func (m *Mesh) onClose(fn func() error) { m.closers = append(m.closers, fn) }

// Close releases resources in reverse construction order.
func (m *Mesh) Close() error {
	var errs []error
	for i := len(m.closers) - 1; i >= 0; i-- {
		errs = append(errs, m.closers[i]())
	}
	return errors.Join(errs...)
}

// Open builds a Mesh from cfg. Close releases its stores and flushes logs.
func Open(ctx context.Context, cfg config.Config) (_ *Mesh, err error) {
	m := &Mesh{cfg: cfg}
	defer func() {
		if err != nil {
			_ = m.Close()
		}
	}()

	logger, closeLog, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	m.logger = logger
	m.onClose(closeLog)

	retention, err := statesync.ParseRetentionMode(cfg.App.Retention)
	if err != nil {
		return nil, err
	}

	llm, err := m.buildModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}

	r, err := m.buildRetriever(ctx, llm)
	if err != nil {
		return nil, fmt.Errorf("retrieval: %w", err)
	}

	sessions, err := m.buildSessionStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}

	mem, err := m.buildMemoryStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("memory store: %w", err)
	}

	observers := []statesync.Observer{statesync.NewLogObserver(logger)}
	var callbacks []runner.Callback
	if cfg.Telemetry.Enabled {
		providers, err := observer.Setup(ctx, cfg.Telemetry.ServiceName)
		if err != nil {
			return nil, fmt.Errorf("telemetry: %w", err)
		}
		m.onClose(func() error { return providers.Shutdown(context.Background()) })

		syncObs, err := observer.NewSyncObserver()
		if err != nil {
			return nil, fmt.Errorf("telemetry: %w", err)
		}
		runObs, err := observer.NewRunObserver()
		if err != nil {
			return nil, fmt.Errorf("telemetry: %w", err)
		}
		observers = append(observers, syncObs)
		callbacks = runObs.Callbacks()
	}

	m.Tutor = tutor.New(llm, r, func(o *tutor.Options) {
		o.SessionStore = sessions
		o.MemoryStore = mem
		o.Logger = logger
		o.Retention = retention
		o.Observers = observers
		o.Callbacks = callbacks
		o.DefaultCorpus = cfg.Retrieval.Corpus
		o.TopK = cfg.Retrieval.TopK
		o.DistanceThreshold = cfg.Retrieval.DistanceThreshold
		o.MaxModelCalls = cfg.App.MaxModelCalls
		o.EnableStreaming = cfg.App.Streaming
		o.DefaultUserID = cfg.App.DefaultUserID
	})

	logger.Info("edumesh.ready",
		"model_provider", cfg.Model.Provider,
		"retrieval_backend", cfg.Retrieval.Backend,
		"session_backend", cfg.Session.Backend,
		"memory_backend", cfg.Memory.Backend,
		"retention", string(retention),
	)

	return m, nil
}

func (m *Mesh) buildModel(ctx context.Context) (model.Model, error) {
	mc := m.cfg.Model
	switch mc.Provider {
	case "mock":
		return model.NewMockModel("mock"), nil
	case "gemini":
		return gemini.NewModel(ctx, func(o *gemini.Options) {
			if mc.Name != "" {
				o.Model = mc.Name
			}
			o.Temperature = float32(mc.Temperature)
			o.MaxOutputTokens = int32(mc.MaxTokens)
			o.APIKey = mc.APIKey
			o.Project = mc.Project
			o.Location = mc.Location
		})
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			if mc.Name != "" {
				o.Model = mc.Name
			}
			o.Temperature = mc.Temperature
			o.MaxCompletionTokens = int64(mc.MaxTokens)
			o.APIKey = mc.APIKey
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if mc.Name != "" {
				o.Model = sdkanthropic.Model(mc.Name)
			}
			o.Temperature = mc.Temperature
			o.MaxTokens = int64(mc.MaxTokens)
			o.APIKey = mc.APIKey
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", mc.Provider)
	}
}

func (m *Mesh) buildRetriever(ctx context.Context, llm model.Model) (retrieval.Retriever, error) {
	rc := m.cfg.Retrieval
	switch rc.Backend {
	case "local":
		if rc.CorpusFile == "" {
			m.logger.Warn("retrieval.local.empty", "reason", "no corpus_file configured")
			return local.New(), nil
		}
		return local.Load(rc.CorpusFile)
	case "pinecone":
		embedder, err := m.buildEmbedder(ctx, llm)
		if err != nil {
			return nil, err
		}
		index, err := pinecone.NewClientIndex(rc.PineconeAPIKey, rc.PineconeIndex)
		if err != nil {
			return nil, err
		}
		if rc.PineconeHost != "" {
			index = index.WithHost(rc.PineconeHost)
		}
		m.onClose(index.Close)
		return pinecone.New(index, embedder, func(o *pinecone.Options) { o.Logger = m.logger }), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", rc.Backend)
	}
}

func (m *Mesh) buildEmbedder(ctx context.Context, llm model.Model) (pinecone.Embedder, error) {
	rc := m.cfg.Retrieval
	switch rc.Embedder {
	case "openai":
		key := m.cfg.Model.APIKey
		if m.cfg.Model.Provider != "openai" {
			key = ""
		}
		return pinecone.NewOpenAIEmbedder(key, rc.EmbeddingModel)
	case "gemini":
		if gm, ok := llm.(*gemini.Model); ok {
			return pinecone.NewGeminiEmbedder(gm.Client(), rc.EmbeddingModel), nil
		}
		gm, err := gemini.NewModel(ctx, func(o *gemini.Options) {
			o.Project = m.cfg.Model.Project
			o.Location = m.cfg.Model.Location
		})
		if err != nil {
			return nil, err
		}
		return pinecone.NewGeminiEmbedder(gm.Client(), rc.EmbeddingModel), nil
	default:
		return nil, fmt.Errorf("unknown embedder %q", rc.Embedder)
	}
}

func (m *Mesh) buildSessionStore(ctx context.Context) (core.SessionStore, error) {
	sc := m.cfg.Session
	var store core.SessionStore
	switch sc.Backend {
	case "memory":
		store = session.NewInMemoryStore()
	case "sqlite":
		s, err := sesssqlite.New(ctx, sc.Path)
		if err != nil {
			return nil, err
		}
		m.onClose(s.Close)
		store = s
	case "redis":
		s, err := redis.Dial(ctx, sc.URL, func(o *redis.Options) { o.TTL = sc.TTL })
		if err != nil {
			return nil, err
		}
		m.onClose(s.Close)
		store = s
	default:
		return nil, fmt.Errorf("unknown backend %q", sc.Backend)
	}

	if sc.CacheTTL > 0 {
		store = cache.New(store, func(o *cache.Options) { o.TTL = sc.CacheTTL })
	}
	return store, nil
}

func (m *Mesh) buildMemoryStore(ctx context.Context) (core.MemoryStore, error) {
	mc := m.cfg.Memory
	switch mc.Backend {
	case "memory":
		return memory.NewInMemoryStore(), nil
	case "sqlite":
		s, err := memsqlite.New(ctx, mc.Path)
		if err != nil {
			return nil, err
		}
		m.onClose(s.Close)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", mc.Backend)
	}
}
