// Package pinecone implements retrieval.Retriever on a Pinecone index. Each
// corpus maps to one namespace; query vectors come from an Embedder.
package pinecone

import (
	"context"
	"fmt"
	"sync"

	"github.com/pinecone-io/go-pinecone/v3/pinecone"

	"github.com/hupe1980/edumesh/logging"
	"github.com/hupe1980/edumesh/retrieval"
)

// Embedder turns query text into a vector. langchaingo's embeddings.Embedder
// satisfies it.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Match is one scored vector returned by an Index.
type Match struct {
	ID       string
	Score    float32
	Metadata map[string]any
}

// Index queries one namespace of a vector index.
type Index interface {
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error)
}

// Options configures a Retriever.
type Options struct {
	// TextKey is the metadata field holding the passage text.
	TextKey string
	// SourceKey is the metadata field holding the passage source.
	SourceKey string
	Logger    logging.Logger
}

// Retriever queries a vector index by embedding the query text.
type Retriever struct {
	index     Index
	embedder  Embedder
	textKey   string
	sourceKey string
	logger    logging.Logger
}

var _ retrieval.Retriever = (*Retriever)(nil)

// New creates a Retriever.
func New(index Index, embedder Embedder, optFns ...func(o *Options)) *Retriever {
	opts := Options{
		TextKey:   "text",
		SourceKey: "source",
		Logger:    logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Retriever{
		index:     index,
		embedder:  embedder,
		textKey:   opts.TextKey,
		sourceKey: opts.SourceKey,
		logger:    opts.Logger,
	}
}

// Retrieve embeds q.Text and returns matches of the corpus namespace.
// Distance is 1 - cosine score.
func (r *Retriever) Retrieve(ctx context.Context, q retrieval.Query) (*retrieval.Response, error) {
	q = q.WithDefaults()

	vector, err := r.embedder.EmbedQuery(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := r.index.Query(ctx, q.Corpus, vector, q.TopK)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	results := make([]retrieval.Result, 0, len(matches))
	for _, m := range matches {
		text, _ := m.Metadata[r.textKey].(string)
		if text == "" {
			continue
		}
		source, _ := m.Metadata[r.sourceKey].(string)
		results = append(results, retrieval.Result{
			ID:       m.ID,
			Text:     text,
			Source:   source,
			Distance: 1 - float64(m.Score),
			Metadata: m.Metadata,
		})
	}

	r.logger.Debug("retrieval.pinecone.query", "corpus", q.Corpus, "matches", len(matches), "with_text", len(results))

	return retrieval.NewResponse(q.Corpus, results, q.TopK, q.DistanceThreshold), nil
}

// ClientIndex is an Index backed by the Pinecone client. Connections are
// opened lazily per namespace.
type ClientIndex struct {
	client *pinecone.Client
	name   string

	mu    sync.Mutex
	host  string
	conns map[string]*pinecone.IndexConnection
}

// NewClientIndex connects to the named index with apiKey.
func NewClientIndex(apiKey, indexName string) (*ClientIndex, error) {
	pc, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create Pinecone client: %w", err)
	}

	return &ClientIndex{client: pc, name: indexName, conns: map[string]*pinecone.IndexConnection{}}, nil
}

// WithHost skips the DescribeIndex lookup.
func (c *ClientIndex) WithHost(host string) *ClientIndex {
	c.host = host
	return c
}

// Query implements Index.
func (c *ClientIndex) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error) {
	conn, err := c.conn(ctx, namespace)
	if err != nil {
		return nil, err
	}

	res, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		IncludeValues:   false,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(res.Matches))
	for _, m := range res.Matches {
		if m == nil || m.Vector == nil {
			continue
		}
		var md map[string]any
		if m.Vector.Metadata != nil {
			md = m.Vector.Metadata.AsMap()
		}
		matches = append(matches, Match{ID: m.Vector.Id, Score: m.Score, Metadata: md})
	}

	return matches, nil
}

// Close releases all open connections.
func (c *ClientIndex) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for ns, conn := range c.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.conns, ns)
	}

	return firstErr
}

func (c *ClientIndex) conn(ctx context.Context, namespace string) (*pinecone.IndexConnection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn, ok := c.conns[namespace]; ok {
		return conn, nil
	}

	if c.host == "" {
		desc, err := c.client.DescribeIndex(ctx, c.name)
		if err != nil {
			return nil, fmt.Errorf("failed to describe index: %w", err)
		}
		c.host = desc.Host
	}

	conn, err := c.client.Index(pinecone.NewIndexConnParams{Host: c.host, Namespace: namespace})
	if err != nil {
		return nil, fmt.Errorf("failed to create index connection: %w", err)
	}
	c.conns[namespace] = conn

	return conn, nil
}
