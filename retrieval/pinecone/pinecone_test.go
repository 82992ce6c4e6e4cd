package pinecone

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/edumesh/retrieval"
)

type mockIndex struct{ mock.Mock }

func (m *mockIndex) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error) {
	args := m.Called(ctx, namespace, vector, topK)
	matches, _ := args.Get(0).([]Match)
	return matches, args.Error(1)
}

type staticEmbedder struct {
	vector []float32
	err    error
}

func (e staticEmbedder) EmbedQuery(context.Context, string) ([]float32, error) { return e.vector, e.err }

func TestRetriever_Retrieve(t *testing.T) {
	idx := &mockIndex{}
	vec := []float32{0.1, 0.2}
	idx.On("Query", mock.Anything, "CBSE-grade-10-Mathematics", vec, 10).Return([]Match{
		{ID: "b", Score: 0.7, Metadata: map[string]any{"text": "Numerator over denominator.", "source": "ch1"}},
		{ID: "a", Score: 0.9, Metadata: map[string]any{"text": "A fraction is a part of a whole."}},
		{ID: "far", Score: 0.2, Metadata: map[string]any{"text": "Unrelated."}},
		{ID: "empty", Score: 0.95, Metadata: map[string]any{}},
	}, nil)

	r := New(idx, staticEmbedder{vector: vec})

	resp, err := r.Retrieve(t.Context(), retrieval.Query{Corpus: "CBSE-grade-10-Mathematics", Text: "What is a fraction?"})
	require.NoError(t, err)
	idx.AssertExpectations(t)

	require.Len(t, resp.Results, 2)
	assert.Equal(t, "a", resp.Results[0].ID)
	assert.InDelta(t, 0.1, resp.Results[0].Distance, 1e-6)
	assert.Equal(t, "b", resp.Results[1].ID)
	assert.Equal(t, "ch1", resp.Results[1].Source)
}

func TestRetriever_CustomTextKey(t *testing.T) {
	idx := &mockIndex{}
	idx.On("Query", mock.Anything, retrieval.UnifiedCorpus, mock.Anything, 10).Return([]Match{
		{ID: "x", Score: 0.8, Metadata: map[string]any{"content": "Photosynthesis uses light."}},
	}, nil)

	r := New(idx, staticEmbedder{vector: []float32{1}}, func(o *Options) { o.TextKey = "content" })

	resp, err := r.Retrieve(t.Context(), retrieval.Query{Text: "photosynthesis"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "Photosynthesis uses light.", resp.Results[0].Text)
}

func TestRetriever_Errors(t *testing.T) {
	_, err := New(&mockIndex{}, staticEmbedder{err: errors.New("quota")}).Retrieve(t.Context(), retrieval.Query{Text: "q"})
	assert.ErrorContains(t, err, "embed query")

	idx := &mockIndex{}
	idx.On("Query", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("unavailable"))
	_, err = New(idx, staticEmbedder{vector: []float32{1}}).Retrieve(t.Context(), retrieval.Query{Text: "q"})
	assert.ErrorContains(t, err, "query index")
}
