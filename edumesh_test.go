package edumesh

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/edumesh/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	corpus := filepath.Join(dir, "corpus.json")
	err := os.WriteFile(corpus, []byte(`{"corpora": {"CBSE-grade-9-Science": [
		{"id": "p1", "text": "Matter is anything that has mass and occupies space."}
	]}}`), 0o600)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Logging.Backend = "none"
	cfg.Retrieval.CorpusFile = corpus
	return cfg
}

func TestOpen_Defaults(t *testing.T) {
	m, err := Open(t.Context(), testConfig(t))
	require.NoError(t, err)
	defer m.Close()

	reply, err := m.Ask(t.Context(), "s1", "CBSE-grade-9-Science. Question: What is matter?")
	require.NoError(t, err)
	assert.NotEmpty(t, reply.Text)
	require.NotNil(t, reply.State.StudentInfo)
	assert.Equal(t, "9", reply.State.StudentInfo.Grade)
	assert.Equal(t, "mock", m.Config().Model.Provider)
}

func TestOpen_DurableStores(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	cfg.Session.Backend = "sqlite"
	cfg.Session.Path = filepath.Join(dir, "sessions.db")
	cfg.Session.CacheTTL = time.Minute
	cfg.Memory.Backend = "sqlite"
	cfg.Memory.Path = filepath.Join(dir, "memory.db")
	cfg.App.Retention = "raw"

	m, err := Open(t.Context(), cfg)
	require.NoError(t, err)
	sid, err := m.CreateSession(t.Context(), "student-1")
	require.NoError(t, err)
	_, err = m.Ask(t.Context(), sid, "CBSE-grade-9-Science. Question: What is matter?")
	require.NoError(t, err)
	require.NoError(t, m.Close())

	m, err = Open(t.Context(), cfg)
	require.NoError(t, err)
	defer m.Close()

	st, err := m.State(t.Context(), sid)
	require.NoError(t, err)
	raw, ok := st.RAGResults.(map[string]any)
	require.True(t, ok, "rag_results is %T", st.RAGResults)
	assert.Contains(t, raw, "results")
	assert.Equal(t, false, *st.StyleSelected)
}

func TestOpen_Telemetry(t *testing.T) {
	cfg := testConfig(t)
	cfg.Telemetry.Enabled = true

	m, err := Open(t.Context(), cfg)
	require.NoError(t, err)
	_, err = m.Ask(t.Context(), "s1", "hello")
	require.NoError(t, err)
	assert.NoError(t, m.Close())
}

func TestOpen_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
		want   string
	}{
		{name: "retention", mutate: func(c *config.Config) { c.App.Retention = "everything" }, want: "retention"},
		{name: "provider", mutate: func(c *config.Config) { c.Model.Provider = "llama" }, want: "model: unknown provider"},
		{name: "corpus file", mutate: func(c *config.Config) { c.Retrieval.CorpusFile = "/does/not/exist.json" }, want: "retrieval"},
		{name: "session backend", mutate: func(c *config.Config) { c.Session.Backend = "etcd" }, want: "session store"},
		{name: "logging backend", mutate: func(c *config.Config) { c.Logging.Backend = "syslog" }, want: "logging"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(&cfg)
			_, err := Open(t.Context(), cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
