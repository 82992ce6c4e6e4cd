package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/edumesh/statesync"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

// writeConfig creates a config using the mock model, a local corpus file
// and sqlite stores so sessions survive between command invocations.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	corpus := `{"corpora": {"CBSE-grade-10-Science": [
		{"id": "p1", "text": "Photosynthesis converts light energy into chemical energy.", "source": "chapter-6"}
	]}}`
	corpusPath := filepath.Join(dir, "corpus.json")
	require.NoError(t, os.WriteFile(corpusPath, []byte(corpus), 0o600))

	cfg := `
model:
  provider: mock
retrieval:
  backend: local
  corpus_file: ` + corpusPath + `
session:
  backend: sqlite
  path: ` + filepath.Join(dir, "sessions.db") + `
memory:
  backend: sqlite
  path: ` + filepath.Join(dir, "memory.db") + `
logging:
  backend: none
`
	path := filepath.Join(dir, "edumesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

var sessionLine = regexp.MustCompile(`session ([0-9a-f-]+)`)

func TestCorpusID(t *testing.T) {
	out, err := run(t, "", "corpus-id", "CBSE", "10", "Science")
	require.NoError(t, err)
	assert.Equal(t, "CBSE-grade-10-Science\n", out)

	out, err = run(t, "", "corpus-id", "--parse", "ICSE-grade-8-Mathematics")
	require.NoError(t, err)
	assert.Equal(t, "board=ICSE grade=8 subject=Mathematics\n", out)

	_, err = run(t, "", "corpus-id", "--parse", "not a corpus")
	assert.Error(t, err)

	_, err = run(t, "", "corpus-id", "CBSE")
	assert.Error(t, err)
}

func TestAskAndState(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "", "--config", cfg, "ask", "CBSE-grade-10-Science. Question: What is photosynthesis?")
	require.NoError(t, err)
	assert.Contains(t, out, "tutor: Mock response to:")

	m := sessionLine.FindStringSubmatch(out)
	require.Len(t, m, 2, "output: %s", out)
	sid := m[1]

	out, err = run(t, "", "--config", cfg, "state", sid)
	require.NoError(t, err)

	var state map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	info, ok := state[statesync.KeyStudentInfo].(map[string]any)
	require.True(t, ok, "state: %s", out)
	assert.Equal(t, "Science", info["subject"])
	assert.Equal(t, false, state[statesync.KeyStyleSelected])
}

func TestAskInteractive(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "CBSE-grade-10-Science. Question: What is photosynthesis?\n\nexit\n", "--config", cfg, "ask")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "tutor: "))
	assert.Contains(t, out, "you: ")
}

func TestStateUnknownSession(t *testing.T) {
	_, err := run(t, "", "--config", writeConfig(t), "state", "missing")
	assert.ErrorContains(t, err, "session not found")
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := run(t, "", "--config", writeConfig(t), "--log-level", "loud", "state", "x")
	assert.Error(t, err)
}
