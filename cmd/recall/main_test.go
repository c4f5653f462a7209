package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-recall/internal/checkpoint"
	"github.com/ahrav/go-recall/internal/domain"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "recall dev\n", out)
}

func TestNextOffset(t *testing.T) {
	dir := t.TempDir()
	w, err := checkpoint.NewWriter(dir)
	require.NoError(t, err)
	_, err = w.Write([]domain.ItemResult{{QuestionID: "a", Idx: 0}, {QuestionID: "b", Hypothesis: "x", Idx: 1}},
		domain.CheckpointLabel{Kind: domain.CheckpointBatch, BatchNumber: 1, BatchSize: 2})
	require.NoError(t, err)

	out, err := execute(t, "next-offset", "--checkpoint-dir", dir)
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)
}

func TestRunRequiresInput(t *testing.T) {
	_, err := execute(t, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input")
}

// TestRunEndToEnd drives the whole in-process pipeline against fake
// context search and OpenAI-compatible servers.
func TestRunEndToEnd(t *testing.T) {
	search := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Query string `json:"query"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		fmt.Fprintf(w, `{"contexts":[{"content":"context for %s"}]}`, body.Query)
	}))
	t.Cleanup(search.Close)

	gen := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		answer := "ans2"
		if strings.Contains(req.Messages[0].Content, "A?") {
			answer = "ans1"
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":"stop"}]}`, answer)
	}))
	t.Cleanup(gen.Close)

	dir := t.TempDir()
	input := filepath.Join(dir, "questions.json")
	require.NoError(t, os.WriteFile(input,
		[]byte(`[{"question_id":"q1","question":"A?"},{"question_id":"q2","question":"B?"}]`), 0o600))

	t.Setenv("RECALL_CONTEXT_SEARCH_ENDPOINT", search.URL)
	t.Setenv("RECALL_GENERATION_BASE_URL", gen.URL)
	t.Setenv("ALCHEMYST_AI_API_KEY", "ctx")
	t.Setenv("OPENAI_API_KEY", "gen")

	ckpt := filepath.Join(dir, "checkpoints")
	out, err := execute(t, "run", "--input", input, "--batch-size", "2", "--checkpoint-dir", ckpt)
	require.NoError(t, err)
	assert.Contains(t, out, "next offset: 2")

	arts, err := checkpoint.ScanArtifacts(ckpt)
	require.NoError(t, err)
	require.Len(t, arts, 1)
	assert.Equal(t, []domain.ItemResult{
		{QuestionID: "q1", Hypothesis: "ans1", Idx: 0},
		{QuestionID: "q2", Hypothesis: "ans2", Idx: 1},
	}, arts[0].Results)
	assert.FileExists(t, filepath.Join(ckpt, "events.jsonl"))
}
