package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/scoring"
)

// execute runs the CLI with args against a throwaway SQLite database.
func execute(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DATABASE_URL", "sqlite:"+dbPath)
	t.Setenv("LLM_API_KEY", "")
	outputJSON, verbose, noColor = false, false, false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionJSON(t *testing.T) {
	out, err := execute(t, filepath.Join(t.TempDir(), "cli.db"), "version", "--json")
	require.NoError(t, err)

	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, version, v["version"])
}

func TestScoreCommand(t *testing.T) {
	out, err := execute(t, filepath.Join(t.TempDir(), "cli.db"),
		"score", "--json",
		"--question", "What does the Gold tier require?",
		"--answer", "Gold requires a combined balance of $20,000 and costs $25,000.",
		"--context", "The Gold tier requires a combined balance of $20,000.",
	)
	require.NoError(t, err)

	var res struct {
		Report     scoring.Report `json:"report"`
		Confidence string         `json:"confidence"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.NotNil(t, res.Report.NumericMatch)
	assert.InDelta(t, 0.5, *res.Report.NumericMatch, 1e-9)
	assert.Equal(t, []string{"money:$25000"}, res.Report.UnsupportedNumbers)
	assert.NotEmpty(t, res.Confidence)
}

func TestScoreCommand_RequiresAnswer(t *testing.T) {
	_, err := execute(t, filepath.Join(t.TempDir(), "cli.db"), "score", "--answer", " ", "--question", "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "answer is required")
}

func TestIngestChatAndSessions(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "cli.db")
	corpus := filepath.Join(dir, "corpus")
	require.NoError(t, os.MkdirAll(corpus, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(corpus, "tiers.md"), []byte(
		"# Preferred Rewards tiers\n\nThe Gold tier requires a combined balance of $20,000.\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(corpus, "atm.txt"), []byte(
		"Platinum members have ATM fees waived worldwide.\n"), 0o644))

	out, err := execute(t, dbPath, "ingest", corpus, "--json")
	require.NoError(t, err)
	var ing map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &ing))
	assert.EqualValues(t, 2, ing["files"])
	assert.EqualValues(t, 2, ing["chunks"])

	out, err = execute(t, dbPath, "chat", "--json", "What balance does the Gold tier require?")
	require.NoError(t, err)
	var reply map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &reply))
	sessionID, _ := reply["session_id"].(string)
	require.NotEmpty(t, sessionID)

	out, err = execute(t, dbPath, "sessions", "list", "--json")
	require.NoError(t, err)
	var list struct {
		Sessions []struct {
			SessionID string `json:"session_id"`
			Messages  int    `json:"messages"`
		} `json:"sessions"`
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, sessionID, list.Sessions[0].SessionID)
	assert.Equal(t, 2, list.Sessions[0].Messages)

	out, err = execute(t, dbPath, "sessions", "delete", sessionID, "--json")
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, `"deleted": 2`))

	_, err = execute(t, dbPath, "sessions", "show", sessionID)
	require.Error(t, err)
}

func TestReadCases(t *testing.T) {
	t.Run("array", func(t *testing.T) {
		cases, err := readCases(strings.NewReader(`[{"answer":"a"},{"id":"x","answer":"b"}]`))
		require.NoError(t, err)
		require.Len(t, cases, 2)
		assert.Equal(t, "case-1", cases[0].ID)
		assert.Equal(t, "x", cases[1].ID)
	})

	t.Run("json lines", func(t *testing.T) {
		in := `{"question":"q1","answer":"a1","contexts":["c1"]}
{"question":"q2","answer":"a2"}
`
		cases, err := readCases(strings.NewReader(in))
		require.NoError(t, err)
		require.Len(t, cases, 2)
		assert.Equal(t, []string{"c1"}, cases[0].Contexts)
		assert.Equal(t, "case-2", cases[1].ID)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := readCases(strings.NewReader("{\"answer\":\"a\"}\nnot json"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse case 2")
	})

	t.Run("empty", func(t *testing.T) {
		cases, err := readCases(strings.NewReader("  \n"))
		require.NoError(t, err)
		assert.Empty(t, cases)
	})
}

func TestHighlight(t *testing.T) {
	answer := "Gold requires $20,000."
	spans := []scoring.TermSpan{
		{Term: "requires", Start: 5, End: 13},
		{Term: "gold", Start: 0, End: 4},
		{Term: "overlap", Start: 3, End: 8},
	}
	got := highlight(answer, spans, func(s string) string { return "[" + s + "]" })
	assert.Equal(t, "[Gold] [requires] $20,000.", got)
}

func TestBatchRows(t *testing.T) {
	p := 0.5
	rows := batchRows([]scoring.CaseResult{
		{ID: "a", Report: &scoring.Report{PrecisionToken: &p}},
		{ID: "b"},
	})
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"a", "0.5000", "n/a", "n/a", "n/a", "Low"}, rows[0])
	assert.Equal(t, "not scored", rows[1][5])
}
