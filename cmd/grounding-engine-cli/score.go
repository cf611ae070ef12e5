package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/app"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/embedding"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/scoring"
)

// newScorer builds the scoring engine without the rest of the wiring. The
// embedder is only created when semantic alignment is enabled.
func newScorer() (*scoring.Builder, error) {
	var emb embedding.Embedder
	if cfg.SemanticScoring() {
		var err error
		emb, err = embedding.New(cfg.Embedding)
		if err != nil {
			return nil, fmt.Errorf("create embedder: %w", err)
		}
	}
	return app.NewScorer(cfg, emb, logger), nil
}

func newScoreCmd() *cobra.Command {
	var (
		question     string
		answer       string
		contexts     []string
		contextFiles []string
		input        string
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score how well an answer uses its retrieved contexts",
		Long: `Score builds a context-utilization report for one answer: token
precision, context recall, numeric and entity support, question alignment,
and the unsupported terms and numbers.

Contexts come from repeated --context flags, --context-file paths, or a
JSON case file given with --input.`,
		Example: `  grounding-engine-cli score \
    --question "What does the Gold tier require?" \
    --answer "Gold requires a combined balance of $20,000." \
    --context "The Gold tier requires a combined balance of $20,000."`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := scoring.Case{Question: question, Answer: answer, Contexts: contexts}
			if input != "" {
				data, err := os.ReadFile(input)
				if err != nil {
					return fmt.Errorf("read case: %w", err)
				}
				if err := json.Unmarshal(data, &c); err != nil {
					return fmt.Errorf("parse case %s: %w", input, err)
				}
			}
			for _, path := range contextFiles {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read context: %w", err)
				}
				c.Contexts = append(c.Contexts, string(data))
			}
			if strings.TrimSpace(c.Answer) == "" {
				return errors.New("an answer is required (--answer or --input)")
			}

			scorer, err := newScorer()
			if err != nil {
				return err
			}
			report := scorer.Build(cmd.Context(), c.Question, c.Answer, c.Contexts)

			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"report":     report,
					"confidence": scoring.HeuristicConfidence(report),
				})
			}
			ui := NewUI(cmd.OutOrStdout(), false, noColor)
			ui.RenderReport(c.Answer, report)
			return nil
		},
	}

	cmd.Flags().StringVarP(&question, "question", "q", "", "user question")
	cmd.Flags().StringVarP(&answer, "answer", "a", "", "answer to score")
	cmd.Flags().StringArrayVar(&contexts, "context", nil, "retrieved context passage (repeatable)")
	cmd.Flags().StringArrayVar(&contextFiles, "context-file", nil, "file holding one context passage (repeatable)")
	cmd.Flags().StringVarP(&input, "input", "i", "", "JSON file with question, answer and contexts")

	return cmd
}

func newBatchScoreCmd() *cobra.Command {
	var (
		input   string
		output  string
		workers int
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "batch-score",
		Short: "Score an evaluation set of answers concurrently",
		Long: `Batch-score reads cases from a JSON array or JSON Lines file (use - for
stdin), scores them on a worker pool, and writes the reports in input order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, closeInput, err := openInput(input)
			if err != nil {
				return err
			}
			defer closeInput()

			cases, err := readCases(r)
			if err != nil {
				return err
			}
			if len(cases) == 0 {
				return errors.New("no cases to score")
			}

			if workers <= 0 {
				workers = cfg.Scoring.Workers
			}
			if timeout <= 0 {
				timeout = cfg.Scoring.BatchTimeout
			}
			scorer, err := newScorer()
			if err != nil {
				return err
			}

			ui := NewUI(os.Stderr, outputJSON, noColor)
			pool := scoring.NewPool(scorer, workers, timeout)
			bar := ui.ProgressBar("Scoring", int64(len(cases)))
			if bar != nil {
				pool.OnDone(func() { bar.Increment() })
			}

			start := time.Now()
			results, runErr := pool.Run(cmd.Context(), cases)
			if bar != nil && runErr != nil {
				bar.Abort(false)
			}
			ui.Close()
			if runErr != nil {
				logger.Error().Err(runErr).Msg("Batch scoring incomplete")
			}

			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				if err := writeJSON(f, results); err != nil {
					return fmt.Errorf("write output: %w", err)
				}
			} else if outputJSON {
				if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
					return err
				}
			}

			out := NewUI(cmd.OutOrStdout(), outputJSON, noColor)
			out.Table([]string{"ID", "Precision", "Recall", "Numeric", "Entity", "Confidence"}, batchRows(results))
			out.Success("Scored %d cases in %s", len(cases), FormatDuration(time.Since(start)))
			if output != "" {
				out.Info("Reports written to %s", output)
			}
			return runErr
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "-", "cases file (JSON array or JSON Lines, - for stdin)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write reports as JSON to this file")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "concurrent scorers (default from config)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "overall batch timeout (default from config)")

	return cmd
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// readCases accepts a JSON array or one JSON object per line. Cases without
// an id are numbered from 1.
func readCases(r io.Reader) ([]scoring.Case, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read cases: %w", err)
	}
	data = bytes.TrimSpace(data)

	var cases []scoring.Case
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &cases); err != nil {
			return nil, fmt.Errorf("parse cases: %w", err)
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(data))
		for line := 1; ; line++ {
			var c scoring.Case
			err := dec.Decode(&c)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("parse case %d: %w", line, err)
			}
			cases = append(cases, c)
		}
	}

	for i := range cases {
		if cases[i].ID == "" {
			cases[i].ID = fmt.Sprintf("case-%d", i+1)
		}
	}
	return cases, nil
}

func batchRows(results []scoring.CaseResult) [][]string {
	rows := make([][]string, 0, len(results))
	for _, res := range results {
		if res.Report == nil {
			rows = append(rows, []string{res.ID, "-", "-", "-", "-", "not scored"})
			continue
		}
		r := res.Report
		rows = append(rows, []string{
			res.ID,
			formatScore(r.PrecisionToken),
			formatScore(r.RecallContext),
			formatScore(r.NumericMatch),
			formatScore(r.EntityMatch.Overall),
			scoring.HeuristicConfidence(r),
		})
	}
	return rows
}
