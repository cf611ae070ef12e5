package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/chat"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/conversation"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/scoring"
)

// formatScore prints a nullable metric.
func formatScore(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return strconv.FormatFloat(*v, 'f', 4, 64)
}

// highlight wraps every supported span of answer with mark. Overlapping
// spans are dropped after the first.
func highlight(answer string, spans []scoring.TermSpan, mark func(string) string) string {
	sorted := append([]scoring.TermSpan(nil), spans...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var b strings.Builder
	pos := 0
	for _, s := range sorted {
		if s.Start < pos || s.End > len(answer) || s.Start >= s.End {
			continue
		}
		b.WriteString(answer[pos:s.Start])
		b.WriteString(mark(answer[s.Start:s.End]))
		pos = s.End
	}
	b.WriteString(answer[pos:])
	return b.String()
}

func reportSpans(r *scoring.Report) []scoring.TermSpan {
	var spans []scoring.TermSpan
	for _, s := range r.SupportedTermsPerSentence {
		spans = append(spans, s.SupportedTerms...)
	}
	return spans
}

// RenderReport prints a scoring report for humans.
func (ui *UI) RenderReport(answer string, r *scoring.Report) {
	if ui.jsonMode || r == nil {
		return
	}
	green := color.New(color.FgGreen, color.Bold).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	ui.Section("Context utilization")
	ui.KeyValue("Summary", r.Summary)
	ui.KeyValue("Confidence", scoring.HeuristicConfidence(r))
	ui.Newline()

	ui.Table(
		[]string{"Metric", "Value"},
		[][]string{
			{"Token precision", formatScore(r.PrecisionToken)},
			{"Context recall", formatScore(r.RecallContext)},
			{"Numeric match", formatScore(r.NumericMatch)},
			{"Entity match", formatScore(r.EntityMatch.Overall)},
			{"Q/A cosine (tf-idf)", formatScore(r.QRAlignment.CosineTFIDF)},
			{"Answer covers question", formatScore(r.QRAlignment.AnswerCoversQuestion)},
			{"Q/A cosine (embedding)", formatScore(r.QRAlignment.CosineEmbed)},
			{"Answer/context similarity", formatScore(r.ContextAlignment.AnswerContextSimilarity)},
			{"Best context similarity", formatScore(r.ContextAlignment.BestContextSimilarity)},
		},
	)

	if answer != "" {
		ui.Section("Answer")
		fmt.Fprintln(ui.out, highlight(answer, reportSpans(r), func(s string) string { return green(s) }))
	}

	if r.BestContextIndex != nil {
		ui.KeyValue("Best context", fmt.Sprintf("#%d", *r.BestContextIndex))
	}
	if len(r.PerSentence) > 0 {
		parts := make([]string, len(r.PerSentence))
		for i, p := range r.PerSentence {
			parts[i] = strconv.FormatFloat(p, 'f', 2, 64)
		}
		ui.KeyValue("Per-sentence precision", strings.Join(parts, "  "))
	}

	if len(r.UnsupportedTerms) > 0 || len(r.UnsupportedNumbers) > 0 || len(r.EntityMatch.Unsupported) > 0 {
		ui.Section("Unsupported")
		if len(r.UnsupportedTerms) > 0 {
			terms := make([]string, 0, len(r.UnsupportedTerms))
			for i, t := range r.UnsupportedTerms {
				if i == 10 {
					break
				}
				terms = append(terms, red(t.Term))
			}
			ui.KeyValue("Terms", strings.Join(terms, ", "))
		}
		if len(r.UnsupportedNumbers) > 0 {
			ui.KeyValue("Numbers", red(strings.Join(r.UnsupportedNumbers, ", ")))
		}
		if len(r.EntityMatch.Unsupported) > 0 {
			ui.KeyValue("Entities", red(strings.Join(r.EntityMatch.Unsupported, ", ")))
		}
	}

	if len(r.Degraded) > 0 {
		ui.Warning("Degraded: %s", strings.Join(r.Degraded, ", "))
	}
}

// RenderReply prints one chat turn.
func (ui *UI) RenderReply(reply *chat.Reply) {
	if ui.jsonMode || reply == nil {
		return
	}
	switch {
	case reply.Route == conversation.RouteClarify:
		color.New(color.FgYellow, color.Bold).Fprint(ui.out, "? ")
		fmt.Fprintln(ui.out, reply.Answer)
		if reply.FocusHint != "" {
			ui.KeyValue("Focus", reply.FocusHint)
		}
	case reply.AnswerType == conversation.AnswerAbstain:
		color.New(color.FgRed, color.Bold).Fprint(ui.out, "∅ ")
		fmt.Fprintln(ui.out, reply.Answer)
	default:
		color.New(color.FgGreen, color.Bold).Fprint(ui.out, "» ")
		fmt.Fprintln(ui.out, reply.Answer)
	}

	ui.KeyValue("Confidence", reply.Confidence)
	ui.KeyValue("Latency", fmt.Sprintf("%dms", reply.LatencyMs))
	if verbose {
		if m := reply.Metrics.Route; m != nil {
			ui.KeyValue("Average score", fmt.Sprintf("%.4f (threshold %.2f)", m.AvgScore, m.Threshold))
		}
		for i, c := range reply.Sources {
			ui.KeyValue(fmt.Sprintf("Source %d", i+1), fmt.Sprintf("%s (%.3f)", c.ID, c.Score))
		}
	}
}
