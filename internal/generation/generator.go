package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/conversation"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/observability"
)

// Options configures an LLMGenerator.
type Options struct {
	// MaxContextChars bounds the grounding lane; 0 disables truncation.
	MaxContextChars int
	// Repair enables one repair prompt when the answer is not valid JSON.
	Repair bool
}

// LLMGenerator implements conversation.Generator over a Completer.
type LLMGenerator struct {
	llm    Completer
	opts   Options
	logger *observability.Logger
}

// NewLLMGenerator creates a generator.
func NewLLMGenerator(llm Completer, opts Options, logger *observability.Logger) *LLMGenerator {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &LLMGenerator{llm: llm, opts: opts, logger: logger}
}

// New builds an LLMGenerator from configuration.
func New(cfg config.GenerationConfig, logger *observability.Logger) (*LLMGenerator, error) {
	retry := DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries
	client, err := NewClient(ClientConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.Timeout,
		Retry:       retry,

		RequestsPerMinute: cfg.RequestsPerMinute,
	})
	if err != nil {
		return nil, fmt.Errorf("generation client: %w", err)
	}
	return NewLLMGenerator(client, Options{MaxContextChars: cfg.MaxContext, Repair: cfg.Repair}, logger), nil
}

// Generate answers req.Question from req.Chunks. Output that stays
// unparseable after the repair attempt becomes an abstention.
func (g *LLMGenerator) Generate(ctx context.Context, req conversation.GenerateRequest) (conversation.GeneratorResult, error) {
	fc := FormatContext(req.Chunks, g.opts.MaxContextChars)
	prompt := AnswerPrompt(req.Question, req.ConversationSnippet, req.FocusHint, fc.Text, fc.Labels)

	raw, err := g.llm.Complete(ctx, []Message{{Role: "user", Content: prompt}})
	if err != nil {
		return conversation.GeneratorResult{}, err
	}

	m, err := CoerceJSON(raw)
	if errors.Is(err, ErrParse) && g.opts.Repair {
		g.logger.Warn().Str("raw", truncateForLog(raw)).Msg("answer not valid JSON, repairing")
		repaired, rerr := g.llm.Complete(ctx, []Message{{Role: "user", Content: RepairPrompt(raw)}})
		if rerr != nil {
			return conversation.GeneratorResult{}, rerr
		}
		m, err = CoerceJSON(repaired)
	}
	if err != nil {
		g.logger.Warn().Str("raw", truncateForLog(raw)).Msg("answer parse failed")
		return parseFailure(), nil
	}

	res := NormalizeAnswer(m)
	res.Evidence = fc.resolveEvidence(res.Evidence)
	if res.Abstained {
		res.AnswerType = conversation.AnswerAbstain
	}
	return res, nil
}

// GenerateClarification asks for a clarification question and focus topic.
func (g *LLMGenerator) GenerateClarification(ctx context.Context, question, snippet string) (conversation.Clarification, error) {
	raw, err := g.llm.Complete(ctx, []Message{{Role: "user", Content: ClarificationPrompt(question, snippet)}})
	if err != nil {
		return conversation.Clarification{}, err
	}
	m, err := CoerceJSON(raw)
	if err != nil {
		return conversation.Clarification{}, err
	}
	return conversation.Clarification{
		Question:   strings.TrimSpace(stringify(m["clarification_question"])),
		FocusTopic: strings.TrimSpace(stringify(m["focus_topic"])),
	}, nil
}

func parseFailure() conversation.GeneratorResult {
	return conversation.GeneratorResult{
		Abstained:      true,
		Confidence:     conversation.ConfidenceLow,
		AnswerType:     conversation.AnswerAbstain,
		Missing:        []string{"SchemaValidationFailed"},
		ReasoningNotes: "Model failed to produce valid JSON after retries.",
	}
}

func truncateForLog(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}

var _ conversation.Generator = (*LLMGenerator)(nil)
