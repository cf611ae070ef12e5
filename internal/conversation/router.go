package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/scoring"
)

// Fixed responses.
const (
	AbstainMessage        = "This question cannot be answered with the available information."
	FallbackClarification = "Could you clarify the specific topic you mean?"
	evidenceClarification = "I need more specific details to answer."
)

// Values for State.GeneratedBy.
const (
	GeneratedByAnswer  = "answer_node"
	GeneratedByClarify = "clarify_node"
)

// RouterConfig bounds collaborator calls. Zero timeouts mean no deadline
// beyond the caller's context.
type RouterConfig struct {
	RetrieveTimeout time.Duration
	GenerateTimeout time.Duration
}

// Outcome is the result of one HandleMessage call.
type Outcome struct {
	State      *State
	Route      Route
	Answer     string
	AnswerType AnswerType
	Confidence Confidence
	Report     *scoring.Report
}

// Router runs one conversational turn over a State.
type Router struct {
	logger    *observability.Logger
	retriever Retriever
	generator Generator
	scorer    *scoring.Builder
	config    RouterConfig
}

// NewRouter creates a router. A nil retriever yields empty retrievals; a nil
// generator makes every answer abstain and every clarification use the
// fallback question; a nil scorer uses the lexical-only default builder.
func NewRouter(
	logger *observability.Logger,
	retriever Retriever,
	generator Generator,
	scorer *scoring.Builder,
	cfg RouterConfig,
) *Router {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if scorer == nil {
		scorer = scoring.NewBuilder(logger, scoring.DefaultOptions(), nil, nil)
	}
	return &Router{
		logger:    logger,
		retriever: retriever,
		generator: generator,
		scorer:    scorer,
		config:    cfg,
	}
}

// HandleMessage runs ProcessInput → Retrieve → Decide → Answer|Clarify for
// msg and appends the assistant turn. It never fails: every failure resolves
// to a well-formed answer, typically an abstention.
func (r *Router) HandleMessage(ctx context.Context, state *State, msg string) Outcome {
	if state == nil {
		state = NewState(DefaultSettings())
	}

	r.ProcessInput(state, msg)
	r.Retrieve(ctx, state)

	route := r.Decide(state)
	switch route {
	case RouteAnswer:
		r.Answer(ctx, state)
	default:
		r.Clarify(ctx, state)
	}

	state.Messages = append(state.Messages, Turn{Role: RoleAssistant, Content: state.Answer})

	// A settled answer (or abstention) closes the topic; the next vague
	// question may clarify again.
	if state.AnswerType != AnswerClarification {
		state.ClarifyCount = 0
	}

	out := Outcome{
		State:      state,
		Route:      route,
		Answer:     state.Answer,
		AnswerType: state.AnswerType,
		Confidence: state.Confidence,
	}
	if state.Metrics.Answer != nil {
		out.Report = state.Metrics.Answer.Utilization
	}

	r.logger.Info().
		Str("route", string(route)).
		Str("answer_type", string(out.AnswerType)).
		Str("confidence", string(out.Confidence)).
		Int("clarify_count", state.ClarifyCount).
		Msg("Turn complete")

	return out
}

// ProcessInput appends the user turn and derives the turn-local inputs.
// There is no question rewrite: the rephrased question is the message.
func (r *Router) ProcessInput(state *State, msg string) {
	state.resetTurn()
	state.Messages = append(state.Messages, Turn{Role: RoleUser, Content: msg})
	state.RephrasedQuestion = msg
	state.ConversationSnippet = BuildSnippet(state.Messages, state.SnippetTurns)
	state.AckLike = IsAckOrCoref(msg)

	ingest := &IngestMetrics{
		MessageChars:          len(msg),
		SnippetTurns:          state.SnippetTurns,
		AckLike:               state.AckLike,
		ClarificationResponse: IsClarificationResponse(state.Messages),
		YesNo:                 IsYesNo(msg),
		FollowUp:              IsFollowUp(msg),
	}
	state.Metrics.Ingest = ingest

	r.logger.Debug().
		Str("question", msg).
		Bool("ack_like", state.AckLike).
		Bool("clarification_response", ingest.ClarificationResponse).
		Bool("follow_up", ingest.FollowUp).
		Msg("Processed input")
}

// Retrieve searches for chunks, using the focus hint for union retrieval when
// one is set or the message is an acknowledgment. Chunks below the threshold
// are dropped. A retriever failure leaves an empty result.
func (r *Router) Retrieve(ctx context.Context, state *State) {
	start := time.Now()

	hint := ""
	if state.FocusHint != "" || state.AckLike {
		hint = state.FocusHint
	}

	m := &RetrieveMetrics{Query: state.RephrasedQuestion, Hint: hint, Union: hint != ""}
	state.Metrics.Retrieve = m

	var chunks []Chunk
	if r.retriever != nil {
		rctx, cancel := withTimeout(ctx, r.config.RetrieveTimeout)
		found, err := r.retriever.Search(rctx, state.RephrasedQuestion, hint, state.TopK)
		cancel()
		if err != nil {
			err = fmt.Errorf("%w: %v", ErrRetrievalFailure, err)
			m.Error = err.Error()
			r.logger.Warn().Err(err).Str("query", state.RephrasedQuestion).Msg("Retrieval failed, continuing with no context")
		} else {
			chunks = found
		}
	}

	kept, fm := FilterByThreshold(chunks, state.Threshold)
	state.Retrieved = kept
	state.AvgScore = AverageScore(kept)
	m.Filtering = fm
	m.LatencyMs = time.Since(start).Milliseconds()

	r.logger.Debug().
		Bool("union", m.Union).
		Int("original_chunks", fm.OriginalChunks).
		Int("filtered_chunks", fm.FilteredChunks).
		Float64("avg_score", state.AvgScore).
		Msg("Retrieved chunks")
}

// Decide picks the route for the turn and records route metrics.
func (r *Router) Decide(state *State) Route {
	route := Decide(state)

	state.Metrics.Route = &RouteMetrics{
		Decision:           route,
		AvgScore:           state.AvgScore,
		Threshold:          state.Threshold,
		ReclarifyThreshold: state.ReclarifyThreshold,
		AboveThreshold:     state.AvgScore >= state.Threshold,
		ClarifyCount:       state.ClarifyCount,
		MaxClarify:         state.MaxClarify,
		Forced:             state.ClarifyCount >= state.MaxClarify,
	}

	r.logger.Debug().
		Str("route", string(route)).
		Float64("avg_score", state.AvgScore).
		Float64("threshold", state.Threshold).
		Int("clarify_count", state.ClarifyCount).
		Int("max_clarify", state.MaxClarify).
		Msg("Route decided")

	return route
}

// Decide is the routing rule. It is a pure function of the state:
// clarify_count >= max_clarify forces an answer; otherwise a non-empty
// retrieval with avg_score >= threshold answers and anything else clarifies.
func Decide(state *State) Route {
	if state.ClarifyCount >= state.MaxClarify {
		return RouteAnswer
	}
	if len(state.Retrieved) > 0 && state.AvgScore >= state.Threshold {
		return RouteAnswer
	}
	return RouteClarify
}

// Answer generates a grounded answer from the retrieved chunks, or abstains.
// An abstaining generator that offers a clarifying question turns the
// response into a clarification while the clarification budget lasts.
func (r *Router) Answer(ctx context.Context, state *State) {
	start := time.Now()
	m := &AnswerMetrics{EvidenceValid: true, Evidence: []string{}}
	state.Metrics.Answer = m
	state.GeneratedBy = GeneratedByAnswer

	if state.ClarifyCount >= state.MaxClarify {
		r.logger.Debug().Err(ErrLoopLimitReached).Int("clarify_count", state.ClarifyCount).Msg("Forced answer")
	}

	if len(state.Retrieved) == 0 || r.generator == nil {
		m.Abstained = true
		r.abstain(state)
		return
	}

	gctx, cancel := withTimeout(ctx, r.config.GenerateTimeout)
	res, err := r.generator.Generate(gctx, GenerateRequest{
		Question:            state.RephrasedQuestion,
		Chunks:              state.Retrieved,
		ConversationSnippet: state.ConversationSnippet,
		FocusHint:           state.FocusHint,
	})
	cancel()
	m.LatencyMs = time.Since(start).Milliseconds()

	if err != nil {
		err = fmt.Errorf("%w: %v", ErrGenerationFailure, err)
		m.Error = err.Error()
		m.Abstained = true
		r.logger.Warn().Err(err).Msg("Generation failed, abstaining")
		r.abstain(state)
		state.ReasoningNotes = err.Error()
		return
	}

	if res.Evidence != nil {
		m.Evidence = res.Evidence
	}
	m.FaithfulnessScore = res.FaithfulnessScore
	m.CompletenessScore = res.CompletenessScore
	m.Missing = res.Missing
	m.InterpretedQuestion = res.InterpretedQuestion

	if !ValidateEvidence(res.Evidence, state.Retrieved) {
		err := fmt.Errorf("%w: %s", ErrInvalidEvidence, strings.Join(res.Evidence, ","))
		m.EvidenceValid = false
		m.Error = err.Error()
		r.logger.Warn().Err(err).Msg("Generator cited unknown chunks, forcing abstain")

		res.Abstained = true
		res.Answer = ""
		res.Confidence = ConfidenceLow
		if strings.TrimSpace(res.ClarifyingQuestion) == "" {
			res.ClarifyingQuestion = evidenceClarification
		}
	}

	m.Abstained = res.Abstained
	state.ReasoningNotes = res.ReasoningNotes

	if res.Abstained {
		cq := strings.TrimSpace(res.ClarifyingQuestion)
		if state.ClarifyCount < state.MaxClarify && cq != "" {
			state.Answer = cq
			state.AnswerType = AnswerClarification
			state.Confidence = ConfidenceLow
			state.LastClarification = cq
			state.ClarifyCount++
			r.logger.Debug().Str("clarifying_question", cq).Msg("Generator abstained with clarification")
			return
		}
		r.abstain(state)
		return
	}

	report := r.scorer.Build(ctx, state.RephrasedQuestion, res.Answer, chunkTexts(state.Retrieved))
	m.Utilization = report

	state.Answer = res.Answer
	state.AnswerType = res.AnswerType
	if state.AnswerType == "" || state.AnswerType == AnswerAbstain || state.AnswerType == AnswerClarification {
		state.AnswerType = AnswerFact
	}
	state.Confidence = res.Confidence
	if !state.Confidence.Valid() {
		state.Confidence = Confidence(scoring.HeuristicConfidence(report))
	}

	r.logger.Debug().
		Str("answer_type", string(state.AnswerType)).
		Str("confidence", string(state.Confidence)).
		Str("utilization", report.Summary).
		Msg("Answer generated")
}

// Clarify asks the generator for a clarification question and a focus topic.
// A non-empty focus topic becomes the focus hint for the next turn.
func (r *Router) Clarify(ctx context.Context, state *State) {
	start := time.Now()
	m := &ClarifyMetrics{}
	state.Metrics.Clarify = m
	state.GeneratedBy = GeneratedByClarify

	question := FallbackClarification
	topic := ""

	if r.generator == nil {
		m.Fallback = true
	} else {
		gctx, cancel := withTimeout(ctx, r.config.GenerateTimeout)
		c, err := r.generator.GenerateClarification(gctx, state.RephrasedQuestion, state.ConversationSnippet)
		cancel()
		switch {
		case err != nil:
			err = fmt.Errorf("%w: %v", ErrGenerationFailure, err)
			m.Fallback = true
			m.Error = err.Error()
			r.logger.Warn().Err(err).Msg("Clarification generation failed, using fallback")
		case strings.TrimSpace(c.Question) == "":
			m.Fallback = true
			topic = strings.TrimSpace(c.FocusTopic)
		default:
			question = strings.TrimSpace(c.Question)
			topic = strings.TrimSpace(c.FocusTopic)
		}
	}
	m.LatencyMs = time.Since(start).Milliseconds()
	m.FocusTopic = topic

	state.Answer = question
	state.AnswerType = AnswerClarification
	state.Confidence = ConfidenceLow
	state.LastClarification = question
	state.ReasoningNotes = "Clarification needed"
	state.ClarifyCount++
	if topic != "" {
		state.FocusHint = topic
	}

	r.logger.Debug().
		Str("clarification", question).
		Str("focus_hint", state.FocusHint).
		Int("clarify_count", state.ClarifyCount).
		Msg("Asked clarification")
}

func (r *Router) abstain(state *State) {
	state.Answer = AbstainMessage
	state.AnswerType = AnswerAbstain
	state.Confidence = ConfidenceLow
}

func chunkTexts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
