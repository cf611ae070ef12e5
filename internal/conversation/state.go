// Package conversation implements the per-turn routing state machine:
// ProcessInput → Retrieve → Decide → Answer | Clarify.
//
// The router mutates exactly one State per turn and takes no locks. Callers
// (see internal/chat) guarantee at most one in-flight turn per session.
package conversation

import (
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/scoring"
)

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in the append-only conversation log.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Chunk is a retrieved text fragment. It is immutable for the turn.
type Chunk struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// AnswerType classifies the assistant response of a turn.
type AnswerType string

const (
	AnswerFact          AnswerType = "fact"
	AnswerList          AnswerType = "list"
	AnswerNumeric       AnswerType = "numeric"
	AnswerInference     AnswerType = "inference"
	AnswerAbstain       AnswerType = "abstain"
	AnswerClarification AnswerType = "clarification"
)

// ParseAnswerType maps free text onto an AnswerType. Unknown values become
// AnswerFact.
func ParseAnswerType(s string) AnswerType {
	switch t := AnswerType(s); t {
	case AnswerFact, AnswerList, AnswerNumeric, AnswerInference, AnswerAbstain, AnswerClarification:
		return t
	}
	return AnswerFact
}

// Confidence is the coarse confidence label of a response.
type Confidence string

const (
	ConfidenceHigh   Confidence = "High"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceLow    Confidence = "Low"
)

// Valid reports whether c is one of the three labels.
func (c Confidence) Valid() bool {
	return c == ConfidenceHigh || c == ConfidenceMedium || c == ConfidenceLow
}

// Route is the outcome of Decide.
type Route string

const (
	RouteAnswer  Route = "answer"
	RouteClarify Route = "clarification"
)

// Settings are the per-session routing knobs stored in the State.
type Settings struct {
	TopK               int
	Threshold          float64
	ReclarifyThreshold float64
	MaxClarify         int
	SnippetTurns       int
}

// DefaultSettings returns the standard routing knobs.
func DefaultSettings() Settings {
	return Settings{
		TopK:               3,
		Threshold:          0.45,
		ReclarifyThreshold: 0.35,
		MaxClarify:         2,
		SnippetTurns:       3,
	}
}

// State is the conversation state of one session. Every field is always
// present; NewState fills the defaults.
//
// Invariant: 0 <= ClarifyCount <= MaxClarify+1.
type State struct {
	Messages           []Turn  `json:"messages"`
	ClarifyCount       int     `json:"clarify_count"`
	MaxClarify         int     `json:"max_clarify"`
	Threshold          float64 `json:"threshold"`
	ReclarifyThreshold float64 `json:"reclarify_threshold"`
	TopK               int     `json:"top_k"`
	SnippetTurns       int     `json:"snippet_turns"`
	FocusHint          string  `json:"focus_hint"`

	// Turn-local, overwritten on every turn.
	RephrasedQuestion   string     `json:"rephrased_question"`
	ConversationSnippet string     `json:"conversation_snippet"`
	AckLike             bool       `json:"ack_like"`
	Retrieved           []Chunk    `json:"retrieved"`
	AvgScore            float64    `json:"avg_score"`
	Answer              string     `json:"answer"`
	AnswerType          AnswerType `json:"answer_type"`
	Confidence          Confidence `json:"confidence"`
	LastClarification   string     `json:"last_clarification"`
	GeneratedBy         string     `json:"generated_by"`
	ReasoningNotes      string     `json:"reasoning_notes"`
	Metrics             Metrics    `json:"metrics"`
}

// NewState creates an empty state. A zero Settings means DefaultSettings.
// Otherwise zero or negative knobs fall back to their defaults, except
// MaxClarify where 0 means "never clarify".
func NewState(s Settings) *State {
	d := DefaultSettings()
	if s == (Settings{}) {
		s = d
	}
	if s.TopK <= 0 {
		s.TopK = d.TopK
	}
	if s.Threshold <= 0 {
		s.Threshold = d.Threshold
	}
	if s.ReclarifyThreshold <= 0 {
		s.ReclarifyThreshold = d.ReclarifyThreshold
	}
	if s.MaxClarify < 0 {
		s.MaxClarify = d.MaxClarify
	}
	if s.SnippetTurns <= 0 {
		s.SnippetTurns = d.SnippetTurns
	}
	return &State{
		Messages:           []Turn{},
		MaxClarify:         s.MaxClarify,
		Threshold:          s.Threshold,
		ReclarifyThreshold: s.ReclarifyThreshold,
		TopK:               s.TopK,
		SnippetTurns:       s.SnippetTurns,
		Retrieved:          []Chunk{},
		AnswerType:         AnswerFact,
		Confidence:         ConfidenceLow,
	}
}

// resetTurn clears the turn-local fields before a new message is processed.
func (s *State) resetTurn() {
	s.RephrasedQuestion = ""
	s.ConversationSnippet = ""
	s.AckLike = false
	s.Retrieved = []Chunk{}
	s.AvgScore = 0
	s.Answer = ""
	s.AnswerType = AnswerFact
	s.Confidence = ConfidenceLow
	s.GeneratedBy = ""
	s.ReasoningNotes = ""
	s.Metrics = Metrics{}
}

// Metrics collects per-node diagnostics for one turn.
type Metrics struct {
	Ingest   *IngestMetrics   `json:"ingest,omitempty"`
	Retrieve *RetrieveMetrics `json:"retrieve,omitempty"`
	Route    *RouteMetrics    `json:"route,omitempty"`
	Answer   *AnswerMetrics   `json:"answer,omitempty"`
	Clarify  *ClarifyMetrics  `json:"clarify,omitempty"`
}

// IngestMetrics describes ProcessInput.
type IngestMetrics struct {
	MessageChars          int  `json:"message_chars"`
	SnippetTurns          int  `json:"snippet_turns"`
	AckLike               bool `json:"ack_like"`
	ClarificationResponse bool `json:"is_clarification_response"`
	YesNo                 bool `json:"is_yes_no"`
	FollowUp              bool `json:"is_follow_up"`
}

// RetrieveMetrics describes Retrieve.
type RetrieveMetrics struct {
	Query     string        `json:"query"`
	Hint      string        `json:"hint,omitempty"`
	Union     bool          `json:"union"`
	LatencyMs int64         `json:"latency_ms"`
	Filtering FilterMetrics `json:"similarity_filtering"`
	Error     string        `json:"error,omitempty"`
}

// FilterMetrics summarizes threshold filtering of retrieved chunks.
type FilterMetrics struct {
	Threshold        float64 `json:"threshold"`
	OriginalChunks   int     `json:"original_chunks"`
	FilteredChunks   int     `json:"filtered_chunks"`
	FilteredOutCount int     `json:"filtered_out_count"`
	AvgFilteredScore float64 `json:"avg_filtered_score"`
	MinFilteredScore float64 `json:"min_filtered_score"`
	MaxFilteredScore float64 `json:"max_filtered_score"`
}

// RouteMetrics describes Decide.
type RouteMetrics struct {
	Decision           Route   `json:"route_decision"`
	AvgScore           float64 `json:"avg_score"`
	Threshold          float64 `json:"threshold"`
	ReclarifyThreshold float64 `json:"reclarify_threshold"`
	AboveThreshold     bool    `json:"above_threshold"`
	ClarifyCount       int     `json:"clarify_count"`
	MaxClarify         int     `json:"max_clarify"`
	Forced             bool    `json:"forced"`
}

// AnswerMetrics describes Answer.
type AnswerMetrics struct {
	Abstained           bool            `json:"abstained"`
	EvidenceValid       bool            `json:"evidence_valid"`
	Evidence            []string        `json:"evidence"`
	FaithfulnessScore   float64         `json:"faithfulness_score"`
	CompletenessScore   float64         `json:"completeness_score"`
	Missing             []string        `json:"missing,omitempty"`
	InterpretedQuestion string          `json:"interpreted_question,omitempty"`
	LatencyMs           int64           `json:"latency_ms"`
	Error               string          `json:"error,omitempty"`
	Utilization         *scoring.Report `json:"context_utilization,omitempty"`
}

// ClarifyMetrics describes Clarify.
type ClarifyMetrics struct {
	FocusTopic string `json:"focus_topic,omitempty"`
	Fallback   bool   `json:"fallback"`
	LatencyMs  int64  `json:"latency_ms"`
	Error      string `json:"error,omitempty"`
}

// FilterByThreshold keeps chunks with score >= threshold, preserving order,
// and reports what was dropped.
func FilterByThreshold(chunks []Chunk, threshold float64) ([]Chunk, FilterMetrics) {
	kept := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		if c.Score >= threshold {
			kept = append(kept, c)
		}
	}

	m := FilterMetrics{
		Threshold:        threshold,
		OriginalChunks:   len(chunks),
		FilteredChunks:   len(kept),
		FilteredOutCount: len(chunks) - len(kept),
	}
	if len(kept) > 0 {
		m.MinFilteredScore = kept[0].Score
		m.MaxFilteredScore = kept[0].Score
		for _, c := range kept {
			m.MinFilteredScore = min(m.MinFilteredScore, c.Score)
			m.MaxFilteredScore = max(m.MaxFilteredScore, c.Score)
		}
		m.AvgFilteredScore = AverageScore(kept)
	}
	return kept, m
}

// AverageScore is the mean chunk score, 0 for an empty set.
func AverageScore(chunks []Chunk) float64 {
	if len(chunks) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range chunks {
		sum += c.Score
	}
	return sum / float64(len(chunks))
}
