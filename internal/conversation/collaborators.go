package conversation

import "context"

// Retriever searches the corpus. When hint is non-empty it must run the
// query and the hint independently, merge by chunk id keeping the maximum
// score, and return the top topK by descending score.
type Retriever interface {
	Search(ctx context.Context, query, hint string, topK int) ([]Chunk, error)
}

// GenerateRequest is the input of Generator.Generate.
type GenerateRequest struct {
	Question            string
	Chunks              []Chunk
	ConversationSnippet string
	FocusHint           string
}

// GeneratorResult is the normalized answer produced by a Generator.
// Evidence holds chunk ids.
type GeneratorResult struct {
	Answer              string
	Evidence            []string
	Abstained           bool
	Confidence          Confidence
	AnswerType          AnswerType
	ClarifyingQuestion  string
	FaithfulnessScore   float64
	CompletenessScore   float64
	Missing             []string
	ReasoningNotes      string
	InterpretedQuestion string
}

// Clarification is the output of Generator.GenerateClarification.
type Clarification struct {
	Question   string
	FocusTopic string
}

// Generator produces answers and clarification questions.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (GeneratorResult, error)
	GenerateClarification(ctx context.Context, question, snippet string) (Clarification, error)
}
