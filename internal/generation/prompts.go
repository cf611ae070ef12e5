package generation

import (
	"fmt"
	"strings"
)

const answerSystemPrompt = `You are a financial assistant.
Base every factual statement ONLY on the Grounding context.
Conversation and Topic hint exist for disambiguation and tone. They are NOT sources of facts.
If the Grounding context does not cover the user request, abstain.`

// AnswerPrompt renders the three-lane answer prompt: conversation and topic
// hint (non-factual) and grounding context (factual, labelled C1..Cn).
func AnswerPrompt(question, snippet, hint, context string, labels []string) string {
	var b strings.Builder
	b.WriteString(answerSystemPrompt)
	b.WriteString("\n\n----- Conversation (non-factual; up to 3 turns) -----\n")
	b.WriteString(orNone(snippet, "(none)"))
	b.WriteString("\n\n----- Topic hint (non-factual) -----\n")
	b.WriteString(orNone(hint, "(none)"))
	b.WriteString("\n\n----- Grounding context (factual; cite chunk IDs) -----\n")
	b.WriteString(orNone(context, "(no context)"))
	b.WriteString("\n\n----- User message -----\n")
	b.WriteString(question)
	b.WriteString(`

INTERPRETATION RULES:
- If the user message is an acknowledgement such as "yes", "ok" or "that one", read it as confirming the Topic hint.
- Never take facts from the Conversation or the Topic hint.
- Take facts only from the Grounding context and cite valid chunk IDs.
- If a needed fact is missing from the Grounding context, abstain and add a clarifying question.

OUTPUT JSON (single line, strict JSON):
{"answer": "", "evidence": [], "missing": "", "confidence": "High|Medium|Low", "faithfulness_score": 0.0, "completeness_score": 0.0, "answer_type": "fact|list|numeric|inference|abstain", "abstained": false, "reasoning_notes": "", "clarifying_question": "", "interpreted_question": ""}

`)
	fmt.Fprintf(&b, "Cite evidence ONLY from these chunk IDs: %s. Do not invent IDs. Return exactly one JSON object on one line.",
		orNone(strings.Join(labels, ", "), "[]"))
	return b.String()
}

// ClarificationPrompt asks for one clarification question and a short focus
// topic naming what the user most likely means.
func ClarificationPrompt(question, snippet string) string {
	return fmt.Sprintf(`You are helping to clarify an ambiguous user question.

Short recent history (non-factual):
%s

User message: %q

Rules:
- Ask exactly ONE specific clarification question.
- Also propose a concise "focus_topic" of at most 8 words naming the likely subject.
- Do not state any facts. This is only a targeting aid.
- JSON only, one line.

Return JSON:
{"clarification_question": "...", "focus_topic": "..."}`, orNone(snippet, "(none)"), question)
}

// RepairPrompt asks the model to reprint invalid output as strict JSON.
func RepairPrompt(bad string) string {
	if len(bad) > 6000 {
		bad = bad[:6000]
	}
	return "Your previous output was not valid according to the required JSON schema.\n" +
		"Fix it and return ONE LINE of strict JSON with the required keys (no code fences, no extra text).\n" +
		"Original invalid output:\n" + bad + "\n\nReprint the corrected JSON now:"
}

func orNone(s, none string) string {
	if strings.TrimSpace(s) == "" {
		return none
	}
	return s
}
