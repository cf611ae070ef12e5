package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAckOrCoref(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"yes", true},
		{"  OK ", true},
		{"sounds good", true},
		{"it", true},
		{"what about those?", true},
		{"tell me about it", false},
		{"no", false},
		{"gold tier", false},
		{"What are the requirements for the gold tier?", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAckOrCoref(tt.msg))
		})
	}
}

func TestBuildSnippet(t *testing.T) {
	msgs := []Turn{
		{Role: RoleUser, Content: "u1"},
		{Role: RoleAssistant, Content: "a1"},
		{Role: RoleUser, Content: "u2"},
		{Role: RoleAssistant, Content: "a2"},
		{Role: RoleUser, Content: "u3"},
		{Role: RoleAssistant, Content: "a3"},
		{Role: RoleUser, Content: "u4"},
	}

	assert.Equal(t, "Assistant: a1\nUser: u2\nAssistant: a2\nUser: u3\nAssistant: a3\nUser: u4", BuildSnippet(msgs, 3))
	assert.Equal(t, "Assistant: a3\nUser: u4", BuildSnippet(msgs, 1))
	assert.Equal(t, "", BuildSnippet(nil, 3))
}

func TestValidateEvidence(t *testing.T) {
	chunks := []Chunk{{ID: "c1"}, {ID: "c2"}}

	assert.True(t, ValidateEvidence(nil, chunks))
	assert.True(t, ValidateEvidence([]string{"c2", "c1"}, chunks))
	assert.False(t, ValidateEvidence([]string{"c1", "c3"}, chunks))
	assert.False(t, ValidateEvidence([]string{"c1"}, nil))
}

func TestIsClarificationResponse(t *testing.T) {
	msgs := []Turn{
		{Role: RoleUser, Content: "what is tier?"},
		{Role: RoleAssistant, Content: "Could you clarify which tier you're asking about?"},
		{Role: RoleUser, Content: "gold"},
	}
	assert.True(t, IsClarificationResponse(msgs))

	msgs[1].Content = "Gold tier requires $20,000."
	assert.False(t, IsClarificationResponse(msgs))
	assert.False(t, IsClarificationResponse(msgs[:1]))
}

func TestIsYesNo(t *testing.T) {
	assert.True(t, IsYesNo("Yes"))
	assert.True(t, IsYesNo(" nope "))
	assert.False(t, IsYesNo("yes please"))
}

func TestIsFollowUp(t *testing.T) {
	assert.True(t, IsFollowUp("What about platinum?"))
	assert.True(t, IsFollowUp("tell me more"))
	assert.False(t, IsFollowUp("Gold tier"))
}

func TestParseAnswerType(t *testing.T) {
	assert.Equal(t, AnswerList, ParseAnswerType("list"))
	assert.Equal(t, AnswerFact, ParseAnswerType("answer"))
	assert.Equal(t, AnswerFact, ParseAnswerType(""))
}
