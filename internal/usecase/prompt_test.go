package usecase

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"chat-gateway/internal/domain"
)

func TestAssemblePrompt_Order(t *testing.T) {
	history := []domain.ConversationTurn{
		{Role: domain.RoleUser, Content: "What is photosynthesis?"},
		{Role: domain.RoleAssistant, Content: "It converts light into chemical energy."},
	}
	got := AssemblePrompt("You are a biology tutor.", "\n\n=== REFERENCE CONTENT ===\nchapter one\n=== END REFERENCE CONTENT ===\n\n", history, "And respiration?")

	require.True(t, strings.HasPrefix(got, "You are a biology tutor.\n\n"))
	require.Contains(t, got, "=== REFERENCE CONTENT ===")
	require.Contains(t, got, "User: What is photosynthesis?\n")
	require.Contains(t, got, "Assistant: It converts light into chemical energy.\n")
	require.True(t, strings.HasSuffix(got, "User: And respiration?\nAssistant:"))

	contentIdx := strings.Index(got, "=== REFERENCE CONTENT ===")
	historyIdx := strings.Index(got, "User: What is photosynthesis?")
	require.Less(t, contentIdx, historyIdx)
}

func TestAssemblePrompt_TrailingCueHasNoNewline(t *testing.T) {
	got := AssemblePrompt("persona", "", nil, "hello")
	require.Equal(t, "persona\n\nUser: hello\nAssistant:", got)
}

func TestAssemblePrompt_Deterministic(t *testing.T) {
	history := []domain.ConversationTurn{
		{Role: domain.RoleUser, Content: "a"},
		{Role: domain.RoleAssistant, Content: "b"},
	}
	first := AssemblePrompt("persona", "content", history, "next")
	second := AssemblePrompt("persona", "content", history, "next")
	require.Equal(t, first, second)
}

func TestAssemblePrompt_SkipsUnknownRoles(t *testing.T) {
	history := []domain.ConversationTurn{
		{Role: "system", Content: "should not appear"},
		{Role: domain.RoleUser, Content: "kept"},
		{Role: "tool", Content: "also dropped"},
	}
	got := AssemblePrompt("persona", "", history, "msg")
	require.NotContains(t, got, "should not appear")
	require.NotContains(t, got, "also dropped")
	require.Contains(t, got, "User: kept\n")
}

func TestAssemblePrompt_EmptyReferenceContent(t *testing.T) {
	got := AssemblePrompt("persona", "", nil, "msg")
	require.NotContains(t, got, "REFERENCE CONTENT")
	require.Equal(t, "persona\n\nUser: msg\nAssistant:", got)
}

func TestRateLimitMessage(t *testing.T) {
	require.Equal(t,
		"You have reached your limit of 5 questions per hour. Please try again later.",
		rateLimitMessage(5, domain.PeriodHour))
	require.Equal(t,
		"You have reached your limit of 2 questions per day. Please try again later.",
		rateLimitMessage(2, domain.PeriodDay))
}
