package usecase

import (
	"fmt"
	"strings"

	"chat-gateway/internal/domain"
)

// DefaultPersona is used when a session leaves its persona blank.
const DefaultPersona = "You are a helpful educational assistant designed to help students learn."

const (
	genericFailureMessage = "Something went wrong while processing your message. Please try again later."
	sessionLimitMessage   = "You have reached the maximum number of messages for this session."
)

func rateLimitMessage(count int, period domain.Period) string {
	periodString := "per day"
	if period == domain.PeriodHour {
		periodString = "per hour"
	}
	return fmt.Sprintf("You have reached your limit of %d questions %s. Please try again later.", count, periodString)
}

// AssemblePrompt builds the completion prompt sent to the generation
// provider: persona, a blank-line separator, the reference content verbatim
// when present, the history as "User:"/"Assistant:" lines, then the new
// message followed by the bare "Assistant:" continuation cue.
//
// History entries with an unrecognized role are dropped silently. The
// function is pure: no I/O, no truncation, identical inputs yield identical
// output.
func AssemblePrompt(persona, referenceContent string, history []domain.ConversationTurn, message string) string {
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\n")

	if referenceContent != "" {
		b.WriteString(referenceContent)
	}

	for _, turn := range history {
		switch turn.Role {
		case domain.RoleUser:
			b.WriteString("User: ")
			b.WriteString(turn.Content)
			b.WriteString("\n")
		case domain.RoleAssistant:
			b.WriteString("Assistant: ")
			b.WriteString(turn.Content)
			b.WriteString("\n")
		}
	}

	b.WriteString("User: ")
	b.WriteString(message)
	b.WriteString("\nAssistant:")
	return b.String()
}
