package usecase

import (
	"strings"

	"chat-relay/internal/domain"
)

// personaInstruction is the fixed system prompt that shapes every reply.
const personaInstruction = "reply in fully lower-case only. never use capital letters. " +
	"respond like a slow, relaxed human who thinks before speaking. " +
	"keep the tone casual, natural, and unhurried. " +
	"adopt a neutral, critical-thinking style: question assumptions, " +
	"ask thoughtful analytical questions, and encourage examining evidence " +
	"without promoting misinformation. do not deny scientific facts. " +
	"do not promote flat-earth ideas. stay curious and reflective."

const (
	startGreeting = "hey, what's on your mind?"
	fallbackReply = "error processing your message."
	emptyReply    = "..."
)

// buildPromptMessages assembles the conversation sent to the model: the
// persona instruction, completed prior turns in order, and the new message.
func buildPromptMessages(question string, history []domain.Turn) []domain.ChatMessage {
	messages := []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: personaInstruction},
	}

	for _, turn := range history {
		messages = append(messages, turnToPromptMessages(turn)...)
	}

	messages = append(messages, domain.ChatMessage{
		Role:    domain.RoleUser,
		Content: question,
	})
	return messages
}

func turnToPromptMessages(turn domain.Turn) []domain.ChatMessage {
	if turn.Status != statusComplete {
		return nil
	}
	question := strings.TrimSpace(turn.Question)
	answer := strings.TrimSpace(turn.Answer)
	if question == "" || answer == "" {
		return nil
	}
	return []domain.ChatMessage{
		{Role: domain.RoleUser, Content: question},
		{Role: domain.RoleModel, Content: answer},
	}
}
