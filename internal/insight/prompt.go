package insight

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Rrens/chatbot-insights/internal/domain"
	"github.com/Rrens/chatbot-insights/internal/llm"
)

const (
	defaultName  = "testuser"
	defaultEmail = "testuser@gmail.com"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	namePattern  = regexp.MustCompile(`(?:[Mm]y name is|I am|I'm) ([A-Z][a-z]+(?: [A-Z][a-z]+)?)`)
)

var systemPrompt = fmt.Sprintf(`You are an AI assistant that analyzes customer service conversations.
Extract the following information from the conversation:
1. Problem Summary: A brief summary of the customer's issue or query
2. Bot Solved: Whether the bot successfully resolved the customer's issue (true/false)
3. Human Needed: Whether the customer explicitly or implicitly requested human assistance (true/false)
4. Emotion: The primary emotion exhibited by the customer from this list: %s

Format your response as a JSON object with these fields.`, emotionList())

const closingInstruction = "Please analyze this conversation and provide the requested information in JSON format."

func emotionList() string {
	names := make([]string, len(domain.Emotions))
	for i, e := range domain.Emotions {
		names[i] = string(e)
	}
	return strings.Join(names, ", ")
}

// buildConversation replays the transcript and appends the closing instruction.
func buildConversation(messages []domain.Message) []llm.Message {
	out := make([]llm.Message, 0, len(messages)+1)
	for _, m := range messages {
		out = append(out, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	return append(out, llm.Message{Role: string(domain.RoleUser), Content: closingInstruction})
}

// extractIdentity scans user messages in order; the last match wins.
func extractIdentity(messages []domain.Message) (name, email string) {
	name, email = defaultName, defaultEmail
	for _, m := range messages {
		if m.Role != domain.RoleUser {
			continue
		}
		if matches := emailPattern.FindAllString(m.Content, -1); len(matches) > 0 {
			email = matches[len(matches)-1]
		}
		if matches := namePattern.FindAllStringSubmatch(m.Content, -1); len(matches) > 0 {
			name = matches[len(matches)-1][1]
		}
	}
	return name, email
}
