package insight

import (
	"encoding/json"
	"strings"

	"github.com/Rrens/chatbot-insights/internal/domain"
	"github.com/Rrens/chatbot-insights/internal/llm"
)

const defaultSummary = "Conversation with customer"

type analysis struct {
	ProblemSummary string
	BotSolved      domain.TriState
	HumanNeeded    domain.TriState
	Emotion        domain.Emotion
}

func defaultAnalysis() analysis {
	return analysis{
		ProblemSummary: defaultSummary,
		BotSolved:      domain.True,
		HumanNeeded:    domain.False,
		Emotion:        domain.EmotionNeutral,
	}
}

// parseAnalysis reads the model output as a JSON object, then as the first
// fenced block. ok is false when neither yields an object.
func parseAnalysis(text string) (analysis, bool) {
	text = llm.StripThinking(text)

	fields, ok := decodeObject(text)
	if !ok {
		if body, found := llm.ExtractCodeBlock(text); found {
			fields, ok = decodeObject(body)
		}
	}
	if !ok {
		return analysis{}, false
	}

	a := analysis{Emotion: domain.EmotionNeutral}
	for key, raw := range fields {
		switch normalizeKey(key) {
		case "problem_summary":
			var s string
			if json.Unmarshal(raw, &s) == nil {
				a.ProblemSummary = strings.TrimSpace(s)
			}
		case "bot_solved":
			a.BotSolved = parseFlag(raw)
		case "human_needed":
			a.HumanNeeded = parseFlag(raw)
		case "emotion":
			var s string
			if json.Unmarshal(raw, &s) == nil {
				a.Emotion = domain.ParseEmotion(s)
			}
		}
	}
	return a, true
}

func decodeObject(text string) (map[string]json.RawMessage, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &fields); err != nil || fields == nil {
		return nil, false
	}
	return fields, true
}

// normalizeKey folds "Problem Summary", "problem-summary" and "problemSummary"
// onto problem_summary.
func normalizeKey(key string) string {
	var b strings.Builder
	key = strings.TrimSpace(key)
	for i, r := range key {
		switch {
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('_')
		case r >= 'A' && r <= 'Z':
			if i > 0 && key[i-1] >= 'a' && key[i-1] <= 'z' {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func parseFlag(raw json.RawMessage) domain.TriState {
	if strings.TrimSpace(string(raw)) == "null" {
		return domain.Unknown
	}
	var b bool
	if json.Unmarshal(raw, &b) == nil {
		return domain.TriStateOf(b)
	}
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return domain.Unknown
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes":
		return domain.True
	case "false", "no":
		return domain.False
	}
	return domain.Unknown
}
