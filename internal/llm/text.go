package llm

import "strings"

const fence = "```"

// ExtractCodeBlock returns the body of the first fenced code block in
// content, preferring one tagged json (any case). An info string after the
// opening fence, such as "JSON" or "javascript", is not part of the body.
// ok is false when no complete fence exists.
func ExtractCodeBlock(content string) (string, bool) {
	var first string
	found := false

	rest := content
	for {
		start := strings.Index(rest, fence)
		if start == -1 {
			break
		}
		lang, body := splitInfoString(rest[start+len(fence):])

		end := strings.Index(body, fence)
		if end == -1 {
			break
		}
		block := strings.TrimSpace(body[:end])

		if strings.EqualFold(lang, "json") {
			return block, true
		}
		if !found {
			first, found = block, true
		}
		rest = body[end+len(fence):]
	}
	return first, found
}

// splitInfoString separates the language tag from the text after an opening fence.
func splitInfoString(s string) (lang, body string) {
	if nl := strings.IndexByte(s, '\n'); nl != -1 {
		if tag := strings.TrimSpace(s[:nl]); isLanguageTag(tag) {
			return tag, s[nl+1:]
		}
	}
	// Single-line form: ```json {"a": 1}```
	if len(s) > 4 && strings.EqualFold(s[:4], "json") && !isWordByte(s[4]) {
		return s[:4], s[4:]
	}
	return "", s
}

func isLanguageTag(tag string) bool {
	if tag == "" {
		return false
	}
	for i := 0; i < len(tag); i++ {
		if !isWordByte(tag[i]) && tag[i] != '-' && tag[i] != '+' && tag[i] != '.' {
			return false
		}
	}
	return true
}

func isWordByte(b byte) bool {
	return b == '_' || ('0' <= b && b <= '9') || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}

// StripThinking drops <think>...</think> preambles emitted by reasoning models.
func StripThinking(content string) string {
	for {
		start := strings.Index(content, "<think>")
		if start == -1 {
			return strings.TrimSpace(content)
		}
		end := strings.Index(content[start:], "</think>")
		if end == -1 {
			return strings.TrimSpace(content[:start])
		}
		content = content[:start] + content[start+end+len("</think>"):]
	}
}
