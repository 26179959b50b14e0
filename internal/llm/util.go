package llm

import "strings"

// CleanJSONBlock removes markdown code block wrappers and conversational text
// around a JSON value. Models do this even when a JSON MIME type is requested.
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		// Skip a language identifier on the first line
		if idx := strings.Index(text, "\n"); idx >= 0 {
			firstLine := text[:idx]
			if len(firstLine) < 20 && !strings.Contains(firstLine, " ") && !strings.Contains(firstLine, "{") {
				text = text[idx+1:]
			}
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		return strings.TrimSpace(text)
	}

	if strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") {
		if extracted := extractJSONValue(text); extracted != "" {
			return extracted
		}
		return text
	}

	// Preamble: take the first balanced object or array
	if idx := strings.IndexAny(text, "{["); idx >= 0 {
		if extracted := extractJSONValue(text[idx:]); extracted != "" {
			return extracted
		}
	}

	return text
}

func extractJSONValue(text string) string {
	if strings.HasPrefix(text, "{") {
		return extractJSONObject(text)
	}
	return extractJSONArray(text)
}

func extractJSONObject(text string) string {
	return extractBalanced(text, '{', '}')
}

func extractJSONArray(text string) string {
	return extractBalanced(text, '[', ']')
}

// extractBalanced returns the prefix of text up to the delimiter that closes
// its first character, skipping delimiters inside JSON strings.
func extractBalanced(text string, open, closing byte) string {
	if len(text) == 0 || text[0] != open {
		return ""
	}

	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return text[:i+1]
			}
		}
	}

	return ""
}
