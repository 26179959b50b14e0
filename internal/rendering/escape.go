package rendering

import "strings"

// EscapeXML escapes text for use inside a WordprocessingML <w:t> element.
// Characters that are not legal in XML 1.0 are dropped.
func EscapeXML(text string) string {
	if text == "" {
		return ""
	}

	var result strings.Builder
	result.Grow(len(text) + len(text)/8)

	for _, r := range text {
		switch r {
		case '&':
			result.WriteString("&amp;")
		case '<':
			result.WriteString("&lt;")
		case '>':
			result.WriteString("&gt;")
		case '"':
			result.WriteString("&quot;")
		case '\'':
			result.WriteString("&apos;")
		case '\t', '\n', '\r':
			result.WriteRune(r)
		default:
			if r < 0x20 || r == 0xFFFE || r == 0xFFFF {
				continue
			}
			result.WriteRune(r)
		}
	}

	return result.String()
}
