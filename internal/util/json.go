package util

import (
	"regexp"
	"strings"
)

// Precompiled regex patterns (compiled once at package init)
var (
	jsonCodeBlockRegex = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)```")
	trailingCommaRegex = regexp.MustCompile(`,\s*([}\]])`)
)

// StripCodeFences removes a surrounding markdown code fence, if present.
func StripCodeFences(s string) string {
	matches := jsonCodeBlockRegex.FindStringSubmatch(s)
	if len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	return strings.TrimSpace(s)
}

// StripTrailingCommas removes commas that directly precede a closing brace or
// bracket. LLMs emit these constantly and encoding/json rejects them.
func StripTrailingCommas(s string) string {
	return trailingCommaRegex.ReplaceAllString(s, "$1")
}

// ExtractJSON extracts JSON content from a response that may contain markdown
// code blocks and surrounding prose. Uses proper bracket matching that handles
// escaped quotes and strings; on truncation it closes the outermost bracket.
func ExtractJSON(s string) string {
	s = StripCodeFences(s)

	// Arrays first: a payload that opens with [ is an array even if objects
	// appear inside it.
	arrayStart := strings.Index(s, "[")
	objectStart := strings.Index(s, "{")
	if arrayStart != -1 && (objectStart == -1 || arrayStart < objectStart) {
		arrayEnd := findMatchingBracket(s, arrayStart, '[', ']')
		if arrayEnd != -1 {
			return s[arrayStart : arrayEnd+1]
		}
		lastQuote := strings.LastIndex(s, "\"")
		if lastQuote > arrayStart {
			trimmed := strings.TrimRight(s[arrayStart:], " \n\t,")
			return trimmed + "]"
		}
	}

	if objectStart != -1 {
		objectEnd := findMatchingBracket(s, objectStart, '{', '}')
		if objectEnd != -1 {
			return s[objectStart : objectEnd+1]
		}
		lastQuote := strings.LastIndex(s, "\"")
		if lastQuote > objectStart {
			trimmed := strings.TrimRight(s[objectStart:], " \n\t,")
			return trimmed + "}"
		}
	}

	return s
}

// CloseDangling appends at most one missing closing brace or bracket to a
// truncated JSON document. This is the only structural repair permitted on
// generated payloads: anything more aggressive (quote escaping, content
// removal, regex extraction) destroys the rich content it is meant to rescue.
func CloseDangling(s string) string {
	var stack []byte
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch ch {
		case '{', '[':
			stack = append(stack, ch)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if len(stack) != 1 {
		return s
	}

	trimmed := strings.TrimRight(s, " \n\t,")
	// An unterminated string has to be closed before the bracket can be.
	if inString {
		trimmed += "\""
	}
	if stack[0] == '{' {
		return trimmed + "}"
	}
	return trimmed + "]"
}

// findMatchingBracket finds the matching closing bracket for an opening
// bracket, skipping bracket characters inside strings. Returns -1 if no
// matching bracket is found.
func findMatchingBracket(s string, startPos int, openChar, closeChar byte) int {
	count := 0
	inString := false
	escaped := false

	for i := startPos; i < len(s); i++ {
		ch := s[i]

		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if !inString {
			if ch == openChar {
				count++
			} else if ch == closeChar {
				count--
				if count == 0 {
					return i
				}
			}
		}
	}

	return -1
}

// SanitizeJSON fixes common JSON issues from LLM responses, specifically
// literal newlines inside string values.
func SanitizeJSON(s string) string {
	var result strings.Builder
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]

		if escaped {
			result.WriteByte(ch)
			escaped = false
			continue
		}

		if ch == '\\' {
			result.WriteByte(ch)
			escaped = true
			continue
		}

		if ch == '"' {
			result.WriteByte(ch)
			inString = !inString
			continue
		}

		if inString && (ch == '\n' || ch == '\r') {
			result.WriteString("\\n")
			if ch == '\r' && i+1 < len(s) && s[i+1] == '\n' {
				i++
			}
			continue
		}

		result.WriteByte(ch)
	}

	return result.String()
}

// EscapeQuotes escapes double quotes for safe injection into a JSON prompt.
func EscapeQuotes(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}
