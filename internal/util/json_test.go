package util

import (
	"encoding/json"
	"testing"
)

func TestExtractJSON_MarkdownWrapped(t *testing.T) {
	input := "```json\n{\"key\": \"value\"}\n```"
	got := ExtractJSON(input)
	if got != `{"key": "value"}` {
		t.Errorf("ExtractJSON = %q, want %q", got, `{"key": "value"}`)
	}
}

func TestExtractJSON_SurroundingProse(t *testing.T) {
	input := `Here is the payload you asked for: {"a": 1, "b": {"c": 2}} hope it helps`
	got := ExtractJSON(input)
	if got != `{"a": 1, "b": {"c": 2}}` {
		t.Errorf("ExtractJSON = %q", got)
	}
}

func TestExtractJSON_BracesInsideStrings(t *testing.T) {
	input := `{"note": "curly } inside", "n": 1}`
	got := ExtractJSON(input)
	var parsed map[string]any
	if err := json.Unmarshal([]byte(got), &parsed); err != nil {
		t.Fatalf("extracted JSON does not parse: %v", err)
	}
	if parsed["note"] != "curly } inside" {
		t.Errorf("string content mangled: %v", parsed["note"])
	}
}

func TestExtractJSON_TruncatedObject(t *testing.T) {
	input := `{"a": "x", "b": "y"`
	got := ExtractJSON(input)
	var parsed map[string]any
	if err := json.Unmarshal([]byte(got), &parsed); err != nil {
		t.Fatalf("truncated object not repaired: %q (%v)", got, err)
	}
	if len(parsed) != 2 {
		t.Errorf("expected 2 keys, got %d", len(parsed))
	}
}

func TestExtractJSON_Array(t *testing.T) {
	input := "```\n[\"one\", \"two\", \"three\"]\n```"
	got := ExtractJSON(input)
	var parsed []string
	if err := json.Unmarshal([]byte(got), &parsed); err != nil {
		t.Fatalf("array not extracted: %v", err)
	}
	if len(parsed) != 3 {
		t.Errorf("expected 3 elements, got %d", len(parsed))
	}
}

func TestStripTrailingCommas(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"object", `{"a": 1,}`, `{"a": 1}`},
		{"array", `[1, 2, 3,]`, `[1, 2, 3]`},
		{"nested", `{"a": [1, 2,],}`, `{"a": [1, 2]}`},
		{"with_whitespace", "{\"a\": 1,\n}", "{\"a\": 1}"},
		{"clean", `{"a": 1}`, `{"a": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripTrailingCommas(tt.input); got != tt.want {
				t.Errorf("StripTrailingCommas(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCloseDangling(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing_brace", `{"a": {"b": 1}`},
		{"missing_bracket", `["a", "b"`},
		{"unterminated_string", `{"a": "unfinished`},
		{"trailing_comma_then_cut", `{"a": 1,`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CloseDangling(tt.input)
			var parsed any
			if err := json.Unmarshal([]byte(got), &parsed); err != nil {
				t.Errorf("CloseDangling(%q) = %q, still unparseable: %v", tt.input, got, err)
			}
		})
	}
}

func TestCloseDangling_NoChangeWhenBalanced(t *testing.T) {
	input := `{"a": 1}`
	if got := CloseDangling(input); got != input {
		t.Errorf("balanced document modified: %q", got)
	}
}

func TestCloseDangling_DeeplyTruncatedLeftAlone(t *testing.T) {
	// Two missing brackets exceed the conservative repair budget; the caller
	// falls through to the contextual fallback instead.
	input := `{"a": {"b": ["c"`
	got := CloseDangling(input)
	if got != input {
		t.Errorf("expected no repair for multi-level truncation, got %q", got)
	}
}

func TestSanitizeJSON_LiteralNewlines(t *testing.T) {
	input := "{\"reasoning\": \"line one\nline two\"}"
	got := SanitizeJSON(input)
	var parsed map[string]string
	if err := json.Unmarshal([]byte(got), &parsed); err != nil {
		t.Fatalf("sanitized JSON does not parse: %v", err)
	}
	if parsed["reasoning"] != "line one\nline two" {
		t.Errorf("newline content lost: %q", parsed["reasoning"])
	}
}

func TestSanitizeJSON_PreservesEscapes(t *testing.T) {
	input := `{"text": "already \"escaped\" content"}`
	if got := SanitizeJSON(input); got != input {
		t.Errorf("escaped content modified: %q", got)
	}
}

func TestEscapeQuotes(t *testing.T) {
	got := EscapeQuotes(`say "hello"`)
	if got != `say \"hello\"` {
		t.Errorf("EscapeQuotes = %q", got)
	}
}

func TestPrefix(t *testing.T) {
	if got := Prefix("abcdef", 3); got != "abc" {
		t.Errorf("Prefix = %q", got)
	}
	if got := Prefix("ab", 50); got != "ab" {
		t.Errorf("Prefix short input = %q", got)
	}
}

func TestTokenCount(t *testing.T) {
	if got := TokenCount("a community center for elderly users"); got != 6 {
		t.Errorf("TokenCount = %d, want 6", got)
	}
	if got := TokenCount("   "); got != 0 {
		t.Errorf("TokenCount of blank = %d", got)
	}
}
