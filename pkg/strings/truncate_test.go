package strings

import (
	"testing"
)

func TestTruncateDescription(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{name: "short string unchanged", input: "hello", maxLen: 10, expected: "hello"},
		{name: "exact length unchanged", input: "hello", maxLen: 5, expected: "hello"},
		{name: "long string truncated", input: "hello world this is a long string", maxLen: 15, expected: "hello world ..."},
		{name: "newlines replaced with spaces", input: "hello\nworld", maxLen: 20, expected: "hello world"},
		{name: "multiple newlines collapsed", input: "hello\n\n\nworld", maxLen: 20, expected: "hello world"},
		{name: "tabs and spaces collapsed", input: "hello \t\t world", maxLen: 20, expected: "hello world"},
		{name: "surrounding whitespace trimmed", input: "  hello world  ", maxLen: 20, expected: "hello world"},
		{name: "empty string", input: "", maxLen: 10, expected: ""},
		{name: "whitespace only becomes empty", input: "   \n\t  ", maxLen: 10, expected: ""},
		{name: "tiny maxLen clamped", input: "hello", maxLen: 2, expected: "h..."},
		{name: "negative maxLen clamped", input: "hello", maxLen: -5, expected: "h..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := TruncateDescription(tt.input, tt.maxLen)
			if result != tt.expected {
				t.Errorf("TruncateDescription(%q, %d) = %q, want %q",
					tt.input, tt.maxLen, result, tt.expected)
			}
		})
	}
}

func TestTruncateDescriptionRuneLength(t *testing.T) {
	// 6 characters, 18 bytes in UTF-8; the cut must not split a rune.
	input := "日本語テスト"
	result := TruncateDescription(input, 5)

	expected := "日本..."
	if result != expected {
		t.Errorf("Expected %q but got %q", expected, result)
	}

	runeCount := 0
	for range result {
		runeCount++
	}
	if runeCount != 5 {
		t.Errorf("Expected 5 runes but got %d", runeCount)
	}
}
