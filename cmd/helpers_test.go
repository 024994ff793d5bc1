package cmd

import (
	"testing"
)

func TestParseEnvFlags(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		wantLen int
		wantErr bool
	}{
		{name: "empty", input: nil, wantLen: 0},
		{name: "single pair", input: []string{"KEY=value"}, wantLen: 1},
		{name: "value with equals", input: []string{"TOKEN=abc=def"}, wantLen: 1},
		{name: "empty value", input: []string{"KEY="}, wantLen: 1},
		{name: "missing separator", input: []string{"KEY"}, wantErr: true},
		{name: "empty key", input: []string{"=value"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := parseEnvFlags(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected error for %v", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(env) != tt.wantLen {
				t.Errorf("Expected %d bindings, got %d", tt.wantLen, len(env))
			}
		})
	}
}

func TestParseEnvFlagsSplitsOnFirstEquals(t *testing.T) {
	env, err := parseEnvFlags([]string{"CONN=host=db;port=5432"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if env[0].Key != "CONN" {
		t.Errorf("Expected key CONN, got %s", env[0].Key)
	}
	if env[0].Value != "host=db;port=5432" {
		t.Errorf("Expected full value preserved, got %s", env[0].Value)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("Expected unchanged string, got %q", got)
	}
	if got := truncate("a long description that overflows", 10); got != "a long ..." {
		t.Errorf("Expected truncated string with ellipsis, got %q", got)
	}
	if got := truncate("two\nlines", 20); got != "two lines" {
		t.Errorf("Expected flattened newline, got %q", got)
	}
}
