package chat

import (
	"strings"
	"testing"
)

func TestNormalizeMessage(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		maxLen int
		want   string
		wantOK bool
	}{
		{"plain", "hello there", 300, "hello there", true},
		{"trimmed", "  spaced out \n", 300, "spaced out", true},
		{"empty", "", 300, "", false},
		{"whitespace only", "   \t\n", 300, "", false},
		{"at limit", "abcde", 5, "abcde", true},
		{"over limit", "abcdef", 5, "abcde", true},
		{"zero maxLen uses default", strings.Repeat("x", DefaultMaxMessageLen+10), 0, strings.Repeat("x", DefaultMaxMessageLen), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeMessage(tt.raw, tt.maxLen)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("NormalizeMessage(%q, %d) = (%q, %v), want (%q, %v)",
					tt.raw, tt.maxLen, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestNormalizeMessageCountsRunes(t *testing.T) {
	got, ok := NormalizeMessage("héllo wörld", 5)
	if !ok || got != "héllo" {
		t.Errorf("rune cap got (%q, %v), want (\"héllo\", true)", got, ok)
	}
}

func TestBotReply(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		wantOK bool
	}{
		{"help", "help", true},
		{"hello", "hello everyone", true},
		{"hi", "hi", true},
		{"case insensitive", "HELLO?", true},
		{"embedded in word", "this is fine", true}, // "this" contains "hi"
		{"no trigger", "what was the answer?", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, ok := BotReply(tt.text)
			if ok != tt.wantOK {
				t.Errorf("BotReply(%q) ok = %v, want %v", tt.text, ok, tt.wantOK)
			}
			if ok && reply == "" {
				t.Error("matched trigger must produce a reply")
			}
		})
	}
}
