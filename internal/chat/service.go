// Package chat holds the chat channel rules (message bounds, the keyword
// auto-reply) and the durable repository for messages and participants.
package chat

import (
	"regexp"
	"strings"
	"time"
)

const (
	// BotName is the sender name for auto-replies.
	BotName = "Bot"
	// BotReplyDelay is how long the bot waits before replying.
	BotReplyDelay = 400 * time.Millisecond
	// DefaultMaxMessageLen caps a chat message, in runes.
	DefaultMaxMessageLen = 300
	// DefaultHistoryWindow is how many recent messages are replayed on join.
	DefaultHistoryWindow = 50
)

var botTrigger = regexp.MustCompile(`(?i)help|hello|hi`)

// NormalizeMessage trims and caps a raw chat message. Returns ok=false when
// nothing useful remains.
func NormalizeMessage(raw string, maxLen int) (text string, ok bool) {
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLen
	}
	text = strings.TrimSpace(raw)
	if text == "" {
		return "", false
	}
	if runes := []rune(text); len(runes) > maxLen {
		text = string(runes[:maxLen])
	}
	return text, true
}

// BotReply returns the auto-reply for a message, if the keyword rule matches.
// The reply goes only to the sender.
func BotReply(text string) (reply string, ok bool) {
	if !botTrigger.MatchString(text) {
		return "", false
	}
	return "Hey there, how can I help?", true
}
