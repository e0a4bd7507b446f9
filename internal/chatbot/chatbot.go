// Package chatbot answers patient and staff questions from a small
// keyword knowledge base.
package chatbot

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	CategoryGreeting = "greeting"
	CategoryFallback = "fallback"
	CategoryError    = "error"

	MaxMessageLen  = 1000
	DefaultSession = "default"

	minPartialLen = 3
	apology       = "⚠️ Sorry, something went wrong on our end. Please try again."
)

var (
	ErrEmptyMessage   = errors.New("Message cannot be empty.")
	ErrMessageTooLong = fmt.Errorf("Message too long (max %d characters).", MaxMessageLen)
)

//go:embed knowledge.yaml
var defaultKnowledge []byte

type Entry struct {
	Key      string   `yaml:"key"`
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
	Answer   string   `yaml:"answer"`
}

// Knowledge is matched in file order: the first entry with a hit wins.
type Knowledge struct {
	Greeting  string   `yaml:"greeting"`
	Greetings []string `yaml:"greetings"`
	Fallback  string   `yaml:"fallback"`
	Entries   []Entry  `yaml:"entries"`
}

// LoadKnowledge reads a knowledge file, or the built-in one when path is empty.
func LoadKnowledge(path string) (*Knowledge, error) {
	data := defaultKnowledge
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read knowledge base: %w", err)
		}
		data = b
	}

	kb := &Knowledge{}
	if err := yaml.Unmarshal(data, kb); err != nil {
		return nil, fmt.Errorf("parse knowledge base: %w", err)
	}
	if kb.Fallback == "" || len(kb.Entries) == 0 {
		return nil, errors.New("knowledge base needs a fallback and at least one entry")
	}
	for i := range kb.Entries {
		for j, kw := range kb.Entries[i].Keywords {
			kb.Entries[i].Keywords[j] = strings.ToLower(kw)
		}
	}
	for i, g := range kb.Greetings {
		kb.Greetings[i] = strings.ToLower(g)
	}
	return kb, nil
}

// FindAnswer returns the reply text and its category. Greetings win over
// whole-word keyword hits, which win over partial word matches.
func (kb *Knowledge) FindAnswer(message string) (string, string) {
	msg := strings.ToLower(strings.TrimSpace(message))

	for _, g := range kb.Greetings {
		if containsWord(msg, g) {
			return kb.Greeting, CategoryGreeting
		}
	}

	for _, e := range kb.Entries {
		for _, kw := range e.Keywords {
			if containsWord(msg, kw) {
				return e.Answer, e.Category
			}
		}
	}

	for _, word := range strings.Fields(msg) {
		if utf8.RuneCountInString(word) < minPartialLen {
			continue
		}
		for _, e := range kb.Entries {
			for _, kw := range e.Keywords {
				if strings.Contains(kw, word) || strings.Contains(word, kw) {
					return e.Answer, e.Category
				}
			}
		}
	}

	return kb.Fallback, CategoryFallback
}

// containsWord reports whether phrase occurs in s delimited by
// non-alphanumerics or the ends of s.
func containsWord(s, phrase string) bool {
	if phrase == "" {
		return false
	}
	for start := 0; start <= len(s)-len(phrase); {
		i := strings.Index(s[start:], phrase)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(phrase)

		before, _ := utf8.DecodeLastRuneInString(s[:i])
		after, _ := utf8.DecodeRuneInString(s[end:])
		if (i == 0 || !isWordRune(before)) && (end == len(s) || !isWordRune(after)) {
			return true
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		start = i + size
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

type Reply struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
	Category  string `json:"category"`
	Timestamp string `json:"timestamp"`
}

// Validate trims message and enforces the length limits.
func Validate(message string) (string, error) {
	if utf8.RuneCountInString(message) > MaxMessageLen {
		return "", ErrMessageTooLong
	}
	msg := strings.TrimSpace(message)
	if msg == "" {
		return "", ErrEmptyMessage
	}
	return msg, nil
}

// Bot answers messages and remembers the last exchange per session.
type Bot struct {
	kb       *Knowledge
	sessions SessionStore
	now      func() time.Time
}

func NewBot(kb *Knowledge, sessions SessionStore) *Bot {
	return &Bot{kb: kb, sessions: sessions, now: time.Now}
}

// Reply answers an already validated message. It never fails: a panic
// while matching yields the apology reply in category "error".
func (b *Bot) Reply(ctx context.Context, sessionID, message string) (reply Reply) {
	if sessionID == "" {
		sessionID = DefaultSession
	}
	reply = Reply{SessionID: sessionID}

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[Bot.Reply] session %s: unexpected error: %v", sessionID, r)
			reply.Response = apology
			reply.Category = CategoryError
		}
		reply.Timestamp = b.now().UTC().Format(time.RFC3339)
	}()

	log.Infof("[Bot.Reply] [%s] user: %q", sessionID, message)
	reply.Response, reply.Category = b.kb.FindAnswer(message)
	log.Infof("[Bot.Reply] [%s] category=%s", sessionID, reply.Category)

	if b.sessions != nil {
		err := b.sessions.Save(ctx, Session{
			SessionID:   sessionID,
			LastMessage: message,
			Category:    reply.Category,
			UpdatedAt:   b.now().UTC(),
		})
		if err != nil {
			log.Warnf("[Bot.Reply] session %s not saved: %s", sessionID, err)
		}
	}
	return reply
}
