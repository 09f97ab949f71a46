// Package memory keeps a short rolling history of each conversation session.
package memory

import (
	"context"
	"strings"
	"sync"
)

const (
	// MaxHistory is the number of messages kept per session.
	MaxHistory = 12
	// PromptHistory is the number of recent messages fed to the prompt.
	PromptHistory = 8

	DefaultSessionID = "default"
	noHistory        = "No previous conversation."
)

// Role identifies who said a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one history entry.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Store is a session memory. Sessions are created on first use.
type Store interface {
	// AddTurn appends the user message and the reply, keeping the last MaxHistory.
	AddTurn(ctx context.Context, sessionID, userText, botText string) error
	// History returns the last PromptHistory messages, oldest first.
	History(ctx context.Context, sessionID string) ([]Message, error)
	// Summary returns the session's rolling summary, "" if none was set.
	Summary(ctx context.Context, sessionID string) (string, error)
	SetSummary(ctx context.Context, sessionID, summary string) error
}

// FormatHistory renders messages as "User: ..." / "Assistant: ..." lines.
func FormatHistory(msgs []Message) string {
	if len(msgs) == 0 {
		return noHistory
	}
	lines := make([]string, len(msgs))
	for i, m := range msgs {
		speaker := "User"
		if m.Role == RoleAssistant {
			speaker = "Assistant"
		}
		lines[i] = speaker + ": " + m.Text
	}
	return strings.Join(lines, "\n")
}

func sessionKey(id string) string {
	if id == "" {
		return DefaultSessionID
	}
	return id
}

type session struct {
	mu      sync.Mutex
	history []Message
	summary string
}

// InMemory keeps sessions in process memory. Sessions are never evicted.
type InMemory struct {
	mu       sync.Mutex
	sessions map[string]*session
}

// NewInMemory creates an empty in-process store.
func NewInMemory() *InMemory {
	return &InMemory{sessions: make(map[string]*session)}
}

func (m *InMemory) session(id string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	id = sessionKey(id)
	s, ok := m.sessions[id]
	if !ok {
		s = &session{}
		m.sessions[id] = s
	}
	return s
}

func (m *InMemory) AddTurn(ctx context.Context, sessionID, userText, botText string) error {
	s := m.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history,
		Message{Role: RoleUser, Text: userText},
		Message{Role: RoleAssistant, Text: botText},
	)
	if len(s.history) > MaxHistory {
		s.history = append([]Message(nil), s.history[len(s.history)-MaxHistory:]...)
	}
	return nil
}

func (m *InMemory) History(ctx context.Context, sessionID string) ([]Message, error) {
	s := m.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	start := max(0, len(s.history)-PromptHistory)
	return append([]Message(nil), s.history[start:]...), nil
}

func (m *InMemory) Summary(ctx context.Context, sessionID string) (string, error) {
	s := m.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary, nil
}

func (m *InMemory) SetSummary(ctx context.Context, sessionID, summary string) error {
	s := m.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary = summary
	return nil
}
