// Package conversation holds the per-call dialogue history handed to the
// completion model.
//
// A Memory starts with a system turn (the agent persona) and a seed user turn
// (the call objective). Turns appended afterwards alternate user, assistant,
// user, ... and nothing is ever removed while the call lives. The one
// in-place change: a user turn left unanswered by a failed completion is
// extended by the caller's next utterance, never replaced.
package conversation

import (
	"errors"
	"strings"
	"sync"

	"github.com/Mercy2112/ai-voice-assistant/pkg/llm"
)

// ErrOutOfOrder is returned when an assistant turn is appended without a
// pending user turn.
var ErrOutOfOrder = errors.New("conversation: assistant turn without pending user turn")

// Turn is one entry of the dialogue.
type Turn struct {
	Role    llm.Role
	Content string
}

const seedLen = 2

type Memory struct {
	mu    sync.RWMutex
	turns []Turn
}

// NewMemory seeds a memory with the persona and the call objective.
func NewMemory(persona, objective string) *Memory {
	return &Memory{turns: []Turn{
		{Role: llm.RoleSystem, Content: persona},
		{Role: llm.RoleUser, Content: objective},
	}}
}

// AppendUser records what the caller said. If the previous appended turn is
// a user turn that never got an answer, the text is joined onto it so roles
// keep alternating.
func (m *Memory) AppendUser(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.awaitingReplyLocked() {
		last := &m.turns[len(m.turns)-1]
		last.Content = last.Content + " " + text
		return
	}
	m.turns = append(m.turns, Turn{Role: llm.RoleUser, Content: text})
}

// AppendAssistant records the agent's reply to the pending user turn.
func (m *Memory) AppendAssistant(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.awaitingReplyLocked() {
		return ErrOutOfOrder
	}
	m.turns = append(m.turns, Turn{Role: llm.RoleAssistant, Content: strings.TrimSpace(text)})
	return nil
}

// AwaitingReply reports whether the last appended turn is an unanswered
// user turn.
func (m *Memory) AwaitingReply() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.awaitingReplyLocked()
}

func (m *Memory) awaitingReplyLocked() bool {
	return len(m.turns) > seedLen && m.turns[len(m.turns)-1].Role == llm.RoleUser
}

// Len returns the number of turns including the seed.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.turns)
}

// Turns returns a copy of the dialogue.
func (m *Memory) Turns() []Turn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Turn, len(m.turns))
	copy(out, m.turns)
	return out
}

// Last returns the most recent turn.
func (m *Memory) Last() Turn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.turns[len(m.turns)-1]
}

// Context builds the completion request for the whole dialogue.
func (m *Memory) Context(temperature float64, maxTokens int) llm.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := make([]llm.Message, len(m.turns))
	for i, t := range m.turns {
		msgs[i] = llm.Message{Role: t.Role, Content: t.Content}
	}
	return llm.Context{Messages: msgs, Temperature: temperature, MaxTokens: maxTokens}
}
