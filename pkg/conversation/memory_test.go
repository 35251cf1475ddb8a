package conversation

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mercy2112/ai-voice-assistant/pkg/llm"
)

func assertAlternates(t *testing.T, turns []Turn) {
	t.Helper()
	require.GreaterOrEqual(t, len(turns), 2)
	assert.Equal(t, llm.RoleSystem, turns[0].Role)
	assert.Equal(t, llm.RoleUser, turns[1].Role)
	for i, turn := range turns[2:] {
		want := llm.RoleUser
		if i%2 == 1 {
			want = llm.RoleAssistant
		}
		assert.Equalf(t, want, turn.Role, "turn %d", i+2)
	}
}

func TestNewMemorySeed(t *testing.T) {
	m := NewMemory("You are a scheduler.", "Book a visit.")
	assert.Equal(t, 2, m.Len())
	assert.False(t, m.AwaitingReply())
	assertAlternates(t, m.Turns())
}

func TestMemoryGrowsPerTurn(t *testing.T) {
	m := NewMemory("persona", "objective")
	m.AppendUser("book an appointment please")
	assert.Equal(t, 3, m.Len())
	assert.True(t, m.AwaitingReply())
	require.NoError(t, m.AppendAssistant("Sure, what day works?"))
	assert.Equal(t, 4, m.Len())
	assert.Equal(t, Turn{Role: llm.RoleAssistant, Content: "Sure, what day works?"}, m.Last())
	assertAlternates(t, m.Turns())
}

func TestAssistantWithoutUserIsRejected(t *testing.T) {
	m := NewMemory("persona", "objective")
	assert.ErrorIs(t, m.AppendAssistant("hello"), ErrOutOfOrder)
	assert.Equal(t, 2, m.Len())
}

func TestUnansweredUserTurnIsExtended(t *testing.T) {
	m := NewMemory("persona", "objective")
	m.AppendUser("tuesday")
	m.AppendUser("at noon")
	assert.Equal(t, 3, m.Len())
	assert.Equal(t, "tuesday at noon", m.Last().Content)
	assertAlternates(t, m.Turns())
}

func TestBlankUserTextIgnored(t *testing.T) {
	m := NewMemory("persona", "objective")
	m.AppendUser("   ")
	assert.Equal(t, 2, m.Len())
}

func TestTurnsReturnsCopy(t *testing.T) {
	m := NewMemory("persona", "objective")
	turns := m.Turns()
	turns[0].Content = "changed"
	assert.Equal(t, "persona", m.Turns()[0].Content)
}

func TestContextCarriesWholeDialogue(t *testing.T) {
	m := NewMemory("persona", "objective")
	m.AppendUser("hi")
	c := m.Context(0.4, 200)
	require.Len(t, c.Messages, 3)
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "hi"}, c.Messages[2])
	assert.Equal(t, 0.4, c.Temperature)
	assert.Equal(t, 200, c.MaxTokens)
	assert.Equal(t, "persona", c.System())
}

func TestConcurrentReaders(t *testing.T) {
	m := NewMemory("persona", "objective")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = m.Turns()
				_ = m.Len()
			}
		}()
	}
	for i := 0; i < 50; i++ {
		m.AppendUser("question")
		require.NoError(t, m.AppendAssistant("answer"))
	}
	wg.Wait()
	assert.Equal(t, 102, m.Len())
	assertAlternates(t, m.Turns())
}
