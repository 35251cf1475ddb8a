package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mercy2112/ai-voice-assistant/pkg/llm"
)

func TestToContentsMergesRoles(t *testing.T) {
	contents := toContents([]llm.Message{
		{Role: llm.RoleSystem, Content: "persona"},
		{Role: llm.RoleUser, Content: "objective"},
		{Role: llm.RoleUser, Content: "hello"},
		{Role: llm.RoleAssistant, Content: "hi there"},
		{Role: llm.RoleUser, Content: "book me in"},
	})
	require.Len(t, contents, 3)
	assert.Equal(t, "user", contents[0].Role)
	assert.Len(t, contents[0].Parts, 2)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "book me in", contents[2].Parts[0].Text)
}

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.Contains(r.URL.Path, "gemini-test:generateContent"), r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body, "systemInstruction")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"Sure, what day works?"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":20,"candidatesTokenCount":6,"totalTokenCount":26}}`)
	}))
	defer srv.Close()

	a, err := NewAdapter(context.Background(), Config{APIKey: "test", Model: "gemini-test", BaseURL: srv.URL})
	require.NoError(t, err)
	resp, err := a.Generate(context.Background(), llm.Context{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "persona"},
			{Role: llm.RoleUser, Content: "book an appointment please"},
		},
		Temperature: 0.4,
		MaxTokens:   200,
	})
	require.NoError(t, err)
	assert.Equal(t, "Sure, what day works?", resp.Text)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 26, resp.Usage.TotalTokens)
}
