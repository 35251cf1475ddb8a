package openai

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mercy2112/ai-voice-assistant/pkg/llm"
	"github.com/Mercy2112/ai-voice-assistant/pkg/resilience"
)

func TestGenerateSendsConversation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		assert.Equal(t, 200, req.MaxTokens)
		if !assert.Len(t, req.Messages, 3) {
			return
		}
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "book an appointment please", req.Messages[2].Content)
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"Sure, what day works?"},"finish_reason":"stop"}],"usage":{"prompt_tokens":30,"completion_tokens":6,"total_tokens":36}}`)
	}))
	defer srv.Close()

	a := NewAdapter(Config{APIKey: "sk-test", BaseURL: srv.URL})
	resp, err := a.Generate(context.Background(), llm.Context{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "persona"},
			{Role: llm.RoleUser, Content: "objective"},
			{Role: llm.RoleUser, Content: "book an appointment please"},
		},
		Temperature: 0.4,
		MaxTokens:   200,
	})
	require.NoError(t, err)
	assert.Equal(t, "Sure, what day works?", resp.Text)
	assert.Equal(t, 36, resp.Usage.TotalTokens)
	assert.Equal(t, "stop", resp.FinishReason)
}

func TestRateLimitIsTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"slow down"}}`)
	}))
	defer srv.Close()

	_, err := NewAdapter(Config{BaseURL: srv.URL}).Generate(context.Background(), llm.Context{})
	require.Error(t, err)
	assert.True(t, resilience.IsRateLimit(err))
	assert.Contains(t, err.Error(), "slow down")
}

func TestServerErrorIsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewTranscriber(Config{BaseURL: srv.URL}).Transcribe(context.Background(), []byte{0xFF})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
}

func TestTranscribeUploadsWAV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "en", r.FormValue("language"))
		f, _, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		head := make([]byte, 4)
		_, _ = io.ReadFull(f, head)
		assert.Equal(t, "RIFF", string(head))
		_, _ = io.WriteString(w, `{"text":" book an appointment please "}`)
	}))
	defer srv.Close()

	text, err := NewTranscriber(Config{BaseURL: srv.URL, Language: "en"}).Transcribe(context.Background(), make([]byte, 1600))
	require.NoError(t, err)
	assert.Equal(t, "book an appointment please", text)
}

func TestSynthesizeDownsamplesToMulaw(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/speech", r.URL.Path)
		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nova", req["voice"])
		assert.Equal(t, "pcm", req["response_format"])
		// 100ms of 24kHz silence.
		pcm := make([]byte, 2400*2)
		binary.LittleEndian.PutUint16(pcm, 0)
		_, _ = w.Write(pcm)
	}))
	defer srv.Close()

	audio, err := NewSynthesizer(Config{BaseURL: srv.URL}).Synthesize(context.Background(), "hello")
	require.NoError(t, err)
	assert.InDelta(t, 800, len(audio), 2)
}
