package elevenlabs

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mercy2112/ai-voice-assistant/pkg/resilience"
)

func wsServer(t *testing.T, handle func(conn *websocket.Conn, r *http.Request)) (*httptest.Server, string) {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn, r)
	}))
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSynthesizeCollectsAudio(t *testing.T) {
	srv, base := wsServer(t, func(conn *websocket.Conn, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("xi-api-key"))
		assert.Equal(t, "/text-to-speech/voice-1/stream-input", r.URL.Path)
		assert.Equal(t, "ulaw_8000", r.URL.Query().Get("output_format"))
		var texts []string
		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			text, _ := msg["text"].(string)
			texts = append(texts, text)
			if text == "" {
				break
			}
		}
		assert.Equal(t, []string{" ", "Sure, what day works? ", ""}, texts)
		_ = conn.WriteJSON(map[string]any{"audio": base64.StdEncoding.EncodeToString([]byte{1, 2, 3})})
		_ = conn.WriteJSON(map[string]any{"alignment": map[string]any{}})
		_ = conn.WriteJSON(map[string]any{"audio": base64.StdEncoding.EncodeToString([]byte{4, 5})})
		_ = conn.WriteJSON(map[string]any{"isFinal": true})
	})
	defer srv.Close()

	s := New(Config{APIKey: "key", VoiceID: "voice-1", BaseURL: base})
	audio, err := s.Synthesize(context.Background(), "Sure, what day works?")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, audio)
}

func TestSynthesizeHonorsCancel(t *testing.T) {
	srv, base := wsServer(t, func(conn *websocket.Conn, r *http.Request) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(Config{APIKey: "key", VoiceID: "v", BaseURL: base}).Synthesize(ctx, "hello")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDecodeMessageErrors(t *testing.T) {
	_, _, err := decodeMessage([]byte(`{"error":"quota_exceeded","message":"out of credits"}`))
	assert.True(t, resilience.IsRateLimit(err))
	_, _, err = decodeMessage([]byte(`{"error":"invalid_voice","message":"no such voice"}`))
	assert.Error(t, err)
	assert.False(t, resilience.IsRateLimit(err))
}

func TestMissingConfig(t *testing.T) {
	_, err := New(Config{}).Synthesize(context.Background(), "hi")
	assert.Error(t, err)
}
