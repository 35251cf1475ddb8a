package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mercy2112/ai-voice-assistant/pkg/callstore"
	"github.com/Mercy2112/ai-voice-assistant/pkg/pipeline"
	"github.com/Mercy2112/ai-voice-assistant/pkg/providers/mock"
	"github.com/Mercy2112/ai-voice-assistant/pkg/transports"
)

type nopSink struct{}

func (nopSink) SendMedia(context.Context, string) error { return nil }
func (nopSink) Mark(context.Context, string) error      { return nil }
func (nopSink) Close() error                            { return nil }

type stubCaller struct {
	to, from, url string
	opts          transports.DialOptions
	hungUp        []string
	err           error
}

func (s *stubCaller) DialWithOptions(_ context.Context, to, from, url string, opts transports.DialOptions) (string, error) {
	s.to, s.from, s.url, s.opts = to, from, url, opts
	if s.err != nil {
		return "", s.err
	}
	return "CA-new", nil
}

func (s *stubCaller) Hangup(_ context.Context, callSID string) error {
	s.hungUp = append(s.hungUp, callSID)
	return s.err
}

func (s *stubCaller) VoiceURL(objective string) string {
	return "https://example.com/voice?objective=" + objective
}

type stubArchive struct {
	calls map[string]*callstore.Call
}

func (a stubArchive) Get(_ context.Context, callSID string) (*callstore.Call, error) {
	if c, ok := a.calls[callSID]; ok {
		return c, nil
	}
	return nil, callstore.ErrNotFound
}

func (a stubArchive) Recent(context.Context, int) ([]callstore.Call, error) {
	var out []callstore.Call
	for _, c := range a.calls {
		out = append(out, *c)
	}
	return out, nil
}

func newRegistry(t *testing.T) *pipeline.SessionRegistry {
	t.Helper()
	reg := pipeline.NewSessionRegistry(pipeline.Deps{
		Clients: pipeline.Clients{
			STT: mock.NewSTT(mock.STTConfig{}),
			LLM: mock.NewLLMAdapter(mock.LLMConfig{}),
			TTS: mock.NewTTS(mock.TTSConfig{}),
		},
	})
	t.Cleanup(func() { reg.CloseAll("test") })
	return reg
}

func do(t *testing.T, h *Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func TestHealth(t *testing.T) {
	reg := newRegistry(t)
	healthy := true
	h := NewHandler(Options{Registry: reg, Health: func() error {
		if healthy {
			return nil
		}
		return errors.New("draining")
	}})

	rec, body := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])

	healthy = false
	rec, body = do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "draining", body["error"])
}

func TestListAndGetCalls(t *testing.T) {
	reg := newRegistry(t)
	_, err := reg.OnStart(context.Background(), pipeline.StartInfo{CallSID: "CA1", StreamID: "MZ1"}, nopSink{})
	require.NoError(t, err)
	archive := stubArchive{calls: map[string]*callstore.Call{"CA0": {CallSID: "CA0", Reason: "completed"}}}
	h := NewHandler(Options{Registry: reg, Archive: archive})

	rec, body := do(t, h, http.MethodGet, "/calls", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["active"])
	calls := body["calls"].([]any)
	require.Len(t, calls, 1)
	assert.Equal(t, "CA1", calls[0].(map[string]any)["call_sid"])

	rec, body = do(t, h, http.MethodGet, "/calls/CA1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["live"])

	rec, body = do(t, h, http.MethodGet, "/calls/CA0", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["live"])

	rec, _ = do(t, h, http.MethodGet, "/calls/CA404", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = do(t, h, http.MethodGet, "/archive?limit=5", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["calls"], 1)
}

func TestStartCall(t *testing.T) {
	caller := &stubCaller{}
	h := NewHandler(Options{Registry: newRegistry(t), Caller: caller, FromNumber: "+15550000000"})

	rec, body := do(t, h, http.MethodPost, "/start-call", `{"to":"+15551234567","objective":"remind","timeout":20}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CA-new", body["call_sid"])
	assert.Equal(t, "+15551234567", caller.to)
	assert.Equal(t, "+15550000000", caller.from)
	assert.Equal(t, "https://example.com/voice?objective=remind", caller.url)
	assert.Equal(t, 20, caller.opts.Timeout)

	rec, body = do(t, h, http.MethodPost, "/start-call", `{"targetNumber":"+15557654321"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CA-new", body["call_sid"])
	assert.Equal(t, "+15557654321", caller.to)

	rec, _ = do(t, h, http.MethodPost, "/start-call", `{"to":"5551234"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	caller.err = errors.New("twilio down")
	rec, _ = do(t, h, http.MethodPost, "/start-call", `{"to":"+15551234567"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestStartCallRefusedWhileUnhealthy(t *testing.T) {
	caller := &stubCaller{}
	h := NewHandler(Options{
		Registry:   newRegistry(t),
		Caller:     caller,
		FromNumber: "+15550000000",
		Health:     func() error { return errors.New("draining") },
	})
	rec, _ := do(t, h, http.MethodPost, "/start-call", `{"to":"+15551234567"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, caller.to)
}

func TestHangupCall(t *testing.T) {
	reg := newRegistry(t)
	_, err := reg.OnStart(context.Background(), pipeline.StartInfo{CallSID: "CA1", StreamID: "MZ1"}, nopSink{})
	require.NoError(t, err)
	caller := &stubCaller{}
	h := NewHandler(Options{Registry: reg, Caller: caller})

	rec, _ := do(t, h, http.MethodDelete, "/calls/CA1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"CA1"}, caller.hungUp)

	rec, _ = do(t, h, http.MethodDelete, "/calls/CA2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type routeMounter struct{}

func (routeMounter) Mount(e *echo.Echo) {
	e.GET("/extra", func(c echo.Context) error { return c.JSON(http.StatusOK, map[string]bool{"ok": true}) })
}

func TestNewServerMountsRoutes(t *testing.T) {
	e := NewServer(NewHandler(Options{Registry: newRegistry(t)}), nil, routeMounter{})
	for _, target := range []string{"/health", "/extra"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusOK, rec.Code, target)
	}
}
