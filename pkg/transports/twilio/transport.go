// Package twilio speaks Twilio Media Streams: it serves the voice webhook
// TwiML, accepts the per-call media websocket and places outbound calls.
package twilio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/Mercy2112/ai-voice-assistant/pkg/errorsx"
	"github.com/Mercy2112/ai-voice-assistant/pkg/frames"
	"github.com/Mercy2112/ai-voice-assistant/pkg/logging"
	"github.com/Mercy2112/ai-voice-assistant/pkg/redact"
	"github.com/Mercy2112/ai-voice-assistant/pkg/transports"
)

// ErrStreamClosed is returned when sending to a stream that has gone away.
var ErrStreamClosed = errors.New("twilio: stream closed")

type Config struct {
	PublicURL          string   `mapstructure:"public_url"`
	AuthToken          string   `mapstructure:"auth_token"`
	AccountSID         string   `mapstructure:"account_sid"`
	FromNumber         string   `mapstructure:"from_number"`
	VoicePath          string   `mapstructure:"voice_path"`
	WebsocketPath      string   `mapstructure:"ws_path"`
	StatusCallbackPath string   `mapstructure:"status_callback_path"`
	VoiceGreeting      string   `mapstructure:"voice_greeting"`
	AllowAnyOrigin     bool     `mapstructure:"allow_any_origin"`
	AllowedOrigins     []string `mapstructure:"allowed_origins"`
	// ServerAddr is only used to build local webhook URLs when PublicURL is empty.
	ServerAddr string `mapstructure:"server_addr"`
	SendBuffer int    `mapstructure:"send_buffer"`
}

func (c Config) withDefaults() Config {
	if c.ServerAddr == "" {
		c.ServerAddr = ":8080"
	}
	if c.VoicePath == "" {
		c.VoicePath = "/voice"
	}
	if c.WebsocketPath == "" {
		c.WebsocketPath = "/ws"
	}
	if c.StatusCallbackPath == "" {
		c.StatusCallbackPath = "/status"
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if !c.AllowAnyOrigin && len(c.AllowedOrigins) == 0 {
		c.AllowAnyOrigin = true
	}
	return c
}

type callUpdater interface {
	UpdateCall(sid string, params *api.UpdateCallParams) (*api.ApiV2010Call, error)
}

// Transport implements transports.Transport over Twilio Media Streams. Its
// HTTP routes are mounted on a shared echo server with Mount.
type Transport struct {
	cfg      Config
	upgrader websocket.Upgrader
	recvCh   chan frames.Frame
	done     chan struct{}
	stopOnce sync.Once
	logger   *slog.Logger

	greeting     func() string
	updateClient callUpdater

	mu          sync.Mutex
	streams     map[string]*stream
	callStreams map[string]string

	draining atomic.Bool
}

type Option func(*Transport)

// WithGreeting reads the TwiML greeting on every voice webhook, overriding
// Config.VoiceGreeting when it returns a non-empty string.
func WithGreeting(fn func() string) Option {
	return func(t *Transport) { t.greeting = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) { t.logger = logging.NewComponentLogger(l, "twilio") }
}

func New(cfg Config, opts ...Option) *Transport {
	cfg = cfg.withDefaults()
	t := &Transport{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		recvCh:      make(chan frames.Frame, 512),
		done:        make(chan struct{}),
		logger:      logging.NewComponentLogger(slog.Default(), "twilio"),
		streams:     make(map[string]*stream),
		callStreams: make(map[string]string),
	}
	t.upgrader.CheckOrigin = t.checkOrigin
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transport) Name() string { return "twilio" }

// Recv delivers inbound frames. It is never closed; consumers stop on their
// own context.
func (t *Transport) Recv() <-chan frames.Frame { return t.recvCh }

func (t *Transport) ReadyFields() map[string]any {
	return map[string]any{
		"webhook_url":         t.publicURL("https", t.cfg.VoicePath),
		"status_callback_url": t.publicURL("https", t.cfg.StatusCallbackPath),
	}
}

// Mount registers the webhook and websocket routes.
func (t *Transport) Mount(e *echo.Echo) {
	e.POST(t.cfg.VoicePath, t.handleVoice)
	e.POST(t.cfg.StatusCallbackPath, t.handleStatusCallback)
	e.GET(t.cfg.WebsocketPath, echo.WrapHandler(t))
}

func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		select {
		case <-ctx.Done():
			_ = t.Stop()
		case <-t.done:
		}
	}()
	return nil
}

// Stop refuses new streams and closes the live ones.
func (t *Transport) Stop() error {
	t.stopOnce.Do(func() {
		t.draining.Store(true)
		close(t.done)
		t.mu.Lock()
		live := t.streams
		t.streams = make(map[string]*stream)
		t.callStreams = make(map[string]string)
		t.mu.Unlock()
		for _, s := range live {
			s.close()
		}
	})
	return nil
}

// SetDraining makes the websocket endpoint refuse new streams.
func (t *Transport) SetDraining(v bool) {
	t.draining.Store(v)
}

func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if t.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var st *stream
	defer func() {
		if st != nil {
			st.close()
		}
	}()
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var evt Event
		if err := json.Unmarshal(msg, &evt); err != nil {
			t.logger.Debug("twilio_bad_event", "error", err)
			continue
		}
		switch evt.Event {
		case "connected":
		case "start":
			if evt.Start == nil || st != nil {
				continue
			}
			st = t.attach(evt.Start, conn)
			meta := st.meta()
			meta[frames.MetaFromNumber] = evt.Start.From()
			meta[frames.MetaToNumber] = evt.Start.CustomParameters["to"]
			if obj := evt.Start.CustomParameters["objective"]; obj != "" {
				meta[frames.MetaObjective] = obj
			}
			t.logger.Info("stream_started",
				"call_sid", st.callSID,
				"stream_id", st.streamID,
				"trace_id", st.traceID,
				"from", redact.Phone(evt.Start.From()))
			t.emit(frames.NewSystemFrame(st.streamID, time.Now().UnixNano(), frames.SystemCallStart, meta))
		case "media":
			if evt.Media == nil || st == nil {
				continue
			}
			if evt.Media.Track != "" && evt.Media.Track != "inbound" {
				continue
			}
			t.emit(frames.NewMediaFrame(st.streamID, time.Now().UnixNano(), evt.Media.Payload, st.meta()))
		case "mark":
			if st != nil && evt.Mark != nil {
				t.logger.Debug("mark_played", "call_sid", st.callSID, "name", evt.Mark.Name)
			}
		case "stop":
			if st != nil {
				t.end(st, "completed")
			}
			return
		}
	}
	if st != nil {
		t.end(st, "transport_closed")
	}
}

// Send writes a media or control frame to its stream. It blocks while the
// stream's write buffer is full.
func (t *Transport) Send(f frames.Frame) error {
	return t.SendContext(context.Background(), f)
}

// SendContext is Send bounded by ctx.
func (t *Transport) SendContext(ctx context.Context, f frames.Frame) error {
	streamID := f.Meta()[frames.MetaStreamID]
	st := t.stream(streamID)
	if st == nil {
		return errorsx.Wrap(ErrStreamClosed, errorsx.ReasonTransportClosed)
	}
	var msg outboundMessage
	switch fr := f.(type) {
	case frames.MediaFrame:
		msg = outboundMessage{Event: "media", StreamSID: streamID, Media: &mediaPayload{Payload: fr.Payload()}}
	case frames.ControlFrame:
		switch fr.Code() {
		case frames.ControlMark:
			msg = outboundMessage{Event: "mark", StreamSID: streamID, Mark: &markPayload{Name: fr.Meta()[frames.MetaMarkName]}}
		case frames.ControlClear:
			msg = outboundMessage{Event: "clear", StreamSID: streamID}
		default:
			return nil
		}
	default:
		return nil
	}
	return st.enqueue(ctx, msg)
}

// CloseStream hangs up the websocket of one stream.
func (t *Transport) CloseStream(streamID string) error {
	t.mu.Lock()
	st := t.streams[streamID]
	t.mu.Unlock()
	if st == nil {
		return nil
	}
	t.detach(st)
	st.close()
	return nil
}

// Dial places an outbound call using Twilio REST API.
func (t *Transport) Dial(ctx context.Context, to, from, url string) (string, error) {
	return NewDialer(t.cfg).Dial(ctx, to, from, url)
}

// DialWithOptions places an outbound call using Twilio REST API with options.
func (t *Transport) DialWithOptions(ctx context.Context, to, from, url string, opts transports.DialOptions) (string, error) {
	return NewDialer(t.cfg).DialWithOptions(ctx, to, from, url, opts)
}

// VoiceURL is the voice webhook URL for a call placed with objective.
func (t *Transport) VoiceURL(objective string) string {
	return NewDialer(t.cfg).VoiceURL(objective)
}

// Hangup ends a call through the REST API.
func (t *Transport) Hangup(ctx context.Context, callSID string) error {
	if strings.TrimSpace(callSID) == "" {
		return errors.New("call sid required")
	}
	updater := t.updateClient
	if updater == nil {
		if t.cfg.AccountSID == "" || t.cfg.AuthToken == "" {
			return errors.New("missing twilio credentials")
		}
		rest := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: t.cfg.AccountSID,
			Password: t.cfg.AuthToken,
		})
		updater = rest.Api
	}
	params := &api.UpdateCallParams{}
	params.SetStatus("completed")
	_, err := updater.UpdateCall(callSID, params)
	return err
}

func (t *Transport) handleVoice(c echo.Context) error {
	r := c.Request()
	if t.cfg.AuthToken != "" && !t.validateTwilioRequest(r) {
		t.logger.Warn("twilio_invalid_signature", "reason_code", string(errorsx.ReasonTransportInvalidSignature))
		return c.NoContent(http.StatusForbidden)
	}
	greeting := strings.TrimSpace(t.cfg.VoiceGreeting)
	if t.greeting != nil {
		if g := strings.TrimSpace(t.greeting()); g != "" {
			greeting = g
		}
	}
	params := map[string]string{
		"objective": c.QueryParam("objective"),
		"to":        c.FormValue("To"),
		"from":      c.FormValue("From"),
	}
	return c.Blob(http.StatusOK, "text/xml", []byte(buildStreamTwiML(greeting, t.websocketURL(r), params)))
}

func (t *Transport) handleStatusCallback(c echo.Context) error {
	r := c.Request()
	if t.cfg.AuthToken != "" && !t.validateTwilioRequest(r) {
		t.logger.Warn("twilio_status_invalid_signature", "reason_code", string(errorsx.ReasonTransportInvalidSignature))
		return c.NoContent(http.StatusForbidden)
	}
	callSID := c.FormValue("CallSid")
	reason := normalizeCallEndReason(c.FormValue("CallStatus"))
	if reason == "" || callSID == "" {
		return c.NoContent(http.StatusOK)
	}
	t.mu.Lock()
	st := t.streams[t.callStreams[callSID]]
	t.mu.Unlock()
	if st != nil {
		t.end(st, reason)
	}
	return c.NoContent(http.StatusOK)
}

func (t *Transport) attach(start *Start, conn *websocket.Conn) *stream {
	st := newStream(conn, start.CallSID, start.StreamSID, uuid.NewString(), t.cfg.SendBuffer, t.logger)
	t.mu.Lock()
	if old := t.callStreams[st.callSID]; old != "" && old != st.streamID {
		if prev := t.streams[old]; prev != nil {
			delete(t.streams, old)
			go prev.close()
		}
	}
	t.streams[st.streamID] = st
	t.callStreams[st.callSID] = st.streamID
	t.mu.Unlock()
	go st.writeLoop()
	return st
}

// end emits call_end once per stream.
func (t *Transport) end(st *stream, reason string) {
	if !st.ended.CompareAndSwap(false, true) {
		return
	}
	meta := st.meta()
	meta[frames.MetaCallEndReason] = normalizeCallEndReason(reason)
	t.emit(frames.NewSystemFrame(st.streamID, time.Now().UnixNano(), frames.SystemCallEnd, meta))
	t.detach(st)
}

func (t *Transport) detach(st *stream) {
	t.mu.Lock()
	if t.streams[st.streamID] == st {
		delete(t.streams, st.streamID)
	}
	if t.callStreams[st.callSID] == st.streamID {
		delete(t.callStreams, st.callSID)
	}
	t.mu.Unlock()
}

func (t *Transport) stream(streamID string) *stream {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.streams[streamID]
}

// emit blocks so inbound audio is never dropped; the websocket read loop of
// the affected call is what waits.
func (t *Transport) emit(f frames.Frame) {
	select {
	case t.recvCh <- f:
	case <-t.done:
	}
}

func (t *Transport) websocketURL(r *http.Request) string {
	if t.cfg.PublicURL != "" {
		return t.publicURL("wss", t.cfg.WebsocketPath)
	}
	host := r.Host
	if host == "" {
		host = "localhost" + t.cfg.ServerAddr
	}
	return "wss://" + host + t.cfg.WebsocketPath
}

func (t *Transport) publicURL(scheme, path string) string {
	if t.cfg.PublicURL != "" {
		return scheme + "://" + normalizePublicURL(t.cfg.PublicURL) + path
	}
	addr := t.cfg.ServerAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	if scheme == "https" {
		scheme = "http"
	}
	return scheme + "://" + addr + path
}

func (t *Transport) validateTwilioRequest(r *http.Request) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" {
		return false
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return false
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))

	validator := twilioclient.NewRequestValidator(t.cfg.AuthToken)
	return validator.ValidateBody(t.requestURL(r), body, signature)
}

func (t *Transport) requestURL(r *http.Request) string {
	if t.cfg.PublicURL != "" {
		base := strings.TrimRight(t.cfg.PublicURL, "/")
		if !strings.Contains(base, "://") {
			base = "https://" + base
		}
		return base + r.URL.RequestURI()
	}
	scheme := r.URL.Scheme
	if scheme == "" {
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		} else {
			scheme = "https"
		}
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func (t *Transport) checkOrigin(r *http.Request) bool {
	if t.cfg.AllowAnyOrigin {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	origin = strings.TrimRight(origin, "/")
	originHost := strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")
	for _, allowed := range t.cfg.AllowedOrigins {
		a := strings.TrimRight(strings.TrimSpace(allowed), "/")
		if a == "" {
			continue
		}
		if strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://") {
			if strings.EqualFold(a, origin) {
				return true
			}
			continue
		}
		if strings.EqualFold(a, originHost) {
			return true
		}
	}
	return false
}

func normalizeCallEndReason(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return ""
	case "queued", "ringing", "in-progress", "initiated":
		return ""
	case "completed", "hangup":
		return "completed"
	case "busy":
		return "busy"
	case "no-answer", "no_answer":
		return "no_answer"
	case "failed", "canceled", "cancelled", "transport_closed":
		return "failed"
	default:
		return "unknown"
	}
}

func normalizePublicURL(v string) string {
	v = strings.TrimPrefix(strings.TrimPrefix(v, "https://"), "http://")
	return strings.TrimRight(v, "/")
}
