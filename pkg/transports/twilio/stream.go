package twilio

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Mercy2112/ai-voice-assistant/pkg/errorsx"
	"github.com/Mercy2112/ai-voice-assistant/pkg/frames"
)

const writeWait = 5 * time.Second

// Start is the payload of a Media Streams "start" event.
type Start struct {
	CallSID          string            `json:"callSid"`
	StreamSID        string            `json:"streamSid"`
	AccountSID       string            `json:"accountSid"`
	Tracks           []string          `json:"tracks"`
	CustomParameters map[string]string `json:"customParameters"`
}

// From is the caller number passed through the stream parameters.
func (s *Start) From() string { return s.CustomParameters["from"] }

type Media struct {
	Track     string `json:"track"`
	Chunk     string `json:"chunk"`
	Timestamp string `json:"timestamp"`
	Payload   string `json:"payload"`
}

type Mark struct {
	Name string `json:"name"`
}

type Stop struct {
	CallSID string `json:"callSid"`
}

// Event is one inbound Media Streams message.
type Event struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
	Start     *Start `json:"start,omitempty"`
	Media     *Media `json:"media,omitempty"`
	Mark      *Mark  `json:"mark,omitempty"`
	Stop      *Stop  `json:"stop,omitempty"`
}

type mediaPayload struct {
	Payload string `json:"payload"`
}

type markPayload struct {
	Name string `json:"name"`
}

type outboundMessage struct {
	Event     string        `json:"event"`
	StreamSID string        `json:"streamSid"`
	Media     *mediaPayload `json:"media,omitempty"`
	Mark      *markPayload  `json:"mark,omitempty"`
}

// stream is one call's websocket. Only writeLoop writes to the connection.
type stream struct {
	conn     *websocket.Conn
	callSID  string
	streamID string
	traceID  string
	sendCh   chan []byte
	done     chan struct{}
	once     sync.Once
	ended    atomic.Bool
	logger   *slog.Logger
}

func newStream(conn *websocket.Conn, callSID, streamID, traceID string, buffer int, logger *slog.Logger) *stream {
	return &stream{
		conn:     conn,
		callSID:  callSID,
		streamID: streamID,
		traceID:  traceID,
		sendCh:   make(chan []byte, buffer),
		done:     make(chan struct{}),
		logger:   logger,
	}
}

func (s *stream) meta() map[string]string {
	return map[string]string{
		frames.MetaStreamID: s.streamID,
		frames.MetaCallSID:  s.callSID,
		frames.MetaTraceID:  s.traceID,
		frames.MetaSource:   "twilio",
	}
}

func (s *stream) enqueue(ctx context.Context, msg outboundMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case <-s.done:
		return errorsx.Wrap(ErrStreamClosed, errorsx.ReasonTransportClosed)
	default:
	}
	select {
	case s.sendCh <- b:
		return nil
	case <-s.done:
		return errorsx.Wrap(ErrStreamClosed, errorsx.ReasonTransportClosed)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *stream) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.sendCh:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.logger.Warn("twilio_write_failed",
					"call_sid", s.callSID,
					"reason_code", string(errorsx.ReasonTransportSend),
					"error", err)
				s.close()
				return
			}
		}
	}
}

func (s *stream) close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// buildStreamTwiML answers the voice webhook: an optional spoken greeting,
// then a bidirectional media stream carrying params as custom parameters.
func buildStreamTwiML(greeting, wsURL string, params map[string]string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><Response>`)
	if greeting != "" {
		b.WriteString(`<Say>` + xmlEscape(greeting) + `</Say>`)
	}
	b.WriteString(`<Connect><Stream url="` + xmlEscape(wsURL) + `">`)
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(`<Parameter name="` + xmlEscape(k) + `" value="` + xmlEscape(params[k]) + `"/>`)
	}
	b.WriteString(`</Stream></Connect></Response>`)
	return b.String()
}

var xmlReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"\"", "&quot;",
	"'", "&apos;",
)

func xmlEscape(in string) string {
	return xmlReplacer.Replace(in)
}
