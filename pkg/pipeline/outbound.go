package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Mercy2112/ai-voice-assistant/pkg/frames"
	"github.com/Mercy2112/ai-voice-assistant/pkg/transports"
)

// ErrOutboundClosed is returned for audio sent after a session's teardown
// began.
var ErrOutboundClosed = errors.New("outbound stream closed")

// Sink writes one session's outbound frames to its signaling stream.
type Sink interface {
	// SendMedia writes one wire-encoded audio payload.
	SendMedia(ctx context.Context, payload string) error
	// Mark asks the far end to acknowledge when playback reaches name.
	Mark(ctx context.Context, name string) error
	// Close hangs up the signaling connection.
	Close() error
}

// outbound guards a Sink so nothing new reaches it once the session is
// closing. The lock is held across the closed check and the write, so once
// close returns no write is in progress or can start. Hanging up the
// connection is left to the registry once the worker exits.
type outbound struct {
	sink   Sink
	mu     sync.Mutex
	closed bool
	frames atomic.Int64
}

func newOutbound(sink Sink) *outbound {
	return &outbound{sink: sink}
}

func (o *outbound) sendMedia(ctx context.Context, payload string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrOutboundClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := o.sink.SendMedia(ctx, payload); err != nil {
		return err
	}
	o.frames.Add(1)
	return nil
}

func (o *outbound) mark(ctx context.Context, name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrOutboundClosed
	}
	return o.sink.Mark(ctx, name)
}

// close waits for an in-flight write. Cancel the writer's context first so
// a write blocked on a full transport buffer returns.
func (o *outbound) close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
}

func (o *outbound) hangup() error {
	o.close()
	return o.sink.Close()
}

// TransportSink sends a stream's frames through a Transport.
type TransportSink struct {
	Transport transports.Transport
	StreamID  string
	CallSID   string
}

func (s TransportSink) meta() map[string]string {
	return map[string]string{frames.MetaCallSID: s.CallSID}
}

func (s TransportSink) send(ctx context.Context, f frames.Frame) error {
	if cs, ok := s.Transport.(transports.ContextSender); ok {
		return cs.SendContext(ctx, f)
	}
	return s.Transport.Send(f)
}

func (s TransportSink) SendMedia(ctx context.Context, payload string) error {
	return s.send(ctx, frames.NewMediaFrame(s.StreamID, time.Now().UnixNano(), payload, s.meta()))
}

func (s TransportSink) Mark(ctx context.Context, name string) error {
	meta := s.meta()
	meta[frames.MetaMarkName] = name
	return s.send(ctx, frames.NewControlFrame(s.StreamID, time.Now().UnixNano(), frames.ControlMark, meta))
}

func (s TransportSink) Close() error {
	if c, ok := s.Transport.(transports.StreamCloser); ok {
		return c.CloseStream(s.StreamID)
	}
	return nil
}
