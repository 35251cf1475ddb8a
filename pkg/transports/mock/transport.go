// Package mock is an in-memory transport for local runs and engine tests.
package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Mercy2112/ai-voice-assistant/pkg/codec"
	"github.com/Mercy2112/ai-voice-assistant/pkg/frames"
)

var ErrStopped = errors.New("mock transport stopped")

// Transport implements transports.Transport, transports.ContextSender and
// transports.StreamCloser without a network. Tests script a call with StartCall, Media and EndCall
// and inspect what the engine sent back with Sent.
type Transport struct {
	recvCh chan frames.Frame
	done   chan struct{}
	once   sync.Once

	mu       sync.Mutex
	sent     []frames.Frame
	closed   map[string]int
	draining bool
}

func New() *Transport {
	return &Transport{
		recvCh: make(chan frames.Frame, 256),
		done:   make(chan struct{}),
		closed: make(map[string]int),
	}
}

func (t *Transport) Name() string { return "mock" }

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

func (t *Transport) Stop() error {
	t.once.Do(func() { close(t.done) })
	return nil
}

func (t *Transport) Recv() <-chan frames.Frame { return t.recvCh }

// Send records an outbound frame. Frames for a closed stream are refused.
func (t *Transport) Send(f frames.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed[f.Meta()[frames.MetaStreamID]] > 0 {
		return ErrStopped
	}
	t.sent = append(t.sent, f)
	return nil
}

// SendContext refuses frames once ctx is done.
func (t *Transport) SendContext(ctx context.Context, f frames.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.Send(f)
}

func (t *Transport) CloseStream(streamID string) error {
	t.mu.Lock()
	t.closed[streamID]++
	t.mu.Unlock()
	return nil
}

func (t *Transport) SetDraining(v bool) {
	t.mu.Lock()
	t.draining = v
	t.mu.Unlock()
}

func (t *Transport) Draining() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.draining
}

// Push injects an inbound frame. It blocks like a real read loop would.
func (t *Transport) Push(f frames.Frame) error {
	select {
	case t.recvCh <- f:
		return nil
	case <-t.done:
		return ErrStopped
	}
}

func callMeta(callSID, streamID string) map[string]string {
	return map[string]string{
		frames.MetaCallSID:  callSID,
		frames.MetaStreamID: streamID,
		frames.MetaTraceID:  "trace-" + callSID,
		frames.MetaSource:   "mock",
	}
}

// StartCall announces a call. extra is merged into the frame metadata.
func (t *Transport) StartCall(callSID, streamID string, extra map[string]string) error {
	meta := callMeta(callSID, streamID)
	for k, v := range extra {
		meta[k] = v
	}
	return t.Push(frames.NewSystemFrame(streamID, time.Now().UnixNano(), frames.SystemCallStart, meta))
}

// Media sends raw mu-law audio in 20ms frames.
func (t *Transport) Media(callSID, streamID string, audio []byte) error {
	for _, payload := range codec.EncodeFrames(audio, codec.FrameBytes) {
		if err := t.Push(frames.NewMediaFrame(streamID, time.Now().UnixNano(), payload, callMeta(callSID, streamID))); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transport) EndCall(callSID, streamID, reason string) error {
	meta := callMeta(callSID, streamID)
	meta[frames.MetaCallEndReason] = reason
	return t.Push(frames.NewSystemFrame(streamID, time.Now().UnixNano(), frames.SystemCallEnd, meta))
}

// Sent returns the frames sent to streamID so far.
func (t *Transport) Sent(streamID string) []frames.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []frames.Frame
	for _, f := range t.sent {
		if f.Meta()[frames.MetaStreamID] == streamID {
			out = append(out, f)
		}
	}
	return out
}

// Closed reports how many times streamID was hung up.
func (t *Transport) Closed(streamID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed[streamID]
}
